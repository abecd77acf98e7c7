// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/malabz/Chimera/archive"
	"github.com/malabz/Chimera/build"
)

// fileConfig mirrors BuildConfig's nine keys for TOML config files. Flags
// explicitly set on the command line always override values loaded here.
// The threads and verbose keys are parsed but not used: the worker count and
// verbosity always come from the persistent -j/--threads and -q/--quiet
// flags.
type fileConfig struct {
	InputFile  string  `toml:"input_file"`
	OutputFile string  `toml:"output_file"`
	KmerSize   uint8   `toml:"kmer_size"`
	WindowSize uint16  `toml:"window_size"`
	MinLength  uint64  `toml:"min_length"`
	LoadFactor float64 `toml:"load_factor"`
	Mode       string  `toml:"mode"`
	Threads    uint32  `toml:"threads"`
	Verbose    bool    `toml:"verbose"`
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "build an Interleaved Cuckoo Filter archive from a sequence manifest",
	Long: `build an Interleaved Cuckoo Filter archive from a sequence manifest

The manifest is a two-column, whitespace-separated text file:

    <path/to/sequence/file>  <taxid>

one line per sequence file. A file's taxid may repeat across multiple
lines; all of that taxid's files contribute to the same set of bins.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
			defer fhLog.Close()
		}

		cfg := loadFileConfig(getFlagString(cmd, "config"))
		applyFlagOverrides(cmd, &cfg)

		if cfg.InputFile == "" {
			checkError(fmt.Errorf("flag -i/--input is required"))
		}
		if cfg.OutputFile == "" {
			checkError(fmt.Errorf("flag -o/--output is required"))
		}
		cfg.OutputFile = expandPath(cfg.OutputFile)

		makeOutDir(cfg.OutputFile, getFlagBool(cmd, "force"))

		if opt.Verbose {
			log.Infof("input manifest: %s", cfg.InputFile)
			log.Infof("output archive: %s", cfg.OutputFile)
			log.Infof("k=%d w=%d min_length=%d load_factor=%.3f threads=%d", cfg.KmerSize, cfg.WindowSize, cfg.MinLength, cfg.LoadFactor, opt.NumCPUs)
		}

		timeStart := time.Now()
		report, err := build.Run(build.Config{
			InputFile:  cfg.InputFile,
			OutputFile: cfg.OutputFile,
			KmerSize:   cfg.KmerSize,
			WindowSize: cfg.WindowSize,
			MinLength:  cfg.MinLength,
			LoadFactor: cfg.LoadFactor,
			Mode:       cfg.Mode,
			Threads:    opt.NumCPUs,
			Verbose:    opt.Verbose,
			Logf: func(format string, args ...interface{}) {
				if opt.Verbose {
					log.Infof(format, args...)
				}
			},
		})
		checkError(err)

		log.Infof("archive written: %s (%s)", cfg.OutputFile, archive.FormatSize(report.ArchiveSize))
		log.Infof("sequences: %d retained, %d skipped, %d bp", report.FileInfo.SequenceNum, report.FileInfo.SkippedNum, report.FileInfo.BpLength)
		log.Infof("filter: bins=%d bin_size=%d", report.Config.Bins, report.Config.BinSize)
		if opt.Verbose {
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func loadFileConfig(path string) fileConfig {
	cfg := fileConfig{
		KmerSize:   31,
		WindowSize: 1,
		MinLength:  0,
		LoadFactor: 0.95,
		Threads:    0,
	}
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(expandPath(path))
	checkError(errors.Wrapf(err, "reading config file: %s", path))

	checkError(errors.Wrapf(toml.Unmarshal(data, &cfg), "parsing config file: %s", path))
	return cfg
}

func applyFlagOverrides(cmd *cobra.Command, cfg *fileConfig) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputFile = getFlagString(cmd, "input")
	}
	if flags.Changed("output") {
		cfg.OutputFile = getFlagString(cmd, "output")
	}
	if flags.Changed("kmer") {
		cfg.KmerSize = uint8(getFlagPositiveInt(cmd, "kmer"))
	}
	if flags.Changed("window") {
		cfg.WindowSize = uint16(getFlagPositiveInt(cmd, "window"))
	}
	if flags.Changed("min-length") {
		cfg.MinLength = uint64(getFlagNonNegativeInt(cmd, "min-length"))
	}
	if flags.Changed("load-factor") {
		cfg.LoadFactor = getFlagFloat64(cmd, "load-factor")
	}
	if flags.Changed("mode") {
		cfg.Mode = getFlagString(cmd, "mode")
	}
}

func init() {
	RootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("config", "c", "", "TOML config file; flags override its values")
	buildCmd.Flags().StringP("input", "i", "", "input manifest file (<file> <taxid> per line)")
	buildCmd.Flags().StringP("output", "o", "", "output archive path")
	buildCmd.Flags().IntP("kmer", "k", 31, "k-mer size")
	buildCmd.Flags().IntP("window", "w", 1, "minimizer window size, in k-mers")
	buildCmd.Flags().IntP("min-length", "m", 0, "skip sequences shorter than this")
	buildCmd.Flags().Float64P("load-factor", "l", 0.95, "target Interleaved Cuckoo Filter load factor")
	buildCmd.Flags().StringP("mode", "", "", "reserved, accepted but currently unused by bin sizing")
	buildCmd.Flags().BoolP("force", "f", false, "overwrite an existing output file")
}
