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

// Package build sequences the phases that turn a manifest into a persisted
// Interleaved Cuckoo Filter archive: parse, extract, size, lay out,
// populate, persist.
package build

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/malabz/Chimera/archive"
	"github.com/malabz/Chimera/binlayout"
	"github.com/malabz/Chimera/binsizer"
	"github.com/malabz/Chimera/icf"
	"github.com/malabz/Chimera/manifest"
	"github.com/malabz/Chimera/minimizer"
	"github.com/malabz/Chimera/populate"
)

// State names a step of the build state machine, in the order it runs.
type State int

const (
	Init State = iota
	ManifestParsed
	MinimizersSpilled
	BinSized
	BinLaidOut
	FilterPopulated
	Persisted
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case ManifestParsed:
		return "MANIFEST_PARSED"
	case MinimizersSpilled:
		return "MINIMIZERS_SPILLED"
	case BinSized:
		return "BIN_SIZED"
	case BinLaidOut:
		return "BIN_LAID_OUT"
	case FilterPopulated:
		return "FILTER_POPULATED"
	case Persisted:
		return "PERSISTED"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Config is a BuildOrchestrator run's configuration: the nine BuildConfig
// knobs, plus the seed, temp-directory and logging hooks below.
type Config struct {
	InputFile  string
	OutputFile string
	KmerSize   uint8
	WindowSize uint16
	MinLength  uint64
	LoadFactor float64
	// Mode is accepted but currently unused by BinSizer, carried unchanged
	// from the original tool's config surface.
	Mode    string
	Threads int
	Verbose bool

	// Seed is the raw minimizer-hash seed. Defaults to 1 if zero.
	Seed uint64

	// TmpDir overrides the temp directory used for spill files. Defaults
	// to "<output_file>.tmp" if empty.
	TmpDir string

	// Logf, if non-nil, receives verbose phase-timing and diagnostic
	// lines. Left nil to run silently.
	Logf func(format string, args ...interface{})
}

// Report summarizes a completed build for the caller (and, upstream, the
// CLI's stdout summary).
type Report struct {
	State       State
	FileInfo    manifest.FileInfo
	Config      archive.ICFConfig
	ArchiveSize int64
	Elapsed     time.Duration
}

// Run executes the full build pipeline against cfg, returning once the
// archive has been written (State == Persisted transitions to Done) or an
// error occurs (State == Aborted).
//
// The temp directory is recreated empty at the start of the run. Phase 5
// (population) deletes each taxid's spill file as it's consumed; the
// directory itself is left behind afterward, matching the reference
// implementation's cleanup scope.
func Run(cfg Config) (Report, error) {
	start := time.Now()
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	state := Init
	report := Report{}

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}

	tmpDir := cfg.TmpDir
	if tmpDir == "" {
		tmpDir = cfg.OutputFile + ".tmp"
	}
	// Filesystem errors here are logged, not fatal: a stale tmp dir that
	// fails to clear, or one that already exists and is usable, is not a
	// reason to give up before phase 1 even runs. A tmp dir that cannot be
	// created at all makes phase 2's Extract fail, which aborts the build.
	if err := os.RemoveAll(tmpDir); err != nil {
		logf("[build] warning: clearing tmp dir %s failed, continuing: %v", tmpDir, err)
	}
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		logf("[build] warning: creating tmp dir %s failed, continuing: %v", tmpDir, err)
	}

	// phase 1: manifest
	phaseStart := time.Now()
	m, hashCount, fileInfo, err := manifest.Parse(cfg.InputFile)
	if err != nil {
		return Report{State: Aborted}, abort(&state, err)
	}
	state = ManifestParsed
	logf("[build] manifest parsed: %d files, %d invalid lines (%s)", fileInfo.FileNum, fileInfo.InvalidNum, time.Since(phaseStart))

	// phase 2: minimizer extraction
	phaseStart = time.Now()
	scheme := minimizer.Scheme{K: cfg.KmerSize, W: cfg.WindowSize, Seed: seed}
	extractCfg := minimizer.ExtractConfig{
		Scheme:    scheme,
		MinLength: cfg.MinLength,
		TmpDir:    tmpDir,
		Threads:   cfg.Threads,
		Verbose:   cfg.Verbose,
		Logf:      logf,
	}
	if err := minimizer.Extract(m, hashCount, &fileInfo, extractCfg); err != nil {
		return Report{State: Aborted}, abort(&state, err)
	}
	state = MinimizersSpilled
	logf("[build] minimizers extracted: %d sequences, %d skipped, %d bp (%s)", fileInfo.SequenceNum, fileInfo.SkippedNum, fileInfo.BpLength, time.Since(phaseStart))

	// phase 3: bin sizing
	phaseStart = time.Now()
	sizerResult := binsizer.Size(hashCount, cfg.LoadFactor, cfg.Threads)
	state = BinSized
	logf("[build] bin size chosen: bin_size=%d bins=%d (%s)", sizerResult.BinSize, sizerResult.Bins, time.Since(phaseStart))

	// phase 4: bin layout
	phaseStart = time.Now()
	layout := binlayout.Layout(hashCount, sizerResult.BinSize, cfg.Threads)
	state = BinLaidOut
	logf("[build] bin layout computed for %d taxids (%s)", len(layout.Order), time.Since(phaseStart))

	// phase 5: filter population
	phaseStart = time.Now()
	filter := icf.New(sizerResult.Bins, sizerResult.BinSize)
	populateCfg := populate.Config{TmpDir: tmpDir, Threads: cfg.Threads, Logf: logf}
	if err := populate.Populate(filter, layout, populateCfg); err != nil {
		return Report{State: Aborted}, abort(&state, err)
	}
	state = FilterPopulated
	logf("[build] filter populated (%s)", time.Since(phaseStart))

	// phase 6: persistence
	phaseStart = time.Now()
	icfConfig := archive.ICFConfig{
		KmerSize:   cfg.KmerSize,
		WindowSize: cfg.WindowSize,
		Seed:       seed,
		Bins:       sizerResult.Bins,
		BinSize:    sizerResult.BinSize,
	}
	arc := archive.Archive{
		Filter:    filter,
		Config:    icfConfig,
		HashCount: kvsFromCounts(hashCount),
		TaxidBins: kvsFromLayout(layout),
	}
	size, err := archive.WriteToPath(cfg.OutputFile, arc)
	if err != nil {
		return Report{State: Aborted}, abort(&state, err)
	}
	state = Persisted
	logf("[build] archive written: %s (%s, %s)", cfg.OutputFile, archive.FormatSize(size), time.Since(phaseStart))

	state = Done
	report = Report{
		State:       state,
		FileInfo:    fileInfo,
		Config:      icfConfig,
		ArchiveSize: size,
		Elapsed:     time.Since(start),
	}
	logf("[build] done in %s", report.Elapsed)
	return report, nil
}

func abort(state *State, err error) error {
	failedAt := *state
	*state = Aborted
	return errors.Wrap(err, fmt.Sprintf("build aborted after %s", failedAt.String()))
}

func kvsFromCounts(counts map[string]uint64) []archive.KV {
	kvs := make([]archive.KV, 0, len(counts))
	for taxid, count := range counts {
		kvs = append(kvs, archive.KV{Taxid: taxid, Value: count})
	}
	return kvs
}

func kvsFromLayout(layout binlayout.TaxidBins) []archive.KV {
	kvs := make([]archive.KV, 0, len(layout.Order))
	for _, taxid := range layout.Order {
		kvs = append(kvs, archive.KV{Taxid: taxid, Value: layout.End[taxid]})
	}
	return kvs
}

// DefaultTmpDir returns the deterministic temp directory path for an
// output archive path, matching the convention Run defaults to.
func DefaultTmpDir(outputFile string) string {
	return outputFile + ".tmp"
}

// EnsureOutDir makes sure the parent directory of path exists, matching
// the teacher's makeOutDir helper.
func EnsureOutDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
