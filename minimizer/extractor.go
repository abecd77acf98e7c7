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

package minimizer

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/malabz/Chimera/manifest"
)

// SpillFileName returns the deterministic spill-file path for a taxid under
// tmpDir, matching the wire-format's "<tmpdir>/<taxid>.mini" naming.
func SpillFileName(tmpDir, taxid string) string {
	return filepath.Join(tmpDir, taxid+".mini")
}

// ExtractConfig configures a MinimizerExtractor run.
type ExtractConfig struct {
	Scheme    Scheme
	MinLength uint64
	TmpDir    string
	Threads   int
	Verbose   bool

	// Logf, if non-nil, receives one-line diagnostics (skip/failure
	// notices). Left nil in tests that don't care about log output.
	Logf func(format string, args ...interface{})
}

type taxidFile struct {
	taxid string
	file  string
}

// Extract runs phase 2 of the build: for every (taxid, file) pair named in
// m, stream its sequences, minimize them, deduplicate per (taxid,file), and
// append the distinct fingerprints to that taxid's spill file. hashCount
// and fileInfo are updated in place; both must already contain an entry (or
// zero value) for every taxid in m.
//
// Deduplication is per-file, not per-taxid: two files of the same taxid
// sharing a k-mer each count and spill it once. This inflates hashCount
// relative to the true distinct-fingerprint count actually inserted into
// the filter downstream; BinSizer treats it as an upper bound. This is
// intentional, carried over unchanged from the reference implementation,
// and is a standing reviewable decision, not a bug.
func Extract(m manifest.Manifest, hashCount map[string]uint64, fileInfo *manifest.FileInfo, cfg ExtractConfig) error {
	if err := os.MkdirAll(cfg.TmpDir, 0777); err != nil {
		return errors.Wrapf(err, "creating tmp dir: %s", cfg.TmpDir)
	}

	tasks := make([]taxidFile, 0, len(m))
	for taxid, files := range m {
		for _, file := range files {
			tasks = append(tasks, taxidFile{taxid: taxid, file: file})
		}
	}

	var spillMu sync.Map // taxid -> *sync.Mutex
	lockFor := func(taxid string) *sync.Mutex {
		v, _ := spillMu.LoadOrStore(taxid, &sync.Mutex{})
		return v.(*sync.Mutex)
	}

	var mergeMu sync.Mutex

	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}

	var bar *mpb.Bar
	var pbs *mpb.Progress
	if cfg.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(tasks)),
			mpb.PrependDecorators(
				decor.Name("extracting minimizers: ", decor.WC{W: len("extracting minimizers: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
	}

	var wg sync.WaitGroup
	tokens := make(chan int, threads)

	for _, task := range tasks {
		tokens <- 1
		wg.Add(1)

		go func(task taxidFile) {
			defer func() {
				wg.Done()
				<-tokens
				if bar != nil {
					bar.Increment()
				}
			}()

			hashes, localInfo, err := extractOne(task.file, cfg)
			if err != nil {
				if cfg.Logf != nil {
					cfg.Logf("skipping unreadable file %s: %s", task.file, err)
				}
				return
			}

			if len(hashes) > 0 {
				mu := lockFor(task.taxid)
				mu.Lock()
				werr := appendSpill(SpillFileName(cfg.TmpDir, task.taxid), hashes)
				mu.Unlock()
				if werr != nil {
					if cfg.Logf != nil {
						cfg.Logf("skipping spill for taxid %s: %s", task.taxid, werr)
					}
					return
				}
			}

			mergeMu.Lock()
			hashCount[task.taxid] += uint64(len(hashes))
			fileInfo.Merge(localInfo)
			mergeMu.Unlock()
		}(task)
	}

	wg.Wait()
	if pbs != nil {
		pbs.Wait()
	}

	return nil
}

// extractOne streams one file's sequences and returns its distinct
// fingerprint set (as a slice, order unspecified) plus this file's
// contribution to FileInfo's sequence counters.
func extractOne(file string, cfg ExtractConfig) ([]uint64, manifest.FileInfo, error) {
	var info manifest.FileInfo

	reader, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return nil, info, errors.Wrapf(err, "opening sequence file: %s", file)
	}
	defer reader.Close()

	set := make(map[uint64]struct{}, 1<<16)

	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, info, errors.Wrapf(err, "reading sequence file: %s", file)
		}

		seq := record.Seq.Seq
		if uint64(len(seq)) < cfg.MinLength {
			info.SkippedNum++
			continue
		}
		info.SequenceNum++
		info.BpLength += len(seq)

		for _, h := range Fingerprints(seq, cfg.Scheme) {
			set[h] = struct{}{}
		}
	}

	hashes := make([]uint64, 0, len(set))
	for h := range set {
		hashes = append(hashes, h)
	}
	return hashes, info, nil
}

func appendSpill(path string, hashes []uint64) error {
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening spill file: %s", path)
	}
	defer fh.Close()

	buf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], h)
	}
	_, err = fh.Write(buf)
	return errors.Wrapf(err, "writing spill file: %s", path)
}
