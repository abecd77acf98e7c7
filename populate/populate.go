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

// Package populate streams per-taxid minimizer spill files into an
// Interleaved Cuckoo Filter, round-robin across each taxid's owned bin
// range.
package populate

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/malabz/Chimera/binlayout"
	"github.com/malabz/Chimera/icf"
	"github.com/malabz/Chimera/minimizer"
)

// Config configures a FilterPopulator run.
type Config struct {
	TmpDir  string
	Threads int

	// Logf, if non-nil, receives one-line diagnostics for skipped taxids.
	Logf func(format string, args ...interface{})
}

// Populate inserts every taxid's spill-file fingerprints into f at the bin
// range recorded in layout, then deletes the spill file. Taxids are
// processed in parallel; each touches a disjoint bin range, so no
// cross-task synchronization is needed for filter mutation, only for the
// per-taxid failure log.
func Populate(f *icf.Filter, layout binlayout.TaxidBins, cfg Config) error {
	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}

	var wg sync.WaitGroup
	var logMu sync.Mutex
	tokens := make(chan int, threads)

	start := uint64(0)
	for _, taxid := range layout.Order {
		end := layout.End[taxid]
		s, e := start, end
		start = end

		if s == e {
			continue // empty range, nothing to insert
		}

		tokens <- 1
		wg.Add(1)
		go func(taxid string, start, end uint64) {
			defer func() {
				wg.Done()
				<-tokens
			}()

			if err := populateOne(f, taxid, start, end, cfg); err != nil && cfg.Logf != nil {
				logMu.Lock()
				cfg.Logf("skipping taxid %s: %s", taxid, err)
				logMu.Unlock()
			}
		}(taxid, s, e)
	}

	wg.Wait()
	return nil
}

func populateOne(f *icf.Filter, taxid string, start, end uint64, cfg Config) error {
	path := minimizer.SpillFileName(cfg.TmpDir, taxid)

	fh, err := os.Open(path)
	if err != nil {
		return err
	}

	cursor := start
	buf := make([]byte, 8)
	for {
		if _, err := io.ReadFull(fh, buf); err != nil {
			if err == io.EOF {
				break
			}
			fh.Close()
			return err
		}

		h := binary.LittleEndian.Uint64(buf)
		f.InsertTag(cursor, h)

		cursor++
		if cursor == end {
			cursor = start
		}
	}

	fh.Close()
	return os.Remove(path)
}
