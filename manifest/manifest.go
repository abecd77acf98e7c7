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

// Package manifest parses the taxid-to-file-path manifest that seeds a build.
package manifest

import (
	"bufio"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

// TaxidID is an opaque taxonomic-group identifier. Equality is byte comparison,
// which is exactly what Go's built-in string comparison gives us.
type TaxidID = string

// Manifest maps a taxid to the ordered list of sequence files contributed
// under that taxid. Built once by Parse, read-only thereafter.
type Manifest map[TaxidID][]string

// FileInfo accumulates counters across a build. The fields set by manifest
// parsing are FileNum and InvalidNum; MinimizerExtractor fills in the rest
// as sequences are streamed.
type FileInfo struct {
	FileNum     int // number of valid manifest lines
	InvalidNum  int // number of malformed manifest lines
	SequenceNum int // number of sequences retained (>= min_length)
	SkippedNum  int // number of sequences skipped (< min_length)
	BpLength    int // total base pairs over retained sequences
}

// Merge folds a thread-local FileInfo produced during minimizer extraction
// into the receiver. It never touches FileNum/InvalidNum, which belong to
// manifest parsing alone.
func (fi *FileInfo) Merge(other FileInfo) {
	fi.SequenceNum += other.SequenceNum
	fi.SkippedNum += other.SkippedNum
	fi.BpLength += other.BpLength
}

// Parse reads a manifest file and returns the parsed Manifest, an
// initialized HashCount map (every taxid present, set to zero) and the
// FileInfo counters for the parse phase.
//
// Each non-empty line must be "<file_path> <taxid>" separated by ASCII
// whitespace. Lines that don't match this shape are counted as invalid and
// skipped; they never abort the build. Only a failure to open the manifest
// itself is fatal.
func Parse(path string) (Manifest, map[TaxidID]uint64, FileInfo, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, nil, FileInfo{}, errors.Wrapf(err, "opening manifest: %s", path)
	}
	defer fh.Close()

	m := make(Manifest, 1024)
	hashCount := make(map[TaxidID]uint64, 1024)
	var info FileInfo

	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			info.InvalidNum++
			continue
		}

		file, taxid := fields[0], fields[1]
		m[taxid] = append(m[taxid], file)
		if _, ok := hashCount[taxid]; !ok {
			hashCount[taxid] = 0
		}
		info.FileNum++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, FileInfo{}, errors.Wrapf(err, "reading manifest: %s", path)
	}

	return m, hashCount, info, nil
}
