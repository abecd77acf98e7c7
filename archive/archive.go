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

// Package archive persists an Interleaved Cuckoo Filter and its build
// metadata to a single self-delimiting binary file, and loads it back.
//
// Logical schema, in order:
//
//	record 0: Interleaved Cuckoo Filter payload
//	record 1: ICFConfig { kmer_size u8, window_size u16, seed u64, bins u64, bin_size u64 }
//	record 2: sequence<(string, u64)>  // hashCount
//	record 3: sequence<(string, u64)>  // taxidBins (exclusive-end indices)
package archive

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/malabz/Chimera/icf"
)

// Magic identifies the archive format.
var Magic = [8]byte{'c', 'h', 'i', 'm', 'e', 'r', 'a', 'x'}

// MainVersion is used for checking compatibility across breaking format
// changes.
var MainVersion uint8 = 1

// MinorVersion is bumped for backward-compatible additions.
var MinorVersion uint8 = 0

// ErrInvalidFileFormat means the file's magic number doesn't match.
var ErrInvalidFileFormat = errors.New("archive: invalid file format")

// ErrVersionMismatch means the file was written by an incompatible version.
var ErrVersionMismatch = errors.New("archive: version mismatch")

// ErrBrokenFile means the file is truncated or malformed.
var ErrBrokenFile = errors.New("archive: broken file")

var be = binary.BigEndian

// ICFConfig records the parameters needed to both interpret the filter's
// bin layout and reproduce its minimizer scheme at query time.
type ICFConfig struct {
	KmerSize   uint8
	WindowSize uint16
	Seed       uint64
	Bins       uint64
	BinSize    uint64
}

// KV is one (taxid, count) pair as persisted in records 2 and 3.
type KV struct {
	Taxid string
	Value uint64
}

// Archive is the full set of records making up a persisted filter.
type Archive struct {
	Filter    *icf.Filter
	Config    ICFConfig
	HashCount []KV
	TaxidBins []KV
}

// WriteToPath serializes arc to path as a single binary file. On success it
// returns the resulting file size in bytes.
func WriteToPath(path string, arc Archive) (int64, error) {
	fh, err := os.Create(path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "creating archive: %s", path)
	}
	defer fh.Close()

	w := bufio.NewWriterSize(fh, 1<<20)

	if err := binary.Write(w, be, Magic); err != nil {
		return 0, err
	}
	if err := binary.Write(w, be, [2]uint8{MainVersion, MinorVersion}); err != nil {
		return 0, err
	}

	// record 0: filter payload
	if _, err := arc.Filter.WriteTo(w); err != nil {
		return 0, pkgerrors.Wrap(err, "writing filter payload")
	}

	// record 1: ICFConfig
	if err := binary.Write(w, be, arc.Config.KmerSize); err != nil {
		return 0, err
	}
	if err := binary.Write(w, be, arc.Config.WindowSize); err != nil {
		return 0, err
	}
	if err := binary.Write(w, be, [3]uint64{arc.Config.Seed, arc.Config.Bins, arc.Config.BinSize}); err != nil {
		return 0, err
	}

	// record 2: hashCount
	if err := writeKVs(w, arc.HashCount); err != nil {
		return 0, pkgerrors.Wrap(err, "writing hash-count record")
	}

	// record 3: taxidBins
	if err := writeKVs(w, arc.TaxidBins); err != nil {
		return 0, pkgerrors.Wrap(err, "writing taxid-bins record")
	}

	if err := w.Flush(); err != nil {
		return 0, err
	}

	info, err := fh.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func writeKVs(w io.Writer, kvs []KV) error {
	if err := binary.Write(w, be, uint64(len(kvs))); err != nil {
		return err
	}
	for _, kv := range kvs {
		if err := binary.Write(w, be, uint64(len(kv.Taxid))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, kv.Taxid); err != nil {
			return err
		}
		if err := binary.Write(w, be, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// ReadFromPath deserializes an Archive previously written by WriteToPath.
func ReadFromPath(path string) (*Archive, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "opening archive: %s", path)
	}
	defer fh.Close()

	r := bufio.NewReaderSize(fh, 1<<20)

	var magic [8]byte
	if err := binary.Read(r, be, &magic); err != nil {
		return nil, ErrBrokenFile
	}
	if magic != Magic {
		return nil, ErrInvalidFileFormat
	}

	var versions [2]uint8
	if err := binary.Read(r, be, &versions); err != nil {
		return nil, ErrBrokenFile
	}
	if versions[0] != MainVersion {
		return nil, ErrVersionMismatch
	}

	filter, err := icf.ReadFrom(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading filter payload")
	}

	var cfg ICFConfig
	if err := binary.Read(r, be, &cfg.KmerSize); err != nil {
		return nil, ErrBrokenFile
	}
	if err := binary.Read(r, be, &cfg.WindowSize); err != nil {
		return nil, ErrBrokenFile
	}
	var rest [3]uint64
	if err := binary.Read(r, be, &rest); err != nil {
		return nil, ErrBrokenFile
	}
	cfg.Seed, cfg.Bins, cfg.BinSize = rest[0], rest[1], rest[2]

	hashCount, err := readKVs(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading hash-count record")
	}

	taxidBins, err := readKVs(r)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "reading taxid-bins record")
	}

	return &Archive{
		Filter:    filter,
		Config:    cfg,
		HashCount: hashCount,
		TaxidBins: taxidBins,
	}, nil
}

func readKVs(r io.Reader) ([]KV, error) {
	var n uint64
	if err := binary.Read(r, be, &n); err != nil {
		return nil, ErrBrokenFile
	}

	kvs := make([]KV, 0, n)
	for i := uint64(0); i < n; i++ {
		var strLen uint64
		if err := binary.Read(r, be, &strLen); err != nil {
			return nil, ErrBrokenFile
		}
		buf := make([]byte, strLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ErrBrokenFile
		}
		var v uint64
		if err := binary.Read(r, be, &v); err != nil {
			return nil, ErrBrokenFile
		}
		kvs = append(kvs, KV{Taxid: string(buf), Value: v})
	}
	return kvs, nil
}

// FormatSize formats a byte count as bytes/KB/MB/GB, matching the
// reference implementation's stdout report.
func FormatSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size >= gb:
		return formatFloat(float64(size)/gb) + " GB"
	case size >= mb:
		return formatFloat(float64(size)/mb) + " MB"
	case size >= kb:
		return formatFloat(float64(size)/kb) + " KB"
	default:
		return formatInt(size) + " bytes"
	}
}
