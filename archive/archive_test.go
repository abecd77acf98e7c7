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

package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/malabz/Chimera/icf"
)

func sampleArchive() Archive {
	f := icf.New(2, 32)
	f.InsertTag(0, 111)
	f.InsertTag(1, 222)

	return Archive{
		Filter: f,
		Config: ICFConfig{KmerSize: 21, WindowSize: 4, Seed: 7, Bins: 2, BinSize: 32},
		HashCount: []KV{
			{Taxid: "tx1", Value: 10},
			{Taxid: "tx2", Value: 20},
		},
		TaxidBins: []KV{
			{Taxid: "tx1", Value: 1},
			{Taxid: "tx2", Value: 2},
		},
	}
}

func TestWriteToPathThenReadFromPathRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.chimera")
	arc := sampleArchive()

	size, err := WriteToPath(path, arc)
	if err != nil {
		t.Fatalf("WriteToPath returned error: %v", err)
	}
	if size <= 0 {
		t.Errorf("expected a positive archive size, got %d", size)
	}

	got, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath returned error: %v", err)
	}

	if got.Config != arc.Config {
		t.Errorf("ICFConfig round-trip mismatch: got %+v, want %+v", got.Config, arc.Config)
	}
	if len(got.HashCount) != len(arc.HashCount) || len(got.TaxidBins) != len(arc.TaxidBins) {
		t.Fatalf("KV record length mismatch")
	}
	for i, kv := range arc.HashCount {
		if got.HashCount[i] != kv {
			t.Errorf("HashCount[%d] = %+v, want %+v", i, got.HashCount[i], kv)
		}
	}
	if !got.Filter.ContainsTag(0, 111) || !got.Filter.ContainsTag(1, 222) {
		t.Error("round-tripped filter lost an inserted fingerprint")
	}
}

func TestReadFromPathRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.chimera")
	if err := os.WriteFile(path, []byte("not a chimera archive at all"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFromPath(path); err != ErrInvalidFileFormat {
		t.Errorf("expected ErrInvalidFileFormat, got %v", err)
	}
}

func TestReadFromPathRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.chimera")
	arc := sampleArchive()
	if _, err := WriteToPath(path, arc); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[8] = MainVersion + 1 // byte 8 is the main-version field, right after the 8-byte magic
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFromPath(path); err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestReadFromPathMissingFile(t *testing.T) {
	if _, err := ReadFromPath(filepath.Join(t.TempDir(), "missing.chimera")); err == nil {
		t.Error("expected an error for a missing archive file")
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{500, "500 bytes"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, c := range cases {
		if got := FormatSize(c.size); got != c.want {
			t.Errorf("FormatSize(%d) = %q, want %q", c.size, got, c.want)
		}
	}
}
