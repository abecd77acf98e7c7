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

package query

import (
	"path/filepath"
	"testing"

	"github.com/malabz/Chimera/archive"
	"github.com/malabz/Chimera/icf"
	"github.com/malabz/Chimera/minimizer"
)

func buildTestArchive(t *testing.T, seq []byte, scheme minimizer.Scheme) string {
	t.Helper()

	f := icf.New(2, 128)
	for _, fp := range minimizer.Fingerprints(seq, scheme) {
		f.InsertTag(0, fp)
	}

	arc := archive.Archive{
		Filter: f,
		Config: archive.ICFConfig{
			KmerSize:   scheme.K,
			WindowSize: scheme.W,
			Seed:       scheme.Seed,
			Bins:       2,
			BinSize:    128,
		},
		TaxidBins: []archive.KV{
			{Taxid: "tx1", Value: 1},
			{Taxid: "tx2", Value: 2},
		},
	}

	path := filepath.Join(t.TempDir(), "test.chimera")
	if _, err := archive.WriteToPath(path, arc); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestContainsTrueForSequenceInsertedAtBuildTime(t *testing.T) {
	scheme := minimizer.Scheme{K: 11, W: 3, Seed: 1}
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT")

	path := buildTestArchive(t, seq, scheme)
	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	ok, err := idx.Contains("tx1", seq)
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if !ok {
		t.Error("expected Contains to report true for a sequence inserted at build time")
	}
}

func TestContainsFalseForUnrelatedTaxidRange(t *testing.T) {
	scheme := minimizer.Scheme{K: 11, W: 3, Seed: 1}
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT")

	path := buildTestArchive(t, seq, scheme)
	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	ok, err := idx.Contains("tx2", []byte("TTTTTTTTTTTTTTTTTTTTTTTTTTTTTTTTT"))
	if err != nil {
		t.Fatalf("Contains returned error: %v", err)
	}
	if ok {
		t.Error("expected Contains to report false for a sequence never inserted into tx2's bin")
	}
}

func TestContainsUnknownTaxidReturnsError(t *testing.T) {
	scheme := minimizer.Scheme{K: 11, W: 3, Seed: 1}
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT")

	path := buildTestArchive(t, seq, scheme)
	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if _, err := idx.Contains("does-not-exist", seq); err == nil {
		t.Error("expected an error for an unknown taxid")
	}
}

func TestContainsAnySkipsUnknownTaxidsButReportsThem(t *testing.T) {
	scheme := minimizer.Scheme{K: 11, W: 3, Seed: 1}
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT")

	path := buildTestArchive(t, seq, scheme)
	idx, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	results, err := idx.ContainsAny([]string{"tx1", "nope"}, seq)
	if err == nil {
		t.Error("expected an error naming the unknown taxid")
	}
	if !results["tx1"] {
		t.Error("expected tx1's known result to still be populated")
	}
	if _, ok := results["nope"]; ok {
		t.Error("expected no entry for the unknown taxid")
	}
}

func TestLoadMissingArchiveFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.chimera")); err == nil {
		t.Error("expected an error for a missing archive file")
	}
}
