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

import "testing"

func TestFingerprintsEmptyForShortSequence(t *testing.T) {
	scheme := Scheme{K: 21, W: 4, Seed: 1}
	if fps := Fingerprints([]byte("ACGT"), scheme); fps != nil {
		t.Errorf("expected nil for a sequence shorter than k, got %v", fps)
	}
}

func TestFingerprintsCountMatchesSlidingWindows(t *testing.T) {
	seq := []byte("ACGTACGTACGTACGTACGTACGTACGTACGTACGTACGT")
	scheme := Scheme{K: 11, W: 3, Seed: 1}

	fps := Fingerprints(seq, scheme)
	numKmers := len(seq) - int(scheme.K) + 1
	want := numKmers - int(scheme.W) + 1
	if len(fps) != want {
		t.Errorf("expected %d fingerprints, got %d", want, len(fps))
	}
}

func TestFingerprintsSingleWindowWhenSequenceShort(t *testing.T) {
	seq := []byte("ACGTACGTACG") // exactly k=11 bases
	scheme := Scheme{K: 11, W: 8, Seed: 1}

	fps := Fingerprints(seq, scheme)
	if len(fps) != 1 {
		t.Errorf("expected exactly one fingerprint for numKmers<=w, got %d", len(fps))
	}
}

func TestFingerprintsCanonicalizesReverseComplement(t *testing.T) {
	fwd := []byte("ACGTACGTACGTACGTACGTA")
	rev := reverseComplement(fwd)

	scheme := Scheme{K: 21, W: 1, Seed: 1}

	fpsFwd := Fingerprints(fwd, scheme)
	fpsRev := Fingerprints(rev, scheme)

	if len(fpsFwd) != 1 || len(fpsRev) != 1 {
		t.Fatalf("expected exactly one fingerprint each, got %d and %d", len(fpsFwd), len(fpsRev))
	}
	if fpsFwd[0] != fpsRev[0] {
		t.Error("forward and reverse-complement of the same k-mer must hash identically")
	}
}

func TestFingerprintsSkipsAmbiguousKmers(t *testing.T) {
	seq := []byte("ACGTNCGTACGTACGTACGTA")
	scheme := Scheme{K: 21, W: 1, Seed: 1}

	if fps := Fingerprints(seq, scheme); fps != nil {
		t.Errorf("expected no fingerprint for a k-mer containing an ambiguity code, got %v", fps)
	}
}

func TestAdjustSeedShiftsOutUnusedBits(t *testing.T) {
	seed := uint64(0xFFFFFFFFFFFFFFFF)
	got := AdjustSeed(21, seed)
	want := seed >> (64 - 2*21)
	if got != want {
		t.Errorf("AdjustSeed(21, ...) = %#x, want %#x", got, want)
	}
}
