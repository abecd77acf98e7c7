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

// Package minimizer computes the minimizer-hash fingerprint sequence of a
// DNA sequence and streams a reference corpus through it into per-taxid
// spill files.
//
// The kernel (Fingerprints) is a pure function from a byte sequence to a
// finite sequence of uint64 fingerprints: it holds no state and performs no
// I/O. Everything above it treats it as a black box.
package minimizer

import (
	"encoding/binary"

	"github.com/shenwei356/kmers"
	"github.com/zeebo/wyhash"
)

// Scheme bundles the (k, w, seed) parameters of the minimizer-hash kernel.
type Scheme struct {
	K    uint8  // k-mer size
	W    uint16 // window size, in k-mers
	Seed uint64 // raw seed, adjusted internally per AdjustSeed
}

// AdjustSeed derives the seed actually fed to the hash function, matching
// the reference implementation: the seed is right-shifted so only the bits
// that vary a 2-bit-per-base k-mer code are used to perturb it.
func AdjustSeed(k uint8, seed uint64) uint64 {
	shift := 64 - 2*uint(k)
	if shift <= 0 || shift >= 64 {
		return seed
	}
	return seed >> shift
}

var complement = [256]byte{}

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	complement['A'], complement['T'] = 'T', 'A'
	complement['a'], complement['t'] = 't', 'a'
	complement['C'], complement['G'] = 'G', 'C'
	complement['c'], complement['g'] = 'g', 'c'
}

func reverseComplement(seq []byte) []byte {
	n := len(seq)
	rc := make([]byte, n)
	for i, b := range seq {
		rc[n-1-i] = complement[b]
	}
	return rc
}

// canonicalCode returns the smaller of a k-mer's forward and
// reverse-complement 2-bit-packed encodings, and whether the k-mer could be
// encoded at all (encoding fails on ambiguity codes outside ACGT).
func canonicalCode(kmer []byte) (uint64, bool) {
	// kmers.Encode silently maps ambiguity codes such as N to a base, so
	// reject anything outside ACGT before encoding.
	for _, b := range kmer {
		switch b {
		case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		default:
			return 0, false
		}
	}
	fwd, err := kmers.Encode(kmer)
	if err != nil {
		return 0, false
	}
	rev, err := kmers.Encode(reverseComplement(kmer))
	if err != nil {
		return 0, false
	}
	if rev < fwd {
		return rev, true
	}
	return fwd, true
}

func hashCode(code uint64, adjustedSeed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], code)
	return wyhash.Hash(buf[:], adjustedSeed)
}

// Fingerprints computes the minimizer-hash fingerprint sequence for seq
// under scheme. For each sliding window of scheme.W consecutive k-mers, the
// smallest-hashing k-mer's hash is emitted once. Sequences shorter than K
// yield no fingerprints. The returned slice may contain duplicates; callers
// wanting a deduplicated set should collect into a map, as
// extractOne does.
func Fingerprints(seq []byte, scheme Scheme) []uint64 {
	k := int(scheme.K)
	w := int(scheme.W)
	if w < 1 {
		w = 1
	}
	n := len(seq)
	numKmers := n - k + 1
	if numKmers < 1 {
		return nil
	}

	adjustedSeed := AdjustSeed(scheme.K, scheme.Seed)

	hashes := make([]uint64, 0, numKmers)
	valid := make([]bool, 0, numKmers)
	for i := 0; i < numKmers; i++ {
		code, ok := canonicalCode(seq[i : i+k])
		if !ok {
			hashes = append(hashes, 0)
			valid = append(valid, false)
			continue
		}
		hashes = append(hashes, hashCode(code, adjustedSeed))
		valid = append(valid, true)
	}

	if numKmers <= w {
		if h, ok := minValid(hashes, valid, 0, numKmers); ok {
			return []uint64{h}
		}
		return nil
	}

	fingerprints := make([]uint64, 0, numKmers-w+1)
	// monotonic deque of indices, ascending by hash value; index 0 is the
	// current window minimum. Each index is pushed once and removed at most
	// once, so keeping the minimum costs O(1) amortized per window.
	deque := make([]int, 0, w)
	pushBack := func(i int) {
		for len(deque) > 0 && valid[i] && (!valid[deque[len(deque)-1]] || hashes[deque[len(deque)-1]] >= hashes[i]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
	}
	popFront := func(windowStart int) {
		for len(deque) > 0 && deque[0] < windowStart {
			deque = deque[1:]
		}
	}

	for i := 0; i < w; i++ {
		pushBack(i)
	}
	for start := 0; start+w <= numKmers; start++ {
		popFront(start)
		if len(deque) > 0 && valid[deque[0]] {
			fingerprints = append(fingerprints, hashes[deque[0]])
		}
		next := start + w
		if next < numKmers {
			pushBack(next)
		}
	}

	return fingerprints
}

func minValid(hashes []uint64, valid []bool, from, to int) (uint64, bool) {
	var best uint64
	found := false
	for i := from; i < to; i++ {
		if !valid[i] {
			continue
		}
		if !found || hashes[i] < best {
			best = hashes[i]
			found = true
		}
	}
	return best, found
}
