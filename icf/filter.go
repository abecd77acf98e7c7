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

// Package icf implements the Interleaved Cuckoo Filter: many small
// fixed-capacity cuckoo tables ("bins") sharing one backing array, indexed
// by bin so that concurrent InsertTag calls on disjoint bins never touch
// the same memory.
//
// Each bin holds at least bin_size tag slots, grouped into 4-slot buckets
// (New rounds the bucket count per bin up to a power of two). A tag
// derived from an inserted fingerprint lives in one of two candidate
// buckets *within its own bin*; eviction during insertion only ever
// re-homes a tag to its alternate bucket in the same bin, so a bin's
// buckets are the only memory an InsertTag/ContainsTag call for that bin
// ever reads or writes. That is what makes concurrent calls across
// disjoint bins safe without locks.
package icf

import (
	"encoding/binary"
	"hash/fnv"
)

const (
	bucketSize       = 4
	maxKicks         = 500
	tagBits          = 16
	tagMask          = (1 << tagBits) - 1
	emptyTag         = 0
	fingerprintShift = 32
)

type tag uint16

type bucket [bucketSize]tag

// Filter is an Interleaved Cuckoo Filter over a fixed number of bins, each
// with capacity binSize tags.
type Filter struct {
	bins          uint64
	binSize       uint64
	bucketsPerBin uint64
	buckets       []bucket
	rng           splitmix64
}

// splitmix64 is a fast, non-cryptographic PRNG used only to pick which of
// two candidate buckets to start eviction from, and which slot to evict.
// It is seeded deterministically so a build is reproducible.
type splitmix64 struct{ state uint64 }

func (r *splitmix64) next() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (r *splitmix64) intn(n int) int {
	return int(r.next()>>1) % n
}

const filterSeed = 0x2545_F491_4F6C_DD1D

// New allocates a Filter with the given number of bins, each sized to hold
// at least binSize tags. bucketsPerBin is rounded up to a power of two so
// that altBucket's XOR-based pairing is self-inverse: b2 := altBucket(b1)
// must always satisfy altBucket(b2) == b1, which only holds when the local
// bucket offset is taken modulo a power of two (equivalently, masked).
// bins == 0 yields a valid Filter with no buckets at all; binSize == 0 still
// gives each bin one 4-slot bucket. Both start empty.
func New(bins, binSize uint64) *Filter {
	bucketsPerBin := nextPowerOfTwo((binSize + bucketSize - 1) / bucketSize)
	if bucketsPerBin == 0 {
		bucketsPerBin = 1
	}
	return &Filter{
		bins:          bins,
		binSize:       binSize,
		bucketsPerBin: bucketsPerBin,
		buckets:       make([]bucket, bins*bucketsPerBin),
		rng:           splitmix64{state: filterSeed},
	}
}

// nextPowerOfTwo returns the smallest power of two >= n, or 0 for n == 0.
func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Bins returns the number of bins the filter was constructed with.
func (f *Filter) Bins() uint64 { return f.bins }

// BinSize returns the configured per-bin capacity.
func (f *Filter) BinSize() uint64 { return f.binSize }

// InsertTag inserts fingerprint into binIndex. It returns false if the bin
// is full and no free slot was found after maxKicks eviction attempts (a
// recoverable overflow: the tag left over at the end of the eviction chain,
// which may be this fingerprint's or one inserted earlier into the same bin,
// is dropped, which only affects the false-negative-free guarantee for that
// one tag).
//
// Safe for concurrent callers operating on disjoint bin indices; NOT safe
// for concurrent callers targeting the same bin.
func (f *Filter) InsertTag(binIndex uint64, fingerprint uint64) bool {
	t, b1 := f.tagAndBucket(binIndex, fingerprint)
	b2 := f.altBucket(binIndex, b1, t)

	if f.buckets[b1].insert(t) || f.buckets[b2].insert(t) {
		return true
	}
	return f.kickInsert(binIndex, t, b1, b2)
}

// ContainsTag reports whether fingerprint may have been inserted into
// binIndex. As with any cuckoo/bloom-style filter, false positives are
// possible; false negatives are not, absent an eviction-loop overflow.
func (f *Filter) ContainsTag(binIndex uint64, fingerprint uint64) bool {
	t, b1 := f.tagAndBucket(binIndex, fingerprint)
	b2 := f.altBucket(binIndex, b1, t)
	return f.buckets[b1].contains(t) || f.buckets[b2].contains(t)
}

func (f *Filter) tagAndBucket(binIndex, fingerprint uint64) (tag, uint64) {
	h := fnvHash64(uint64ToBytes(fingerprint))
	t := deriveTag(h)
	localBucket := (h >> fingerprintShift) & (f.bucketsPerBin - 1)
	return t, binIndex*f.bucketsPerBin + localBucket
}

// altBucket computes the alternate bucket for a tag, constrained to the
// same bin as globalBucket via partial-key cuckoo hashing on the local
// bucket offset only. bucketsPerBin is always a power of two (New enforces
// this), so masking rather than "%" is what makes this self-inverse:
// altBucket(altBucket(b, t), t) == b for any b, t.
func (f *Filter) altBucket(binIndex, globalBucket uint64, t tag) uint64 {
	base := binIndex * f.bucketsPerBin
	local := globalBucket - base
	altLocal := (local ^ tagHash(t)) & (f.bucketsPerBin - 1)
	return base + altLocal
}

func (f *Filter) kickInsert(binIndex uint64, t tag, b1, b2 uint64) bool {
	cur := b1
	if f.rng.intn(2) == 0 {
		cur = b2
	}

	for i := 0; i < maxKicks; i++ {
		slot := f.rng.intn(bucketSize)
		t, f.buckets[cur][slot] = f.buckets[cur][slot], t
		cur = f.altBucket(binIndex, cur, t)
		if f.buckets[cur].insert(t) {
			return true
		}
	}
	return false
}

func (b *bucket) insert(t tag) bool {
	for i := range b {
		if b[i] == emptyTag {
			b[i] = t
			return true
		}
	}
	return false
}

func (b *bucket) contains(t tag) bool {
	for _, e := range b {
		if e == t {
			return true
		}
	}
	return false
}

func fnvHash64(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

func tagHash(t tag) uint64 {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(t))
	return fnvHash64(buf[:])
}

func uint64ToBytes(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func deriveTag(h uint64) tag {
	t := tag(h & tagMask)
	if t == emptyTag {
		t = 1
	}
	return t
}
