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

// Package binlayout assigns each taxid a contiguous range of Interleaved
// Cuckoo Filter bin indices, via a two-pass parallel prefix sum over
// per-taxid bin-width counts.
package binlayout

import (
	"sync"

	"github.com/twotwotwo/sorts"
)

// Entry is one taxid's exclusive-end bin index, along with the width that
// produced it. Width is ceil(count/binSize); End - width is the taxid's
// start bin.
type Entry struct {
	Taxid string
	Width uint64
	End   uint64
}

// TaxidBins maps a taxid to its exclusive-end bin index. The taxid's start
// bin is the End of the taxid immediately preceding it in Order (0 for the
// first).
type TaxidBins struct {
	Order []string
	End   map[string]uint64
}

// Start returns the inclusive start bin index for taxid, given the frozen
// order this layout was computed with.
func (tb TaxidBins) Start(taxid string) uint64 {
	prevEnd := uint64(0)
	for _, t := range tb.Order {
		if t == taxid {
			return prevEnd
		}
		prevEnd = tb.End[t]
	}
	return prevEnd
}

// taxidSlice sorts a []string, satisfying sort.Interface for
// github.com/twotwotwo/sorts's parallel quicksort.
type taxidSlice []string

func (s taxidSlice) Len() int           { return len(s) }
func (s taxidSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s taxidSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Layout computes TaxidBins from hashCount and the chosen bin_size.
//
// hashCount's iteration order is frozen into a taxid-sorted vector first:
// Go's map iteration order is randomized, but property 8 (two builds over
// the same inputs produce identical icfConfig.bins/bin_size, and this
// layout is part of what downstream code depends on being stable
// build-to-build) requires a deterministic order, so taxids are sorted
// lexicographically rather than left in map-iteration order. The sort
// itself uses github.com/twotwotwo/sorts's parallel quicksort, sized to the
// same thread count as the rest of this phase.
func Layout(hashCount map[string]uint64, binSize uint64, threads int) TaxidBins {
	order := make([]string, 0, len(hashCount))
	for t := range hashCount {
		order = append(order, t)
	}
	if threads < 1 {
		threads = 1
	}
	sorts.MaxProcs = threads
	sorts.Quicksort(taxidSlice(order))

	n := len(order)
	widths := make([]uint64, n)

	parallelChunks(n, threads, func(start, end int) {
		for i := start; i < end; i++ {
			widths[i] = ceilDiv(hashCount[order[i]], binSize)
		}
	})

	prefixSum := twoPassPrefixSum(widths, threads)

	end := make(map[string]uint64, n)
	for i, t := range order {
		end[t] = prefixSum[i]
	}

	return TaxidBins{Order: order, End: end}
}

// twoPassPrefixSum computes the exclusive-end (inclusive prefix) sum of
// widths using a two-pass parallel scan:
//
//  1. Partition [0,N) into up to `threads` contiguous chunks. Each worker
//     computes the local running sum within its chunk, writing running
//     totals into prefixSum[i], and records its chunk total in
//     threadSums[tid].
//  2. Compute the exclusive prefix sum of threadSums into offsets,
//     sequentially (this part is inherently sequential but only O(threads)
//     work).
//  3. Each worker adds offsets[tid] to every prefixSum[i] in its chunk.
func twoPassPrefixSum(widths []uint64, threads int) []uint64 {
	n := len(widths)
	prefixSum := make([]uint64, n)
	if n == 0 {
		return prefixSum
	}
	if threads > n {
		threads = n
	}

	chunk := (n + threads - 1) / threads
	threadSums := make([]uint64, threads)

	var wg sync.WaitGroup
	bounds := make([][2]int, 0, threads)
	for t := 0; t < threads; t++ {
		start := t * chunk
		end := start + chunk
		if start >= n {
			bounds = append(bounds, [2]int{n, n})
			continue
		}
		if end > n {
			end = n
		}
		bounds = append(bounds, [2]int{start, end})
	}

	for t := 0; t < threads; t++ {
		start, end := bounds[t][0], bounds[t][1]
		wg.Add(1)
		go func(t, start, end int) {
			defer wg.Done()
			var local uint64
			for i := start; i < end; i++ {
				local += widths[i]
				prefixSum[i] = local
			}
			threadSums[t] = local
		}(t, start, end)
	}
	wg.Wait()

	offsets := make([]uint64, threads)
	for t := 1; t < threads; t++ {
		offsets[t] = offsets[t-1] + threadSums[t-1]
	}

	for t := 0; t < threads; t++ {
		start, end := bounds[t][0], bounds[t][1]
		offset := offsets[t]
		if offset == 0 {
			continue
		}
		wg.Add(1)
		go func(start, end int, offset uint64) {
			defer wg.Done()
			for i := start; i < end; i++ {
				prefixSum[i] += offset
			}
		}(start, end, offset)
	}
	wg.Wait()

	return prefixSum
}

func parallelChunks(n, threads int, fn func(start, end int)) {
	if n == 0 {
		return
	}
	if threads > n {
		threads = n
	}
	chunk := (n + threads - 1) / threads

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		start := t * chunk
		end := start + chunk
		if start >= n {
			break
		}
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
