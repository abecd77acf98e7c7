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

// Package binsizer binary-searches the smallest per-bin capacity that keeps
// the Interleaved Cuckoo Filter's global load factor at or below a target,
// across a set of heterogeneously-sized per-taxid k-mer counts.
package binsizer

import (
	"sync"
)

// Result is the outcome of Size: the chosen bin capacity and the resulting
// number of bins needed to hold every taxid's k-mers at that capacity.
type Result struct {
	BinSize uint64
	Bins    uint64
}

// Size binary-searches bin_size over [1, 2*max(counts)] for the smallest
// value that keeps the global load factor at or below loadFactor, where
// load(b) = totalCount / (binNum(b) * b) and
// binNum(b) = sum_t ceil(counts[t] / b).
//
// binNum(b) is computed as a parallel reduction over threads workers,
// matching the shard-and-reduce shape the reference implementation uses for
// its OMP "parallel for reduction(+:binNum)" loop.
//
// An empty counts map yields Result{BinSize: 1, Bins: 0}: bin_size is left
// at its default since there's nothing to size for.
func Size(counts map[string]uint64, loadFactor float64, threads int) Result {
	if len(counts) == 0 {
		return Result{BinSize: 1, Bins: 0}
	}

	values := make([]uint64, 0, len(counts))
	var total uint64
	var maxCount uint64
	for _, c := range counts {
		values = append(values, c)
		total += c
		if c > maxCount {
			maxCount = c
		}
	}

	if maxCount == 0 {
		return Result{BinSize: 1, Bins: 0}
	}

	if threads < 1 {
		threads = 1
	}

	lo, hi := uint64(1), 2*maxCount
	bestBinSize, bestBinNum := hi, binNum(values, hi, threads)

	for lo <= hi {
		mid := lo + (hi-lo)/2
		n := binNum(values, mid, threads)
		load := float64(total) / float64(n*mid)

		if load > loadFactor {
			lo = mid + 1
			continue
		}

		bestBinSize, bestBinNum = mid, n
		if load == loadFactor {
			break
		}
		if mid == 0 {
			break
		}
		hi = mid - 1
	}

	return Result{BinSize: bestBinSize, Bins: bestBinNum}
}

// binNum computes sum_t ceil(counts[t]/binSize) as a parallel reduction
// over a fixed shard count.
func binNum(counts []uint64, binSize uint64, threads int) uint64 {
	n := len(counts)
	if n == 0 {
		return 0
	}
	if threads > n {
		threads = n
	}

	chunk := (n + threads - 1) / threads
	partials := make([]uint64, threads)

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
		go func(t, start, end int) {
			defer wg.Done()
			var sum uint64
			for _, c := range counts[start:end] {
				sum += ceilDiv(c, binSize)
			}
			partials[t] = sum
		}(t, start, end)
	}
	wg.Wait()

	var total uint64
	for _, p := range partials {
		total += p
	}
	return total
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
