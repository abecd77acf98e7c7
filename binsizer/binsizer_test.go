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

package binsizer

import "testing"

func TestSizeEmptyCounts(t *testing.T) {
	result := Size(map[string]uint64{}, 0.9, 4)
	if result.BinSize != 1 || result.Bins != 0 {
		t.Errorf("expected {1, 0} for empty counts, got %+v", result)
	}
}

func TestSizeAllZeroCounts(t *testing.T) {
	result := Size(map[string]uint64{"tx1": 0, "tx2": 0}, 0.9, 4)
	if result.BinSize != 1 || result.Bins != 0 {
		t.Errorf("expected {1, 0} when every count is zero, got %+v", result)
	}
}

func TestSizeAchievesLoadFactorCeiling(t *testing.T) {
	counts := map[string]uint64{"tx1": 1000, "tx2": 2500, "tx3": 750}
	loadFactor := 0.8

	result := Size(counts, loadFactor, 4)

	var total uint64
	for _, c := range counts {
		total += c
	}
	values := make([]uint64, 0, len(counts))
	for _, c := range counts {
		values = append(values, c)
	}

	n := binNum(values, result.BinSize, 4)
	if n != result.Bins {
		t.Errorf("Result.Bins=%d does not match binNum(BinSize)=%d", result.Bins, n)
	}

	load := float64(total) / float64(result.Bins*result.BinSize)
	if load > loadFactor+1e-9 {
		t.Errorf("load %.4f exceeds target load factor %.4f", load, loadFactor)
	}

	// One capacity smaller should not still meet the target, confirming
	// BinSize is the *smallest* capacity achieving the ceiling.
	if result.BinSize > 1 {
		smaller := binNum(values, result.BinSize-1, 4)
		smallerLoad := float64(total) / float64(smaller*(result.BinSize-1))
		if smallerLoad <= loadFactor {
			t.Errorf("expected BinSize-1=%d to exceed the load factor, but load was %.4f", result.BinSize-1, smallerLoad)
		}
	}
}

func TestBinNumIsExactSumOfCeilDiv(t *testing.T) {
	values := []uint64{7, 15, 100, 3}
	binSize := uint64(10)

	got := binNum(values, binSize, 3)

	var want uint64
	for _, v := range values {
		want += ceilDiv(v, binSize)
	}
	if got != want {
		t.Errorf("binNum = %d, want %d", got, want)
	}
}

func TestCeilDivZeroDivisor(t *testing.T) {
	if ceilDiv(5, 0) != 0 {
		t.Error("ceilDiv by zero should return 0, not panic or divide")
	}
}
