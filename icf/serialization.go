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

package icf

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrBrokenPayload means the filter payload is truncated or malformed.
var ErrBrokenPayload = errors.New("icf: broken filter payload")

var be = binary.BigEndian

// WriteTo serializes the filter as: bins (u64), binSize (u64),
// bucketsPerBin (u64), followed by bucketsPerBin*bins*bucketSize u16 tags,
// big-endian throughout. This is the payload for archive record 0.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	var n int64
	header := [3]uint64{f.bins, f.binSize, f.bucketsPerBin}
	if err := binary.Write(w, be, header); err != nil {
		return n, err
	}
	n += 24

	buf := make([]byte, bucketSize*2)
	for _, bkt := range f.buckets {
		for i, t := range bkt {
			be.PutUint16(buf[i*2:i*2+2], uint16(t))
		}
		if _, err := w.Write(buf); err != nil {
			return n, err
		}
		n += int64(len(buf))
	}
	return n, nil
}

// ReadFrom reconstructs a Filter previously written by WriteTo.
func ReadFrom(r io.Reader) (*Filter, error) {
	var header [3]uint64
	if err := binary.Read(r, be, &header); err != nil {
		return nil, ErrBrokenPayload
	}

	f := &Filter{
		bins:          header[0],
		binSize:       header[1],
		bucketsPerBin: header[2],
		rng:           splitmix64{state: filterSeed},
	}

	numBuckets := f.bins * f.bucketsPerBin
	f.buckets = make([]bucket, numBuckets)

	buf := make([]byte, bucketSize*2)
	for i := range f.buckets {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ErrBrokenPayload
		}
		for j := 0; j < bucketSize; j++ {
			f.buckets[i][j] = tag(be.Uint16(buf[j*2 : j*2+2]))
		}
	}

	return f, nil
}
