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

// Package query loads a persisted Interleaved Cuckoo Filter archive and
// answers membership questions against it: does a sequence contain k-mers
// associated with a given taxid?
package query

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/malabz/Chimera/archive"
	"github.com/malabz/Chimera/icf"
	"github.com/malabz/Chimera/minimizer"
)

// binRange is a taxid's [start, end) bin range, cached from the archive's
// taxidBins record.
type binRange struct {
	start, end uint64
}

// Index is a loaded, queryable archive.
type Index struct {
	filter *icf.Filter
	scheme minimizer.Scheme
	ranges map[string]binRange
}

// ErrUnknownTaxid is returned by Contains/ContainsAny for a taxid not
// present in the loaded archive.
var ErrUnknownTaxid = errors.New("query: unknown taxid")

// Load reads an archive from path and prepares it for querying.
func Load(path string) (*Index, error) {
	arc, err := archive.ReadFromPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading archive: %s", path)
	}

	ranges := make(map[string]binRange, len(arc.TaxidBins))
	start := uint64(0)
	for _, kv := range arc.TaxidBins {
		ranges[kv.Taxid] = binRange{start: start, end: kv.Value}
		start = kv.Value
	}

	return &Index{
		filter: arc.Filter,
		scheme: minimizer.Scheme{
			K:    arc.Config.KmerSize,
			W:    arc.Config.WindowSize,
			Seed: arc.Config.Seed,
		},
		ranges: ranges,
	}, nil
}

// Contains reports whether seq's minimizer fingerprints are all present in
// some bin of taxid's owned bin range. Returns ErrUnknownTaxid if taxid was
// not present at build time.
func (idx *Index) Contains(taxid string, seq []byte) (bool, error) {
	rng, ok := idx.ranges[taxid]
	if !ok {
		return false, errors.Wrapf(ErrUnknownTaxid, "%q", taxid)
	}

	fingerprints := minimizer.Fingerprints(seq, idx.scheme)
	if len(fingerprints) == 0 {
		return false, nil
	}

	for _, fp := range fingerprints {
		if !idx.containsInRange(rng, fp) {
			return false, nil
		}
	}
	return true, nil
}

// ContainsAny runs Contains for every taxid in taxids, skipping (and
// reporting via the returned error, joined) any taxid unknown to the
// archive rather than aborting the whole batch.
func (idx *Index) ContainsAny(taxids []string, seq []byte) (map[string]bool, error) {
	results := make(map[string]bool, len(taxids))
	var unknown []string
	for _, taxid := range taxids {
		ok, err := idx.Contains(taxid, seq)
		if err != nil {
			unknown = append(unknown, taxid)
			continue
		}
		results[taxid] = ok
	}
	if len(unknown) > 0 {
		return results, errors.Wrapf(ErrUnknownTaxid, "%v", unknown)
	}
	return results, nil
}

func (idx *Index) containsInRange(rng binRange, fingerprint uint64) bool {
	for bin := rng.start; bin < rng.end; bin++ {
		if idx.filter.ContainsTag(bin, fingerprint) {
			return true
		}
	}
	return false
}

// Taxids returns every taxid recorded in the archive, for CLI listing.
func (idx *Index) Taxids() []string {
	taxids := make([]string, 0, len(idx.ranges))
	for t := range idx.ranges {
		taxids = append(taxids, t)
	}
	return taxids
}

// String implements fmt.Stringer for logging.
func (idx *Index) String() string {
	return fmt.Sprintf("query.Index{taxids=%d, bins=%d, binSize=%d}", len(idx.ranges), idx.filter.Bins(), idx.filter.BinSize())
}
