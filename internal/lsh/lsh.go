// Package lsh implements a banded locality-sensitive hashing index over
// MinHash signatures.
//
// A signature of length h is split into b contiguous bands of r = h/b rows.
// Each band is hashed to a bucket key in that band's own table. Two documents
// become candidates when they share a bucket in at least one band, so the
// probability that a pair with Jaccard similarity s becomes a candidate is
// 1-(1-s^r)^b. Fewer bands with more rows raises the threshold (fewer false
// positives), more bands with fewer rows lowers it (higher recall).
//
// The index has two phases. During the build phase documents are inserted;
// Seal ends it. Only a sealed index can be queried. The index is not safe for
// concurrent use during the build phase; a sealed index may be queried from
// multiple goroutines.
//
// Bucket keys are 64-bit xxh3 hashes of the band values. Two different bands
// hashing to the same key merely produce an extra candidate, which the
// similarity verifier then rejects.
package lsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/steveyegge/dedup/internal/minhash"
)

var (
	// ErrInvalidBands is returned when the band count is not positive.
	ErrInvalidBands = errors.New("lsh: num_bands must be positive")

	// ErrBandMismatch is returned when a signature length is not divisible
	// by the band count.
	ErrBandMismatch = errors.New("lsh: num_bands must evenly divide the signature length")

	// ErrDuplicateDocument is returned when a document name is inserted twice.
	ErrDuplicateDocument = errors.New("lsh: document already indexed")

	// ErrSealed is returned by Insert after Seal.
	ErrSealed = errors.New("lsh: index is sealed")

	// ErrNotSealed is returned by Query before Seal.
	ErrNotSealed = errors.New("lsh: index must be sealed before querying")
)

// Bands splits sig into numBands contiguous slices of equal length and
// returns them with the rows-per-band count. The slices alias sig.
func Bands(sig minhash.Signature, numBands int) ([]minhash.Signature, int, error) {
	rows, err := RowsPerBand(len(sig), numBands)
	if err != nil {
		return nil, 0, err
	}
	bands := make([]minhash.Signature, numBands)
	for i := range bands {
		bands[i] = sig[i*rows : (i+1)*rows : (i+1)*rows]
	}
	return bands, rows, nil
}

// RowsPerBand validates a (numHashes, numBands) pair and returns
// numHashes/numBands.
func RowsPerBand(numHashes, numBands int) (int, error) {
	if numBands <= 0 {
		return 0, fmt.Errorf("%w (got %d)", ErrInvalidBands, numBands)
	}
	if numHashes <= 0 || numHashes%numBands != 0 {
		return 0, fmt.Errorf("%w (num_hashes=%d, num_bands=%d)", ErrBandMismatch, numHashes, numBands)
	}
	return numHashes / numBands, nil
}

// CandidateProbability returns the probability that a pair with similarity s
// shares at least one of bands buckets of rows rows each.
func CandidateProbability(s float64, bands, rows int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(rows)), float64(bands))
}

// Threshold returns the approximate similarity at which CandidateProbability
// crosses one half, (1/b)^(1/r).
func Threshold(bands, rows int) float64 {
	return math.Pow(1/float64(bands), 1/float64(rows))
}

// bucketKey hashes the values of one band.
func bucketKey(band minhash.Signature, buf []byte) uint64 {
	buf = buf[:0]
	for _, v := range band {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return xxh3.Hash(buf)
}

// Index is a banded LSH index keyed by document name.
type Index struct {
	numBands int
	rows     int
	buckets  []map[uint64][]string
	docs     map[string]struct{}
	sealed   bool
}

// NewIndex creates an index for signatures of length numHashes split into
// numBands bands.
func NewIndex(numHashes, numBands int) (*Index, error) {
	rows, err := RowsPerBand(numHashes, numBands)
	if err != nil {
		return nil, err
	}
	buckets := make([]map[uint64][]string, numBands)
	for i := range buckets {
		buckets[i] = make(map[uint64][]string)
	}
	return &Index{
		numBands: numBands,
		rows:     rows,
		buckets:  buckets,
		docs:     make(map[string]struct{}),
	}, nil
}

// NumBands returns the band count.
func (x *Index) NumBands() int { return x.numBands }

// Rows returns the rows per band.
func (x *Index) Rows() int { return x.rows }

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.docs) }

// Insert places docName in exactly one bucket per band.
func (x *Index) Insert(docName string, sig minhash.Signature) error {
	if x.sealed {
		return ErrSealed
	}
	if _, ok := x.docs[docName]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, docName)
	}
	bands, err := x.bands(sig)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 8*x.rows)
	for i, band := range bands {
		key := bucketKey(band, buf)
		x.buckets[i][key] = append(x.buckets[i][key], docName)
	}
	x.docs[docName] = struct{}{}
	return nil
}

// Seal ends the build phase.
func (x *Index) Seal() { x.sealed = true }

// Query returns, in sorted order, every other document sharing a bucket with
// sig in any band. docName itself is excluded.
func (x *Index) Query(docName string, sig minhash.Signature) ([]string, error) {
	if !x.sealed {
		return nil, ErrNotSealed
	}
	bands, err := x.bands(sig)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	buf := make([]byte, 0, 8*x.rows)
	for i, band := range bands {
		for _, name := range x.buckets[i][bucketKey(band, buf)] {
			if name != docName {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// BucketCount returns the number of non-empty buckets across all bands.
func (x *Index) BucketCount() int {
	n := 0
	for _, b := range x.buckets {
		n += len(b)
	}
	return n
}

func (x *Index) bands(sig minhash.Signature) ([]minhash.Signature, error) {
	if len(sig) != x.numBands*x.rows {
		return nil, fmt.Errorf("%w (signature length %d, index expects %d)",
			ErrBandMismatch, len(sig), x.numBands*x.rows)
	}
	bands, _, err := Bands(sig, x.numBands)
	return bands, err
}
