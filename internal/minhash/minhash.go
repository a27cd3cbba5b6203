// Package minhash computes fixed-length MinHash signatures over shingle sets.
//
// Entry i of a signature is the minimum, over every shingle in the set, of
// xxh3(shingle, seed=i). The probability that two signatures agree at a given
// position equals the Jaccard similarity of the underlying sets, so the
// fraction of agreeing positions estimates it with variance shrinking as 1/h.
//
// The hash family is fixed (xxh3 seeded by the function index), so signatures
// are reproducible across runs and machines.
package minhash

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/steveyegge/dedup/internal/shingle"
)

// Empty is the sentinel value held by every position of the signature of an
// empty shingle set.
const Empty = math.MaxUint64

var (
	// ErrInvalidNumHashes is returned when the signature length is not positive.
	ErrInvalidNumHashes = errors.New("minhash: num_hashes must be positive")

	// ErrSizeMismatch is returned when comparing signatures of different lengths.
	ErrSizeMismatch = errors.New("minhash: signature lengths do not match")

	// ErrEmptySignature is returned when comparing a signature built from an
	// empty shingle set. Its similarity to anything is undefined.
	ErrEmptySignature = errors.New("minhash: signature of an empty shingle set")
)

// Signature is an ordered sequence of per-function minimum hash values.
type Signature []uint64

// IsEmpty reports whether the signature carries only the Empty sentinel.
func (s Signature) IsEmpty() bool {
	for _, v := range s {
		if v != Empty {
			return false
		}
	}
	return true
}

// Builder computes signatures of a fixed length. It is safe for concurrent use.
type Builder struct {
	numHashes int
}

// NewBuilder returns a Builder producing signatures of length numHashes.
func NewBuilder(numHashes int) (*Builder, error) {
	if numHashes <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidNumHashes, numHashes)
	}
	return &Builder{numHashes: numHashes}, nil
}

// NumHashes returns the signature length.
func (b *Builder) NumHashes() int { return b.numHashes }

// Signature returns the MinHash signature of set. An empty set yields a
// signature of Empty values.
func (b *Builder) Signature(set shingle.Set) Signature {
	sig := make(Signature, b.numHashes)
	for i := range sig {
		sig[i] = Empty
	}
	for sh := range set {
		for i := range sig {
			if h := xxh3.HashStringSeed(sh, uint64(i)); h < sig[i] {
				sig[i] = h
			}
		}
	}
	return sig
}

// Similarity returns the fraction of positions at which a and b agree.
func Similarity(a, b Signature) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w (%d vs %d)", ErrSizeMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w (got 0)", ErrInvalidNumHashes)
	}
	if a.IsEmpty() || b.IsEmpty() {
		return 0, ErrEmptySignature
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a)), nil
}
