package linededup

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/willf/bloom"
	"github.com/zeebo/xxh3"
)

// CounterKind selects how the global line frequency table is held.
type CounterKind string

const (
	// CounterExact keeps an occurrence count for every distinct fingerprint.
	CounterExact CounterKind = "exact"

	// CounterBloom records first sightings in a bloom filter and keeps only
	// the fingerprints seen at least twice. A filter false positive turns a
	// unique line into a "duplicate", the same accepted approximation as a
	// fingerprint collision.
	CounterBloom CounterKind = "bloom"
)

// ParseCounterKind converts a configuration string to a CounterKind.
func ParseCounterKind(s string) (CounterKind, error) {
	switch CounterKind(s) {
	case CounterExact, "":
		return CounterExact, nil
	case CounterBloom:
		return CounterBloom, nil
	default:
		return "", fmt.Errorf("unknown line counter %q (want %q or %q)", s, CounterExact, CounterBloom)
	}
}

// Fingerprint returns the 64-bit xxh3 hash standing in for a stripped line.
// Two distinct lines share a fingerprint with probability about n²/2⁶⁵ for n
// distinct lines; a collision with a duplicated line removes a unique one.
func Fingerprint(stripped string) uint64 {
	return xxh3.HashString(stripped)
}

// frequencyTable is the corpus-wide line frequency table. Merge is called
// from one goroutine during pass 1; Unique is called concurrently during
// pass 2 once every merge has completed.
type frequencyTable interface {
	// Merge folds one file's fingerprint counts into the table.
	Merge(local map[uint64]uint32)
	// Unique reports whether fp occurred exactly once in the corpus.
	Unique(fp uint64) bool
	// Duplicates returns the number of fingerprints seen two or more times.
	Duplicates() int
	// Tracked returns the number of fingerprints held in memory.
	Tracked() int
}

func newFrequencyTable(kind CounterKind, expected uint, fpRate float64) (frequencyTable, error) {
	switch kind {
	case CounterExact, "":
		return &exactTable{counts: make(map[uint64]uint32)}, nil
	case CounterBloom:
		if expected == 0 {
			return nil, fmt.Errorf("bloom_expected_lines must be positive")
		}
		if fpRate <= 0 || fpRate >= 1 {
			return nil, fmt.Errorf("bloom_false_positive_rate must be in (0, 1) (got %g)", fpRate)
		}
		return &bloomTable{
			seen: bloom.NewWithEstimates(expected, fpRate),
			dups: make(map[uint64]struct{}),
		}, nil
	default:
		return nil, fmt.Errorf("unknown line counter %q", kind)
	}
}

type exactTable struct {
	counts     map[uint64]uint32
	duplicates int
}

func (t *exactTable) Merge(local map[uint64]uint32) {
	for fp, n := range local {
		before := t.counts[fp]
		after := before + n
		if after < before {
			after = math.MaxUint32
		}
		t.counts[fp] = after
		if before < 2 && after >= 2 {
			t.duplicates++
		}
	}
}

func (t *exactTable) Unique(fp uint64) bool { return t.counts[fp] == 1 }
func (t *exactTable) Duplicates() int       { return t.duplicates }
func (t *exactTable) Tracked() int          { return len(t.counts) }

type bloomTable struct {
	seen *bloom.BloomFilter
	dups map[uint64]struct{}
	buf  [8]byte
}

func (t *bloomTable) Merge(local map[uint64]uint32) {
	for fp, n := range local {
		if _, ok := t.dups[fp]; ok {
			continue
		}
		binary.LittleEndian.PutUint64(t.buf[:], fp)
		if t.seen.TestAndAdd(t.buf[:]) || n >= 2 {
			t.dups[fp] = struct{}{}
		}
	}
}

func (t *bloomTable) Unique(fp uint64) bool {
	_, dup := t.dups[fp]
	return !dup
}

func (t *bloomTable) Duplicates() int { return len(t.dups) }
func (t *bloomTable) Tracked() int    { return len(t.dups) }
