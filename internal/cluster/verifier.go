// Package cluster resolves LSH candidates into a final near-duplicate
// clustering.
//
// Two policies are available:
//
//   - ModeGreedy visits documents in input order. A document not yet absorbed
//     is kept; every LSH candidate whose estimated similarity exceeds the
//     threshold is absorbed into it and dropped. This is not transitive: with
//     A~B, B~C and A!~C, B is absorbed by A and C is kept, because C is only
//     matched through B, which is never visited.
//   - ModeUnionFind unions every verified pair and keeps one representative
//     (the earliest in input order) per connected component, so the example
//     above keeps only A.
//
// Documents with an empty signature have undefined similarity to everything;
// they are never matched and always kept.
package cluster

import (
	"errors"
	"fmt"

	"github.com/steveyegge/dedup/internal/minhash"
)

// Mode selects the clustering policy.
type Mode string

const (
	// ModeGreedy keeps the first-visited document and drops its direct matches.
	ModeGreedy Mode = "greedy"

	// ModeUnionFind keeps one document per connected component of verified pairs.
	ModeUnionFind Mode = "union-find"
)

// ErrInvalidThreshold is returned when the threshold is outside [0, 1].
var ErrInvalidThreshold = errors.New("cluster: jaccard_threshold must be between 0.0 and 1.0")

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGreedy, "":
		return ModeGreedy, nil
	case ModeUnionFind, "unionfind":
		return ModeUnionFind, nil
	default:
		return "", fmt.Errorf("unknown cluster mode %q (want %q or %q)", s, ModeGreedy, ModeUnionFind)
	}
}

// Querier returns LSH candidates for a document.
type Querier interface {
	Query(docName string, sig minhash.Signature) ([]string, error)
}

// Pair is a verified near-duplicate pair. First precedes Second in input order.
type Pair struct {
	First      string  `json:"first"`
	Second     string  `json:"second"`
	Similarity float64 `json:"similarity"`
}

// Result is the outcome of resolving a document set.
type Result struct {
	// Kept lists retained documents in input order, each exactly once.
	Kept []string

	// DuplicateOf maps every dropped document to the kept document it was
	// absorbed into.
	DuplicateOf map[string]string

	// Similarity holds, for every dropped document, the estimate of the
	// verified pair that absorbed it. In union-find mode this is the
	// strongest verified pair the document belongs to, which is not
	// necessarily a pair with its representative.
	Similarity map[string]float64

	// Pairs lists every candidate pair whose similarity exceeded the threshold.
	Pairs []Pair

	// Compared is the number of candidate similarity estimates computed.
	Compared int
}

// Verifier decides which LSH candidates are true duplicates.
type Verifier struct {
	threshold float64
	mode      Mode
}

// NewVerifier creates a Verifier. A candidate is a duplicate when its
// signature similarity is strictly greater than threshold.
func NewVerifier(threshold float64, mode Mode) (*Verifier, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w (got %.2f)", ErrInvalidThreshold, threshold)
	}
	if mode != ModeGreedy && mode != ModeUnionFind {
		return nil, fmt.Errorf("unknown cluster mode %q", mode)
	}
	return &Verifier{threshold: threshold, mode: mode}, nil
}

// Mode returns the clustering policy.
func (v *Verifier) Mode() Mode { return v.mode }

// Resolve clusters the documents named in order. sigs must hold a signature
// for every document in order and every name the index can return.
func (v *Verifier) Resolve(order []string, sigs map[string]minhash.Signature, index Querier) (*Result, error) {
	position := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := position[name]; dup {
			return nil, fmt.Errorf("document %q listed twice", name)
		}
		if _, ok := sigs[name]; !ok {
			return nil, fmt.Errorf("no signature for document %q", name)
		}
		position[name] = i
	}
	if v.mode == ModeUnionFind {
		return v.resolveUnionFind(order, position, sigs, index)
	}
	return v.resolveGreedy(order, position, sigs, index)
}

// verify estimates the similarity of a and b and reports whether it exceeds
// the threshold. Empty signatures never match.
func (v *Verifier) verify(a, b minhash.Signature) (float64, bool, error) {
	sim, err := minhash.Similarity(a, b)
	if errors.Is(err, minhash.ErrEmptySignature) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return sim, sim > v.threshold, nil
}

func (v *Verifier) resolveGreedy(order []string, position map[string]int, sigs map[string]minhash.Signature, index Querier) (*Result, error) {
	res := &Result{DuplicateOf: make(map[string]string), Similarity: make(map[string]float64)}
	kept := make(map[string]bool)

	for _, name := range order {
		if _, absorbed := res.DuplicateOf[name]; absorbed {
			continue
		}
		res.Kept = append(res.Kept, name)
		kept[name] = true

		sig := sigs[name]
		if sig.IsEmpty() {
			continue
		}
		candidates, err := index.Query(name, sig)
		if err != nil {
			return nil, fmt.Errorf("querying candidates for %s: %w", name, err)
		}
		for _, cand := range candidates {
			candSig, ok := sigs[cand]
			if !ok {
				return nil, fmt.Errorf("no signature for candidate %q", cand)
			}
			res.Compared++
			sim, match, err := v.verify(sig, candSig)
			if err != nil {
				return nil, fmt.Errorf("comparing %s and %s: %w", name, cand, err)
			}
			if !match {
				continue
			}
			res.Pairs = append(res.Pairs, orderedPair(name, cand, sim, position))
			if _, absorbed := res.DuplicateOf[cand]; absorbed || kept[cand] {
				continue
			}
			res.DuplicateOf[cand] = name
			res.Similarity[cand] = sim
		}
	}
	return res, nil
}

func (v *Verifier) resolveUnionFind(order []string, position map[string]int, sigs map[string]minhash.Signature, index Querier) (*Result, error) {
	res := &Result{DuplicateOf: make(map[string]string), Similarity: make(map[string]float64)}
	set := newDisjointSet(len(order))
	strongest := make([]float64, len(order))

	for i, name := range order {
		sig := sigs[name]
		if sig.IsEmpty() {
			continue
		}
		candidates, err := index.Query(name, sig)
		if err != nil {
			return nil, fmt.Errorf("querying candidates for %s: %w", name, err)
		}
		for _, cand := range candidates {
			j, ok := position[cand]
			if !ok {
				return nil, fmt.Errorf("no signature for candidate %q", cand)
			}
			// Each unordered pair is verified once, from its earlier member.
			if j < i {
				continue
			}
			res.Compared++
			sim, match, err := v.verify(sig, sigs[cand])
			if err != nil {
				return nil, fmt.Errorf("comparing %s and %s: %w", name, cand, err)
			}
			if !match {
				continue
			}
			res.Pairs = append(res.Pairs, Pair{First: name, Second: cand, Similarity: sim})
			set.union(i, j)
			strongest[i] = max(strongest[i], sim)
			strongest[j] = max(strongest[j], sim)
		}
	}

	for i, name := range order {
		root := set.find(i)
		if root == i {
			res.Kept = append(res.Kept, name)
			continue
		}
		res.DuplicateOf[name] = order[root]
		res.Similarity[name] = strongest[i]
	}
	return res, nil
}

func orderedPair(a, b string, sim float64, position map[string]int) Pair {
	if position[b] < position[a] {
		a, b = b, a
	}
	return Pair{First: a, Second: b, Similarity: sim}
}
