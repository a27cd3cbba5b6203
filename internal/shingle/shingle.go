// Package shingle turns document text into sets of overlapping k-token
// windows ("shingles") and computes exact Jaccard similarity between them.
package shingle

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the tokens of a shingle into its canonical string form.
const Separator = " "

var (
	// ErrInvalidSize is returned when the shingle width is not positive.
	ErrInvalidSize = errors.New("shingle: ngram size must be positive")

	// ErrEmptySet is returned by Jaccard when either set is empty. The
	// similarity of an empty document to anything is undefined.
	ErrEmptySet = errors.New("shingle: jaccard similarity of an empty set is undefined")
)

// Set is a document's shingle set keyed by canonical shingle form.
type Set map[string]struct{}

// Len returns the number of distinct shingles.
func (s Set) Len() int { return len(s) }

// Contains reports whether the canonical shingle is in the set.
func (s Set) Contains(shingle string) bool {
	_, ok := s[shingle]
	return ok
}

// Shingler extracts k-token shingles using a Tokenizer.
type Shingler struct {
	k         int
	tokenizer *Tokenizer
}

// NewShingler creates a Shingler with window size k.
func NewShingler(k int, tokenizer *Tokenizer) (*Shingler, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidSize, k)
	}
	if tokenizer == nil {
		tokenizer = &Tokenizer{}
	}
	return &Shingler{k: k, tokenizer: tokenizer}, nil
}

// Size returns the window width k.
func (s *Shingler) Size() int { return s.k }

// Shingles returns the set of every contiguous k-token window of text.
// Text with fewer than k tokens yields an empty set.
func (s *Shingler) Shingles(text string) Set {
	return FromTokens(s.tokenizer.Tokenize(text), s.k)
}

// FromTokens builds the k-shingle set of an already tokenized sequence.
func FromTokens(tokens []string, k int) Set {
	if k <= 0 || len(tokens) < k {
		return Set{}
	}
	set := make(Set, len(tokens)-k+1)
	for i := 0; i+k <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+k], Separator)] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|.
func Jaccard(a, b Set) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptySet
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for sh := range small {
		if large.Contains(sh) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union), nil
}
