package shingle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kljensen/snowball"
	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches, in order of preference: a word (letters, marks and
// digits with inner apostrophes), a number with optional decimal groups, or
// any single non-space symbol. Punctuation therefore becomes its own token.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}][\p{L}\p{M}\p{N}]*(?:['’][\p{L}\p{M}\p{N}]+)*|\p{N}+(?:[.,]\p{N}+)*|[^\s\p{L}\p{M}\p{N}]`)

// TokenizerOptions controls token normalisation.
type TokenizerOptions struct {
	// Lowercase folds every token to lower case.
	Lowercase bool

	// StemLanguage enables snowball stemming for word tokens when non-empty
	// (e.g. "english", "french"). Stemming implies Lowercase.
	StemLanguage string
}

// Tokenizer turns text into a deterministic token sequence.
// It is safe for concurrent use.
type Tokenizer struct {
	opts TokenizerOptions
}

// NewTokenizer validates opts and returns a Tokenizer.
func NewTokenizer(opts TokenizerOptions) (*Tokenizer, error) {
	if opts.StemLanguage != "" {
		if _, err := snowball.Stem("testing", opts.StemLanguage, true); err != nil {
			return nil, fmt.Errorf("unsupported stem language %q: %w", opts.StemLanguage, err)
		}
		opts.Lowercase = true
	}
	return &Tokenizer{opts: opts}, nil
}

// Tokenize returns the tokens of text. Text is NFC-normalised first so that
// canonically equivalent inputs tokenize identically.
func (t *Tokenizer) Tokenize(text string) []string {
	text = norm.NFC.String(text)
	if t.opts.Lowercase {
		text = strings.ToLower(text)
	}
	tokens := tokenPattern.FindAllString(text, -1)
	if t.opts.StemLanguage == "" {
		return tokens
	}
	for i, tok := range tokens {
		stemmed, err := snowball.Stem(tok, t.opts.StemLanguage, true)
		if err == nil && stemmed != "" {
			tokens[i] = stemmed
		}
	}
	return tokens
}
