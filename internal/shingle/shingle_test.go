package shingle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShingler(t *testing.T, k int, opts TokenizerOptions) *Shingler {
	t.Helper()
	tok, err := NewTokenizer(opts)
	require.NoError(t, err)
	s, err := NewShingler(k, tok)
	require.NoError(t, err)
	return s
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		opts TokenizerOptions
		text string
		want []string
	}{
		{
			name: "punctuation split into tokens",
			text: "hello world, this is a test?",
			want: []string{"hello", "world", ",", "this", "is", "a", "test", "?"},
		},
		{
			name: "apostrophes stay inside words",
			text: "don't stop",
			want: []string{"don't", "stop"},
		},
		{
			name: "numbers with decimals",
			text: "pi is 3.14",
			want: []string{"pi", "is", "3.14"},
		},
		{
			name: "lowercase option",
			opts: TokenizerOptions{Lowercase: true},
			text: "Hello WORLD",
			want: []string{"hello", "world"},
		},
		{
			name: "stemming implies lowercase",
			opts: TokenizerOptions{StemLanguage: "english"},
			text: "Running runners",
			want: []string{"run", "runner"},
		},
		{
			name: "empty text",
			text: "   \n\t ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewTokenizer(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok.Tokenize(tt.text))
		})
	}
}

func TestTokenize_NormalizesUnicode(t *testing.T) {
	tok, err := NewTokenizer(TokenizerOptions{})
	require.NoError(t, err)

	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	assert.Equal(t, tok.Tokenize(composed), tok.Tokenize(decomposed))
}

func TestNewTokenizer_UnknownLanguage(t *testing.T) {
	_, err := NewTokenizer(TokenizerOptions{StemLanguage: "klingon"})
	assert.Error(t, err)
}

func TestNewShingler_InvalidSize(t *testing.T) {
	_, err := NewShingler(0, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestShingles(t *testing.T) {
	s := newShingler(t, 2, TokenizerOptions{})

	got := s.Shingles("a b c a b")
	assert.Equal(t, Set{"a b": {}, "b c": {}, "c a": {}}, got)
	assert.Equal(t, 2, s.Size())
	assert.True(t, got.Contains("a b"))
	assert.False(t, got.Contains("b a"))
}

func TestShingles_FewerTokensThanK(t *testing.T) {
	s := newShingler(t, 5, TokenizerOptions{})

	assert.Equal(t, 0, s.Shingles("only four tokens here").Len())
	assert.Equal(t, 1, s.Shingles("exactly five tokens right here").Len())
}

func TestShingles_Deterministic(t *testing.T) {
	s := newShingler(t, 3, TokenizerOptions{})
	text := "the quick brown fox jumps over the lazy dog, again and again."

	assert.Equal(t, s.Shingles(text), s.Shingles(text))
}

func TestJaccard(t *testing.T) {
	a := FromTokens([]string{"a", "b", "c", "d"}, 1)
	b := FromTokens([]string{"c", "d", "e", "f"}, 1)

	t.Run("identical sets", func(t *testing.T) {
		sim, err := Jaccard(a, a)
		require.NoError(t, err)
		assert.Equal(t, 1.0, sim)
	})

	t.Run("partial overlap", func(t *testing.T) {
		sim, err := Jaccard(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 2.0/6.0, sim, 1e-12)
	})

	t.Run("empty set is an error", func(t *testing.T) {
		_, err := Jaccard(a, Set{})
		assert.ErrorIs(t, err, ErrEmptySet)

		_, err = Jaccard(Set{}, Set{})
		assert.ErrorIs(t, err, ErrEmptySet)
	})
}
