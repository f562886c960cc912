package dedup

import (
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Tokenize splits text into lowercase word tokens. Punctuation only
// separates words so "U.S." and "u s" shingle identically.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Shingles returns the deduplicated set of hashed k-word shingles of a
// token stream. Tokens inside a shingle are joined with a separator byte
// so word boundaries survive hashing.
func Shingles(tokens []string, k int) []uint64 {
	if k < 1 || len(tokens) < k {
		return nil
	}

	seen := make(map[uint64]struct{}, len(tokens))
	shingles := make([]uint64, 0, len(tokens)-k+1)

	for i := 0; i+k <= len(tokens); i++ {
		digest := xxhash.New()
		for j, token := range tokens[i : i+k] {
			if j > 0 {
				digest.WriteString("\x1f")
			}
			digest.WriteString(token)
		}

		h := digest.Sum64()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		shingles = append(shingles, h)
	}

	return shingles
}
