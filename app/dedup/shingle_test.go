package dedup

import (
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("U.S. stocks rallied Tuesday -- the S&P 500 gained 1.2%!")

	want := []string{"u", "s", "stocks", "rallied", "tuesday", "the", "s", "p", "500", "gained", "1", "2"}

	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokens, len(want))
	}

	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if tokens := Tokenize("  \t\n ... "); len(tokens) != 0 {
		t.Errorf("expected no tokens, got %v", tokens)
	}
}

func TestShinglesCount(t *testing.T) {
	tokens := []string{"a", "b", "c", "d", "e"}

	shingles := Shingles(tokens, 3)

	if len(shingles) != 3 {
		t.Errorf("got %d shingles, want 3", len(shingles))
	}
}

func TestShinglesDeduplicates(t *testing.T) {
	tokens := []string{"a", "b", "a", "b", "a", "b"}

	// "a b" appears three times but only counts once.
	shingles := Shingles(tokens, 2)

	if len(shingles) != 2 {
		t.Errorf("got %d shingles, want 2 distinct", len(shingles))
	}
}

func TestShinglesShortInput(t *testing.T) {
	if shingles := Shingles([]string{"a", "b"}, 3); shingles != nil {
		t.Errorf("expected nil for input shorter than k, got %v", shingles)
	}

	if shingles := Shingles(nil, 3); shingles != nil {
		t.Errorf("expected nil for empty input, got %v", shingles)
	}
}

func TestShinglesRespectWordBoundaries(t *testing.T) {
	a := Shingles([]string{"ab", "c"}, 2)
	b := Shingles([]string{"a", "bc"}, 2)

	if a[0] == b[0] {
		t.Error("shingles with different word boundaries must not collide")
	}
}

func TestShinglesDeterministic(t *testing.T) {
	tokens := Tokenize("the quick brown fox jumps over the lazy dog")

	a := Shingles(tokens, 3)
	b := Shingles(tokens, 3)

	if len(a) != len(b) {
		t.Fatalf("shingle counts differ: %d vs %d", len(a), len(b))
	}

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("shingle[%d] differs between runs", i)
		}
	}
}
