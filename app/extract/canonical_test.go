package extract

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "lowercases scheme and host",
			raw:  "HTTPS://News.Example.COM/story",
			want: "https://news.example.com/story",
		},
		{
			name: "strips utm parameters",
			raw:  "https://example.com/story?utm_source=feed&utm_medium=rss&id=7",
			want: "https://example.com/story?id=7",
		},
		{
			name: "strips click identifiers",
			raw:  "https://example.com/story?fbclid=abc123&gclid=xyz",
			want: "https://example.com/story",
		},
		{
			name: "drops fragment",
			raw:  "https://example.com/story#comments",
			want: "https://example.com/story",
		},
		{
			name: "drops default http port",
			raw:  "http://example.com:80/story",
			want: "http://example.com/story",
		},
		{
			name: "drops default https port",
			raw:  "https://example.com:443/story",
			want: "https://example.com/story",
		},
		{
			name: "keeps explicit non-default port",
			raw:  "https://example.com:8443/story",
			want: "https://example.com:8443/story",
		},
		{
			name: "sorts the remaining query",
			raw:  "https://example.com/story?b=2&a=1",
			want: "https://example.com/story?a=1&b=2",
		},
		{
			name: "adds a root path",
			raw:  "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "trims surrounding whitespace",
			raw:  "  https://example.com/story \n",
			want: "https://example.com/story",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CanonicalURL(tc.raw)
			if err != nil {
				t.Fatalf("CanonicalURL(%q) returned error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestCanonicalURLRejectsRelative(t *testing.T) {
	if _, err := CanonicalURL("/story/7"); err == nil {
		t.Error("expected error for relative URL")
	}
	if _, err := CanonicalURL("not a url at all ::"); err == nil {
		t.Error("expected error for unparseable URL")
	}
}

func TestHashURL(t *testing.T) {
	a := HashURL("https://example.com/story")
	b := HashURL("https://example.com/story")
	c := HashURL("https://example.com/other")

	if a != b {
		t.Error("same URL should hash identically")
	}
	if a == c {
		t.Error("different URLs should hash differently")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("hash %q is not lowercase hex sha256", a)
	}
}

func TestTrackingVariantsHashIdentically(t *testing.T) {
	plain, err := CanonicalURL("https://example.com/story")
	if err != nil {
		t.Fatal(err)
	}
	tracked, err := CanonicalURL("https://example.com/story?utm_source=x&utm_campaign=y&fbclid=z#top")
	if err != nil {
		t.Fatal(err)
	}

	if HashURL(plain) != HashURL(tracked) {
		t.Errorf("tracking variants diverged: %q vs %q", plain, tracked)
	}
}
