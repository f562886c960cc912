package extract

import (
	"regexp"
	"strings"
	"testing"
)

func TestCleanBodyDropsBoilerplate(t *testing.T) {
	text := strings.Join([]string{
		"The council approved the new transit budget on Tuesday.",
		"Advertisement",
		"Funding covers three additional bus lines starting next spring.",
		"Share this article on social media",
		"Subscribe to our newsletter for daily updates",
		"Sign up for our morning newsletter",
		"Related articles",
		"Read more: transit expansion explained",
		"Photo credit: city archives",
		"https://example.com/related-story",
		"© 2025 Example Media. All rights reserved.",
		"Officials expect construction to begin in March.",
	}, "\n")

	got := CleanBody(text)

	want := strings.Join([]string{
		"The council approved the new transit budget on Tuesday.",
		"Funding covers three additional bus lines starting next spring.",
		"Officials expect construction to begin in March.",
	}, "\n")

	if got != want {
		t.Errorf("CleanBody mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestCleanBodyNormalizesWhitespace(t *testing.T) {
	got := CleanBody("  The   mayor \t spoke briefly.  \n\n\n  Votes were counted twice. ")

	// Non-breaking space counts as whitespace, so it collapses too.
	want := "The mayor spoke briefly.\nVotes were counted twice."

	if got != want {
		t.Errorf("CleanBody = %q, want %q", got, want)
	}
}

func TestCleanBodyKeepsMidSentenceMentions(t *testing.T) {
	// The patterns are anchored so editorial content about these topics
	// survives cleaning.
	text := "Critics said readers should subscribe to fewer outlets.\nThe advertisement market shrank last year."

	got := CleanBody(text)

	if got != text {
		t.Errorf("CleanBody = %q, want unchanged input", got)
	}
}

func TestCleanBodyEmptyInput(t *testing.T) {
	if got := CleanBody("   \n \t \n"); got != "" {
		t.Errorf("CleanBody on whitespace = %q, want empty", got)
	}
}

func TestCleanBodyExtraPatterns(t *testing.T) {
	text := strings.Join([]string{
		"The exhibit opens to the public on Friday.",
		"Download our app for breaking alerts",
		"Tickets are free for members.",
	}, "\n")

	got := CleanBody(text, regexp.MustCompile(`(?i)^download our app\b`))

	want := "The exhibit opens to the public on Friday.\nTickets are free for members."

	if got != want {
		t.Errorf("CleanBody with extra pattern = %q, want %q", got, want)
	}

	// Without the extra pattern the line survives.
	if got := CleanBody(text); !strings.Contains(got, "Download our app") {
		t.Errorf("CleanBody without extras dropped the line: %q", got)
	}
}

func TestExtractorCompilesExtraBoilerplate(t *testing.T) {
	e := NewExtractor(Options{
		MinBodyLength:    10,
		ExtraBoilerplate: []string{`(?i)^download our app\b`, `[invalid`},
	})

	if len(e.extra) != 1 {
		t.Fatalf("compiled %d extra patterns, want 1 (invalid pattern dropped)", len(e.extra))
	}
}
