package extract

import (
	"regexp"
	"strings"
)

// Lines matching any of these are dropped before fingerprinting, so shared
// boilerplate does not pull distinct articles toward each other.
var boilerplateLines = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^share (this|on|via)\b`),
	regexp.MustCompile(`(?i)^(follow|like|find) us on\b`),
	regexp.MustCompile(`(?i)^advertisement$`),
	regexp.MustCompile(`(?i)^sponsored( content)?$`),
	regexp.MustCompile(`(?i)^(click here to )?subscribe\b`),
	regexp.MustCompile(`(?i)^sign up for\b.*newsletter`),
	regexp.MustCompile(`(?i)^related (articles?|stories|posts|coverage)\b`),
	regexp.MustCompile(`(?i)^read (more|also|next)\b`),
	regexp.MustCompile(`(?i)^(photo|photograph|image|picture) (by|credit)\b`),
	regexp.MustCompile(`(?i)all rights reserved`),
	regexp.MustCompile(`(?i)^copyright\b|^©`),
	regexp.MustCompile(`^https?://\S+$`),
}

// CleanBody strips boilerplate lines and normalizes whitespace. Line
// structure is preserved so the result stays readable. Extra patterns
// extend the built-in set for publisher-specific chrome.
func CleanBody(text string, extra ...*regexp.Regexp) string {
	lines := strings.Split(text, "\n")

	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}

		if isBoilerplate(line, extra) {
			continue
		}

		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

func isBoilerplate(line string, extra []*regexp.Regexp) bool {
	for _, pattern := range boilerplateLines {
		if pattern.MatchString(line) {
			return true
		}
	}
	for _, pattern := range extra {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}
