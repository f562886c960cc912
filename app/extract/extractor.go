package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	readability "github.com/go-shiori/go-readability"

	"github.com/storysift/storysift/app/adapters"
)

const maxSummaryLength = 500

type Options struct {
	MinBodyLength     int
	LanguageThreshold float64
	AllowedLanguages  []string // empty allows every language
	ExtraBoilerplate  []string // additional boilerplate line patterns (regex)
}

// Extractor turns fetched documents into article drafts: readability for
// full HTML pages, plain text extraction for fragments, then boilerplate
// cleanup and language detection.
type Extractor struct {
	minBodyLength     int
	languageThreshold float64
	allowed           map[string]bool
	extra             []*regexp.Regexp
}

func NewExtractor(opts Options) *Extractor {
	allowed := make(map[string]bool, len(opts.AllowedLanguages))
	for _, lang := range opts.AllowedLanguages {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			allowed[lang] = true
		}
	}

	// Patterns that do not compile are dropped; config validation rejects
	// them before they reach here.
	extra := make([]*regexp.Regexp, 0, len(opts.ExtraBoilerplate))
	for _, pattern := range opts.ExtraBoilerplate {
		if re, err := regexp.Compile(pattern); err == nil {
			extra = append(extra, re)
		}
	}

	return &Extractor{
		minBodyLength:     opts.MinBodyLength,
		languageThreshold: opts.LanguageThreshold,
		allowed:           allowed,
		extra:             extra,
	}
}

func (e *Extractor) Extract(doc adapters.RawDocument) (*ArticleDraft, error) {
	canonical, err := CanonicalURL(doc.Hint.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyContent, err)
	}

	title := strings.TrimSpace(doc.Hint.Title)
	author := strings.TrimSpace(doc.Hint.Author)
	imageURL := strings.TrimSpace(doc.Hint.ImageURL)

	var text string
	if isFullDocument(doc.Payload) {
		if article, err := readability.FromReader(bytes.NewReader(doc.Payload), nil); err == nil {
			text = article.TextContent
			if title == "" {
				title = strings.TrimSpace(article.Title)
			}
			if author == "" {
				author = strings.TrimSpace(article.Byline)
			}
			if imageURL == "" {
				imageURL = article.Image
			}
		}
	}

	if strings.TrimSpace(text) == "" {
		text = fragmentText(doc.Payload)
	}

	body := CleanBody(text, e.extra...)
	if len(body) < e.minBodyLength {
		return nil, fmt.Errorf("%w: body is %d characters after cleaning", ErrEmptyContent, len(body))
	}

	language, confidence := e.detectLanguage(body)
	if language != "unknown" && len(e.allowed) > 0 && !e.allowed[language] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	publishedAt := doc.FetchedAt
	estimated := true
	if doc.Hint.PublishedAt != nil {
		publishedAt = *doc.Hint.PublishedAt
		estimated = false
	}

	return &ArticleDraft{
		SourceID:           doc.SourceID,
		URL:                canonical,
		URLHash:            HashURL(canonical),
		Title:              title,
		Body:               body,
		Summary:            summaryText(doc.Hint.Summary),
		Author:             author,
		ImageURL:           imageURL,
		Language:           language,
		LangConfidence:     confidence,
		PublishedAt:        publishedAt,
		PublishedEstimated: estimated,
		FetchedAt:          doc.FetchedAt,
	}, nil
}

// detectLanguage returns the ISO 639-1 code of the body's language, or
// "unknown" when detection is not confident enough. Unknown is not a
// failure: short quotes and mixed-language bodies are kept.
func (e *Extractor) detectLanguage(body string) (string, float64) {
	info := whatlanggo.Detect(body)

	code := info.Lang.Iso6391()
	if code == "" || info.Confidence < e.languageThreshold {
		return "unknown", info.Confidence
	}

	return code, info.Confidence
}

func isFullDocument(payload []byte) bool {
	head := payload
	if len(head) > 1024 {
		head = head[:1024]
	}

	lowered := strings.ToLower(string(head))

	return strings.Contains(lowered, "<html") || strings.Contains(lowered, "<!doctype html")
}

// fragmentText extracts readable text from an HTML fragment, keeping
// paragraph boundaries so words do not run together.
func fragmentText(payload []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return string(payload)
	}

	doc.Find("script, style, noscript").Remove()

	paragraphs := doc.Find("p, li, h1, h2, h3, blockquote")
	if paragraphs.Length() == 0 {
		return doc.Text()
	}

	parts := make([]string, 0, paragraphs.Length())
	paragraphs.Each(func(_ int, sel *goquery.Selection) {
		if part := strings.TrimSpace(sel.Text()); part != "" {
			parts = append(parts, part)
		}
	})

	return strings.Join(parts, "\n")
}

func summaryText(raw string) string {
	summary := strings.Join(strings.Fields(fragmentText([]byte(raw))), " ")

	runes := []rune(summary)
	if len(runes) > maxSummaryLength {
		summary = string(runes[:maxSummaryLength])
	}

	return summary
}
