package extract

import (
	"errors"
	"time"
)

// Extraction failure classes. Both mean the item is skipped; the
// distinction feeds metrics and logs.
var (
	ErrEmptyContent        = errors.New("empty content")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// ArticleDraft is a cleaned, language-tagged article ready for duplicate
// detection and persistence.
type ArticleDraft struct {
	SourceID           string
	URL                string // canonical form
	URLHash            string
	Title              string
	Body               string
	Summary            string
	Author             string
	ImageURL           string
	Language           string // ISO 639-1 code or "unknown"
	LangConfidence     float64
	PublishedAt        time.Time
	PublishedEstimated bool // true when PublishedAt fell back to fetch time
	FetchedAt          time.Time
}
