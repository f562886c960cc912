package database

import (
	"time"
)

// Source represents a configured source record in the database. Scheduling
// health columns mirror the in-memory registry so state survives restarts.
type Source struct {
	ID                  string
	Name                string
	Kind                string
	URL                 string
	IntervalSeconds     int
	Weight              int
	Active              bool
	LastSuccessAt       *time.Time
	LastAttemptAt       *time.Time
	NextAttemptAt       *time.Time
	ConsecutiveFailures int
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Article represents a deduplicated article record. Exactly one row exists
// per canonical URL hash; near-duplicate reports from other sources are
// recorded in article_sources instead of creating new rows.
type Article struct {
	ID                 string
	URLHash            string
	URL                string
	Title              string
	Body               string
	Summary            string
	Author             string
	ImageURL           string
	Language           string
	PublishedAt        time.Time
	PublishedEstimated bool
	SourceID           string
	Entities           []Entity
	Sentiment          *float64
	Representative     bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Entity is a named entity attached to an article, stored as JSONB.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ArticleSource records one source's report of an article, either the
// original or an absorbed near-duplicate.
type ArticleSource struct {
	ArticleID  string
	SourceID   string
	URL        string
	Title      string
	AbsorbedAt time.Time
}

// Fingerprint persists a content sketch so the in-memory duplicate index
// can be rebuilt after a restart.
type Fingerprint struct {
	ID            string
	ArticleID     string
	Sketch        []byte
	ContentLength int
	TimeBucket    int64
	CreatedAt     time.Time
}
