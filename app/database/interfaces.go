package database

import (
	"time"
)

// SourceRepository defines database operations for sources
type SourceRepository interface {
	GetSources() ([]Source, error)
	UpsertSource(source Source) error
	SetSourceActive(sourceID string, active bool) error
	UpdateSourceHealth(sourceID string, lastSuccessAt, lastAttemptAt, nextAttemptAt *time.Time, consecutiveFailures int, lastError string) error
}

// ArticleRepository defines database operations for deduplicated articles
type ArticleRepository interface {
	UpsertArticle(article Article) (string, error)
	AddArticleSource(ref ArticleSource) error
	MarkRepresentative(articleID string) error
	GetArticle(articleID string) (*Article, error)
	GetArticleSources(articleID string) ([]ArticleSource, error)
	GetArticleCount() (int, error)
}

// FingerprintRepository defines database operations for content sketches
type FingerprintRepository interface {
	InsertFingerprint(fp Fingerprint) error
	GetRecentFingerprints(since time.Time) ([]Fingerprint, error)
	DeleteFingerprintsBefore(cutoff time.Time) (int64, error)
}
