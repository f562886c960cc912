package dedup

import (
	"context"
	"time"
)

// Status classifies the outcome of a duplicate probe.
type Status string

const (
	// StatusNew means no recent similar content was found and the
	// fingerprint has been provisionally claimed.
	StatusNew Status = "new"
	// StatusDuplicate means a committed near-duplicate owns this content.
	StatusDuplicate Status = "duplicate"
	// StatusShort means the body had too few shingles to fingerprint
	// reliably. Short bodies are treated as unique and never indexed.
	StatusShort Status = "short"
)

// Outcome is the result of probing the index with a fingerprint.
type Outcome struct {
	Status     Status
	ArticleID  string  // owning article when Status is StatusDuplicate
	Similarity float64 // estimated Jaccard against the matched sketch
	Claim      Claim   // set when Status is StatusNew
}

// Claim is a provisional index entry for an article that has not been
// persisted yet. Commit publishes it under the stored article id so later
// probes resolve to that article; Rollback withdraws it so the content can
// be claimed again. Exactly one of the two must be called.
type Claim interface {
	Commit(ctx context.Context, articleID string) error
	Rollback(ctx context.Context) error
}

// Entry is a committed fingerprint used to rebuild an index at startup.
type Entry struct {
	ID        string
	ArticleID string
	Sketch    []uint64
	Bucket    int64
}

// Index answers whether content has been seen recently, with atomic
// probe-and-claim semantics so two workers racing on near-identical bodies
// cannot both be told the content is new.
type Index interface {
	ProbeAndClaim(ctx context.Context, fp *Fingerprint) (*Outcome, error)
	Restore(entries []Entry) error
	Sweep(ctx context.Context, before time.Time) (int, error)
}
