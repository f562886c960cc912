package dedup

import (
	"fmt"
	"time"
)

// Params holds the knobs of the near-duplicate detector. The defaults are
// tuned for news bodies of a few hundred words.
type Params struct {
	ShingleSize int           // words per shingle
	HashCount   int           // positions in a min-hash sketch
	Bands       int           // LSH bands per sketch
	Rows        int           // sketch positions per band
	Threshold   float64       // minimum estimated Jaccard to call a duplicate
	MinShingles int           // bodies with fewer shingles are never fingerprinted
	Window      time.Duration // how far back a candidate may lie
	BucketWidth time.Duration // publish-time bucket granularity
	PendingWait time.Duration // how long to wait on a concurrent unresolved claim
}

func DefaultParams() Params {
	return Params{
		ShingleSize: 3,
		HashCount:   128,
		Bands:       16,
		Rows:        8,
		Threshold:   0.8,
		MinShingles: 8,
		Window:      7 * 24 * time.Hour,
		BucketWidth: time.Hour,
		PendingWait: 30 * time.Second,
	}
}

func (p Params) Validate() error {
	if p.ShingleSize < 1 {
		return fmt.Errorf("shingle size must be at least 1, got %d", p.ShingleSize)
	}

	if p.HashCount < 1 {
		return fmt.Errorf("hash count must be at least 1, got %d", p.HashCount)
	}

	if p.Bands < 1 || p.Rows < 1 || p.Bands*p.Rows != p.HashCount {
		return fmt.Errorf("bands (%d) times rows (%d) must equal hash count (%d)", p.Bands, p.Rows, p.HashCount)
	}

	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %f", p.Threshold)
	}

	if p.MinShingles < 1 {
		return fmt.Errorf("min shingles must be at least 1, got %d", p.MinShingles)
	}

	if p.BucketWidth <= 0 || p.Window < p.BucketWidth {
		return fmt.Errorf("window (%s) must be at least one bucket width (%s)", p.Window, p.BucketWidth)
	}

	return nil
}

// Bucket maps a publish time onto the bucket grid.
func (p Params) Bucket(t time.Time) int64 {
	return t.Unix() / int64(p.BucketWidth/time.Second)
}

// WithinWindow reports whether two buckets are close enough for their
// articles to be duplicate candidates. The comparison is inclusive so an
// article exactly one window apart still matches.
func (p Params) WithinWindow(a, b int64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}

	return diff*int64(p.BucketWidth/time.Second) <= int64(p.Window/time.Second)
}
