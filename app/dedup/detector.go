package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Decision is the dedup verdict for one extracted article body.
type Decision struct {
	Status      Status
	Fingerprint *Fingerprint // nil when Status is StatusShort
	ArticleID   string       // owning article when Status is StatusDuplicate
	Similarity  float64
	Claim       Claim // set when Status is StatusNew
}

// Detector turns article bodies into fingerprints and resolves them against
// an index.
type Detector struct {
	params Params
	index  Index
}

func NewDetector(params Params, index Index) *Detector {
	return &Detector{params: params, index: index}
}

func (d *Detector) Params() Params {
	return d.params
}

// Process fingerprints a body and probes the index. Bodies with fewer than
// MinShingles shingles come back StatusShort: they are treated as unique
// but never indexed, so two short bodies can never absorb each other.
func (d *Detector) Process(ctx context.Context, sourceID, body string, publishedAt time.Time) (*Decision, error) {
	shingles := Shingles(Tokenize(body), d.params.ShingleSize)
	if len(shingles) < d.params.MinShingles {
		return &Decision{Status: StatusShort}, nil
	}

	sketch := Sketch(shingles, d.params.HashCount)

	fp := &Fingerprint{
		ID:            uuid.NewString(),
		SourceID:      sourceID,
		Sketch:        sketch,
		Bands:         BandSignatures(sketch, d.params.Bands, d.params.Rows),
		ContentLength: len(body),
		Bucket:        d.params.Bucket(publishedAt),
	}

	outcome, err := d.index.ProbeAndClaim(ctx, fp)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Status:      outcome.Status,
		Fingerprint: fp,
		ArticleID:   outcome.ArticleID,
		Similarity:  outcome.Similarity,
		Claim:       outcome.Claim,
	}, nil
}
