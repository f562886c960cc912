package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/storysift/storysift/app/extract"
)

// ErrEnrichmentUnavailable marks enrichment failures. Enrichment is never
// fatal to ingestion: callers persist the article with empty enrichment
// fields and move on.
var ErrEnrichmentUnavailable = errors.New("enrichment unavailable")

// Entity is a named entity found in an article.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Enrichment holds the fields the enrichment service adds to an article.
type Enrichment struct {
	Entities  []Entity
	Sentiment *float64 // in [-1, 1], nil when the service returned none
}

// Enricher computes entities and a sentiment score for an article draft.
type Enricher interface {
	Enrich(ctx context.Context, draft *extract.ArticleDraft) (*Enrichment, error)
}

var _ Enricher = (*Client)(nil)
var _ Enricher = (*Noop)(nil)

// Client calls an external enrichment service over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type enrichRequest struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

type enrichResponse struct {
	Entities  []Entity `json:"entities"`
	Sentiment *float64 `json:"sentiment"`
}

// Enrich posts the draft text to the service. Any transport or protocol
// failure comes back as ErrEnrichmentUnavailable.
func (c *Client) Enrich(ctx context.Context, draft *extract.ArticleDraft) (*Enrichment, error) {
	payload, err := json.Marshal(enrichRequest{
		Title:    draft.Title,
		Text:     draft.Body,
		Language: draft.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/enrich", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status %d", ErrEnrichmentUnavailable, resp.StatusCode)
	}

	var decoded enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnrichmentUnavailable, err)
	}

	enrichment := &Enrichment{Entities: decoded.Entities}
	if decoded.Sentiment != nil {
		s := clampSentiment(*decoded.Sentiment)
		enrichment.Sentiment = &s
	}

	return enrichment, nil
}

// clampSentiment forces a score into [-1, 1] so a misbehaving service
// cannot push out-of-range values into storage.
func clampSentiment(s float64) float64 {
	if s < -1 {
		return -1
	}
	if s > 1 {
		return 1
	}
	return s
}

// Noop stands in when no enrichment service is configured.
type Noop struct{}

func (Noop) Enrich(ctx context.Context, draft *extract.ArticleDraft) (*Enrichment, error) {
	return nil, fmt.Errorf("%w: no service configured", ErrEnrichmentUnavailable)
}
