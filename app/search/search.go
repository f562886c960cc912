package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Document is the search-facing projection of an article. The url hash is
// the document id, so retried upserts and absorbed-source refreshes
// overwrite the same document instead of duplicating it.
type Document struct {
	URLHash     string    `json:"-"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Body        string    `json:"content"`
	Summary     string    `json:"summary"`
	Author      string    `json:"author"`
	Language    string    `json:"language"`
	PublishedAt time.Time `json:"published_at"`
	SourceID    string    `json:"source_id"`
	Sources     []string  `json:"sources"`
	Sentiment   *float64  `json:"sentiment,omitempty"`
	Entities    []Entity  `json:"entities"`
}

// Entity mirrors the enrichment entity shape in the index mapping.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Indexer is the search index write path. Implementations must make Upsert
// idempotent on the document's url hash.
type Indexer interface {
	Upsert(ctx context.Context, doc Document) error
}

var _ Indexer = (*Client)(nil)
var _ Indexer = (*Noop)(nil)

// Client writes documents to an Elasticsearch-compatible index over HTTP.
type Client struct {
	endpoint string
	index    string
	http     *http.Client
}

func NewClient(endpoint, index string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		index:    index,
		http:     &http.Client{Timeout: timeout},
	}
}

// Upsert stores the document under its url hash, replacing any previous
// version.
func (c *Client) Upsert(ctx context.Context, doc Document) error {
	if doc.URLHash == "" {
		return fmt.Errorf("document has no url hash")
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal search document: %w", err)
	}

	docURL := fmt.Sprintf("%s/%s/_doc/%s", c.endpoint, url.PathEscape(c.index), url.PathEscape(doc.URLHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, docURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create index request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to index document: http status %d", resp.StatusCode)
	}

	return nil
}

// Noop stands in when no search index is configured. Upserts succeed
// without doing anything so the sink does not special-case it.
type Noop struct{}

func (Noop) Upsert(ctx context.Context, doc Document) error {
	return nil
}
