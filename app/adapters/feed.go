package adapters

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/storysift/storysift/app/sources"
)

// FeedAdapter fetches RSS and Atom sources. Each feed item becomes one
// RawDocument whose payload is the item's content or description HTML.
type FeedAdapter struct {
	client *Client
	parser *gofeed.Parser
}

func NewFeedAdapter(client *Client) *FeedAdapter {
	return &FeedAdapter{client: client, parser: gofeed.NewParser()}
}

func (a *FeedAdapter) Kind() sources.Kind {
	return sources.KindFeed
}

func (a *FeedAdapter) Fetch(ctx context.Context, source sources.Source) ([]RawDocument, error) {
	payload, _, err := a.client.Get(ctx, source.URL, nil)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	fetchedAt := time.Now()

	docs := make([]RawDocument, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || (item.Link == "" && item.Title == "") {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		hint := Hint{
			URL:     item.Link,
			Title:   item.Title,
			Summary: item.Description,
		}

		if item.PublishedParsed != nil {
			hint.PublishedAt = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			hint.PublishedAt = item.UpdatedParsed
		}

		if len(item.Authors) > 0 && item.Authors[0] != nil {
			hint.Author = item.Authors[0].Name
		}

		if item.Image != nil {
			hint.ImageURL = item.Image.URL
		}

		docs = append(docs, RawDocument{
			SourceID:    source.ID,
			FetchedAt:   fetchedAt,
			ContentType: "text/html",
			Payload:     []byte(content),
			Hint:        hint,
		})
	}

	return docs, nil
}
