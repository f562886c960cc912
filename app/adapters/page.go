package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/storysift/storysift/app/sources"
)

// PageAdapter scrapes article listings from HTML pages using configured
// CSS selectors. With follow_links enabled each article page is fetched
// and becomes the payload; otherwise the listing fragment is used.
type PageAdapter struct {
	client *Client
}

func NewPageAdapter(client *Client) *PageAdapter {
	return &PageAdapter{client: client}
}

func (a *PageAdapter) Kind() sources.Kind {
	return sources.KindPage
}

func (a *PageAdapter) Fetch(ctx context.Context, source sources.Source) ([]RawDocument, error) {
	settings := source.Page

	maxPages := settings.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	var docs []RawDocument
	var followErr error

	pageURL := source.URL
	for page := 0; page < maxPages && pageURL != ""; page++ {
		payload, _, err := a.client.Get(ctx, pageURL, nil)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			break
		}

		base, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		fetchedAt := time.Now()

		doc.Find(settings.ArticleSelector).Each(func(_ int, sel *goquery.Selection) {
			item, ok := a.itemFromListing(sel, settings, base)
			if !ok {
				return
			}
			item.SourceID = source.ID
			item.FetchedAt = fetchedAt
			docs = append(docs, item)
		})

		pageURL = nextPageURL(doc, settings.NextPageSelector, base)
	}

	if settings.FollowLinks {
		followed := docs[:0]
		for _, item := range docs {
			payload, _, err := a.client.Get(ctx, item.Hint.URL, nil)
			if err != nil {
				if followErr == nil {
					followErr = err
				}
				continue
			}
			item.Payload = payload
			followed = append(followed, item)
		}
		docs = followed
	}

	if len(docs) == 0 && followErr != nil {
		return nil, followErr
	}

	return docs, nil
}

// itemFromListing builds a RawDocument from one listing entry. Entries
// without a resolvable article link are dropped.
func (a *PageAdapter) itemFromListing(sel *goquery.Selection, settings sources.PageSettings, base *url.URL) (RawDocument, bool) {
	link := sel.Find(settings.LinkSelector).First()

	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return RawDocument{}, false
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return RawDocument{}, false
	}

	hint := Hint{
		URL:   base.ResolveReference(ref).String(),
		Title: strings.TrimSpace(link.Text()),
	}

	if settings.TitleSelector != "" {
		if title := strings.TrimSpace(sel.Find(settings.TitleSelector).First().Text()); title != "" {
			hint.Title = title
		}
	}

	if settings.SummarySelector != "" {
		hint.Summary = strings.TrimSpace(sel.Find(settings.SummarySelector).First().Text())
	}

	if settings.AuthorSelector != "" {
		hint.Author = strings.TrimSpace(sel.Find(settings.AuthorSelector).First().Text())
	}

	if settings.ImageSelector != "" {
		if src, ok := sel.Find(settings.ImageSelector).First().Attr("src"); ok {
			if ref, err := url.Parse(strings.TrimSpace(src)); err == nil {
				hint.ImageURL = base.ResolveReference(ref).String()
			}
		}
	}

	if settings.DateSelector != "" {
		dateSel := sel.Find(settings.DateSelector).First()
		raw := strings.TrimSpace(dateSel.AttrOr("datetime", dateSel.Text()))
		if raw != "" {
			if parsed, err := dateparse.ParseAny(raw); err == nil {
				hint.PublishedAt = &parsed
			}
		}
	}

	var payload string
	if settings.ContentSelector != "" {
		payload, _ = sel.Find(settings.ContentSelector).First().Html()
	}
	if payload == "" {
		payload, _ = sel.Html()
	}

	return RawDocument{
		ContentType: "text/html",
		Payload:     []byte(payload),
		Hint:        hint,
	}, true
}

func nextPageURL(doc *goquery.Document, selector string, base *url.URL) string {
	if selector == "" {
		return ""
	}

	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	return base.ResolveReference(ref).String()
}
