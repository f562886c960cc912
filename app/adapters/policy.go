package adapters

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const policyCacheTTL = time.Hour

type policyEntry struct {
	group     *robotstxt.Group // nil means allow everything
	fetchedAt time.Time
}

// PolicyChecker answers robots.txt questions with a per-host cache. A host
// whose robots.txt is missing or unreadable allows everything; only an
// explicit disallow rule blocks a fetch.
type PolicyChecker struct {
	http      *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]policyEntry
}

func NewPolicyChecker(userAgent string, timeout time.Duration) *PolicyChecker {
	return &PolicyChecker{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cache:     make(map[string]policyEntry),
	}
}

// Allowed reports whether the configured user agent may fetch the URL.
func (p *PolicyChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	group := p.group(ctx, u.Scheme, u.Host)
	if group == nil {
		return true
	}

	return group.Test(u.RequestURI())
}

func (p *PolicyChecker) group(ctx context.Context, scheme, host string) *robotstxt.Group {
	key := scheme + "://" + host

	p.mu.Lock()
	entry, ok := p.cache[key]
	p.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < policyCacheTTL {
		return entry.group
	}

	group := p.fetch(ctx, key+"/robots.txt")

	p.mu.Lock()
	p.cache[key] = policyEntry{group: group, fetchedAt: time.Now()}
	p.mu.Unlock()

	return group
}

// fetch retrieves and parses robots.txt. Any failure, including non-200
// statuses and parse errors, yields a nil group and the host stays open.
func (p *PolicyChecker) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		slog.Debug("Failed to fetch robots.txt, allowing", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		slog.Debug("Failed to parse robots.txt, allowing", "url", robotsURL, "error", err)
		return nil
	}

	return robots.FindGroup(p.userAgent)
}
