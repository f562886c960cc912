package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is the shared fetch layer for all adapters: robots policy,
// timeout, response size limit and transport error classification.
type Client struct {
	http      *http.Client
	policy    *PolicyChecker
	userAgent string
	maxBody   int64
}

func NewClient(policy *PolicyChecker, userAgent string, timeout time.Duration, maxBody int64) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		policy:    policy,
		userAgent: userAgent,
		maxBody:   maxBody,
	}
}

// Get fetches a URL subject to the robots policy of its host. Extra headers
// may be nil. The body is capped at the configured size limit.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, string, error) {
	if !c.policy.Allowed(ctx, rawURL) {
		return nil, "", fmt.Errorf("%w: %s", ErrPolicyDenied, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: http status %d for %s", ErrUnreachable, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, "", classifyTransportError(err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
