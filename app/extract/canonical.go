package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Tracking parameters stripped during canonicalization, so the same story
// shared through different channels hashes identically.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// CanonicalURL normalizes a URL: lowercased scheme and host, default ports
// and fragments dropped, tracking parameters removed and the remaining
// query sorted.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}

	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.Path == "" {
		u.Path = "/"
	}

	query := u.Query()
	for param := range query {
		if trackingParams[param] || strings.HasPrefix(strings.ToLower(param), "utm_") {
			query.Del(param)
		}
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// HashURL returns the hex sha256 of a canonical URL, the stable identity
// of an article across refetches.
func HashURL(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
