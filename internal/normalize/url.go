// Package normalize holds the pure canonicalization functions behind the
// dedup keys: URL cleanup, title folding, and the derived hashes. Collision
// behavior of these functions decides which sightings merge into one deal,
// so everything here is deterministic and side-effect free.
package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters stripped during URL normalization.
// Parameters starting with "utm_" are stripped as well.
var trackingParams = map[string]bool{
	"ref":     true,
	"ref_src": true,
	"fbclid":  true,
	"gclid":   true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
	"spm":     true,
	"source":  true,
	"mkt_tok": true,
}

// URL canonicalizes a raw URL so that trivially different spellings of the
// same page hash identically: https scheme, lowercased host without a
// leading "www.", no trailing slash (root excepted), tracking parameters
// removed, remaining parameters sorted, fragment dropped.
func URL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("normalize: empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "normalize: parse url %q", raw)
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", eris.Errorf("normalize: url %q has no host", raw)
	}

	path := u.Path
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	kept := url.Values{}
	for key, vals := range u.Query() {
		if strings.HasPrefix(key, "utm_") || trackingParams[strings.ToLower(key)] {
			continue
		}
		for _, v := range vals {
			if v != "" {
				kept.Add(key, v)
			}
		}
	}

	// Encode sorts by key and keeps repeated values in order, so
	// ?a=1&a=2 and ?a=1 stay distinct.
	query := kept.Encode()

	normalized := "https://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized, nil
}

// Hostname extracts the host part of a normalized URL.
func Hostname(normalized string) string {
	u, err := url.Parse(normalized)
	if err != nil {
		return ""
	}
	return u.Host
}

// URLHash returns the hex sha1 of the normalized URL. Two raw URLs differing
// only in tracking parameters or scheme produce the same hash.
func URLHash(normalized string) string {
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
