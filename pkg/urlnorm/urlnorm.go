// Package urlnorm implements the URL-equivalence policy used to decide
// whether a URL differing from a history URL only by
// scheme/trailing-slash/query counts as "previously seen" for the
// Disposition Engine's loop-prevention check (recorded in SPEC_FULL.md §3).
//
// Resolution: normalize before comparing. Lowercase the host and strip a
// leading "www.", strip the scheme, strip a single trailing slash, and
// drop the query string
// unless it carries a key that looks like a stable per-listing
// identifier, in which case the query is kept so two distinct listings
// on the same domain are never folded into one.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// identifierKeys are query parameter names that, when present, make a URL's
// query string load-bearing for identity (e.g. directory profile pages
// keyed by ?id=... on one shared domain).
var identifierKeys = map[string]bool{
	"id": true, "p": true, "page_id": true, "listing": true, "biz": true,
	"business_id": true, "profile": true,
}

// Normalize reduces a URL to its comparison key. Invalid input is returned
// lowercased and trimmed as a best-effort fallback so comparison never
// panics.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Not a well-formed absolute URL; fall back to a plain string
		// normalization so callers still get a stable comparison key.
		return strings.ToLower(strings.TrimSuffix(raw, "/"))
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	path := strings.TrimSuffix(u.Path, "/")

	query := ""
	if u.RawQuery != "" {
		if kept := keepIdentifierQuery(u.Query()); kept != "" {
			query = "?" + kept
		}
	}

	return host + path + query
}

// Equal reports whether two URLs normalize to the same comparison key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func keepIdentifierQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if identifierKeys[strings.ToLower(k)] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values.Get(k))
	}
	return strings.Join(parts, "&")
}
