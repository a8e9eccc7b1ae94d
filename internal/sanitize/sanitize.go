// Package sanitize strips non-attribution data from URLs before they are
// transmitted to the tracking provider or echoed back to a caller.
package sanitize

import (
	"net/url"
	"sort"
	"strings"
)

// AttributionParams is the allow-list of query keys the attribution-preserving
// sanitizer retains. Everything else, including duplicate or encoded keys, is
// dropped.
var AttributionParams = []string{
	"fbclid",
	"gclid",
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_term",
	"utm_content",
}

var attributionSet = func() map[string]bool {
	m := make(map[string]bool, len(AttributionParams))
	for _, k := range AttributionParams {
		m[k] = true
	}
	return m
}()

// StripTracking reduces a URL to origin + path, dropping the query string and
// fragment entirely. Malformed or relative input yields absent (ok=false);
// an unparseable URL is never passed downstream.
//
// The function is idempotent: applying it to its own output returns the same
// string.
func StripTracking(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath(), true
}

// KeepAttribution removes the fragment and reduces the query string to the
// AttributionParams allow-list, preserving marketing click IDs and UTM fields.
// Malformed or relative input yields absent (ok=false), same policy as
// StripTracking.
//
// Retained keys are emitted in a stable order so the function is idempotent.
func KeepAttribution(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}

	q := u.Query()
	kept := url.Values{}
	for key, vals := range q {
		if !attributionSet[key] || len(vals) == 0 {
			continue
		}
		// First value wins; duplicates of an allowed key are dropped.
		kept.Set(key, vals[0])
	}

	out := u.Scheme + "://" + u.Host + u.EscapedPath()
	if len(kept) > 0 {
		out += "?" + encodeStable(kept)
	}
	return out, true
}

// parseAbsolute parses raw and requires an absolute http(s) URL.
func parseAbsolute(raw string) (*url.URL, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

// encodeStable encodes values with sorted keys. url.Values.Encode already
// sorts, but we keep the sort explicit since idempotence depends on it.
func encodeStable(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v.Get(k)))
	}
	return b.String()
}
