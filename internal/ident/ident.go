// Package ident derives request context (client IP, country hint) from proxy
// and CDN headers, and mints opaque event identifiers for provider-side
// deduplication.
package ident

import (
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IP headers in priority order. The first entry of X-Forwarded-For is the
// original client on well-behaved proxy chains.
const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
	headerCFConnecting = "CF-Connecting-IP"
)

// Geo headers set by CDN/edge platforms.
const (
	headerCFCountry     = "CF-IPCountry"
	headerVercelCountry = "X-Vercel-IP-Country"
	headerGeoCountry    = "X-Country-Code"
)

// knownCountries is the allow-list of geo header values we recognize.
// Arbitrary header content must never pass through as a country code.
var knownCountries = map[string]bool{
	"CL": true, "AR": true, "UY": true, "PE": true, "BO": true,
	"CO": true, "MX": true, "BR": true, "ES": true, "US": true,
}

// ClientIP extracts the client IP from proxy headers, in priority order.
// Returns ok=false when no header yields a valid address; an IP is never
// fabricated from RemoteAddr, since the relay only forwards addresses it can
// attribute to the original client.
func ClientIP(h http.Header) (string, bool) {
	if xff := h.Get(headerForwardedFor); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := parseIP(first); ip != "" {
			return ip, true
		}
	}
	if ip := parseIP(h.Get(headerRealIP)); ip != "" {
		return ip, true
	}
	if ip := parseIP(h.Get(headerCFConnecting)); ip != "" {
		return ip, true
	}
	return "", false
}

// CountryHint extracts a two-letter country code from CDN geo headers,
// constrained to the recognized allow-list. Unknown values yield absent.
func CountryHint(h http.Header) (string, bool) {
	for _, name := range []string{headerCFCountry, headerVercelCountry, headerGeoCountry} {
		code := strings.ToUpper(strings.TrimSpace(h.Get(name)))
		if knownCountries[code] {
			return code, true
		}
	}
	return "", false
}

// entropy for ULID suffixes. ULID requires a monotonic-safe source per
// process; math/rand seeded once is enough for dedup identifiers.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewEventID mints an opaque identifier of the form
// "<prefix>-<unix-ms>-<suffix>". The ULID suffix makes collisions negligible
// at this service's volume while keeping IDs sortable in the provider's test
// console.
func NewEventID(prefix string) string {
	now := time.Now()

	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()

	suffix := strings.ToLower(id.String())
	// The time half of the ULID duplicates the explicit timestamp segment;
	// keep only the 16 random characters.
	suffix = suffix[len(suffix)-16:]

	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// Headers sometimes carry host:port.
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	if net.ParseIP(s) == nil {
		return ""
	}
	return s
}
