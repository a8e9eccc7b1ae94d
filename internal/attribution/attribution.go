// Package attribution collects marketing-attribution fields from page
// context: the page URL's allow-listed query parameters, the referrer, and
// the provider's pixel cookies. The output is a flat string map safe to
// merge into a tracking payload.
package attribution

import (
	"net/http"
	"net/url"

	"github.com/pixelrelay/pixelrelay/internal/sanitize"
)

// Pixel cookie names set by the provider's browser script.
const (
	CookieFBP = "_fbp"
	CookieFBC = "_fbc"
)

// Fields is a flat mapping of attribution keys to values. Only allow-listed
// keys ever appear.
type Fields map[string]string

// Collect builds attribution fields from a page URL, referrer, and cookies.
// URL and referrer are sanitized down to attribution-preserving form;
// unparseable values are omitted rather than passed through. Click IDs and
// UTM parameters are lifted out of the page URL's query string; pixel
// cookies surface as "fbp" and "fbc".
func Collect(pageURL, referrer string, cookies []*http.Cookie) Fields {
	f := Fields{}

	if clean, ok := sanitize.KeepAttribution(pageURL); ok {
		f["url"] = clean
	}
	if clean, ok := sanitize.KeepAttribution(referrer); ok {
		f["referrer"] = clean
	}

	if u, err := url.Parse(pageURL); err == nil {
		q := u.Query()
		for _, key := range sanitize.AttributionParams {
			if v := q.Get(key); v != "" {
				f[key] = v
			}
		}
	}

	for _, c := range cookies {
		switch c.Name {
		case CookieFBP:
			if c.Value != "" {
				f["fbp"] = c.Value
			}
		case CookieFBC:
			if c.Value != "" {
				f["fbc"] = c.Value
			}
		}
	}

	return f
}

// FromRequest collects attribution fields from an inbound HTTP request,
// using the full request URL as page URL and the Referer header.
func FromRequest(r *http.Request) Fields {
	pageURL := r.URL.String()
	if r.URL.Host == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		pageURL = scheme + "://" + r.Host + r.URL.RequestURI()
	}
	return Collect(pageURL, r.Referer(), r.Cookies())
}
