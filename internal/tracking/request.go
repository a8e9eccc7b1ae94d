// Package tracking implements the server-side conversion relay: it parses a
// loosely-typed tracking request, normalizes it into a provider event, makes
// exactly one outbound call, and maps the outcome to a caller-safe envelope.
package tracking

import (
	"encoding/json"
)

// metaAllowList restricts which attribution keys survive parsing. Anything
// else in the body's meta object is discarded to prevent arbitrary field
// leakage toward the provider.
var metaAllowList = map[string]bool{
	"url":          true,
	"referrer":     true,
	"fbc":          true,
	"fbp":          true,
	"fbclid":       true,
	"gclid":        true,
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
}

// Request is the typed form of an inbound tracking payload. All fields are
// optional; absent means the JSON field was missing or of the wrong type.
type Request struct {
	EventName   string
	EventID     string
	Value       *float64
	Currency    string
	ContentIDs  []string
	ContentType string
	Source      string
	Meta        map[string]string
	ClientTS    *float64 // epoch milliseconds

	// Raw PII, only honored under the attribution profile. Hashed before
	// any transmission, never echoed.
	Email      string
	Phone      string
	ExternalID string

	// TestEventCode is a body-supplied test console routing code.
	TestEventCode string
}

// ParseRequest decodes raw JSON into a Request with strict per-field type
// checks: a field of an unexpected type is dropped, never coerced and never
// a reason to reject the whole payload. Undecodable bodies yield an empty
// Request, preserving the permissive intake behavior of the browser path.
func ParseRequest(raw []byte) Request {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return Request{}
	}

	req := Request{
		EventName:     stringOr(body["event_name"]),
		EventID:       stringOr(body["event_id"]),
		Value:         numberOr(body["value"]),
		Currency:      stringOr(body["currency"]),
		ContentIDs:    stringSliceOr(body["content_ids"]),
		ContentType:   stringOr(body["content_type"]),
		Source:        stringOr(body["source"]),
		ClientTS:      numberOr(body["client_ts"]),
		Email:         stringOr(body["email"]),
		Phone:         stringOr(body["phone"]),
		ExternalID:    stringOr(body["external_id"]),
		TestEventCode: stringOr(body["test_event_code"]),
	}

	if rawMeta, ok := body["meta"].(map[string]any); ok {
		meta := make(map[string]string, len(rawMeta))
		for k, v := range rawMeta {
			s, isString := v.(string)
			if !isString || !metaAllowList[k] || s == "" {
				continue
			}
			meta[k] = s
		}
		if len(meta) > 0 {
			req.Meta = meta
		}
	}

	return req
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func numberOr(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func stringSliceOr(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, isString := item.(string)
		if !isString {
			// One bad element invalidates the whole slice; a partially
			// coerced list would misreport content ids.
			return nil
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
