package tracking

import (
	"testing"
)

func TestParseRequest_TypicalBody(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"event_name": "Contact",
		"event_id": "evt-1700000000000-abc",
		"value": 25000,
		"currency": "CLP",
		"content_ids": ["svc-1", "svc-2"],
		"content_type": "service",
		"source": "sticky-cta",
		"client_ts": 1700000000123,
		"meta": {
			"url": "https://example.com/?utm_source=ig",
			"referrer": "https://instagram.com/",
			"fbp": "fb.1.1.2",
			"fbc": "fb.1.1.click",
			"utm_source": "ig"
		}
	}`)

	req := ParseRequest(raw)

	if req.EventName != "Contact" {
		t.Errorf("EventName = %q", req.EventName)
	}
	if req.EventID != "evt-1700000000000-abc" {
		t.Errorf("EventID = %q", req.EventID)
	}
	if req.Value == nil || *req.Value != 25000 {
		t.Errorf("Value = %v", req.Value)
	}
	if req.Currency != "CLP" {
		t.Errorf("Currency = %q", req.Currency)
	}
	if len(req.ContentIDs) != 2 || req.ContentIDs[0] != "svc-1" {
		t.Errorf("ContentIDs = %v", req.ContentIDs)
	}
	if req.ClientTS == nil || *req.ClientTS != 1700000000123 {
		t.Errorf("ClientTS = %v", req.ClientTS)
	}
	if req.Meta["utm_source"] != "ig" || req.Meta["fbp"] != "fb.1.1.2" {
		t.Errorf("Meta = %v", req.Meta)
	}
}

func TestParseRequest_WrongTypesDroppedNotCoerced(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"event_name": 42,
		"event_id": true,
		"value": "25000",
		"currency": 1,
		"content_ids": ["ok", 7],
		"content_type": {},
		"source": [],
		"client_ts": "1700000000123",
		"meta": "not-an-object"
	}`)

	req := ParseRequest(raw)

	if req.EventName != "" {
		t.Errorf("numeric event_name should drop, got %q", req.EventName)
	}
	if req.EventID != "" {
		t.Errorf("boolean event_id should drop, got %q", req.EventID)
	}
	if req.Value != nil {
		t.Errorf("string value should drop, got %v", *req.Value)
	}
	if req.Currency != "" || req.ContentType != "" || req.Source != "" {
		t.Error("wrong-typed string fields should drop")
	}
	if req.ContentIDs != nil {
		t.Errorf("mixed-type content_ids should drop entirely, got %v", req.ContentIDs)
	}
	if req.ClientTS != nil {
		t.Errorf("string client_ts should drop, got %v", *req.ClientTS)
	}
	if req.Meta != nil {
		t.Errorf("non-object meta should drop, got %v", req.Meta)
	}
}

func TestParseRequest_MetaAllowList(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"meta": {
			"url": "https://example.com/",
			"utm_campaign": "promo",
			"gclid": "g1",
			"session_token": "secret",
			"email": "jane@example.com",
			"nested": {"x": 1},
			"count": 3
		}
	}`)

	req := ParseRequest(raw)

	if req.Meta["url"] != "https://example.com/" || req.Meta["utm_campaign"] != "promo" || req.Meta["gclid"] != "g1" {
		t.Errorf("allowed keys missing: %v", req.Meta)
	}
	for _, forbidden := range []string{"session_token", "email", "nested", "count"} {
		if _, ok := req.Meta[forbidden]; ok {
			t.Errorf("key %q should not survive the allow-list", forbidden)
		}
	}
}

func TestParseRequest_Undecodable(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]byte{nil, {}, []byte("not json"), []byte(`[1,2,3]`), []byte(`"string"`)} {
		req := ParseRequest(raw)
		if req.EventName != "" || req.EventID != "" || req.Value != nil ||
			req.ContentIDs != nil || req.Meta != nil || req.ClientTS != nil {
			t.Errorf("undecodable body %q should yield empty request, got %+v", raw, req)
		}
	}
}

func TestParseRequest_PIIFields(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"email": "Jane@Example.com", "phone": "912345678", "external_id": "u-1", "test_event_code": "TEST99"}`)
	req := ParseRequest(raw)

	if req.Email != "Jane@Example.com" || req.Phone != "912345678" || req.ExternalID != "u-1" {
		t.Errorf("PII fields not captured: %+v", req)
	}
	if req.TestEventCode != "TEST99" {
		t.Errorf("TestEventCode = %q", req.TestEventCode)
	}
}
