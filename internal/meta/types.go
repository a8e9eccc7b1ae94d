// Package meta implements the outbound client for the Meta Conversions API
// (Graph API server events endpoint). It owns the wire shapes for the event
// envelope and the provider's response; payload policy (what gets attached)
// lives in the tracking package.
package meta

// ActionSourceWebsite is the only action source this relay emits.
const ActionSourceWebsite = "website"

// UserData carries customer-information parameters. PII fields (Emails,
// Phones, ExternalIDs) must already be SHA-256 hashed by the caller; this
// package never hashes or inspects them.
type UserData struct {
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	ClientIPAddress string   `json:"client_ip_address,omitempty"`
	Emails          []string `json:"em,omitempty"`
	Phones          []string `json:"ph,omitempty"`
	ExternalIDs     []string `json:"external_id,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
}

// CustomData carries the commerce parameters of an event.
type CustomData struct {
	Currency    string   `json:"currency,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	ContentIDs  []string `json:"content_ids,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
}

// Event is one server event in provider wire shape.
type Event struct {
	EventName      string      `json:"event_name"`
	EventTime      int64       `json:"event_time"`
	EventID        string      `json:"event_id,omitempty"`
	ActionSource   string      `json:"action_source"`
	EventSourceURL string      `json:"event_source_url,omitempty"`
	UserData       UserData    `json:"user_data"`
	CustomData     *CustomData `json:"custom_data,omitempty"`
}

// Envelope is the exact body POSTed to the events endpoint. TestEventCode
// routes the batch to the provider's test console instead of live reporting.
type Envelope struct {
	Data          []Event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

// APIError is the provider's error object.
type APIError struct {
	Message   string `json:"message,omitempty"`
	Type      string `json:"type,omitempty"`
	Code      int    `json:"code,omitempty"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// Response is the provider's reply to an envelope POST.
type Response struct {
	EventsReceived int       `json:"events_received,omitempty"`
	FBTraceID      string    `json:"fbtrace_id,omitempty"`
	Error          *APIError `json:"error,omitempty"`
}

// Received reports whether the provider acknowledged at least one event.
func (r *Response) Received() bool {
	return r != nil && r.EventsReceived >= 1
}
