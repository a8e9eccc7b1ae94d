package meta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Send(t *testing.T) {
	t.Parallel()

	var gotPath, gotToken, gotContentType string
	var gotEnvelope Envelope

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("access_token")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotEnvelope); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Response{EventsReceived: 1, FBTraceID: "trace-1"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "v19.0")
	creds := Credentials{PixelID: "12345", AccessToken: "tok en+secret"}
	env := Envelope{
		Data: []Event{{
			EventName:    "ViewContent",
			EventTime:    1700000000,
			EventID:      "evt-1",
			ActionSource: ActionSourceWebsite,
			UserData:     UserData{ClientUserAgent: "test-agent"},
		}},
		TestEventCode: "TEST123",
	}

	resp, status, err := client.Send(context.Background(), creds, env)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if !resp.Received() {
		t.Error("Received() = false, want true")
	}
	if resp.FBTraceID != "trace-1" {
		t.Errorf("fbtrace_id = %q", resp.FBTraceID)
	}

	if gotPath != "/v19.0/12345/events" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "tok en+secret" {
		t.Errorf("access token mangled: %q", gotToken)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotEnvelope.TestEventCode != "TEST123" {
		t.Errorf("test_event_code = %q", gotEnvelope.TestEventCode)
	}
	if len(gotEnvelope.Data) != 1 || gotEnvelope.Data[0].EventName != "ViewContent" {
		t.Errorf("unexpected envelope data: %+v", gotEnvelope.Data)
	}
}

func TestClient_Send_ProviderError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(Response{
			Error: &APIError{Message: "Invalid parameter", Type: "OAuthException", Code: 100},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "v19.0")
	resp, status, err := client.Send(context.Background(), Credentials{PixelID: "1", AccessToken: "t"}, Envelope{})
	if err != nil {
		t.Fatalf("Send should decode error responses, got: %v", err)
	}
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if resp.Received() {
		t.Error("Received() = true for error response")
	}
	if resp.Error == nil || resp.Error.Code != 100 {
		t.Errorf("error object not decoded: %+v", resp.Error)
	}
}

func TestClient_Send_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "v19.0")
	_, status, err := client.Send(context.Background(), Credentials{PixelID: "1", AccessToken: "t"}, Envelope{})
	if err == nil {
		t.Fatal("expected error for malformed provider body")
	}
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200 alongside the decode error", status)
	}
}

func TestClient_Send_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, "v19.0")
	_, _, err := client.Send(context.Background(), Credentials{PixelID: "1", AccessToken: "t"}, Envelope{})
	if err == nil {
		t.Fatal("expected transport error")
	}
}

func TestResponse_Received(t *testing.T) {
	t.Parallel()

	if (&Response{EventsReceived: 0}).Received() {
		t.Error("zero events should not count as received")
	}
	if !(&Response{EventsReceived: 2}).Received() {
		t.Error("two events should count as received")
	}
	var nilResp *Response
	if nilResp.Received() {
		t.Error("nil response should not count as received")
	}
}
