package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// ClientTimeout is the total request timeout for a provider call.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second

	// maxResponseBytes bounds how much of the provider response we read.
	maxResponseBytes = 64 * 1024

	// DefaultBaseURL is the Graph API host.
	DefaultBaseURL = "https://graph.facebook.com"
	// DefaultVersion is the Graph API version used when none is configured.
	DefaultVersion = "v19.0"
)

// Credentials identify the pixel/dataset the envelope is delivered to.
type Credentials struct {
	PixelID     string
	AccessToken string
}

// Client posts event envelopes to the Conversions API. One call per
// envelope, no retries; losing a tracking event is non-critical and the
// browser pixel covers the common path anyway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
}

// NewClient creates a Conversions API client. Empty baseURL or version fall
// back to the Graph API defaults; baseURL is overridable for tests.
func NewClient(baseURL, version string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	return &Client{
		httpClient: newHTTPClient(),
		baseURL:    baseURL,
		version:    version,
	}
}

// newHTTPClient builds the HTTP client for provider calls. Timeouts are
// explicit and redirects are not followed.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Send delivers one envelope to the events endpoint for the given
// credentials. It returns the decoded provider response and the HTTP status
// code. A transport failure or an undecodable response body returns an
// error; a decoded response is returned even for non-2xx statuses so the
// caller can surface the provider's error object.
func (c *Client) Send(ctx context.Context, creds Credentials, env Envelope) (*Response, int, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, 0, fmt.Errorf("encode envelope: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		c.baseURL, c.version, url.PathEscape(creds.PixelID), url.QueryEscape(creds.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pixelrelay/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read provider response: %w", err)
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode provider response: %w", err)
	}

	return &decoded, resp.StatusCode, nil
}
