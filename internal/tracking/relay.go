package tracking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pixelrelay/pixelrelay/internal/config"
	"github.com/pixelrelay/pixelrelay/internal/ident"
	"github.com/pixelrelay/pixelrelay/internal/meta"
	"github.com/pixelrelay/pixelrelay/internal/metrics"
	"github.com/pixelrelay/pixelrelay/internal/privacy"
	"github.com/pixelrelay/pixelrelay/internal/sanitize"
)

// ServerIDSuffix distinguishes a deliberately server-originated event from
// the browser pixel's event in the provider's test console. Using a
// different id opts out of dedup for that event.
const ServerIDSuffix = "-srv"

// ErrNotConfigured indicates missing provider credentials. The relay fails
// fast and never calls the provider in this state.
var ErrNotConfigured = errors.New("tracking: provider credentials not configured")

// Sender delivers one envelope to the provider. meta.Client implements it;
// tests substitute a fake.
type Sender interface {
	Send(ctx context.Context, creds meta.Credentials, env meta.Envelope) (*meta.Response, int, error)
}

// Input carries everything the relay needs from one HTTP request.
type Input struct {
	Body      []byte
	Header    http.Header
	UserAgent string

	// DefaultEvent is the event name used when the body supplies none;
	// each endpoint has its own (ViewContent for page views, Contact for
	// checkout-intent clicks).
	DefaultEvent string

	// TestToggle is the raw "test" query parameter ("1", "0", or empty).
	TestToggle string

	// ServerDistinct is set when the caller asked for a server-suffixed
	// event id via the "srv" query flag.
	ServerDistinct bool
}

// SentEcho is the safe subset of the delivered event echoed back to the
// caller. It never carries IP, user agent, or raw PII.
type SentEcho struct {
	EventName string            `json:"event_name"`
	EventID   string            `json:"event_id,omitempty"`
	EventTime int64             `json:"event_time"`
	Source    string            `json:"source,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Result is the relay's normalized outcome envelope.
type Result struct {
	OK       bool           `json:"ok"`
	Provider *meta.Response `json:"fb,omitempty"`
	Sent     *SentEcho      `json:"sent,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Relay forwards tracking events to the Conversions API. It is stateless;
// every invocation is pure given its input, the clock, and configuration.
type Relay struct {
	cfg     *config.Config
	sender  Sender
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewRelay creates a Relay. A nil recorder falls back to noop metrics.
func NewRelay(cfg *config.Config, sender Sender, logger *slog.Logger, recorder metrics.Recorder) *Relay {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Relay{
		cfg:     cfg,
		sender:  sender,
		logger:  logger.With("component", "tracking.relay"),
		metrics: recorder,
		now:     time.Now,
	}
}

// Process runs the single-pass relay pipeline and returns the result plus
// the HTTP status to answer with. ErrNotConfigured is the only error
// returned; anything else is folded into a non-OK result.
func (rl *Relay) Process(ctx context.Context, in Input) (*Result, int, error) {
	rl.metrics.IncRelayRequest(in.DefaultEvent)

	if !rl.cfg.HasCredentials() {
		rl.metrics.IncRelayOutcome(metrics.OutcomeConfig)
		return nil, http.StatusInternalServerError, ErrNotConfigured
	}

	req := ParseRequest(in.Body)
	event, echo := rl.assemble(req, in)

	env := meta.Envelope{
		Data:          []meta.Event{event},
		TestEventCode: ResolveTestCode(in.TestToggle, req.TestEventCode, rl.cfg.TestEventCode, rl.cfg.TestEventsEnabled),
	}
	creds := meta.Credentials{PixelID: rl.cfg.PixelID(), AccessToken: rl.cfg.AccessToken()}

	start := rl.now()
	resp, status, err := rl.sender.Send(ctx, creds, env)
	rl.metrics.ObserveProviderDuration(time.Since(start))

	if err != nil {
		rl.metrics.IncRelayOutcome(metrics.OutcomeTransport)
		rl.logger.Warn("provider call failed",
			"event_name", event.EventName,
			"error", err,
		)
		return &Result{OK: false, Sent: echo, Error: "provider unreachable"}, http.StatusBadGateway, nil
	}

	ok := status >= 200 && status < 300 && resp.Received()
	if !ok {
		rl.metrics.IncRelayOutcome(metrics.OutcomeRejected)
		rl.logger.Warn("provider rejected event",
			"event_name", event.EventName,
			"http_status", status,
			"events_received", resp.EventsReceived,
		)
		return &Result{OK: false, Provider: resp, Sent: echo}, http.StatusBadGateway, nil
	}

	rl.metrics.IncRelayOutcome(metrics.OutcomeDelivered)
	rl.logger.Info("event relayed",
		"event_name", event.EventName,
		"event_id", event.EventID,
		"test_mode", env.TestEventCode != "",
		"fbtrace_id", resp.FBTraceID,
	)
	return &Result{OK: true, Provider: resp, Sent: echo}, http.StatusOK, nil
}

// assemble builds the provider event and its caller-safe echo from the
// parsed request, applying the deployment's privacy profile.
func (rl *Relay) assemble(req Request, in Input) (meta.Event, *SentEcho) {
	attribution := rl.cfg.PrivacyProfile == config.ProfileAttribution

	eventName := req.EventName
	if eventName == "" {
		eventName = in.DefaultEvent
	}

	eventTime := rl.now().UnixMilli()
	if req.ClientTS != nil {
		eventTime = int64(*req.ClientTS)
	}
	eventTime /= 1000 // unix seconds

	eventID := req.EventID
	if in.ServerDistinct && eventID != "" {
		eventID += ServerIDSuffix
	}

	userData := meta.UserData{
		ClientUserAgent: in.UserAgent,
		FBC:             req.Meta["fbc"],
		FBP:             req.Meta["fbp"],
	}

	if attribution {
		if ip, ok := ident.ClientIP(in.Header); ok {
			userData.ClientIPAddress = ip
		}
		country, _ := ident.CountryHint(in.Header)
		if req.Email != "" {
			userData.Emails = []string{privacy.Hash(req.Email)}
		}
		if req.Phone != "" {
			userData.Phones = []string{privacy.HashPhone(req.Phone, country)}
		}
		if req.ExternalID != "" {
			userData.ExternalIDs = []string{privacy.Hash(req.ExternalID)}
		}
	}

	var customData *meta.CustomData
	if req.Currency != "" || req.Value != nil || len(req.ContentIDs) > 0 || req.ContentType != "" {
		customData = &meta.CustomData{
			Currency:    req.Currency,
			Value:       req.Value,
			ContentIDs:  req.ContentIDs,
			ContentType: req.ContentType,
		}
	}

	sourceURL, srcOK := rl.sanitizeURL(req.Meta["url"])

	event := meta.Event{
		EventName:    eventName,
		EventTime:    eventTime,
		EventID:      eventID,
		ActionSource: meta.ActionSourceWebsite,
		UserData:     userData,
		CustomData:   customData,
	}
	if srcOK {
		event.EventSourceURL = sourceURL
	}

	echo := &SentEcho{
		EventName: eventName,
		EventID:   eventID,
		EventTime: eventTime,
		Source:    req.Source,
		Meta:      map[string]string{},
	}
	if srcOK {
		echo.Meta["url"] = sourceURL
	}
	if ref, ok := rl.sanitizeURL(req.Meta["referrer"]); ok {
		echo.Meta["referrer"] = ref
	}
	if v := req.Meta["fbc"]; v != "" {
		echo.Meta["fbc"] = v
	}
	if v := req.Meta["fbp"]; v != "" {
		echo.Meta["fbp"] = v
	}
	if len(echo.Meta) == 0 {
		echo.Meta = nil
	}

	return event, echo
}

// sanitizeURL applies the profile's URL policy: strict deployments reduce to
// origin+path, attribution deployments keep allow-listed query parameters.
func (rl *Relay) sanitizeURL(raw string) (string, bool) {
	if rl.cfg.PrivacyProfile == config.ProfileAttribution {
		return sanitize.KeepAttribution(raw)
	}
	return sanitize.StripTracking(raw)
}
