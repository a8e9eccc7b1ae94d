package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pixelrelay/pixelrelay/internal/attribution"
	"github.com/pixelrelay/pixelrelay/internal/ident"
	"github.com/pixelrelay/pixelrelay/internal/metrics"
)

const (
	// DefaultRetryInterval is the delay between pixel readiness probes.
	DefaultRetryInterval = 200 * time.Millisecond
	// DefaultMaxAttempts bounds the readiness retry loop; after the budget
	// is exhausted the event is silently dropped on the pixel side.
	DefaultMaxAttempts = 10
	// relayTimeout bounds the background relay post.
	relayTimeout = 10 * time.Second

	// EventIDPrefix namespaces composer-minted event identifiers.
	EventIDPrefix = "evt"
)

// Dispatch status labels reported to metrics.
const (
	StatusSent    = "sent"
	StatusQueued  = "queued"
	StatusDropped = "dropped"
)

// Event is one logical user action to report.
type Event struct {
	Name        string
	ID          string // minted when empty; shared by pixel and relay for dedup
	Value       *float64
	Currency    string
	ContentIDs  []string
	ContentType string
	Source      string
	Attribution attribution.Fields
}

// LibraryProbe reports whether the real tracking library is callable yet.
// It models the lazy, asynchronous load of the provider script.
type LibraryProbe func() (Tracker, bool)

// Composer fans one event out to the client pixel and the server relay.
// Both paths are fire-and-forget: Dispatch never blocks the user-visible
// action, and a failure on either path is absorbed silently.
type Composer struct {
	probe         LibraryProbe
	relayURL      string
	httpClient    *http.Client
	logger        *slog.Logger
	metrics       metrics.Recorder
	retryInterval time.Duration
	maxAttempts   int

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool

	relayWG sync.WaitGroup
}

// NewComposer creates a Composer. relayURL may be empty to disable the
// relay path (pixel-only operation). A nil recorder falls back to noop.
func NewComposer(probe LibraryProbe, relayURL string, logger *slog.Logger, recorder metrics.Recorder) *Composer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Composer{
		probe:    probe,
		relayURL: relayURL,
		// Keep-alives let an in-flight post complete even when the caller
		// immediately moves on, mirroring the browser transport's
		// keep-alive-on-navigation behavior.
		httpClient:    &http.Client{Timeout: relayTimeout},
		logger:        logger.With("component", "pixel.composer"),
		metrics:       recorder,
		retryInterval: DefaultRetryInterval,
		maxAttempts:   DefaultMaxAttempts,
		timers:        make(map[*time.Timer]struct{}),
	}
}

// SetRetryPolicy overrides the pixel readiness retry interval and budget.
func (c *Composer) SetRetryPolicy(interval time.Duration, maxAttempts int) {
	if interval > 0 {
		c.retryInterval = interval
	}
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
}

// Dispatch reports one event. It returns the event id in use (minted if the
// event carried none) and never blocks on network or library readiness.
func (c *Composer) Dispatch(ev Event) string {
	if ev.ID == "" {
		ev.ID = ident.NewEventID(EventIDPrefix)
	}

	c.dispatchPixel(ev, 0)
	c.dispatchRelay(ev)

	return ev.ID
}

// Close cancels pending pixel retries and waits briefly for in-flight relay
// posts. Safe to call more than once.
func (c *Composer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
	c.mu.Unlock()

	c.relayWG.Wait()
}

// dispatchPixel tracks the event on the pixel, retrying on a fixed interval
// while the library loads. Exhausting the budget gives up silently; the
// pixel is a best-effort signal and the relay path is independent.
func (c *Composer) dispatchPixel(ev Event, attempt int) {
	if tracker, ready := c.probe(); ready {
		tracker.Track(ev.Name, c.pixelParams(ev))
		c.metrics.IncPixelDispatch(StatusSent)
		return
	}

	if attempt+1 >= c.maxAttempts {
		c.metrics.IncPixelDispatch(StatusDropped)
		c.logger.Debug("pixel never became ready, dropping event",
			"event_name", ev.Name,
			"attempts", attempt+1,
		)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.retryInterval, func() {
		c.mu.Lock()
		delete(c.timers, timer)
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.dispatchPixel(ev, attempt+1)
	})
	c.timers[timer] = struct{}{}
	c.metrics.IncPixelDispatch(StatusQueued)
	c.mu.Unlock()
}

// dispatchRelay posts the event to the server relay in the background. The
// post uses its own context so it is not cancelled by the caller moving on.
func (c *Composer) dispatchRelay(ev Event) {
	if c.relayURL == "" {
		return
	}

	body, err := json.Marshal(c.relayPayload(ev))
	if err != nil {
		c.logger.Warn("encode relay payload", "error", err)
		return
	}

	c.relayWG.Add(1)
	go func() {
		defer c.relayWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(body))
		if err != nil {
			c.logger.Warn("create relay request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("relay post failed", "event_name", ev.Name, "error", err)
			return
		}
		resp.Body.Close()
	}()
}

// pixelParams builds the provider-script parameter map.
func (c *Composer) pixelParams(ev Event) map[string]any {
	params := map[string]any{"eventID": ev.ID}
	if ev.Value != nil {
		params["value"] = *ev.Value
	}
	if ev.Currency != "" {
		params["currency"] = ev.Currency
	}
	if len(ev.ContentIDs) > 0 {
		params["content_ids"] = ev.ContentIDs
	}
	if ev.ContentType != "" {
		params["content_type"] = ev.ContentType
	}
	return params
}

// relayPayload builds the tracking-request body for the server relay.
func (c *Composer) relayPayload(ev Event) map[string]any {
	payload := map[string]any{
		"event_name": ev.Name,
		"event_id":   ev.ID,
		"client_ts":  time.Now().UnixMilli(),
	}
	if ev.Value != nil {
		payload["value"] = *ev.Value
	}
	if ev.Currency != "" {
		payload["currency"] = ev.Currency
	}
	if len(ev.ContentIDs) > 0 {
		payload["content_ids"] = ev.ContentIDs
	}
	if ev.ContentType != "" {
		payload["content_type"] = ev.ContentType
	}
	if ev.Source != "" {
		payload["source"] = ev.Source
	}
	if len(ev.Attribution) > 0 {
		payload["meta"] = ev.Attribution
	}
	return payload
}
