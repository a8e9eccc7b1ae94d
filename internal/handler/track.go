package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pixelrelay/pixelrelay/internal/tracking"
)

// Default event names per endpoint. The page-view endpoint and the
// contact-intent endpoint share one relay pipeline and differ only in the
// event name used when the body supplies none.
const (
	EventViewContent = "ViewContent"
	EventContact     = "Contact"
)

// Query parameters recognized by the tracking endpoints.
const (
	// queryTest forces test-event routing on ("1") or off ("0").
	queryTest = "test"
	// queryServerDistinct asks for a server-suffixed event id so the
	// server event shows up separately in the provider's test console.
	queryServerDistinct = "srv"
)

// TrackHandler handles tracking relay requests.
type TrackHandler struct {
	relay       *tracking.Relay
	logger      *slog.Logger
	maxBodySize int64
}

// NewTrackHandler creates a new TrackHandler.
func NewTrackHandler(relay *tracking.Relay, logger *slog.Logger, maxBodySize int64) *TrackHandler {
	return &TrackHandler{
		relay:       relay,
		logger:      logger.With("component", "handler.track"),
		maxBodySize: maxBodySize,
	}
}

// TrackPageView handles POST /api/meta/track.
func (h *TrackHandler) TrackPageView(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, EventViewContent)
}

// TrackContact handles POST /api/meta/track/contact.
func (h *TrackHandler) TrackContact(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, EventContact)
}

func (h *TrackHandler) handle(w http.ResponseWriter, r *http.Request, defaultEvent string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		// Oversized or interrupted body; treat as empty rather than
		// rejecting, matching the permissive intake contract.
		body = nil
	}

	in := tracking.Input{
		Body:           body,
		Header:         r.Header,
		UserAgent:      r.UserAgent(),
		DefaultEvent:   defaultEvent,
		TestToggle:     r.URL.Query().Get(queryTest),
		ServerDistinct: r.URL.Query().Get(queryServerDistinct) == "1",
	}

	result, status, err := h.relay.Process(r.Context(), in)
	if err != nil {
		if errors.Is(err, tracking.ErrNotConfigured) {
			h.logger.Error("relay not configured", "endpoint", defaultEvent)
			writeJSON(w, http.StatusInternalServerError, tracking.Result{
				OK:    false,
				Error: "tracking is not configured",
			})
			return
		}

		h.logger.Error("relay failed", "endpoint", defaultEvent, "error", err)
		writeJSON(w, http.StatusInternalServerError, tracking.Result{
			OK:    false,
			Error: "internal error",
		})
		return
	}

	writeJSON(w, status, result)
}
