package pixel

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixelrelay/pixelrelay/internal/attribution"
	"github.com/pixelrelay/pixelrelay/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readyProbe(t Tracker) LibraryProbe {
	return func() (Tracker, bool) { return t, true }
}

func neverReady() LibraryProbe {
	return func() (Tracker, bool) { return nil, false }
}

func TestComposer_PixelReadyImmediately(t *testing.T) {
	t.Parallel()

	tracker := &recordingTracker{}
	c := NewComposer(readyProbe(tracker), "", testLogger(), metrics.NewInMemory())
	defer c.Close()

	v := 10.0
	id := c.Dispatch(Event{Name: "Contact", Value: &v, Currency: "CLP"})

	calls := tracker.snapshot()
	if len(calls) != 1 {
		t.Fatalf("got %d pixel calls, want 1", len(calls))
	}
	if calls[0].name != "Contact" {
		t.Errorf("event name = %q", calls[0].name)
	}
	if calls[0].params["eventID"] != id {
		t.Errorf("pixel eventID = %v, want %q", calls[0].params["eventID"], id)
	}
	if calls[0].params["value"] != 10.0 || calls[0].params["currency"] != "CLP" {
		t.Errorf("params = %v", calls[0].params)
	}
}

var mintedIDPattern = regexp.MustCompile(`^evt-\d+-[0-9a-z]+$`)

func TestComposer_MintsEventIDWhenAbsent(t *testing.T) {
	t.Parallel()

	c := NewComposer(readyProbe(&recordingTracker{}), "", testLogger(), nil)
	defer c.Close()

	id := c.Dispatch(Event{Name: "ViewContent"})
	if !mintedIDPattern.MatchString(id) {
		t.Errorf("minted id = %q, want evt-timestamp-suffix form", id)
	}

	kept := c.Dispatch(Event{Name: "ViewContent", ID: "browser-id-1"})
	if kept != "browser-id-1" {
		t.Errorf("caller-supplied id replaced: %q", kept)
	}
}

func TestComposer_RetriesUntilLibraryLoads(t *testing.T) {
	t.Parallel()

	tracker := &recordingTracker{}
	var ready atomic.Bool
	probe := func() (Tracker, bool) {
		if ready.Load() {
			return tracker, true
		}
		return nil, false
	}

	c := NewComposer(probe, "", testLogger(), metrics.NewInMemory())
	c.SetRetryPolicy(5*time.Millisecond, 50)
	defer c.Close()

	c.Dispatch(Event{Name: "Contact"})

	if len(tracker.snapshot()) != 0 {
		t.Fatal("tracked before library became ready")
	}

	// Library "loads" during the retry window.
	time.Sleep(15 * time.Millisecond)
	ready.Store(true)

	deadline := time.After(2 * time.Second)
	for len(tracker.snapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("event never reached the tracker after library load")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := tracker.snapshot(); got[0].name != "Contact" {
		t.Errorf("tracked event = %q", got[0].name)
	}
}

func TestComposer_GivesUpAfterAttemptBudget(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	c := NewComposer(neverReady(), "", testLogger(), rec)
	c.SetRetryPolicy(time.Millisecond, 3)
	defer c.Close()

	c.Dispatch(Event{Name: "ViewContent"})

	deadline := time.After(2 * time.Second)
	for rec.Snapshot().PixelDispatches[StatusDropped] == 0 {
		select {
		case <-deadline:
			t.Fatal("composer never gave up")
		case <-time.After(2 * time.Millisecond):
		}
	}

	snap := rec.Snapshot()
	if snap.PixelDispatches[StatusSent] != 0 {
		t.Error("nothing should have been sent")
	}
	if snap.PixelDispatches[StatusQueued] != 2 {
		t.Errorf("queued = %d, want 2 (budget 3 = 1 probe + 2 timers)", snap.PixelDispatches[StatusQueued])
	}
}

func TestComposer_CloseCancelsPendingRetries(t *testing.T) {
	t.Parallel()

	var probes atomic.Int32
	probe := func() (Tracker, bool) {
		probes.Add(1)
		return nil, false
	}

	c := NewComposer(probe, "", testLogger(), nil)
	c.SetRetryPolicy(10*time.Millisecond, 100)

	c.Dispatch(Event{Name: "ViewContent"})
	c.Close()

	settled := probes.Load()
	time.Sleep(50 * time.Millisecond)
	if probes.Load() != settled {
		t.Errorf("probes continued after Close: %d -> %d", settled, probes.Load())
	}

	// Idempotent.
	c.Close()
}

func TestComposer_RelayPostCarriesEventShape(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode relay body: %v", err)
		}
		mu.Lock()
		got = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewComposer(readyProbe(&recordingTracker{}), srv.URL, testLogger(), nil)

	v := 25000.0
	id := c.Dispatch(Event{
		Name:        "Contact",
		Value:       &v,
		Currency:    "CLP",
		ContentIDs:  []string{"svc-1"},
		ContentType: "service",
		Source:      "sticky-cta",
		Attribution: attribution.Fields{"utm_source": "ig", "fbp": "fb.1.1.2"},
	})

	c.Close() // waits for the in-flight post

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("relay never received the post")
	}
	if got["event_name"] != "Contact" || got["event_id"] != id {
		t.Errorf("relay payload = %v", got)
	}
	if got["value"] != 25000.0 || got["currency"] != "CLP" || got["source"] != "sticky-cta" {
		t.Errorf("relay payload commerce fields = %v", got)
	}
	meta, _ := got["meta"].(map[string]any)
	if meta["utm_source"] != "ig" || meta["fbp"] != "fb.1.1.2" {
		t.Errorf("relay payload meta = %v", meta)
	}
	if _, present := got["client_ts"]; !present {
		t.Error("client_ts missing from relay payload")
	}
}

func TestComposer_RelayFailureDoesNotBlockDispatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // posts will fail with connection refused

	tracker := &recordingTracker{}
	c := NewComposer(readyProbe(tracker), srv.URL, testLogger(), nil)

	done := make(chan struct{})
	go func() {
		c.Dispatch(Event{Name: "ViewContent"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a failing relay")
	}

	c.Close()
	if len(tracker.snapshot()) != 1 {
		t.Error("pixel path should still fire when the relay is down")
	}
}
