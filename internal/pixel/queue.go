// Package pixel models the client-side event composer: the provider's
// lazily-loaded tracking library, a queueing stub that buffers calls until
// the library is ready, and a composer that dispatches each logical action
// to both the pixel and the server relay without blocking the caller.
package pixel

import (
	"sync"

	"github.com/pixelrelay/pixelrelay/internal/metrics"
)

// Tracker is the well-known client-side tracking surface. Implementations
// must tolerate Track being called before Init.
type Tracker interface {
	Init(pixelID string)
	Track(eventName string, params map[string]any)
	TrackCustom(eventName string, params map[string]any)
}

// DefaultMaxPending bounds the stub's queue. Overflow drops the oldest
// call; tracking is best-effort, not guaranteed delivery.
const DefaultMaxPending = 64

type callKind int

const (
	kindInit callKind = iota
	kindTrack
	kindTrackCustom
)

type queuedCall struct {
	kind   callKind
	name   string
	params map[string]any
}

// Queue is a Tracker stub with two states, unloaded and loaded. While
// unloaded it buffers calls in order; Attach transitions it to loaded and
// flushes the buffer exactly once. A Track before any Init auto-queues an
// init so the flushed sequence is always valid for the real library.
type Queue struct {
	mu         sync.Mutex
	target     Tracker // nil while unloaded
	pending    []queuedCall
	maxPending int
	sawInit    bool
	pixelID    string
	metrics    metrics.Recorder
}

// NewQueue creates an unloaded Queue. maxPending <= 0 uses DefaultMaxPending;
// a nil recorder falls back to noop.
func NewQueue(maxPending int, recorder metrics.Recorder) *Queue {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Queue{maxPending: maxPending, metrics: recorder}
}

// Init records or forwards library initialization.
func (q *Queue) Init(pixelID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.sawInit = true
	q.pixelID = pixelID

	if q.target != nil {
		q.target.Init(pixelID)
		return
	}
	q.enqueue(queuedCall{kind: kindInit, name: pixelID})
}

// Track records or forwards a standard event.
func (q *Queue) Track(eventName string, params map[string]any) {
	q.add(kindTrack, eventName, params)
}

// TrackCustom records or forwards a custom event.
func (q *Queue) TrackCustom(eventName string, params map[string]any) {
	q.add(kindTrackCustom, eventName, params)
}

func (q *Queue) add(kind callKind, eventName string, params map[string]any) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.target != nil {
		q.forward(q.target, queuedCall{kind: kind, name: eventName, params: params})
		return
	}

	if !q.sawInit {
		// Track before init: auto-queue the init so the real library sees
		// a well-formed call sequence.
		q.sawInit = true
		q.enqueue(queuedCall{kind: kindInit, name: q.pixelID})
	}
	q.enqueue(queuedCall{kind: kind, name: eventName, params: params})
}

// Attach transitions the queue to loaded, flushing buffered calls to the
// real tracker in order. Flushing happens once; later calls forward
// directly. Attaching twice replaces the target without replaying.
func (q *Queue) Attach(t Tracker) {
	q.mu.Lock()
	defer q.mu.Unlock()

	flush := q.target == nil
	q.target = t

	if !flush {
		return
	}
	for _, c := range q.pending {
		q.forward(t, c)
	}
	q.pending = nil
	q.metrics.SetPixelQueueDepth(0)
}

// Loaded reports whether a real tracker is attached.
func (q *Queue) Loaded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.target != nil
}

// Depth returns the number of buffered calls.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// enqueue appends with bounded growth, dropping the oldest call on overflow.
// Callers hold q.mu.
func (q *Queue) enqueue(c queuedCall) {
	if len(q.pending) >= q.maxPending {
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, c)
	q.metrics.SetPixelQueueDepth(len(q.pending))
}

// forward replays one call onto a real tracker. Callers hold q.mu.
func (q *Queue) forward(t Tracker, c queuedCall) {
	switch c.kind {
	case kindInit:
		t.Init(c.name)
	case kindTrack:
		t.Track(c.name, c.params)
	case kindTrackCustom:
		t.TrackCustom(c.name, c.params)
	}
}
