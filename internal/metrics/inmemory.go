package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RelayRequests           map[string]uint64
	RelayOutcomes           map[string]uint64
	ProviderDurationCount   uint64
	ProviderDurationTotalNs int64
	PixelDispatches         map[string]uint64
	PixelQueueDepth         int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu              sync.Mutex
	relayRequests   map[string]uint64
	relayOutcomes   map[string]uint64
	pixelDispatches map[string]uint64

	providerDurationCount   uint64
	providerDurationTotalNs int64
	pixelQueueDepth         int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		relayRequests:   make(map[string]uint64),
		relayOutcomes:   make(map[string]uint64),
		pixelDispatches: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		RelayRequests:           copyCounts(m.relayRequests),
		RelayOutcomes:           copyCounts(m.relayOutcomes),
		ProviderDurationCount:   atomic.LoadUint64(&m.providerDurationCount),
		ProviderDurationTotalNs: atomic.LoadInt64(&m.providerDurationTotalNs),
		PixelDispatches:         copyCounts(m.pixelDispatches),
		PixelQueueDepth:         atomic.LoadInt64(&m.pixelQueueDepth),
	}
}

// IncRelayRequest counts an inbound relay request per endpoint.
func (m *InMemoryRecorder) IncRelayRequest(endpoint string) {
	m.mu.Lock()
	m.relayRequests[endpoint]++
	m.mu.Unlock()
}

// IncRelayOutcome counts a relay outcome label.
func (m *InMemoryRecorder) IncRelayOutcome(outcome string) {
	m.mu.Lock()
	m.relayOutcomes[outcome]++
	m.mu.Unlock()
}

// ObserveProviderDuration records one provider round trip.
func (m *InMemoryRecorder) ObserveProviderDuration(duration time.Duration) {
	atomic.AddUint64(&m.providerDurationCount, 1)
	atomic.AddInt64(&m.providerDurationTotalNs, duration.Nanoseconds())
}

// IncPixelDispatch counts a composer dispatch status.
func (m *InMemoryRecorder) IncPixelDispatch(status string) {
	m.mu.Lock()
	m.pixelDispatches[status]++
	m.mu.Unlock()
}

// SetPixelQueueDepth records the composer queue depth.
func (m *InMemoryRecorder) SetPixelQueueDepth(depth int) {
	atomic.StoreInt64(&m.pixelQueueDepth, int64(depth))
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
