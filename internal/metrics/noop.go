package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncRelayRequest is a no-op.
func (n *NoopRecorder) IncRelayRequest(endpoint string) {}

// IncRelayOutcome is a no-op.
func (n *NoopRecorder) IncRelayOutcome(outcome string) {}

// ObserveProviderDuration is a no-op.
func (n *NoopRecorder) ObserveProviderDuration(duration time.Duration) {}

// IncPixelDispatch is a no-op.
func (n *NoopRecorder) IncPixelDispatch(status string) {}

// SetPixelQueueDepth is a no-op.
func (n *NoopRecorder) SetPixelQueueDepth(depth int) {}
