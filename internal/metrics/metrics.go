// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Relay outcome labels.
const (
	OutcomeDelivered = "delivered" // provider acknowledged >= 1 event
	OutcomeRejected  = "rejected"  // provider reachable but event not received
	OutcomeTransport = "transport" // provider unreachable or undecodable
	OutcomeConfig    = "config"    // missing credentials, no call made
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Relay pipeline metrics
	IncRelayRequest(endpoint string)
	IncRelayOutcome(outcome string)
	ObserveProviderDuration(duration time.Duration)

	// Client composer metrics
	IncPixelDispatch(status string) // status: "sent", "queued", "dropped"
	SetPixelQueueDepth(depth int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
