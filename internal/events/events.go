// Package events publishes call lifecycle events to an optional NATS
// subject (SPEC_FULL.md §4.11). Publishing is
// fire-and-forget: a down or unconfigured event bus never blocks or fails a
// call.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Kind names a point in a call's lifecycle: received, ringing, answered, ended.
type Kind string

const (
	KindReceived Kind = "call.received"
	KindRinging  Kind = "call.ringing"
	KindAnswered Kind = "call.answered"
	KindEnded    Kind = "call.ended"
)

// EndReason narrows KindEnded events to the subset this B2BUA's dialog
// core can actually distinguish.
type EndReason string

const (
	ReasonBye               EndReason = "bye"
	ReasonCancelled         EndReason = "cancelled"
	ReasonRejected          EndReason = "rejected"
	ReasonCalleeUnavailable EndReason = "callee_unavailable"
	ReasonCapacityExceeded  EndReason = "capacity_exceeded"
)

// Event is one published call lifecycle record. TraceID (never CallID
// alone) is the field a consumer should group on, since a bridged call has
// two independent Call-IDs (SPEC_FULL.md §3).
type Event struct {
	Kind      Kind      `json:"kind"`
	TraceID   string    `json:"trace_id"`
	CallID    string    `json:"call_id"`
	Callee    string    `json:"callee,omitempty"`
	Reason    EndReason `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the seam the dialog core depends on.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

// NoopPublisher discards every event. It's the default when no events URL
// is configured (SPEC_FULL.md §6), or when connecting to the configured
// broker fails at startup.
type NoopPublisher struct{}

func (NoopPublisher) Publish(Event) {}
func (NoopPublisher) Close() error  { return nil }

// NatsPublisher publishes events as JSON to a fixed subject over a NATS
// connection.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNatsPublisher connects to url and returns a publisher on the
// "tinysip.calls" subject.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("tinysip"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{conn: conn, subject: "tinysip.calls"}, nil
}

// Publish marshals ev and publishes it, logging (never propagating) any
// failure — a lost event must never affect call processing.
func (p *NatsPublisher) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Debug("events: marshal failed", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Debug("events: publish failed", "error", err)
	}
}

// Close drains and closes the underlying NATS connection.
func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}
