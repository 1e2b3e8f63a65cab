// Package eventcore defines the value types shared by the topic router,
// the scoped agent bus, and the parallel parameter engine: Event, Handler,
// and Subscription (spec §3 Data Model).
package eventcore

import (
	"context"
	"time"
)

// Payload is the heterogeneous mapping carried by an Event. Nested values
// may themselves be maps, slices, primitives, or time.Time — callers use
// the typed helpers below instead of raw type assertions.
type Payload map[string]any

// Clone returns a shallow copy of the payload. Used whenever a component
// needs to hand out a payload with fields added or rewritten (e.g. the
// parameter engine's branch and enhanced payloads) without mutating the
// caller's map.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String reads key as a string, returning ok=false if absent or of a
// different type.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Map reads key as a nested Payload (accepting both Payload and plain
// map[string]any, since values arriving from external callers are rarely
// typed as Payload directly).
func (p Payload) Map(key string) (Payload, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case Payload:
		return m, true
	case map[string]any:
		return Payload(m), true
	default:
		return nil, false
	}
}

// Event is the immutable record dispatched by the topic router. It is
// never stored beyond the duration of a single dispatch.
type Event struct {
	// Topic is a dot-separated lowercase routing key.
	Topic string
	// Payload is the event's data.
	Payload Payload
	// Timestamp is set by the producer at Emit time.
	Timestamp time.Time
	// Source identifies who produced the event, possibly annotated by the
	// agent bus as "<original-source>→<agent-name>" on a per-handler basis.
	Source string
}

// New builds an Event stamped with the current time.
func New(topic string, payload Payload, source string) Event {
	return Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    source,
	}
}

// Handler is a callable invoked for a matching topic. The returned bool is
// a soft-success signal recorded in metrics but never propagated to the
// emitter; a non-nil error is the "handler exception" class from spec §7 —
// logged and suppressed, it never cancels sibling handlers and never
// unsubscribes the handler.
type Handler func(ctx context.Context, sender, topic string, payload Payload) (bool, error)

// Subscription is a live registration of a Handler against a topic
// pattern. Patterns are either an exact topic or a "prefix.*" wildcard.
type Subscription struct {
	ID      string
	Topic   string
	Key     string // caller-supplied de-dup key; see spec §9 open question 2
	AgentID string
	Handler Handler
}

// IsWildcard reports whether Topic is a "prefix.*" pattern.
func (s Subscription) IsWildcard() bool {
	return len(s.Topic) > 1 && s.Topic[len(s.Topic)-1] == '*' && s.Topic[len(s.Topic)-2] == '.'
}
