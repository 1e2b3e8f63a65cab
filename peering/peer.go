package peering

import "sync/atomic"

// PeerMetrics are running counters for one peer connection.
type PeerMetrics struct {
	EventsSent     uint64
	EventsReceived uint64
}

// Peer is a remote endpoint events can be streamed to. It carries no
// transport of its own — delivery happens through whatever EventSource the
// owning Coordinator was built with.
type Peer struct {
	ID        string
	AgentID   string
	Connected bool

	eventsSent     uint64
	eventsReceived uint64
}

func (p *Peer) recordSent() {
	atomic.AddUint64(&p.eventsSent, 1)
}

func (p *Peer) recordReceived() {
	atomic.AddUint64(&p.eventsReceived, 1)
}

// Metrics returns a snapshot of the peer's counters.
func (p *Peer) Metrics() PeerMetrics {
	return PeerMetrics{
		EventsSent:     atomic.LoadUint64(&p.eventsSent),
		EventsReceived: atomic.LoadUint64(&p.eventsReceived),
	}
}
