package peering

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/telemetry"
	"github.com/google/uuid"
)

// EventSource is the narrow surface the coordinator needs to announce a
// handshake to a peer. Establishment succeeds when that emission returns
// without error: no reply is awaited or parsed, and the emission's
// duration is not checked against any deadline.
type EventSource interface {
	Emit(ctx context.Context, event eventcore.Event) (int, error)
}

// EstablishResult is returned by EstablishStream on success.
type EstablishResult struct {
	StreamID            string
	EstablishmentLatency time.Duration
}

// Coordinator owns the set of known peers and the streams opened to
// them, plus the distributed aggregator that watches all of them.
type Coordinator struct {
	source    EventSource
	logger    logging.Logger
	telemetry telemetry.Subject
	aggregator *Aggregator

	mu      sync.Mutex
	peers   map[string]*Peer
	streams map[string]*Stream

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator constructs a Coordinator over source. logger and
// telemetrySubject may be nil.
func NewCoordinator(source EventSource, logger logging.Logger, telemetrySubject telemetry.Subject) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		source:     source,
		logger:     logger,
		telemetry:  telemetrySubject,
		aggregator: NewAggregator(telemetrySubject),
		peers:      make(map[string]*Peer),
		streams:    make(map[string]*Stream),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterPeer adds (or returns the existing) peer by agent id.
func (c *Coordinator) RegisterPeer(agentID string) *Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.peers[agentID]; ok {
		return p
	}
	p := &Peer{ID: uuid.New().String(), AgentID: agentID, Connected: true}
	c.peers[agentID] = p
	return p
}

// EstablishStream implements the §4.4 stream establishment protocol:
// allocate a pathway, simulate biological warm-up, announce a handshake
// event, then register the stream's consumer with the aggregator.
func (c *Coordinator) EstablishStream(ctx context.Context, targetPeerAgentID string, cfg StreamConfig) (EstablishResult, error) {
	if targetPeerAgentID == "" {
		return EstablishResult{}, ErrEmptyTargetPeer
	}

	start := time.Now()
	peer := c.RegisterPeer(targetPeerAgentID)

	// Simulate 5-10ms of biological synaptic warm-up.
	time.Sleep(time.Duration(5+rand.Intn(6)) * time.Millisecond)

	stream := newStream(c.ctx, peer.ID, cfg, c.logger, c.telemetry)

	if c.source != nil {
		_, err := c.source.Emit(ctx, eventcore.New(telemetry.EventConsciousnessHandshake, "peering.coordinator", eventcore.Payload{
			"stream_id":      stream.id,
			"target_peer_id": peer.ID,
		}))
		if err != nil {
			stream.Close()
			return EstablishResult{}, err
		}
	}

	c.mu.Lock()
	c.streams[stream.id] = stream
	c.mu.Unlock()
	c.aggregator.Register(stream)

	if c.telemetry != nil {
		_ = c.telemetry.NotifyObservers(ctx, telemetry.NewEvent(telemetry.EventConsciousnessStreamOpen, "peering.coordinator", map[string]any{
			"stream_id":      stream.id,
			"target_peer_id": peer.ID,
		}))
	}

	return EstablishResult{
		StreamID:             stream.id,
		EstablishmentLatency: time.Since(start),
	}, nil
}

// SendEvent enqueues event onto streamID's channel. See Stream.Send for
// what "accepted" means under each SendMode.
func (c *Coordinator) SendEvent(ctx context.Context, streamID string, event eventcore.Event, mode SendMode) (bool, error) {
	c.mu.Lock()
	stream, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return false, ErrStreamNotFound
	}
	return stream.Send(ctx, event, mode)
}

// StreamStats returns a snapshot of one stream's metrics.
func (c *Coordinator) StreamStats(streamID string) (StreamStats, error) {
	c.mu.Lock()
	stream, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return StreamStats{}, ErrStreamNotFound
	}
	return stream.Stats(), nil
}

// NetworkMetrics returns the aggregator's most recent global reading.
func (c *Coordinator) NetworkMetrics() NetworkMetrics {
	return c.aggregator.Last()
}

// CloseStream disposes a single stream ahead of full coordinator
// shutdown, e.g. when a peer disconnects.
func (c *Coordinator) CloseStream(streamID string) error {
	c.mu.Lock()
	stream, ok := c.streams[streamID]
	if ok {
		delete(c.streams, streamID)
	}
	c.mu.Unlock()
	if !ok {
		return ErrStreamNotFound
	}
	c.aggregator.Unregister(streamID)
	stream.Close()
	return nil
}

// Shutdown disposes every stream and stops the aggregator. Streams are
// disposed first, while the aggregator is still polling; no further
// aggregator tick is waited for before it is stopped.
func (c *Coordinator) Shutdown() {
	c.cancel()

	c.mu.Lock()
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.streams = make(map[string]*Stream)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *Stream) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()

	c.aggregator.Stop()
}
