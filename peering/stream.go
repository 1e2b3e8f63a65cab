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

// SendMode controls what Stream.Send does when the bounded channel is
// full, mirroring the three delivery modes topicrouter's teacher lineage
// (modules/eventbus's "block"/"timeout"/"drop" DeliveryMode) already uses
// for the same problem.
type SendMode int

const (
	SendBlock SendMode = iota
	SendDrop
	SendTimeout
)

const dedupWindow = 10 * time.Millisecond

// StreamStats is a point-in-time snapshot exposed by the coherence
// monitor timer.
type StreamStats struct {
	CoherenceScore     float64
	AvgLatency         time.Duration
	EventsProcessed    uint64
	SmoothedWeight     float64
	DedupRejections    uint64
	ValidityRejections uint64
}

// Stream owns a bounded FIFO queue of events flowing to a single peer and
// the pathway that weights that connection.
type Stream struct {
	id           string
	targetPeerID string
	config       StreamConfig
	pathway      *Pathway

	ch chan eventcore.Event

	logger    logging.Logger
	telemetry telemetry.Subject

	mu                 sync.Mutex
	coherence          float64
	avgLatency         time.Duration
	eventsProcessed    uint64
	dedupRejections    uint64
	validityRejections uint64
	recentTimestamps   []time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	monitorStop chan struct{}
	wg          sync.WaitGroup
}

// newStream allocates a stream to targetPeerID, starting its consumer
// goroutine and coherence-monitor timer. The caller is responsible for
// calling Close when finished with it.
func newStream(parent context.Context, targetPeerID string, cfg StreamConfig, logger logging.Logger, telemetrySubject telemetry.Subject) *Stream {
	cfg = cfg.ValidateConfig()
	ctx, cancel := context.WithCancel(parent)

	s := &Stream{
		id:           uuid.New().String(),
		targetPeerID: targetPeerID,
		config:       cfg,
		pathway:      NewPathway(targetPeerID),
		ch:           make(chan eventcore.Event, cfg.BufferSize),
		logger:       logger,
		telemetry:    telemetrySubject,
		coherence:    1.0,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		monitorStop:  make(chan struct{}),
	}

	s.wg.Add(2)
	go s.consume()
	go s.runCoherenceMonitor()

	return s
}

// ID returns the stream's identifier.
func (s *Stream) ID() string { return s.id }

// Send enqueues event according to mode, applying back-pressure when the
// channel is full. It reports whether the event was accepted into the
// queue — not whether it was ultimately processed, since dedup/validity
// rejection happens later, in the consumer.
func (s *Stream) Send(ctx context.Context, event eventcore.Event, mode SendMode) (bool, error) {
	select {
	case <-s.ctx.Done():
		return false, ErrStreamClosed
	default:
	}

	switch mode {
	case SendDrop:
		select {
		case s.ch <- event:
			return true, nil
		default:
			return false, nil
		}
	case SendTimeout:
		timer := time.NewTimer(s.config.MaxLatency * 100)
		defer timer.Stop()
		select {
		case s.ch <- event:
			return true, nil
		case <-timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.ctx.Done():
			return false, ErrStreamClosed
		}
	default: // SendBlock
		select {
		case s.ch <- event:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.ctx.Done():
			return false, ErrStreamClosed
		}
	}
}

func (s *Stream) consume() {
	defer s.wg.Done()
	defer close(s.done)

	for {
		select {
		case event, ok := <-s.ch:
			if !ok {
				return
			}
			s.process(event)
		case <-s.ctx.Done():
			// Drain whatever is already queued before disposing, per the
			// cancellation/shutdown contract.
			for {
				select {
				case event, ok := <-s.ch:
					if !ok {
						return
					}
					s.process(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Stream) process(event eventcore.Event) {
	now := time.Now()

	if s.isDuplicate(event.Timestamp, now) {
		s.mu.Lock()
		s.dedupRejections++
		s.coherence = clamp(s.coherence-ltdDelta*2, 0, 1)
		s.mu.Unlock()
		return
	}

	age := now.Sub(event.Timestamp)
	inBudget := age <= s.config.MaxLatency
	if !inBudget {
		s.mu.Lock()
		s.validityRejections++
		s.coherence = clamp(s.coherence-0.05, 0, 1)
		s.mu.Unlock()
		return
	}

	// Simulate 1-4ms of biological processing delay.
	time.Sleep(time.Duration(1+rand.Intn(4)) * time.Millisecond)

	if s.config.EnableSynapticPlasticity {
		eventID, _ := event.Payload.String("correlationId")
		freshness := 1.0
		if s.config.MaxLatency > 0 {
			freshness = clamp(1-float64(age)/float64(s.config.MaxLatency), 0, 1)
		}
		s.pathway.RecordActivation(now, event.Topic, freshness, eventID)
	}

	s.mu.Lock()
	s.eventsProcessed++
	if s.avgLatency == 0 {
		s.avgLatency = age
	} else {
		s.avgLatency = time.Duration(float64(s.avgLatency)*0.9 + float64(age)*0.1)
	}
	s.coherence = clamp(s.coherence+0.01, 0, 1)
	s.mu.Unlock()
}

// isDuplicate implements the temporal-dedup predicate: an event whose
// timestamp has already been seen within the last dedupWindow is treated
// as a likely replay. A small rolling window of recently-seen timestamps
// is kept (rather than comparing consecutive events' intervals) so that
// legitimately close-together distinct events are never mistaken for
// duplicates of each other.
func (s *Stream) isDuplicate(eventTime, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-dedupWindow)
	kept := s.recentTimestamps[:0]
	duplicate := false
	for _, t := range s.recentTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
			if t.Equal(eventTime) {
				duplicate = true
			}
		}
	}
	s.recentTimestamps = append(kept, eventTime)
	return duplicate
}

// Stats returns a snapshot of the stream's current metrics.
func (s *Stream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		CoherenceScore:     s.coherence,
		AvgLatency:         s.avgLatency,
		EventsProcessed:    s.eventsProcessed,
		SmoothedWeight:     s.pathway.Strength(),
		DedupRejections:    s.dedupRejections,
		ValidityRejections: s.validityRejections,
	}
}

func (s *Stream) runCoherenceMonitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(15 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := s.Stats()
			s.logger.Debug("stream coherence tick",
				"stream_id", s.id,
				"coherence", stats.CoherenceScore,
				"avg_latency_ms", stats.AvgLatency.Milliseconds(),
				"events_processed", stats.EventsProcessed,
				"smoothed_weight", stats.SmoothedWeight,
			)
		case <-s.monitorStop:
			return
		}
	}
}

// Close disposes the stream: cancels the consumer, drains remaining
// items, stops the pathway and the coherence-monitor timer, and awaits
// both goroutines.
func (s *Stream) Close() {
	s.cancel()
	<-s.done
	close(s.monitorStop)
	s.wg.Wait()
	s.pathway.Stop()
}
