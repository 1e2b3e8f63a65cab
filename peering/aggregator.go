package peering

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/flowcore/swarmbus/telemetry"
)

// NetworkMetrics is the aggregate computed across every active stream.
type NetworkMetrics struct {
	ActiveStreams        int
	GlobalCoherence      float64
	EmergentIntelligence float64
	AvgLatency           time.Duration
}

// Aggregator is the distributed monitor from spec §4.4: it polls every
// registered stream roughly every 25ms and folds their coherence scores
// into a single global-coherence and emergent-intelligence reading.
type Aggregator struct {
	telemetry telemetry.Subject
	source    string

	mu      sync.Mutex
	streams map[string]*Stream

	stopCh chan struct{}
	wg     sync.WaitGroup
	last   NetworkMetrics
}

// NewAggregator constructs an Aggregator and starts its polling timer.
func NewAggregator(telemetrySubject telemetry.Subject) *Aggregator {
	a := &Aggregator{
		telemetry: telemetrySubject,
		source:    "peering.aggregator",
		streams:   make(map[string]*Stream),
		stopCh:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Register adds a stream to the aggregator's polling set.
func (a *Aggregator) Register(s *Stream) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.streams[s.ID()] = s
}

// Unregister removes a stream, e.g. once it has been disposed.
func (a *Aggregator) Unregister(streamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.streams, streamID)
}

func (a *Aggregator) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-a.stopCh:
			return
		}
	}
}

func (a *Aggregator) tick() {
	a.mu.Lock()
	streams := make([]*Stream, 0, len(a.streams))
	for _, s := range a.streams {
		streams = append(streams, s)
	}
	a.mu.Unlock()

	metrics := computeNetworkMetrics(streams)

	a.mu.Lock()
	a.last = metrics
	a.mu.Unlock()

	if len(streams) == 0 {
		return
	}

	if a.telemetry != nil {
		_ = a.telemetry.NotifyObservers(context.Background(), telemetry.NewEvent(telemetry.EventNetworkMetrics, a.source, map[string]any{
			"active_streams":       metrics.ActiveStreams,
			"global_coherence":     metrics.GlobalCoherence,
			"emergent_intelligence": metrics.EmergentIntelligence,
			"avg_latency_ms":       metrics.AvgLatency.Milliseconds(),
		}))
	}
}

// computeNetworkMetrics implements the §4.4 formula:
//
//	global_coherence = mean(stream.coherence)
//	emergent_intelligence = clamp01(0.7*global_coherence + 0.2*(log10(N+1)/log10(10)) + (0.1 if avg_latency < 1ms else 0))
func computeNetworkMetrics(streams []*Stream) NetworkMetrics {
	if len(streams) == 0 {
		return NetworkMetrics{}
	}

	var coherenceSum float64
	var latencySum time.Duration
	for _, s := range streams {
		stats := s.Stats()
		coherenceSum += stats.CoherenceScore
		latencySum += stats.AvgLatency
	}

	n := len(streams)
	globalCoherence := coherenceSum / float64(n)
	avgLatency := latencySum / time.Duration(n)

	emergent := 0.7*globalCoherence + 0.2*(math.Log10(float64(n)+1)/math.Log10(10))
	if avgLatency < time.Millisecond {
		emergent += 0.1
	}
	emergent = clamp(emergent, 0, 1)

	return NetworkMetrics{
		ActiveStreams:        n,
		GlobalCoherence:      globalCoherence,
		EmergentIntelligence: emergent,
		AvgLatency:           avgLatency,
	}
}

// Last returns the most recently computed network metrics.
func (a *Aggregator) Last() NetworkMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Stop halts the polling timer. Does not close or await any registered
// streams — callers dispose those independently (Coordinator.Shutdown
// does both in the right order).
func (a *Aggregator) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}
