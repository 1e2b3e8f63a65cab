package peering

import (
	"sync"
	"time"
)

const (
	minSmoothedWeight = 0.1
	maxSmoothedWeight = 1.0
	initialStrength   = 0.5

	ltpInterval = 20 * time.Millisecond
	ltdInterval = 100 * time.Millisecond
	ltpDelta    = 0.05
	ltdDelta    = 0.02

	plasticityTick     = 15 * time.Millisecond
	plasticityDelta    = 0.01
	plasticityHighRate = 10.0 // activations/sec above which strength nudges up
	plasticityLowRate  = 2.0  // activations/sec below which strength nudges down

	ringBufferSize = 100
)

// SynapticEvent is one recorded activation of a pathway, kept in its
// 100-entry ring buffer per spec §3/§4.4. Kind classifies what triggered
// the activation (the caller's event topic); ActivationStrength is a
// [0,1] measure of how strong that particular activation was; EventID is
// the triggering event's correlation id, empty when it carried none.
type SynapticEvent struct {
	Timestamp          time.Time
	Kind               string
	ActivationStrength float64
	EventID            string
}

// Pathway simulates the synaptic-plasticity-weighted connection to one
// target peer: long-term potentiation on rapid-fire activations, long-term
// depression on sparse ones, plus a slower background timer that nudges
// strength toward the pathway's recent activity rate.
type Pathway struct {
	targetPeerID string

	mu                   sync.Mutex
	strength             float64
	lastActivation       time.Time
	ring                 [ringBufferSize]SynapticEvent
	ringLen              int
	ringPos              int
	activationsSinceTick int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPathway allocates a pathway to targetPeerID at the default initial
// strength and starts its background plasticity timer.
func NewPathway(targetPeerID string) *Pathway {
	p := &Pathway{
		targetPeerID: targetPeerID,
		strength:     initialStrength,
		stopCh:       make(chan struct{}),
	}
	p.wg.Add(1)
	go p.runPlasticityTimer()
	return p
}

// RecordActivation logs one processed event against the pathway and
// applies the interval-based LTP/LTD rule. kind and activationStrength
// describe the triggering event for the ring-buffer entry; eventID may
// be empty when the triggering event carried no correlation id.
func (p *Pathway) RecordActivation(now time.Time, kind string, activationStrength float64, eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastActivation.IsZero() {
		interval := now.Sub(p.lastActivation)
		switch {
		case interval < ltpInterval:
			p.strength += ltpDelta
		case interval > ltdInterval:
			p.strength -= ltdDelta
		}
		p.strength = clamp(p.strength, minSmoothedWeight, maxSmoothedWeight)
	}
	p.lastActivation = now

	p.ring[p.ringPos] = SynapticEvent{
		Timestamp:          now,
		Kind:               kind,
		ActivationStrength: activationStrength,
		EventID:            eventID,
	}
	p.ringPos = (p.ringPos + 1) % ringBufferSize
	if p.ringLen < ringBufferSize {
		p.ringLen++
	}
	p.activationsSinceTick++
}

// Strength returns the pathway's current synaptic strength.
func (p *Pathway) Strength() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strength
}

// runPlasticityTimer periodically nudges strength toward the pathway's
// immediately-preceding activity rate. The rate is measured per tick
// (activations recorded since the previous tick, divided by the tick
// interval) rather than over a long trailing window, so a burst of
// activity doesn't keep nudging strength upward long after it has ended —
// an idle pathway's rate drops to zero within one tick of activity
// stopping.
func (p *Pathway) runPlasticityTimer() {
	defer p.wg.Done()
	ticker := time.NewTicker(plasticityTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			rate := float64(p.activationsSinceTick) / plasticityTick.Seconds()
			p.activationsSinceTick = 0
			switch {
			case rate > plasticityHighRate:
				p.strength += plasticityDelta
			case rate < plasticityLowRate:
				p.strength -= plasticityDelta
			}
			p.strength = clamp(p.strength, minSmoothedWeight, maxSmoothedWeight)
			p.mu.Unlock()
		case <-p.stopCh:
			return
		}
	}
}

// Stop halts the background plasticity timer. Safe to call once per
// pathway; disposes the pathway for good.
func (p *Pathway) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
