// Package telemetry provides the Observer/Subject pattern used for runtime
// telemetry — the engine-performance, peering-network, and lifecycle
// signals described in spec §6 — as distinct from the domain event bus
// (package eventcore/topicrouter/agentbus), which carries the actual
// coordination traffic. Telemetry events are CloudEvents so they remain
// interoperable with anything off-process that wants to observe this
// runtime without participating in it.
package telemetry

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer receives telemetry notifications. Implementations should
// return quickly: NotifyObservers waits for every matching observer to
// finish before it returns.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Subject is the notification side: something components can register
// against to receive telemetry.
type Subject interface {
	RegisterObserver(observer Observer, eventTypes ...string) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
	Observers() []ObserverInfo
}

// ObserverInfo describes a registered observer for diagnostics.
type ObserverInfo struct {
	ID           string
	EventTypes   []string
	RegisteredAt time.Time
}

type registration struct {
	observer   Observer
	eventTypes map[string]struct{} // empty set means "all types"
	registered time.Time
}

// Broadcaster is the default in-process Subject implementation.
type Broadcaster struct {
	mu   sync.RWMutex
	regs map[string]*registration
}

// NewBroadcaster creates an empty telemetry broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{regs: make(map[string]*registration)}
}

func (b *Broadcaster) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		set[t] = struct{}{}
	}
	b.regs[observer.ObserverID()] = &registration{
		observer:   observer,
		eventTypes: set,
		registered: time.Now(),
	}
	return nil
}

func (b *Broadcaster) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.regs, observer.ObserverID())
	return nil
}

// NotifyObservers delivers event to every registered observer whose
// filter set is empty or contains event.Type(), concurrently, and waits
// for all of them. Observer errors are discarded and never block delivery
// to siblings; the returned error is always nil.
func (b *Broadcaster) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	b.mu.RLock()
	targets := make([]*registration, 0, len(b.regs))
	for _, reg := range b.regs {
		if len(reg.eventTypes) == 0 {
			targets = append(targets, reg)
			continue
		}
		if _, ok := reg.eventTypes[event.Type()]; ok {
			targets = append(targets, reg)
		}
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, reg := range targets {
		wg.Add(1)
		go func(r *registration) {
			defer wg.Done()
			_ = r.observer.OnEvent(ctx, event)
		}(reg)
	}
	wg.Wait()
	return nil
}

func (b *Broadcaster) Observers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(b.regs))
	for id, reg := range b.regs {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		out = append(out, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registered})
	}
	return out
}

// FuncObserver adapts a plain function to the Observer interface, for
// call sites that don't want to define a named type.
type FuncObserver struct {
	ID_     string
	Handler func(ctx context.Context, event cloudevents.Event) error
}

func (f *FuncObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.Handler(ctx, event)
}

func (f *FuncObserver) ObserverID() string { return f.ID_ }
