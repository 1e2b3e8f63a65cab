// Package topicrouter implements §4.1 of the spec: a registry of topic
// subscriptions with wildcard matching and concurrent handler invocation.
// It has no notion of agents, scopes, or roles — that lives one layer up
// in package agentbus, which depends on this package through the narrow
// EventSource-shaped surface it exposes.
package topicrouter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/internal/workerpool"
	"github.com/flowcore/swarmbus/logging"
	"github.com/google/uuid"
)

// Router dispatches events to subscribed handlers. It is safe for
// concurrent use; Subscribe/Unsubscribe take a short lock, and Emit reads
// a stable local snapshot of matched handlers before invoking any of
// them, so an Unsubscribe racing with an in-flight Emit never invokes a
// freed handler.
type Router struct {
	config Config
	logger logging.Logger
	pool   *workerpool.Pool

	mu        sync.RWMutex
	exact     map[string]map[string]*eventcore.Subscription // topic -> subID -> sub
	wildcard  map[string]map[string]*eventcore.Subscription // prefix (no ".*") -> subID -> sub
	dedupe    map[string]string                              // topic+"\x00"+key -> subID
	locations map[string]string                              // subID -> topic (for Unsubscribe)

	pubCounter     uint64
	deliveredCount uint64
	softFailCount  uint64
	errorCount     uint64
}

// NewRouter constructs an empty Router. A nil logger falls back to
// logging.NopLogger.
func NewRouter(config Config, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	maxConcurrent := config.MaxConcurrentHandlers
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentHandlers
	}
	return &Router{
		config:    config,
		logger:    logger,
		pool:      workerpool.New(maxConcurrent),
		exact:     make(map[string]map[string]*eventcore.Subscription),
		wildcard:  make(map[string]map[string]*eventcore.Subscription),
		dedupe:    make(map[string]string),
		locations: make(map[string]string),
	}
}

// isWildcardPattern reports whether topic is a "prefix.*" pattern and
// returns the bare prefix.
func isWildcardPattern(topic string) (string, bool) {
	if len(topic) > 2 && strings.HasSuffix(topic, ".*") {
		return topic[:len(topic)-2], true
	}
	return "", false
}

// Subscribe registers handler against topic. key is a caller-supplied
// identity used to de-duplicate repeat subscriptions per spec §9 open
// question 2 (Go func values are not comparable, so identity must be
// supplied explicitly); subscribing again with the same (topic, key) pair
// returns the existing subscription id rather than creating a second
// registration.
func (r *Router) Subscribe(topic, key string, handler eventcore.Handler, agentID string) (string, error) {
	if handler == nil {
		return "", ErrHandlerNil
	}

	dedupKey := topic + "\x00" + key

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.dedupe[dedupKey]; ok && key != "" {
		return existing, nil
	}

	sub := &eventcore.Subscription{
		ID:      uuid.New().String(),
		Topic:   topic,
		Key:     key,
		AgentID: agentID,
		Handler: handler,
	}

	if prefix, ok := isWildcardPattern(topic); ok {
		if r.wildcard[prefix] == nil {
			r.wildcard[prefix] = make(map[string]*eventcore.Subscription)
		}
		r.wildcard[prefix][sub.ID] = sub
	} else {
		if r.exact[topic] == nil {
			r.exact[topic] = make(map[string]*eventcore.Subscription)
		}
		r.exact[topic][sub.ID] = sub
	}

	if key != "" {
		r.dedupe[dedupKey] = sub.ID
	}
	r.locations[sub.ID] = topic

	return sub.ID, nil
}

// Unsubscribe removes a subscription by id. Unknown ids return false, nil
// (spec §7: Subscription-missing is reported as false, not an error).
func (r *Router) Unsubscribe(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.locations[id]
	if !ok {
		return false, nil
	}
	delete(r.locations, id)

	if prefix, wild := isWildcardPattern(topic); wild {
		if subs, ok := r.wildcard[prefix]; ok {
			if sub := subs[id]; sub != nil && sub.Key != "" {
				delete(r.dedupe, topic+"\x00"+sub.Key)
			}
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.wildcard, prefix)
			}
		}
		return true, nil
	}

	if subs, ok := r.exact[topic]; ok {
		if sub := subs[id]; sub != nil && sub.Key != "" {
			delete(r.dedupe, topic+"\x00"+sub.Key)
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.exact, topic)
		}
	}
	return true, nil
}

// matchedSubscriptions returns a stable snapshot of every subscription
// whose pattern matches topic: the exact-topic list plus every wildcard
// prefix that is a strict dot-prefix of topic.
func (r *Router) matchedSubscriptions(topic string) []*eventcore.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*eventcore.Subscription
	if subs, ok := r.exact[topic]; ok {
		for _, s := range subs {
			matched = append(matched, s)
		}
	}

	segments := strings.Split(topic, ".")
	for i := 1; i < len(segments); i++ {
		prefix := strings.Join(segments[:i], ".")
		if subs, ok := r.wildcard[prefix]; ok {
			for _, s := range subs {
				matched = append(matched, s)
			}
		}
	}

	if r.config.RotateSubscriberOrder && len(matched) > 1 {
		matched = rotate(matched, atomic.AddUint64(&r.pubCounter, 1)-1)
	}

	return matched
}

// rotate returns a copy of items logically rotated so it starts at index
// pc % len(items). Avoids randomizing delivery order (which would hurt
// reproducibility in tests) while still spreading the "goes first"
// position evenly over time.
func rotate(items []*eventcore.Subscription, pc uint64) []*eventcore.Subscription {
	n := uint64(len(items))
	start := pc % n
	if start == 0 {
		return items
	}
	out := make([]*eventcore.Subscription, 0, n)
	for i := start; i < n; i++ {
		out = append(out, items[i])
	}
	for i := uint64(0); i < start; i++ {
		out = append(out, items[i])
	}
	return out
}

// Emit dispatches event.Topic to every matching subscription (exact and
// wildcard) concurrently, waiting for all of them to complete before
// returning the count invoked. Individual handler errors are never
// propagated to the caller; a panicking handler is recovered and treated
// the same as a returned error (spec §7 handler-exception class).
func (r *Router) Emit(ctx context.Context, event eventcore.Event) (int, error) {
	matched := r.matchedSubscriptions(event.Topic)
	if len(matched) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, sub := range matched {
		sub := sub
		wg.Add(1)
		r.pool.Go(func() {
			defer wg.Done()
			r.invoke(ctx, sub, event)
		})
	}
	wg.Wait()

	return len(matched), nil
}

// EmitWildcardable is an explicit alias for Emit, kept for API parity with
// spec §4.1's contract (which names both methods even though the
// algorithm description dispatches both exact and wildcard matches
// uniformly). New code should just call Emit.
func (r *Router) EmitWildcardable(ctx context.Context, event eventcore.Event) (int, error) {
	return r.Emit(ctx, event)
}

func (r *Router) invoke(ctx context.Context, sub *eventcore.Subscription, event eventcore.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			atomic.AddUint64(&r.errorCount, 1)
			r.logger.Error("handler panicked", "topic", event.Topic, "subscription_id", sub.ID, "panic", rec)
		}
	}()

	ok, err := sub.Handler(ctx, event.Source, event.Topic, event.Payload)
	atomic.AddUint64(&r.deliveredCount, 1)
	if err != nil {
		atomic.AddUint64(&r.errorCount, 1)
		r.logger.Error("handler returned error", "topic", event.Topic, "subscription_id", sub.ID, "error", err)
		return
	}
	if !ok {
		atomic.AddUint64(&r.softFailCount, 1)
		r.logger.Debug("handler reported soft failure", "topic", event.Topic, "subscription_id", sub.ID)
	}
}

// Topics lists every topic pattern (exact or wildcard, the latter
// rendered with its trailing ".*") that currently has at least one
// subscriber.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.exact)+len(r.wildcard))
	for t := range r.exact {
		topics = append(topics, t)
	}
	for p := range r.wildcard {
		topics = append(topics, p+".*")
	}
	return topics
}

// SubscriberCount returns the number of subscriptions registered under
// exactly this topic pattern (no wildcard expansion).
func (r *Router) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if prefix, wild := isWildcardPattern(topic); wild {
		return len(r.wildcard[prefix])
	}
	return len(r.exact[topic])
}

// Stats returns running delivery counters: handlers invoked, handlers that
// returned a soft failure (false, nil), and handlers that returned/panicked
// with an error.
func (r *Router) Stats() (delivered, softFailures, errors uint64) {
	return atomic.LoadUint64(&r.deliveredCount),
		atomic.LoadUint64(&r.softFailCount),
		atomic.LoadUint64(&r.errorCount)
}
