// Package agentbus wraps package topicrouter with agent identity, role,
// channel membership, per-event filter allow-lists, and the five
// scope-based delivery predicates described in spec §4.2. It depends on
// topicrouter only through the narrow surface it actually needs
// (Subscribe/Unsubscribe/Emit), per spec §9's "break the cycle by
// inverting dependencies" note — topicrouter never imports agentbus.
package agentbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/telemetry"
	"github.com/flowcore/swarmbus/topicrouter"
	"github.com/google/uuid"
)

// EventSource is the narrow surface agentbus needs from a router
// implementation. topicrouter.Router satisfies it directly.
type EventSource interface {
	Subscribe(topic, key string, handler eventcore.Handler, agentID string) (string, error)
	Unsubscribe(id string) (bool, error)
	Emit(ctx context.Context, event eventcore.Event) (int, error)
}

type emitOptsKey struct{}

type emitParams struct {
	forcedScope   *Scope
	targetChannel *string
	targetRole    *string
	delivered     int64
}

// EmitOption customizes a single Emit call.
type EmitOption func(*emitParams)

// WithForcedScope overrides every agent's configured scope for this
// emission only.
func WithForcedScope(s Scope) EmitOption {
	return func(p *emitParams) { p.forcedScope = &s }
}

// WithTargetChannel restricts delivery to members of channel. Unless
// WithForcedScope is also given, every agent is evaluated under
// ScopeChannel for this emission (ScopeRole if WithTargetRole is also
// given).
func WithTargetChannel(channel string) EmitOption {
	return func(p *emitParams) { p.targetChannel = &channel }
}

// WithTargetRole restricts delivery to agents with this role. Unless
// WithForcedScope is also given, every agent is evaluated under ScopeRole
// for this emission.
func WithTargetRole(role string) EmitOption {
	return func(p *emitParams) { p.targetRole = &role }
}

type agentRecord struct {
	agent Agent
	subs  []string
}

// Bus is the scoped agent bus. Zero value is not usable; construct with
// New.
type Bus struct {
	router    EventSource
	logger    logging.Logger
	telemetry telemetry.Subject
	source    string // emitter identity stamped on telemetry CloudEvents

	mu             sync.Mutex // spans agents + channelMembers + roleMembers as one invariant
	agents         map[string]*agentRecord
	channelMembers map[string]map[string]struct{}
	roleMembers    map[string]map[string]struct{}
}

// New constructs a Bus over router. logger and telemetrySubject may be
// nil (nop logger, no telemetry emitted).
func New(router EventSource, logger logging.Logger, telemetrySubject telemetry.Subject) *Bus {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Bus{
		router:         router,
		logger:         logger,
		telemetry:      telemetrySubject,
		source:         "agentbus",
		agents:         make(map[string]*agentRecord),
		channelMembers: make(map[string]map[string]struct{}),
		roleMembers:    make(map[string]map[string]struct{}),
	}
}

// JoinBus registers a new agent and returns its id. instance, if non-empty,
// disambiguates multiple logical instances of the same named agent (e.g.
// worker-pool replicas) and is appended to the stamped source string.
func (b *Bus) JoinBus(name, role string, scope Scope, channels, filters []string, instance string) (string, error) {
	if name == "" {
		return "", ErrEmptyAgentName
	}

	displayName := name
	if instance != "" {
		displayName = name + "#" + instance
	}

	rec := &agentRecord{
		agent: Agent{
			ID:       uuid.New().String(),
			Name:     displayName,
			Role:     role,
			Scope:    scope,
			Channels: setFromSlice(channels),
			Filters:  setFromSlice(filters),
			JoinedAt: time.Now(),
			Active:   true,
		},
	}

	b.mu.Lock()
	b.agents[rec.agent.ID] = rec
	for c := range rec.agent.Channels {
		b.addChannelMemberLocked(c, rec.agent.ID)
	}
	if role != "" {
		b.addRoleMemberLocked(role, rec.agent.ID)
	}
	b.mu.Unlock()

	b.emitTelemetry(telemetry.EventAgentJoined, map[string]any{
		"agent_id": rec.agent.ID,
		"name":     displayName,
		"role":     role,
		"scope":    scope.String(),
	})

	return rec.agent.ID, nil
}

// LeaveBus removes an agent, cascading removal of its subscriptions and
// channel/role index entries. Returns false for an unknown id.
func (b *Bus) LeaveBus(agentID string) (bool, error) {
	b.mu.Lock()
	rec, ok := b.agents[agentID]
	if !ok {
		b.mu.Unlock()
		return false, nil
	}

	for c := range rec.agent.Channels {
		b.removeChannelMemberLocked(c, agentID)
	}
	if rec.agent.Role != "" {
		b.removeRoleMemberLocked(rec.agent.Role, agentID)
	}
	subs := rec.subs
	delete(b.agents, agentID)
	b.mu.Unlock()

	for _, subID := range subs {
		if _, err := b.router.Unsubscribe(subID); err != nil {
			b.logger.Warn("failed to unsubscribe during LeaveBus", "agent_id", agentID, "subscription_id", subID, "error", err)
		}
	}

	b.emitTelemetry(telemetry.EventAgentLeft, map[string]any{"agent_id": agentID})
	return true, nil
}

// JoinChannel adds agentID to channel, keeping Agent.Channels and the
// channel-member index in lockstep.
func (b *Bus) JoinChannel(agentID, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if rec.agent.Channels == nil {
		rec.agent.Channels = make(map[string]struct{})
	}
	rec.agent.Channels[channel] = struct{}{}
	b.addChannelMemberLocked(channel, agentID)
	return nil
}

// LeaveChannel removes agentID from channel.
func (b *Bus) LeaveChannel(agentID, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	delete(rec.agent.Channels, channel)
	b.removeChannelMemberLocked(channel, agentID)
	return nil
}

func (b *Bus) addChannelMemberLocked(channel, agentID string) {
	if b.channelMembers[channel] == nil {
		b.channelMembers[channel] = make(map[string]struct{})
	}
	b.channelMembers[channel][agentID] = struct{}{}
}

func (b *Bus) removeChannelMemberLocked(channel, agentID string) {
	if members, ok := b.channelMembers[channel]; ok {
		delete(members, agentID)
		if len(members) == 0 {
			delete(b.channelMembers, channel)
		}
	}
}

func (b *Bus) addRoleMemberLocked(role, agentID string) {
	if b.roleMembers[role] == nil {
		b.roleMembers[role] = make(map[string]struct{})
	}
	b.roleMembers[role][agentID] = struct{}{}
}

func (b *Bus) removeRoleMemberLocked(role, agentID string) {
	if members, ok := b.roleMembers[role]; ok {
		delete(members, agentID)
		if len(members) == 0 {
			delete(b.roleMembers, role)
		}
	}
}

// Agent returns a snapshot of the named agent.
func (b *Bus) Agent(agentID string) (Agent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.agents[agentID]
	if !ok {
		return Agent{}, false
	}
	snap := rec.agent
	snap.Channels = cloneSet(rec.agent.Channels)
	snap.Filters = cloneSet(rec.agent.Filters)
	return snap, true
}

// ChannelMembers returns the ids of agents currently in channel.
func (b *Bus) ChannelMembers(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := b.channelMembers[channel]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// RoleMembers returns the ids of agents currently holding role.
func (b *Bus) RoleMembers(role string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	members := b.roleMembers[role]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Subscribe registers handler for agentID against topic, wrapping it with
// the scope/filter predicate and source-stamping behavior of spec §4.2.
// key de-duplicates repeat subscriptions exactly as topicrouter.Subscribe
// does.
func (b *Bus) Subscribe(agentID, topic, key string, handler eventcore.Handler) (string, error) {
	b.mu.Lock()
	rec, ok := b.agents[agentID]
	b.mu.Unlock()
	if !ok {
		return "", ErrAgentNotFound
	}
	if !rec.agent.Active {
		return "", ErrAgentInactive
	}

	wrapped := b.wrapHandler(agentID, handler)
	subID, err := b.router.Subscribe(topic, key, wrapped, agentID)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	if r, ok := b.agents[agentID]; ok {
		r.subs = append(r.subs, subID)
	}
	b.mu.Unlock()

	return subID, nil
}

// Unsubscribe cancels a single subscription owned by agentID.
func (b *Bus) Unsubscribe(agentID, subscriptionID string) (bool, error) {
	ok, err := b.router.Unsubscribe(subscriptionID)
	if err != nil || !ok {
		return ok, err
	}

	b.mu.Lock()
	if rec, exists := b.agents[agentID]; exists {
		filtered := rec.subs[:0]
		for _, id := range rec.subs {
			if id != subscriptionID {
				filtered = append(filtered, id)
			}
		}
		rec.subs = filtered
	}
	b.mu.Unlock()

	return true, nil
}

// wrapHandler builds the closure evaluated per matched subscription on
// every Emit: it re-reads the agent's current state (so a LeaveBus or
// LeaveChannel racing with in-flight Emits is observed), applies the
// filter and scope predicate, and source-stamps delivered calls.
func (b *Bus) wrapHandler(agentID string, inner eventcore.Handler) eventcore.Handler {
	return func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		agent, ok := b.Agent(agentID)
		if !ok || !agent.Active {
			return true, nil
		}
		if !agent.Allows(topic) {
			return true, nil
		}

		params, _ := ctx.Value(emitOptsKey{}).(*emitParams)
		effectiveScope := agent.Scope
		if params != nil && params.forcedScope != nil {
			effectiveScope = *params.forcedScope
		}

		switch effectiveScope {
		case ScopeAgent:
			return true, nil
		case ScopeChannel:
			if params != nil && params.targetChannel != nil && !agent.InChannel(*params.targetChannel) {
				return true, nil
			}
		case ScopeRole:
			if params != nil && params.targetRole != nil && agent.Role != *params.targetRole {
				return true, nil
			}
		case ScopeGlobal, ScopeHierarchy:
			// ScopeHierarchy: treated as Global per spec §9 open question 1.
		default:
			return true, nil
		}

		if params != nil {
			atomic.AddInt64(&params.delivered, 1)
		}

		decoratedSource := sender
		if agent.Name != "" {
			decoratedSource = sender + "→" + agent.Name
		}
		return inner(ctx, decoratedSource, topic, payload)
	}
}

// Emit dispatches topic to every subscribed agent whose scope/filter
// predicate passes, returning the number of handlers actually invoked
// (post-filtering — not the router's raw matched count).
func (b *Bus) Emit(ctx context.Context, topic string, payload eventcore.Payload, source string, opts ...EmitOption) (int, error) {
	params := &emitParams{}
	for _, opt := range opts {
		opt(params)
	}
	if params.forcedScope == nil {
		switch {
		case params.targetRole != nil:
			s := ScopeRole
			params.forcedScope = &s
		case params.targetChannel != nil:
			s := ScopeChannel
			params.forcedScope = &s
		}
	}

	emitCtx := context.WithValue(ctx, emitOptsKey{}, params)
	if _, err := b.router.Emit(emitCtx, eventcore.New(topic, payload, source)); err != nil {
		return 0, err
	}
	return int(atomic.LoadInt64(&params.delivered)), nil
}

func (b *Bus) emitTelemetry(eventType string, data map[string]any) {
	if b.telemetry == nil {
		return
	}
	_ = b.telemetry.NotifyObservers(context.Background(), telemetry.NewEvent(eventType, b.source, data))
}
