package agentbus

import "time"

// Agent is a named subscriber with a scope, role, and channel
// memberships (spec §3). Agent IDs are unique and stable for the agent's
// lifetime; Agent values returned from the Bus are snapshots and are safe
// to read without further locking.
type Agent struct {
	ID       string
	Name     string
	Role     string
	Scope    Scope
	Channels map[string]struct{}
	Filters  map[string]struct{} // empty set means "allow all topics"
	JoinedAt time.Time
	Active   bool
}

// InChannel reports whether the agent is a member of channel.
func (a Agent) InChannel(channel string) bool {
	_, ok := a.Channels[channel]
	return ok
}

// Allows reports whether the agent's event filters permit topic. An empty
// filter set allows every topic.
func (a Agent) Allows(topic string) bool {
	if len(a.Filters) == 0 {
		return true
	}
	_, ok := a.Filters[topic]
	return ok
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func setFromSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, i := range items {
		out[i] = struct{}{}
	}
	return out
}
