package agentbus

// Scope is the predicate that determines which emissions reach an agent.
// See spec §4.2.
type Scope int

const (
	// ScopeGlobal delivers every emission that is not targeted at a
	// channel or role to the agent (subject only to its event filters).
	ScopeGlobal Scope = iota

	// ScopeAgent is reserved for intra-agent plumbing handled by the
	// owning agent directly; the shared bus never delivers to it.
	ScopeAgent

	// ScopeChannel delivers only when the emission's target channel is
	// unset or is one the agent belongs to.
	ScopeChannel

	// ScopeRole delivers only when the emission's target role is unset or
	// matches the agent's role.
	ScopeRole

	// ScopeHierarchy is declared but, per spec §9 open question 1, not yet
	// implemented: parent/child traversal semantics are unresolved, so it
	// is treated as ScopeGlobal for now.
	ScopeHierarchy
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeAgent:
		return "agent"
	case ScopeChannel:
		return "channel"
	case ScopeRole:
		return "role"
	case ScopeHierarchy:
		return "hierarchy"
	default:
		return "unknown"
	}
}
