package agentbus

import "errors"

var (
	ErrAgentNotFound   = errors.New("agentbus: agent not found")
	ErrAgentInactive   = errors.New("agentbus: agent is not active")
	ErrInvalidScope    = errors.New("agentbus: invalid scope")
	ErrEmptyAgentName  = errors.New("agentbus: agent name must not be empty")
)
