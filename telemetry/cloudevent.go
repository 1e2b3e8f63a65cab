package telemetry

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type vocabulary from spec §6. These are CloudEvent types, not
// topicrouter/agentbus topics — telemetry and domain traffic never share a
// namespace.
const (
	EventParallelPerformanceAchievement = "run.swarmbus.parallel.performance.achievement"
	EventParallelExecutionFailed        = "run.swarmbus.parallel.execution.failed"
	EventParallelResultEnhanced         = "run.swarmbus.parallel.result.enhanced"
	EventParallelHandlersRegistered     = "run.swarmbus.parallel.handlers.registered"
	EventParallelSystemMetrics          = "run.swarmbus.parallel.system.metrics"

	EventNetworkMetrics          = "run.swarmbus.network.metrics"
	EventConsciousnessHandshake  = "run.swarmbus.consciousness.handshake"
	EventConsciousnessStreamOpen = "run.swarmbus.consciousness.event"

	EventAgentJoined  = "run.swarmbus.agent.joined"
	EventAgentLeft    = "run.swarmbus.agent.left"
	EventConfigLoaded = "run.swarmbus.config.loaded"
	EventConfigChange = "run.swarmbus.config.changed"
)

// NewEvent builds a CloudEvent carrying data as its JSON payload. source
// identifies the emitting component (e.g. "paramengine", "peering").
func NewEvent(eventType, source string, data interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}
