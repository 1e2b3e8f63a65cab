// Package paramengine implements the Parallel Handler Parameter Engine
// from spec §4.3: given an event carrying a duck-typed "handlers" map, it
// fans each entry out to its target topic concurrently, waits for each
// branch's result (or its own timeout) independently of its siblings, and
// folds everything back into a single enhanced payload.
package paramengine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/internal/workerpool"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/telemetry"
	"github.com/google/uuid"
)

// EventSource is the narrow surface the engine needs to publish branch
// requests and await their results. topicrouter.Router and agentbus.Bus's
// underlying router both satisfy it.
type EventSource interface {
	Subscribe(topic, key string, handler eventcore.Handler, ownerID string) (string, error)
	Unsubscribe(id string) (bool, error)
	Emit(ctx context.Context, event eventcore.Event) (int, error)
}

// Engine runs the parallel fan-out/aggregate cycle described above.
type Engine struct {
	source    EventSource
	logger    logging.Logger
	telemetry telemetry.Subject
	cfg       Config
	pool      *workerpool.Pool
}

// NewEngine constructs an Engine bound to source. cfg is validated; an
// invalid cfg falls back to DefaultConfig with the validation error
// logged, since a misconfigured engine should still run rather than
// refuse every event.
func NewEngine(source EventSource, logger logging.Logger, telemetrySubject telemetry.Subject, cfg Config) *Engine {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if err := cfg.ValidateConfig(); err != nil {
		logger.Warn("invalid paramengine config, falling back to defaults", "error", err)
		cfg = DefaultConfig()
	}
	return &Engine{
		source:    source,
		logger:    logger,
		telemetry: telemetrySubject,
		cfg:       cfg,
		pool:      workerpool.New(cfg.MaxConcurrent),
	}
}

// branchOutcome is the internal result of running a single handler
// parameter branch to completion.
type branchOutcome struct {
	name    string
	topic   string
	details ParameterExecutionDetails
}

// Execute runs the full fan-out/aggregate cycle for one incoming event.
// It never returns a Go error for a branch failure or timeout — those are
// represented in the returned ParallelParameterResult, per spec §7.
func (e *Engine) Execute(ctx context.Context, topic string, payload eventcore.Payload, source string) ParallelParameterResult {
	spec, err := ExtractHandlerSpec(payload)
	if err != nil {
		return ParallelParameterResult{
			Outcome:       OutcomeValidationFailed,
			OriginalTopic: topic,
			Error:         err,
		}
	}

	if len(spec) == 0 {
		return ParallelParameterResult{
			Outcome:         OutcomeNoOp,
			OriginalTopic:   topic,
			EnhancedPayload: map[string]any(payload.Clone()),
		}
	}

	e.emitTelemetry(telemetry.EventParallelHandlersRegistered, map[string]any{
		"topic":         topic,
		"handler_count": len(spec),
		"parameters":    sortedHandlerNames(spec),
	})

	start := time.Now()
	outcomes := e.runBranches(ctx, topic, payload, source, spec)
	elapsed := time.Since(start)

	enhanced, details := e.aggregate(payload, outcomes)

	result := ParallelParameterResult{
		Outcome:         OutcomeSuccess,
		OriginalTopic:   topic,
		EnhancedPayload: enhanced,
		Details:         details,
		Metadata: ParallelExecutionMetadata{
			HandlerCount:     len(spec),
			ExecutionMode:    string(e.cfg.ResultAggregationMode),
			Timestamp:        time.Now(),
			ResultProperties: sortedKeys(details),
		},
	}

	if e.cfg.PerformanceMonitoringEnabled {
		result.PerformanceImprovementPercent = performanceImprovementPercent(len(spec), elapsed)
		e.emitTelemetry(telemetry.EventParallelPerformanceAchievement, map[string]any{
			"topic":               topic,
			"handler_count":       len(spec),
			"elapsed_ms":          elapsed.Milliseconds(),
			"improvement_percent": result.PerformanceImprovementPercent,
		})
		e.emitTelemetry(telemetry.EventParallelSystemMetrics, map[string]any{
			"max_concurrent": e.cfg.MaxConcurrent,
			"handler_count":  len(spec),
			"elapsed_ms":     elapsed.Milliseconds(),
		})
	}

	enhanced["_parallelExecution"] = result.Metadata
	e.publish(ctx, topic, enhanced, e.backwardCompatSummary(outcomes, elapsed, result.PerformanceImprovementPercent), source)
	return result
}

// backwardCompatSummary builds the smaller payload re-emitted on the
// original topic, for subscribers written before fan-out was introduced:
// a flat name->result map plus the aggregate success/timing/performance
// figures, never the full enhanced payload.
func (e *Engine) backwardCompatSummary(outcomes []branchOutcome, elapsed time.Duration, performanceImprovement float64) map[string]any {
	results := make(map[string]any, len(outcomes))
	success := true
	for _, o := range outcomes {
		results[o.name] = o.details.Result
		if !o.details.Success {
			success = false
		}
	}
	return map[string]any{
		"result":                 results,
		"success":                success,
		"executionTimeMs":        elapsed.Milliseconds(),
		"parallelOptimized":      true,
		"performanceImprovement": performanceImprovement,
	}
}

// runBranches fans every parameter out concurrently, each bounded by the
// engine's semaphore, and collects every branch's outcome regardless of
// whether it succeeded, failed, or timed out — one branch's fate never
// cancels another's.
func (e *Engine) runBranches(ctx context.Context, topic string, payload eventcore.Payload, source string, spec HandlerSpec) []branchOutcome {
	var wg sync.WaitGroup
	results := make([]branchOutcome, len(spec))
	names := sortedHandlerNames(spec)
	streaming := e.cfg.ResultAggregationMode == AggregationStream && e.cfg.StreamProcessingEnabled

	for i, name := range names {
		i, name := i, name
		targetTopic := spec[name]

		wg.Add(1)
		started := e.pool.TryGo(ctx, func() {
			defer wg.Done()
			outcome := e.runSingleBranch(ctx, topic, payload, source, name, targetTopic)
			results[i] = outcome
			if streaming {
				e.publishStreamResult(ctx, topic, source, outcome)
			}
		})
		if !started {
			wg.Done()
			outcome := branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
				ParameterName: name, Success: false, State: BranchTimedOut,
				Result: map[string]any{"error": "timeout"},
			}}
			results[i] = outcome
			if streaming {
				e.publishStreamResult(ctx, topic, source, outcome)
			}
		}
	}

	wg.Wait()
	return results
}

// publishStreamResult emits a single branch's result the moment it
// settles, implementing AggregationStream's documented "republish each
// branch result as it arrives" behavior. It is additive: the final
// aggregate-and-publish cycle still runs once every branch has settled.
func (e *Engine) publishStreamResult(ctx context.Context, topic, source string, o branchOutcome) {
	streamPayload := map[string]any{
		"parameterName": o.name,
		"result":        o.details.Result,
		"success":       o.details.Success,
		"executionMs":   o.details.ExecutionTime.Milliseconds(),
	}
	if _, err := e.source.Emit(ctx, eventcore.New(topic+".stream", streamPayload, source)); err != nil {
		e.logger.Error("failed to publish streamed branch result", "topic", topic, "parameter", o.name, "error", err)
	}
}

// runSingleBranch emits one parameter branch's target topic and awaits a
// single reply on "<target-topic>.result", subject to the engine's
// configured timeout.
func (e *Engine) runSingleBranch(ctx context.Context, originalTopic string, payload eventcore.Payload, source, name, targetTopic string) branchOutcome {
	started := time.Now()
	resultTopic := targetTopic + ".result"
	correlationID := uuid.New().String()

	resultCh := make(chan eventcore.Payload, 1)
	subKey := "paramengine-branch-" + correlationID
	subID, err := e.source.Subscribe(resultTopic, subKey, func(_ context.Context, _, _ string, resultPayload eventcore.Payload) (bool, error) {
		if cid, _ := resultPayload.String("correlationId"); cid != "" && cid != correlationID {
			return true, nil // not ours; leave for the real recipient
		}
		select {
		case resultCh <- resultPayload:
		default:
		}
		return true, nil
	}, "paramengine")
	if err != nil {
		return branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
			ParameterName: name, Success: false, State: BranchFailed, Result: err.Error(),
		}}
	}
	defer func() { _, _ = e.source.Unsubscribe(subID) }()

	branchPayload := e.buildBranchPayload(payload, correlationID, name, originalTopic)

	if _, err := e.source.Emit(ctx, eventcore.New(targetTopic, branchPayload, source)); err != nil {
		return branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
			ParameterName: name, Success: false, State: BranchFailed, Result: err.Error(),
			ExecutionTime: time.Since(started),
		}}
	}

	timeout := e.cfg.ParameterTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ParameterTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resultPayload := <-resultCh:
		return branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
			ParameterName: name,
			Success:       true,
			State:         BranchSucceeded,
			Result:        map[string]any(resultPayload),
			ExecutionTime: time.Since(started),
		}}
	case <-timer.C:
		e.emitTelemetry(telemetry.EventParallelExecutionFailed, map[string]any{
			"parameter": name, "topic": targetTopic, "reason": "timeout",
		})
		return branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
			ParameterName: name, Success: false, State: BranchTimedOut,
			Result:        map[string]any{"error": "timeout"},
			ExecutionTime: time.Since(started),
		}}
	case <-ctx.Done():
		return branchOutcome{name: name, topic: targetTopic, details: ParameterExecutionDetails{
			ParameterName: name, Success: false, State: BranchTimedOut,
			Result:        map[string]any{"error": "timeout"},
			ExecutionTime: time.Since(started),
		}}
	}
}

// buildBranchPayload constructs the payload emitted to a branch's
// target topic. With ConsciousnessContextPreservation enabled (the
// default) it carries every field of the original payload, so a branch
// handler can see its siblings' context; disabled, only the correlation
// fields are carried, so a branch sees nothing beyond its own identity.
func (e *Engine) buildBranchPayload(original eventcore.Payload, correlationID, name, originalTopic string) eventcore.Payload {
	var branchPayload eventcore.Payload
	if e.cfg.ConsciousnessContextPreservation {
		branchPayload = original.Clone()
	} else {
		branchPayload = eventcore.Payload{}
	}
	branchPayload["correlationId"] = correlationID
	branchPayload["parameterName"] = name
	branchPayload["originalTopic"] = originalTopic
	return branchPayload
}

// aggregate folds every branch outcome into the enhanced payload. Under
// AggregationSimple, enhanced[param] is the bare branch result — the
// latest (and only) value for that parameter. Under AggregationEnhanced
// (the default) and AggregationStream, enhanced[param] is the full
// ParameterExecutionDetails object per spec §4.3/§8, and a
// "_parameterExecution" map of the same details is added for convenient
// bulk access. A parameter name that collides with a key already present
// on the original payload is preserved as [original, new] rather than
// one silently overwriting the other, whenever the two serialize
// differently.
func (e *Engine) aggregate(original eventcore.Payload, outcomes []branchOutcome) (map[string]any, map[string]ParameterExecutionDetails) {
	enhanced := map[string]any(original.Clone())
	details := make(map[string]ParameterExecutionDetails, len(outcomes))
	simple := e.cfg.ResultAggregationMode == AggregationSimple

	for _, o := range outcomes {
		details[o.name] = o.details

		var value any = o.details
		if simple {
			value = o.details.Result
		}

		if existing, collides := enhanced[o.name]; collides && !sameSerialization(existing, value) {
			enhanced[o.name] = []any{existing, value}
		} else {
			enhanced[o.name] = value
		}
	}

	if !simple {
		enhanced["_parameterExecution"] = details
	}
	return enhanced, details
}

func sameSerialization(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}

// publish emits the "<topic>.enhanced" event carrying the full aggregated
// payload, then re-emits summary on the bare original topic so
// subscribers written before fan-out was introduced keep working
// unmodified — summary is deliberately a much smaller shape than
// enhanced, never the aggregate itself.
func (e *Engine) publish(ctx context.Context, topic string, enhanced, summary map[string]any, source string) {
	if _, err := e.source.Emit(ctx, eventcore.New(topic+".enhanced", enhanced, source)); err != nil {
		e.logger.Error("failed to publish enhanced result", "topic", topic, "error", err)
	} else {
		e.emitTelemetry(telemetry.EventParallelResultEnhanced, map[string]any{"topic": topic})
	}
	if _, err := e.source.Emit(ctx, eventcore.New(topic, summary, source)); err != nil {
		e.logger.Error("failed to publish backward-compatible summary", "topic", topic, "error", err)
	}
}

func (e *Engine) emitTelemetry(eventType string, data map[string]any) {
	if e.telemetry == nil {
		return
	}
	_ = e.telemetry.NotifyObservers(context.Background(), telemetry.NewEvent(eventType, "paramengine", data))
}

func sortedHandlerNames(spec HandlerSpec) []string {
	names := make([]string, 0, len(spec))
	for name := range spec {
		names = append(names, name)
	}
	// Stable, deterministic branch ordering makes tests reproducible;
	// execution itself is still fully concurrent.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

func sortedKeys(m map[string]ParameterExecutionDetails) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
