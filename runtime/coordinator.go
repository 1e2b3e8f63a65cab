// Package runtime wires one Router, one agent Bus, one parameter Engine,
// and one peering Coordinator into a single Coordinator, built through a
// functional-options constructor in the style of the teacher's
// ApplicationBuilder/NewApplication pair — with no process-wide
// singletons, per spec §9's re-architecture note.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowcore/swarmbus/agentbus"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/paramengine"
	"github.com/flowcore/swarmbus/peering"
	"github.com/flowcore/swarmbus/telemetry"
	"github.com/flowcore/swarmbus/topicrouter"
	"github.com/robfig/cron/v3"
)

// ErrLoggerRequired mirrors the teacher's own NewApplication contract: a
// Coordinator without a logger is a configuration mistake, not something
// to silently paper over with a nop.
var ErrLoggerRequired = errors.New("runtime: logger must be set via WithLogger")

// Option configures a Coordinator under construction.
type Option func(*coordinatorBuilder) error

type coordinatorBuilder struct {
	logger          logging.Logger
	telemetry       telemetry.Subject
	routerConfig    topicrouter.Config
	paramConfig     paramengine.Config
	livenessSweep   time.Duration
	digestSchedule  string
}

// WithLogger sets the Coordinator's logger. Required.
func WithLogger(logger logging.Logger) Option {
	return func(b *coordinatorBuilder) error {
		b.logger = logger
		return nil
	}
}

// WithTelemetry sets the telemetry.Subject notified of runtime-level
// CloudEvents. Optional; nil disables telemetry emission.
func WithTelemetry(subject telemetry.Subject) Option {
	return func(b *coordinatorBuilder) error {
		b.telemetry = subject
		return nil
	}
}

// WithRouterConfig overrides the topic router's configuration.
func WithRouterConfig(cfg topicrouter.Config) Option {
	return func(b *coordinatorBuilder) error {
		b.routerConfig = cfg
		return nil
	}
}

// WithParamConfig overrides the parallel parameter engine's configuration.
func WithParamConfig(cfg paramengine.Config) Option {
	return func(b *coordinatorBuilder) error {
		b.paramConfig = cfg
		return nil
	}
}

// WithLivenessSweep sets the interval of the liveness-sweep ticker. Each
// tick only logs at debug level; no agent is pruned (see
// runLivenessSweep). Zero disables the sweep entirely.
func WithLivenessSweep(interval time.Duration) Option {
	return func(b *coordinatorBuilder) error {
		b.livenessSweep = interval
		return nil
	}
}

// WithDigestSchedule sets the cron expression for the periodic emergent-
// intelligence digest log. Empty disables it.
func WithDigestSchedule(expr string) Option {
	return func(b *coordinatorBuilder) error {
		b.digestSchedule = expr
		return nil
	}
}

// Coordinator is the assembled runtime: one Router, one Bus, one Engine,
// one peering Coordinator, plus the background maintenance jobs that tie
// them together.
type Coordinator struct {
	Router  *topicrouter.Router
	Bus     *agentbus.Bus
	Engine  *paramengine.Engine
	Peering *peering.Coordinator

	logger    logging.Logger
	telemetry telemetry.Subject

	cron *cron.Cron

	livenessSweep time.Duration
	livenessStop  chan struct{}
	wg            sync.WaitGroup
}

// NewCoordinator builds a Coordinator from opts.
func NewCoordinator(opts ...Option) (*Coordinator, error) {
	b := &coordinatorBuilder{
		paramConfig: paramengine.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.logger == nil {
		return nil, ErrLoggerRequired
	}

	router := topicrouter.NewRouter(b.routerConfig, b.logger)
	bus := agentbus.New(router, b.logger, b.telemetry)
	engine := paramengine.NewEngine(router, b.logger, b.telemetry, b.paramConfig)
	peeringCoordinator := peering.NewCoordinator(router, b.logger, b.telemetry)

	c := &Coordinator{
		Router:        router,
		Bus:           bus,
		Engine:        engine,
		Peering:       peeringCoordinator,
		logger:        b.logger,
		telemetry:     b.telemetry,
		livenessSweep: b.livenessSweep,
		livenessStop:  make(chan struct{}),
	}

	if b.livenessSweep > 0 {
		c.wg.Add(1)
		go c.runLivenessSweep()
	}

	if b.digestSchedule != "" {
		c.cron = cron.New()
		if _, err := c.cron.AddFunc(b.digestSchedule, c.logDigest); err != nil {
			return nil, err
		}
		c.cron.Start()
	}

	return c, nil
}

// runLivenessSweep is a placeholder maintenance loop: with no persistence
// layer and no heartbeat protocol defined yet (spec.md's Non-goals
// exclude event/subscription persistence), there is nothing concrete to
// prune today. The ticker exists so a future heartbeat mechanism has a
// scheduled hook to attach to without re-plumbing the Coordinator.
func (c *Coordinator) runLivenessSweep() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.livenessSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.logger.Debug("liveness sweep tick")
		case <-c.livenessStop:
			return
		}
	}
}

func (c *Coordinator) logDigest() {
	metrics := c.Peering.NetworkMetrics()
	c.logger.Info("emergent intelligence digest",
		"active_streams", metrics.ActiveStreams,
		"global_coherence", metrics.GlobalCoherence,
		"emergent_intelligence", metrics.EmergentIntelligence,
		"avg_latency_ms", metrics.AvgLatency.Milliseconds(),
	)
}

// Shutdown stops every background job and disposes the peering
// Coordinator's streams.
func (c *Coordinator) Shutdown(ctx context.Context) {
	if c.cron != nil {
		cronDone := c.cron.Stop()
		select {
		case <-cronDone.Done():
		case <-ctx.Done():
		}
	}
	if c.livenessSweep > 0 {
		close(c.livenessStop)
		c.wg.Wait()
	}
	c.Peering.Shutdown()
}
