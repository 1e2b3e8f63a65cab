// Command swarmbusd wires a runtime.Coordinator, registers a handful of
// demonstration handlers, and serves the optional read-only status
// surface. It exists to prove the pieces connect end to end, not as a
// production daemon.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowcore/swarmbus/agentbus"
	"github.com/flowcore/swarmbus/config"
	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/httpstatus"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/runtime"
	"github.com/flowcore/swarmbus/telemetry"
)

func main() {
	cfg := config.Default()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	broadcaster := telemetry.NewBroadcaster()

	if path := os.Getenv("SWARMBUS_CONFIG_PATH"); path != "" {
		if err := loadConfigFile(path, &cfg, broadcaster, logger); err != nil {
			logger.Error("failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
	}

	coordinator, err := runtime.NewCoordinator(
		runtime.WithLogger(logger),
		runtime.WithTelemetry(broadcaster),
		runtime.WithParamConfig(cfg.Param),
		runtime.WithLivenessSweep(30*time.Second),
		runtime.WithDigestSchedule("@every 1m"),
	)
	if err != nil {
		logger.Error("failed to build coordinator", "error", err)
		os.Exit(1)
	}

	registerConsoleHandlers(coordinator, logger)

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		router := httpstatus.NewRouter(httpstatus.Sources{
			Agents:  coordinator.Bus,
			Peering: coordinator.Peering,
		})
		httpServer = &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coordinator.Shutdown(shutdownCtx)
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
}

// loadConfigFile layers a file-based feeder (chosen by extension) and the
// environment feeder over cfg, validates the result, and emits the
// config.loaded telemetry event that marks the end of process-startup
// configuration — distinct from config.Watcher's config.changed event
// emitted on every later hot-reload.
func loadConfigFile(path string, cfg *config.RuntimeConfig, subject telemetry.Subject, logger logging.Logger) error {
	fileFeeder, err := config.ForPath(path)
	if err != nil {
		return err
	}
	if err := config.Load([]config.Feeder{fileFeeder, config.NewEnvFeeder()}, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("config loaded", "path", path)
	_ = subject.NotifyObservers(context.Background(), telemetry.NewEvent(telemetry.EventConfigLoaded, "swarmbusd", map[string]any{
		"path": path,
	}))
	return nil
}

// registerConsoleHandlers wires one demonstration agent onto
// system.console.log and system.time.* so a new deployment has something
// observable to subscribe to immediately.
func registerConsoleHandlers(c *runtime.Coordinator, logger logging.Logger) {
	agentID, err := c.Bus.JoinBus("console", "observer", agentbus.ScopeGlobal, nil, nil, "")
	if err != nil {
		logger.Error("failed to join console agent", "error", err)
		return
	}

	_, err = c.Bus.Subscribe(agentID, "system.console.log", "console-log", func(_ context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		logger.Info("console event", "sender", sender, "topic", topic, "payload", payload)
		return true, nil
	})
	if err != nil {
		logger.Error("failed to subscribe console agent", "error", err)
	}

	_, err = c.Bus.Subscribe(agentID, "system.time.*", "console-time", func(_ context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		logger.Debug("time event", "topic", topic)
		return true, nil
	})
	if err != nil {
		logger.Error("failed to subscribe time agent", "error", err)
	}
}
