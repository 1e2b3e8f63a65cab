// Package config defines the process-wide configuration surface (spec §6)
// and the file/env loading + hot-reload machinery around it, in the style
// of the teacher's feeders package and its per-struct ValidateConfig
// convention.
package config

import (
	"github.com/flowcore/swarmbus/paramengine"
	"github.com/flowcore/swarmbus/peering"
	"github.com/flowcore/swarmbus/topicrouter"
)

// LoggingConfig controls the slog-backed Logger constructed at startup.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"` // "text" or "json"
}

// HTTPConfig controls the optional read-only status surface.
type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"HTTP_ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"HTTP_ADDR"`
}

// RuntimeConfig is the top-level configuration object every feeder
// populates: one struct per subsystem, each validated independently.
type RuntimeConfig struct {
	Router    topicrouter.Config    `json:"router" yaml:"router"`
	Param     paramengine.Config    `json:"param" yaml:"param"`
	Stream    peering.StreamConfig  `json:"stream" yaml:"stream"`
	Logging   LoggingConfig         `json:"logging" yaml:"logging"`
	HTTP      HTTPConfig            `json:"http" yaml:"http"`
}

// Default returns a RuntimeConfig with every subsystem's documented
// defaults.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Param:   paramengine.DefaultConfig(),
		Stream:  peering.DefaultStreamConfig(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP:    HTTPConfig{Enabled: false, Addr: ":8080"},
	}
}

// Validate returns the parameter engine configuration's ValidateConfig
// error, if any. The stream configuration's ValidateConfig only fills in
// defaults and never fails; its result is not kept, since Validate has a
// value receiver. The router, logging and HTTP sections are not checked.
func (c RuntimeConfig) Validate() error {
	if err := c.Param.ValidateConfig(); err != nil {
		return err
	}
	c.Stream = c.Stream.ValidateConfig()
	return nil
}
