package peering

import "time"

// StreamConfig is the per-stream ConsciousnessStreamConfig from spec §6.
type StreamConfig struct {
	// RequiredCapabilities are advertised during establishment but not
	// currently negotiated against anything — carried for forward
	// compatibility with a future capability-matching handshake.
	RequiredCapabilities []string `json:"requiredCapabilities" yaml:"requiredCapabilities"`

	BiologicalAuthenticity bool `json:"biologicalAuthenticity" yaml:"biologicalAuthenticity"`

	// MaxLatency bounds event age for the neural-speed validity check; an
	// event older than this when it reaches the front of the stream is
	// dropped and counted as a coherence violation. Default 1ms.
	MaxLatency time.Duration `json:"maxLatencyMs" yaml:"maxLatencyMs"`

	// BufferSize is the stream channel's capacity. Default 1024.
	BufferSize int `json:"bufferSize" yaml:"bufferSize"`

	EnableSynapticPlasticity bool `json:"enableSynapticPlasticity" yaml:"enableSynapticPlasticity"`
}

// DefaultStreamConfig matches spec §6's stated defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxLatency:               time.Millisecond,
		BufferSize:               1024,
		EnableSynapticPlasticity: true,
	}
}

// ValidateConfig fills in zero-valued fields with their defaults rather
// than rejecting them outright — every field here has a sane default, and
// a stream opened with a half-specified config should still work.
func (c StreamConfig) ValidateConfig() StreamConfig {
	if c.MaxLatency <= 0 {
		c.MaxLatency = time.Millisecond
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	return c
}
