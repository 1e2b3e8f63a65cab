package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestYamlFeederLoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmbus.yaml")
	contents := `
param:
  maxConcurrent: 4
  parameterTimeoutMs: 5000000000
stream:
  bufferSize: 2048
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg := Default()
	feed, err := ForPath(path)
	require.NoError(t, err)
	require.NoError(t, feed.Feed(&cfg))

	assert.Equal(t, 4, cfg.Param.MaxConcurrent)
	assert.Equal(t, 2048, cfg.Stream.BufferSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Param.ParameterTimeout)
}

func TestForPathRejectsUnknownExtension(t *testing.T) {
	_, err := ForPath("config.ini")
	assert.Error(t, err)
}

func TestTomlFeederFeedKeyLoadsSubtree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmbus.toml")
	contents := `
[param]
maxConcurrent = 8

[stream]
bufferSize = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	feed := NewTomlFeeder(path)

	var param struct {
		MaxConcurrent int `toml:"maxConcurrent"`
	}
	require.NoError(t, feed.FeedKey("param", &param))
	assert.Equal(t, 8, param.MaxConcurrent)

	var stream struct {
		BufferSize int `toml:"bufferSize"`
	}
	require.NoError(t, feed.FeedKey("stream", &stream))
	assert.Equal(t, 4096, stream.BufferSize)

	var missing struct{ X int }
	require.NoError(t, feed.FeedKey("nonexistent", &missing))
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swarmbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	reloaded := make(chan RuntimeConfig, 1)
	w, err := NewWatcher(path, nil, nil, func(cfg RuntimeConfig) error {
		reloaded <- cfg
		return nil
	})
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
