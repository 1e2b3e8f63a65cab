package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCoordinatorRequiresLogger(t *testing.T) {
	_, err := NewCoordinator()
	assert.ErrorIs(t, err, ErrLoggerRequired)
}

func TestCoordinatorWiresSubsystems(t *testing.T) {
	c, err := NewCoordinator(WithLogger(logging.NopLogger{}))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	require.NotNil(t, c.Router)
	require.NotNil(t, c.Bus)
	require.NotNil(t, c.Engine)
	require.NotNil(t, c.Peering)

	agentID, err := c.Bus.JoinBus("tester", "", 0, nil, nil, "")
	require.NoError(t, err)

	var got string
	_, err = c.Bus.Subscribe(agentID, "ping", "k", func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		got = topic
		return true, nil
	})
	require.NoError(t, err)

	n, err := c.Bus.Emit(context.Background(), "ping", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ping", got)
}

func TestCoordinatorLivenessSweepStopsCleanly(t *testing.T) {
	c, err := NewCoordinator(WithLogger(logging.NopLogger{}), WithLivenessSweep(5*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	c.Shutdown(context.Background())
}
