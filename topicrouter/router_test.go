package topicrouter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowcore/swarmbus/eventcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	r := NewRouter(Config{}, nil)

	var calls int32
	id, err := r.Subscribe("user.created", "h1", func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	}, "agent-1")
	require.NoError(t, err)

	n, err := r.Emit(context.Background(), eventcore.New("user.created", nil, "test"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	ok, err := r.Unsubscribe(id)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = r.Emit(context.Background(), eventcore.New("user.created", nil, "test"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoubleSubscribeSameKeyDeduplicates(t *testing.T) {
	r := NewRouter(Config{}, nil)
	var calls int32
	h := func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	}

	id1, err := r.Subscribe("x", "same-key", h, "a")
	require.NoError(t, err)
	id2, err := r.Subscribe("x", "same-key", h, "a")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = r.Emit(context.Background(), eventcore.New("x", nil, "test"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestWildcardMatching(t *testing.T) {
	r := NewRouter(Config{}, nil)
	var gotTopics []string
	var mu sync.Mutex
	_, err := r.Subscribe("user.*", "w1", func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		mu.Lock()
		gotTopics = append(gotTopics, topic)
		mu.Unlock()
		return true, nil
	}, "a")
	require.NoError(t, err)

	n, err := r.Emit(context.Background(), eventcore.New("user.created", nil, "test"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Emit(context.Background(), eventcore.New("order.created", nil, "test"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"user.created"}, gotTopics)
	mu.Unlock()
}

func TestHandlerErrorDoesNotCancelSiblings(t *testing.T) {
	r := NewRouter(Config{}, nil)
	var okCalls int32

	_, err := r.Subscribe("topic", "fails", func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		panic("boom")
	}, "a")
	require.NoError(t, err)
	_, err = r.Subscribe("topic", "succeeds", func(ctx context.Context, sender, topic string, payload eventcore.Payload) (bool, error) {
		atomic.AddInt32(&okCalls, 1)
		return true, nil
	}, "b")
	require.NoError(t, err)

	n, err := r.Emit(context.Background(), eventcore.New("topic", nil, "test"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 1, atomic.LoadInt32(&okCalls))
}

func TestUnknownUnsubscribeReturnsFalse(t *testing.T) {
	r := NewRouter(Config{}, nil)
	ok, err := r.Unsubscribe("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNilHandlerRejected(t *testing.T) {
	r := NewRouter(Config{}, nil)
	_, err := r.Subscribe("topic", "k", nil, "a")
	assert.ErrorIs(t, err, ErrHandlerNil)
}
