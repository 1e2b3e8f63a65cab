package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := New(2)
	var inFlight, maxSeen int32

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		pool.Go(func() {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxSeen)
				if n <= max || atomic.CompareAndSwapInt32(&maxSeen, max, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			done <- struct{}{}
		})
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.LessOrEqual(t, int(maxSeen), 2)
}

func TestTryGoRespectsCancellation(t *testing.T) {
	pool := New(1)
	blockCh := make(chan struct{})
	pool.Go(func() { <-blockCh })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := pool.TryGo(ctx, func() {})
	assert.False(t, ran)

	close(blockCh)
}
