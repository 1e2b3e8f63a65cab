// Package workerpool provides a small counting-semaphore-bounded pool for
// fanning work out across goroutines, shared by topicrouter (bounding
// concurrent subscriber invocation per Emit) and paramengine (bounding
// concurrent handler-parameter branches per Execute). It is deliberately
// minimal: no queueing, no priorities, no metrics beyond what each caller
// already tracks itself — just the acquire/release mechanics every
// bounded fan-out in this runtime needs.
package workerpool

import "context"

// Pool bounds how many goroutines spawned through it run at once.
type Pool struct {
	sem chan struct{}
}

// New builds a Pool allowing up to size goroutines to run concurrently.
// size <= 0 is treated as 1 rather than panicking or blocking forever.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Go acquires a slot (blocking until one is free) and runs fn in a new
// goroutine, releasing the slot when fn returns.
func (p *Pool) Go(fn func()) {
	p.sem <- struct{}{}
	go func() {
		defer func() { <-p.sem }()
		fn()
	}()
}

// TryGo acquires a slot and runs fn in a new goroutine, same as Go,
// unless ctx is done first — in which case it returns false without
// running fn at all. Used where a caller bounds a branch's total
// lifetime and would rather report "timed out waiting for a slot" than
// block past its deadline.
func (p *Pool) TryGo(ctx context.Context, fn func()) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	go func() {
		defer func() { <-p.sem }()
		fn()
	}()
	return true
}
