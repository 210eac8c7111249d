// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vsync

import (
	"context"
	"slices"
	"sync"
)

// Exchanger is a synchronous handoff: Transfer waits until a Take receives
// its value, and Take waits until a Transfer supplies one. Matching is FIFO
// on both sides.
type Exchanger[T any] struct {
	mu    sync.Mutex
	puts  []*node[T]
	takes []*node[T]
}

type node[T any] struct {
	w       *waiter
	v       T
	matched bool
}

// NewExchanger returns an empty exchanger.
func NewExchanger[T any]() *Exchanger[T] {
	return &Exchanger[T]{}
}

// Transfer hands v to a taker, waiting for one if none is waiting.
func (e *Exchanger[T]) Transfer(ctx context.Context, v T) error {
	e.mu.Lock()
	if len(e.takes) > 0 {
		n := e.takes[0]
		e.takes = e.takes[1:]
		n.v = v
		n.matched = true
		e.mu.Unlock()
		n.w.wake()
		return nil
	}
	n := &node[T]{w: newWaiter(ctx), v: v}
	e.puts = append(e.puts, n)
	e.mu.Unlock()

	_, err := e.await(ctx, n, &e.puts)
	return err
}

// Take receives a value from a transferer, waiting for one if none is waiting.
func (e *Exchanger[T]) Take(ctx context.Context) (T, error) {
	e.mu.Lock()
	if len(e.puts) > 0 {
		n := e.puts[0]
		e.puts = e.puts[1:]
		n.matched = true
		v := n.v
		e.mu.Unlock()
		n.w.wake()
		return v, nil
	}
	n := &node[T]{w: newWaiter(ctx)}
	e.takes = append(e.takes, n)
	e.mu.Unlock()

	return e.await(ctx, n, &e.takes)
}

// await waits for n to be matched. On cancellation n leaves its queue,
// unless a match won the race.
func (e *Exchanger[T]) await(ctx context.Context, n *node[T], queue *[]*node[T]) (T, error) {
	err := n.w.wait(ctx, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return n.matched
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil && !n.matched {
		*queue = slices.DeleteFunc(*queue, func(x *node[T]) bool { return x == n })
		var zero T
		return zero, err
	}
	return n.v, nil
}

// Waiting returns the number of blocked transferers and takers.
func (e *Exchanger[T]) Waiting() (puts, takes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.puts), len(e.takes)
}
