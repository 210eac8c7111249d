// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vsync

import (
	"context"
	"slices"
	"sync"
)

// Latch is a one-shot countdown. Await returns once the count reaches zero.
type Latch struct {
	mu      sync.Mutex
	count   int
	waiters []*waiter
}

// NewLatch returns a latch that opens after n calls to CountDown.
func NewLatch(n int) *Latch {
	return &Latch{count: max(n, 0)}
}

// CountDown decrements the count and releases every waiter at zero.
// It has no effect on an open latch.
func (l *Latch) CountDown() {
	l.mu.Lock()
	if l.count == 0 {
		l.mu.Unlock()
		return
	}
	l.count--
	var ws []*waiter
	if l.count == 0 {
		ws, l.waiters = l.waiters, nil
	}
	l.mu.Unlock()
	for _, w := range ws {
		w.wake()
	}
}

// Count returns the remaining count.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Latch) open() bool {
	return l.Count() == 0
}

// Await blocks until the latch opens or ctx is done.
func (l *Latch) Await(ctx context.Context) error {
	w := newWaiter(ctx)
	l.mu.Lock()
	if l.count == 0 {
		l.mu.Unlock()
		return nil
	}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	if err := w.wait(ctx, l.open); err != nil {
		l.mu.Lock()
		l.waiters = slices.DeleteFunc(l.waiters, func(x *waiter) bool { return x == w })
		l.mu.Unlock()
		return err
	}
	return nil
}
