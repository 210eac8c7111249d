// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vsync

import (
	"context"

	"code.hybscloud.com/vthread"
)

// waiter blocks one caller. A virtual thread parks; any other goroutine
// blocks on a channel. Wakeups before the wait are remembered.
type waiter struct {
	vt *vthread.VirtualThread
	ch chan struct{}
}

func newWaiter(ctx context.Context) *waiter {
	if vt, ok := vthread.CurrentVirtual(ctx); ok {
		return &waiter{vt: vt}
	}
	return &waiter{ch: make(chan struct{}, 1)}
}

func (w *waiter) wake() {
	if w.vt != nil {
		w.vt.Unpark()
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// wait blocks until ready reports true or ctx is done.
func (w *waiter) wait(ctx context.Context, ready func() bool) error {
	if w.vt != nil {
		stop := context.AfterFunc(ctx, w.vt.Unpark)
		defer stop()
	}
	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.vt != nil {
			if err := vthread.Park(ctx); err != nil {
				return err
			}
			continue
		}
		select {
		case <-w.ch:
		case <-ctx.Done():
		}
	}
	return nil
}
