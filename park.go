// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"runtime"
	"time"
)

func currentVirtual(ctx context.Context, op string) (*VirtualThread, error) {
	vt, ok := CurrentVirtual(ctx)
	if !ok {
		return nil, &ThreadError{Op: op, Err: ErrNotVirtual}
	}
	return vt, nil
}

// Park suspends the current virtual thread until it is unparked or
// interrupted. A pending permit is consumed and Park returns at once.
//
// Park returns an error wrapping ErrInterrupted when the thread's interrupt
// flag is set, and ErrNotVirtual when ctx belongs to no virtual thread.
// Like any park, it may return without a matching Unpark; callers recheck
// their condition in a loop.
func Park(ctx context.Context) error {
	vt, err := currentVirtual(ctx, "park")
	if err != nil {
		return err
	}
	return vt.park(ctx)
}

// ParkTimeout parks the current virtual thread for at most d.
func ParkTimeout(ctx context.Context, d time.Duration) error {
	vt, err := currentVirtual(ctx, "park")
	if err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	cancel := unparkAfter(vt, d)
	defer cancel()
	return vt.park(ctx)
}

// Sleep pauses the current thread for d or until ctx is done. A virtual
// thread parks and releases its carrier; any other caller blocks.
func Sleep(ctx context.Context, d time.Duration) error {
	vt, ok := CurrentVirtual(ctx)
	if !ok {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stop := context.AfterFunc(ctx, vt.Unpark)
	defer stop()
	deadline := time.Now().Add(d)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil
		}
		if err := ParkTimeout(ctx, remain); err != nil {
			return err
		}
	}
}

// Gosched yields the current virtual thread's carrier. The thread goes to
// the back of its executor's queue. Outside a virtual thread it calls
// runtime.Gosched.
func Gosched(ctx context.Context) error {
	vt, ok := CurrentVirtual(ctx)
	if !ok {
		runtime.Gosched()
		return nil
	}
	return vt.yieldAs(ctx, threadYielding)
}

// Interrupted reports whether the current virtual thread was interrupted
// and clears the flag.
func Interrupted(ctx context.Context) bool {
	vt, ok := CurrentVirtual(ctx)
	if !ok {
		return false
	}
	return vt.interrupted.Swap(false)
}
