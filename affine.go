// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"sync/atomic"
	"time"
)

// affine is a one-shot claim. The first take succeeds; every later take
// fails. Timed wakeups use it so a timer that fires after the park already
// returned cannot leave a stale permit behind.
type affine struct {
	used atomic.Uintptr
}

func (a *affine) take() bool {
	return a.used.Add(1) == 1
}

// unparkAfter unparks vt after d unless the returned cancel runs first.
func unparkAfter(vt *VirtualThread, d time.Duration) (cancel func()) {
	var once affine
	t := time.AfterFunc(d, func() {
		if once.take() {
			vt.Unpark()
		}
	})
	return func() {
		if once.take() {
			t.Stop()
		}
	}
}
