// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"runtime"
	"sync"
)

// maxCaptureDepth bounds the program counters recorded at a yield point.
const maxCaptureDepth = 64

var capturePool = sync.Pool{
	New: func() any { return new(capture) },
}

// capture is the captured-state handle of a suspended continuation.
// leaf is the continuation whose goroutine is parked inside Yield; it is
// the target itself unless the yield crossed nested continuations.
// pcs records the leaf's call stack at the yield point for stack traces.
type capture struct {
	leaf *Continuation
	pcs  [maxCaptureDepth]uintptr
	n    int
}

func acquireCapture() *capture {
	return capturePool.Get().(*capture)
}

func releaseCapture(cp *capture) {
	cp.leaf = nil
	cp.n = 0
	capturePool.Put(cp)
}

// record stores the caller's stack, skipping skip frames above record's caller.
func (cp *capture) record(skip int) {
	cp.n = runtime.Callers(skip+2, cp.pcs[:])
}

// frames resolves the recorded program counters, expanding inlined calls.
func (cp *capture) frames() []Frame {
	if cp.n == 0 {
		return nil
	}
	out := make([]Frame, 0, cp.n)
	it := runtime.CallersFrames(cp.pcs[:cp.n])
	for {
		f, more := it.Next()
		out = append(out, Frame{Function: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return out
}
