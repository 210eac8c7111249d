// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"runtime"
	"slices"
	"strconv"
	"strings"

	"code.hybscloud.com/vthread/internal/stackdump"
)

// Frame is one call frame of a virtual thread's stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (f Frame) String() string {
	return f.Function + " (" + f.File + ":" + strconv.Itoa(f.Line) + ")"
}

const packagePrefix = "code.hybscloud.com/vthread."

func internalFrame(f Frame) bool {
	return strings.HasPrefix(f.Function, packagePrefix) || strings.HasPrefix(f.Function, "runtime.")
}

// StackTrace returns the thread's stack, innermost frame first, with frames
// of this package and the runtime removed.
//
// A parked or runnable thread reports the stack captured where it yielded.
// A mounted thread reports the live stack of the goroutines executing it.
// An unstarted or terminated thread has no stack.
func (vt *VirtualThread) StackTrace() []Frame {
	const attempts = 16
	for range attempts {
		switch vt.State() {
		case ThreadNew, ThreadStarted, ThreadTerminated:
			return nil
		}
		if frames, ok := vt.capturedStack(); ok {
			return slices.DeleteFunc(frames, internalFrame)
		}
		if frames, ok := vt.mountedStack(); ok {
			return slices.DeleteFunc(frames, internalFrame)
		}
		runtime.Gosched()
	}
	return nil
}

// capturedStack reads the capture of an unmounted thread. Holding mu keeps
// the thread from being mounted, so the capture cannot be released.
func (vt *VirtualThread) capturedStack() ([]Frame, bool) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	switch ThreadState(vt.state.Load()) {
	case ThreadParked, ThreadRunnable:
	default:
		return nil, false
	}
	cp := vt.cont.capture.Load()
	if cp == nil {
		return nil, false
	}
	frames := cp.frames()
	if cp.leaf == vt.cont {
		return frames, true
	}

	// Continuations nested between the leaf and the thread are parked in Run.
	var outer []*Continuation
	for k := cp.leaf.parent; k != nil; k = k.parent {
		outer = append(outer, k)
	}
	rest, ok := goroutineFrames(outer)
	if !ok {
		return nil, false
	}
	return append(frames, rest...), true
}

// mountedStack dumps the goroutines of the mounted continuation chain.
func (vt *VirtualThread) mountedStack() ([]Frame, bool) {
	if ThreadState(vt.state.Load()) == ThreadParked {
		return nil, false
	}
	var chain []*Continuation
	for k := vt.cont; k != nil; k = k.child.Load() {
		chain = append(chain, k)
	}
	slices.Reverse(chain)
	frames, ok := goroutineFrames(chain)
	if !ok || vt.cont.State() != Mounted {
		return nil, false
	}
	return frames, true
}

// goroutineFrames concatenates the stacks of the given continuations'
// goroutines, in order, from one dump.
func goroutineFrames(conts []*Continuation) ([]Frame, bool) {
	want := make(map[int64]bool, len(conts))
	for _, k := range conts {
		id := k.goid.Load()
		if id == 0 {
			return nil, false
		}
		want[id] = true
	}
	dump := stackdump.Snapshot(want)
	var frames []Frame
	for _, k := range conts {
		g := dump[k.goid.Load()]
		if g == nil {
			return nil, false
		}
		for _, f := range g.Frames {
			frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
	}
	return frames, true
}
