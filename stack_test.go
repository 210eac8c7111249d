// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/vthread"
)

//go:noinline
func level1Mounted(started chan<- struct{}, stop *atomic.Bool) {
	level2Mounted(started, stop)
}

//go:noinline
func level2Mounted(started chan<- struct{}, stop *atomic.Bool) {
	close(started)
	for !stop.Load() {
	}
}

//go:noinline
func level1Unmounted(ctx context.Context) error {
	return level2Unmounted(ctx)
}

//go:noinline
func level2Unmounted(ctx context.Context) error {
	return vthread.Park(ctx)
}

func countLevelFrames(frames []vthread.Frame) int {
	n := 0
	for _, f := range frames {
		if strings.Contains(f.Function, ".level1") || strings.Contains(f.Function, ".level2") {
			n++
		}
	}
	return n
}

func assertNoInternalFrames(t *testing.T, frames []vthread.Frame) {
	t.Helper()
	for _, f := range frames {
		if strings.HasPrefix(f.Function, "code.hybscloud.com/vthread.") || strings.HasPrefix(f.Function, "runtime.") {
			t.Fatalf("internal frame %s not trimmed", f)
		}
	}
}

func TestStackTraceMounted(t *testing.T) {
	s := newScheduler(t, vthread.WithParallelism(1))
	started := make(chan struct{})
	var stop atomic.Bool
	vt := vthread.NewVirtualThread(s, "busy", func(ctx context.Context) error {
		level1Mounted(started, &stop)
		return nil
	})
	if err := vt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	frames := vt.StackTrace()
	stop.Store(true)
	if err := vt.Join(testContext(t)); err != nil {
		t.Fatalf("join: %v", err)
	}

	if got := countLevelFrames(frames); got != 2 {
		t.Fatalf("got %d level frames in %v, want 2", got, frames)
	}
	assertNoInternalFrames(t, frames)
	if vt.StackTrace() != nil {
		t.Fatal("terminated thread has a stack")
	}
}

func TestStackTraceParked(t *testing.T) {
	s := newScheduler(t, vthread.WithParallelism(1))
	vt := vthread.NewVirtualThread(s, "parked", func(ctx context.Context) error {
		return level1Unmounted(ctx)
	})
	if vt.StackTrace() != nil {
		t.Fatal("new thread has a stack")
	}
	if err := vt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, vt, vthread.ThreadParked)
	frames := vt.StackTrace()
	vt.Unpark()
	if err := vt.Join(testContext(t)); err != nil {
		t.Fatalf("join: %v", err)
	}

	if got := countLevelFrames(frames); got != 2 {
		t.Fatalf("got %d level frames in %v, want 2", got, frames)
	}
	assertNoInternalFrames(t, frames)
	if !strings.HasSuffix(frames[0].Function, ".level2Unmounted") {
		t.Fatalf("innermost frame: got %s, want level2Unmounted", frames[0].Function)
	}
}

func TestStackTraceNested(t *testing.T) {
	s := newScheduler(t, vthread.WithParallelism(1))
	inner := vthread.NewScope("inner")
	vt := vthread.NewVirtualThread(s, "nested", func(ctx context.Context) error {
		c := vthread.NewContinuation(inner, func(ctx context.Context) error {
			return level1Unmounted(ctx)
		})
		return c.Run(ctx)
	})
	if err := vt.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitState(t, vt, vthread.ThreadParked)
	frames := vt.StackTrace()
	vt.Unpark()
	if err := vt.Join(testContext(t)); err != nil {
		t.Fatalf("join: %v", err)
	}

	if got := countLevelFrames(frames); got != 2 {
		t.Fatalf("got %d level frames in %v, want 2", got, frames)
	}
	// The enclosing body is reported after the nested one.
	found := false
	for _, f := range frames[2:] {
		if strings.Contains(f.Function, "TestStackTraceNested") {
			found = true
		}
	}
	if !found {
		t.Fatalf("enclosing body missing from %v", frames)
	}
}
