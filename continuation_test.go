// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/vthread"
)

func TestContinuationYieldResume(t *testing.T) {
	ctx := carrierContext("main")
	var trace []string
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		trace = append(trace, "a")
		if err := vthread.Yield(ctx, testScope); err != nil {
			return err
		}
		trace = append(trace, "b")
		return nil
	})
	if c.State() != vthread.Fresh {
		t.Fatalf("got %s, want FRESH", c.State())
	}
	if len(trace) != 0 {
		t.Fatal("body ran before Run")
	}

	if err := c.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if c.IsDone() || c.State() != vthread.Suspended {
		t.Fatalf("got %s after first run, want SUSPENDED", c.State())
	}
	if err := c.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !c.IsDone() || c.Err() != nil {
		t.Fatalf("got %s (err %v), want DONE", c.State(), c.Err())
	}
	if !slices.Equal(trace, []string{"a", "b"}) {
		t.Fatalf("got trace %v, want [a b]", trace)
	}

	// Running a done continuation is a no-op.
	if err := c.Run(ctx); err != nil || !c.IsDone() {
		t.Fatalf("run after done: err %v, state %s", err, c.State())
	}
}

func TestContinuationRoundTrip(t *testing.T) {
	ctx := carrierContext("main")
	conts := make([]*vthread.Continuation, 10)
	for i := range conts {
		conts[i] = vthread.NewContinuation(testScope, func(ctx context.Context) error {
			return vthread.Yield(ctx, testScope)
		})
	}
	for round := range 2 {
		for i, c := range conts {
			if err := c.Run(ctx); err != nil {
				t.Fatalf("round %d, continuation %d: %v", round, i, err)
			}
		}
	}
	for i, c := range conts {
		if !c.IsDone() {
			t.Fatalf("continuation %d: got %s, want DONE", i, c.State())
		}
	}
}

func TestContinuationMountIdentity(t *testing.T) {
	t1 := vthread.NewCarrier("t1")
	t2 := vthread.NewCarrier("t2")
	var seen []string
	record := func(ctx context.Context) {
		c, ok := vthread.CurrentCarrier(ctx)
		if !ok {
			seen = append(seen, "none")
			return
		}
		seen = append(seen, c.Name())
	}

	// Created while t1 is current, first run on t2, resumed on t1.
	var c *vthread.Continuation
	<-t1.Go(context.Background(), func(context.Context) {
		c = vthread.NewContinuation(testScope, func(ctx context.Context) error {
			record(ctx)
			if err := vthread.Yield(ctx, testScope); err != nil {
				return err
			}
			record(ctx)
			return nil
		})
	})
	var errs [2]error
	<-t2.Go(context.Background(), func(ctx context.Context) { errs[0] = c.Run(ctx) })
	<-t1.Go(context.Background(), func(ctx context.Context) { errs[1] = c.Run(ctx) })
	for i, err := range errs {
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if !slices.Equal(seen, []string{"t2", "t1"}) {
		t.Fatalf("got carriers %v, want [t2 t1]", seen)
	}
}

func TestContinuationSwitchCarriers(t *testing.T) {
	carriers := []*vthread.Carrier{
		vthread.NewCarrier("foo"), vthread.NewCarrier("bar"), vthread.NewCarrier("baz"),
	}
	var seen []string
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		for range 5 {
			cur, _ := vthread.CurrentCarrier(ctx)
			seen = append(seen, cur.Name())
			if err := vthread.Yield(ctx, testScope); err != nil {
				return err
			}
		}
		return nil
	})
	var want []string
	for i := 0; !c.IsDone(); i++ {
		carrier := carriers[i%len(carriers)]
		var err error
		<-carrier.Go(context.Background(), func(ctx context.Context) { err = c.Run(ctx) })
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if i < 5 {
			want = append(want, carrier.Name())
		}
	}
	if !slices.Equal(seen, want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
}

// TestContinuationManyCarriers resumes 1000 three-segment continuations from
// 50 carriers and checks every segment runs exactly once.
func TestContinuationManyCarriers(t *testing.T) {
	const (
		nCarriers = 50
		nConts    = 1000
		segments  = 3
	)
	counts := make([]atomic.Int32, nConts)
	queue := make(chan *vthread.Continuation, nConts)
	for i := range nConts {
		queue <- vthread.NewContinuation(testScope, func(ctx context.Context) error {
			for s := range segments {
				counts[i].Add(1)
				if s < segments-1 {
					if err := vthread.Yield(ctx, testScope); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	var remaining atomic.Int32
	remaining.Store(nConts)
	var failures atomic.Int32
	var done []<-chan struct{}
	for range nCarriers {
		carrier := vthread.NewCarrier("")
		done = append(done, carrier.Go(context.Background(), func(ctx context.Context) {
			for c := range queue {
				if err := c.Run(ctx); err != nil {
					failures.Add(1)
				}
				if !c.IsDone() {
					queue <- c
					continue
				}
				if remaining.Add(-1) == 0 {
					close(queue)
				}
			}
		}))
	}
	for _, d := range done {
		<-d
	}

	if n := failures.Load(); n != 0 {
		t.Fatalf("got %d failed runs, want 0", n)
	}
	for i := range counts {
		if n := counts[i].Load(); n != segments {
			t.Fatalf("continuation %d ran %d segments, want %d", i, n, segments)
		}
	}
}

func TestContinuationAlreadyMounted(t *testing.T) {
	release := make(chan struct{})
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		<-release
		return nil
	})
	errc := make(chan error, 1)
	go func() { errc <- c.Run(carrierContext("first")) }()

	deadline := time.Now().Add(10 * time.Second)
	for c.State() != vthread.Mounted {
		if time.Now().After(deadline) {
			t.Fatal("continuation never mounted")
		}
		time.Sleep(time.Millisecond)
	}
	err := c.Run(carrierContext("second"))
	if !errors.Is(err, vthread.ErrMounted) {
		t.Fatalf("got %v, want ErrMounted", err)
	}
	var ce *vthread.ContinuationError
	if !errors.As(err, &ce) || ce.Op != "run" || ce.Scope != "test" {
		t.Fatalf("got %#v, want ContinuationError{Op: run, Scope: test}", err)
	}
	if err := c.Discard(); !errors.Is(err, vthread.ErrMounted) {
		t.Fatalf("discard while mounted: got %v, want ErrMounted", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !c.IsDone() {
		t.Fatalf("got %s, want DONE", c.State())
	}
}

func TestContinuationConcurrentResume(t *testing.T) {
	const n = 16
	release := make(chan struct{})
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		if err := vthread.Yield(ctx, testScope); err != nil {
			return err
		}
		<-release
		return nil
	})
	if err := c.Run(carrierContext("main")); err != nil {
		t.Fatalf("first run: %v", err)
	}

	start := make(chan struct{})
	errc := make(chan error, n)
	for i := range n {
		ctx := carrierContext(fmt.Sprintf("resumer-%d", i))
		go func() {
			<-start
			errc <- c.Run(ctx)
		}()
	}
	close(start)

	// The winner stays mounted until release; every other caller fails.
	for range n - 1 {
		if err := <-errc; !errors.Is(err, vthread.ErrMounted) {
			t.Fatalf("got %v, want ErrMounted", err)
		}
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("winner: %v", err)
	}
	if !c.IsDone() || c.Err() != nil {
		t.Fatalf("got %s (err %v), want DONE", c.State(), c.Err())
	}
}

func TestYieldWithoutScope(t *testing.T) {
	if err := vthread.Yield(context.Background(), testScope); !errors.Is(err, vthread.ErrNoScope) {
		t.Fatalf("outside any continuation: got %v, want ErrNoScope", err)
	}

	other := vthread.NewScope("other")
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		return vthread.Yield(ctx, other)
	})
	err := c.Run(carrierContext("main"))
	if !errors.Is(err, vthread.ErrNoScope) {
		t.Fatalf("got %v, want ErrNoScope", err)
	}
	if !c.IsDone() || !errors.Is(c.Err(), vthread.ErrNoScope) {
		t.Fatalf("got %s (err %v), want DONE with ErrNoScope", c.State(), c.Err())
	}
}

func TestNestedScopes(t *testing.T) {
	outerScope := vthread.NewScope("outer")
	innerScope := vthread.NewScope("inner")
	var trace []string
	var inner *vthread.Continuation
	outer := vthread.NewContinuation(outerScope, func(ctx context.Context) error {
		inner = vthread.NewContinuation(innerScope, func(ctx context.Context) error {
			trace = append(trace, "inner-1")
			// Suspends both continuations.
			if err := vthread.Yield(ctx, outerScope); err != nil {
				return err
			}
			trace = append(trace, "inner-2")
			// Suspends only the inner one.
			if err := vthread.Yield(ctx, innerScope); err != nil {
				return err
			}
			trace = append(trace, "inner-3")
			return nil
		})
		for !inner.IsDone() {
			if err := inner.Run(ctx); err != nil {
				return err
			}
			trace = append(trace, "outer")
		}
		return nil
	})

	ctx := carrierContext("main")
	if err := outer.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if outer.State() != vthread.Suspended || inner.State() != vthread.Suspended {
		t.Fatalf("got outer %s, inner %s, want both SUSPENDED", outer.State(), inner.State())
	}
	if err := inner.Run(ctx); !errors.Is(err, vthread.ErrCaptured) {
		t.Fatalf("running a captured continuation: got %v, want ErrCaptured", err)
	}
	if err := outer.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !outer.IsDone() || !inner.IsDone() {
		t.Fatalf("got outer %s, inner %s, want both DONE", outer.State(), inner.State())
	}
	want := []string{"inner-1", "inner-2", "outer", "inner-3", "outer"}
	if !slices.Equal(trace, want) {
		t.Fatalf("got %v, want %v", trace, want)
	}
}

func TestContinuationBodyError(t *testing.T) {
	boom := errors.New("boom")
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		if err := vthread.Yield(ctx, testScope); err != nil {
			return err
		}
		return boom
	})
	ctx := carrierContext("main")
	if err := c.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if c.Err() != nil {
		t.Fatalf("got err %v before done", c.Err())
	}
	if err := c.Run(ctx); err != boom {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if !c.IsDone() || c.Err() != boom {
		t.Fatalf("got %s (err %v), want DONE with boom", c.State(), c.Err())
	}
	if vthread.Classify(c.Err()) != vthread.KindBodyFailure {
		t.Fatalf("got kind %s, want %s", vthread.Classify(c.Err()), vthread.KindBodyFailure)
	}
}

func TestContinuationPanic(t *testing.T) {
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		panic("kaboom")
	})
	err := c.Run(carrierContext("main"))
	var pe *vthread.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("got value %v, stack %d bytes", pe.Value, len(pe.Stack))
	}
	if !c.IsDone() {
		t.Fatalf("got %s, want DONE", c.State())
	}
}

func TestContinuationDiscard(t *testing.T) {
	fresh := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		t.Error("discarded fresh continuation ran")
		return nil
	})
	if err := fresh.Discard(); err != nil {
		t.Fatalf("discard fresh: %v", err)
	}
	if !fresh.IsDone() || !errors.Is(fresh.Err(), vthread.ErrDiscarded) {
		t.Fatalf("got %s (err %v), want DONE with ErrDiscarded", fresh.State(), fresh.Err())
	}
	if err := fresh.Run(carrierContext("main")); err != nil {
		t.Fatalf("run after discard: %v", err)
	}

	var unwound, resumed atomic.Bool
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		defer unwound.Store(true)
		if err := vthread.Yield(ctx, testScope); err != nil {
			return err
		}
		resumed.Store(true)
		return nil
	})
	if err := c.Run(carrierContext("main")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if !unwound.Load() || resumed.Load() {
		t.Fatalf("got unwound %t, resumed %t, want true, false", unwound.Load(), resumed.Load())
	}
	if !errors.Is(c.Err(), vthread.ErrDiscarded) {
		t.Fatalf("got %v, want ErrDiscarded", c.Err())
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("second discard: %v", err)
	}
}

func TestContinuationDiscardNested(t *testing.T) {
	outerScope := vthread.NewScope("outer")
	innerScope := vthread.NewScope("inner")
	var outerUnwound, innerUnwound atomic.Bool
	var inner *vthread.Continuation
	outer := vthread.NewContinuation(outerScope, func(ctx context.Context) error {
		defer outerUnwound.Store(true)
		inner = vthread.NewContinuation(innerScope, func(ctx context.Context) error {
			defer innerUnwound.Store(true)
			return vthread.Yield(ctx, outerScope)
		})
		return inner.Run(ctx)
	})
	if err := outer.Run(carrierContext("main")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := inner.Discard(); !errors.Is(err, vthread.ErrCaptured) {
		t.Fatalf("discard captured: got %v, want ErrCaptured", err)
	}
	if err := outer.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if !outerUnwound.Load() || !innerUnwound.Load() {
		t.Fatalf("got outer unwound %t, inner unwound %t", outerUnwound.Load(), innerUnwound.Load())
	}
	if !outer.IsDone() || !inner.IsDone() {
		t.Fatalf("got outer %s, inner %s, want both DONE", outer.State(), inner.State())
	}
}

func TestContinuationDiscardDeferredYield(t *testing.T) {
	var deferredErr error
	c := vthread.NewContinuation(testScope, func(ctx context.Context) error {
		defer func() { deferredErr = vthread.Yield(ctx, testScope) }()
		return vthread.Yield(ctx, testScope)
	})
	if err := c.Run(carrierContext("main")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := c.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if !c.IsDone() || !errors.Is(c.Err(), vthread.ErrDiscarded) {
		t.Fatalf("got %s (err %v), want DONE with ErrDiscarded", c.State(), c.Err())
	}
	if !errors.Is(deferredErr, vthread.ErrDiscarded) {
		t.Fatalf("deferred yield: got %v, want ErrDiscarded", deferredErr)
	}
}

func TestContinuationString(t *testing.T) {
	c := vthread.NewContinuation(testScope, func(context.Context) error { return nil })
	if got, want := c.String(), "Continuation(test, FRESH)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if c.Scope() != testScope {
		t.Fatal("scope mismatch")
	}
	other := vthread.NewContinuation(testScope, func(context.Context) error { return nil })
	if c.ID() == other.ID() {
		t.Fatal("continuations share an id")
	}
}
