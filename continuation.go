// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// State is the lifecycle state of a continuation.
type State int32

const (
	// Fresh: created, never run.
	Fresh State = iota
	// Mounted: executing on exactly one carrier.
	Mounted
	// Suspended: yielded; holds a captured stack and is bound to no carrier.
	Suspended
	// Done: the body returned, failed, or was discarded. Terminal.
	Done
)

// stateCaptured marks a continuation suspended as part of an enclosing
// continuation's capture. It reports as Suspended but cannot be run on its own.
const stateCaptured State = 4

func (s State) String() string {
	switch s {
	case Fresh:
		return "FRESH"
	case Mounted:
		return "MOUNTED"
	case Suspended, stateCaptured:
		return "SUSPENDED"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

type eventKind uint8

const (
	eventYield eventKind = iota
	eventDone
	eventDiscarded
)

// event is sent by a continuation's goroutine to whoever is blocked in Run.
type event struct {
	kind    eventKind
	capture *capture
	err     error
}

type wakeSignal uint8

const (
	wakeResume wakeSignal = iota
	wakeDiscard
)

// Continuation is a suspendable, resumable unit of sequential execution
// bound to a Scope.
//
// The body runs on a goroutine owned by the continuation. Run hands control
// to that goroutine and blocks until the body yields, returns, or fails, so
// the caller and the body never run at the same time. Between runs a
// suspended continuation may be resumed from any goroutine.
type Continuation struct {
	id    uuid.UUID
	scope *Scope
	body  func(ctx context.Context) error

	state      atomic.Int32
	discarding atomic.Bool

	// parent and carrier are written by the mounting caller before control
	// passes to the body, and read by the body afterwards.
	parent  *Continuation
	carrier *Carrier

	child   atomic.Pointer[Continuation]
	capture atomic.Pointer[capture]
	goid    atomic.Int64
	owner   *VirtualThread

	events chan event
	wake   chan wakeSignal
	err    error
}

// NewContinuation creates a FRESH continuation bound to scope.
// Nothing runs until the first call to Run.
func NewContinuation(scope *Scope, body func(ctx context.Context) error) *Continuation {
	return &Continuation{
		id:     uuid.New(),
		scope:  scope,
		body:   body,
		events: make(chan event),
		wake:   make(chan wakeSignal, 1),
	}
}

// ID returns the continuation identity.
func (c *Continuation) ID() uuid.UUID { return c.id }

// Scope returns the scope the continuation is bound to.
func (c *Continuation) Scope() *Scope { return c.scope }

// State returns the current lifecycle state.
func (c *Continuation) State() State {
	s := State(c.state.Load())
	if s == stateCaptured {
		return Suspended
	}
	return s
}

// IsDone reports whether the continuation reached Done.
func (c *Continuation) IsDone() bool {
	return State(c.state.Load()) == Done
}

// Err returns the failure recorded when the continuation reached Done,
// or nil if it completed normally or is not done yet.
func (c *Continuation) Err() error {
	if !c.IsDone() {
		return nil
	}
	return c.err
}

func (c *Continuation) String() string {
	return "Continuation(" + c.scope.Name() + ", " + c.State().String() + ")"
}

func (c *Continuation) protocolError(op string, err error) error {
	return &ContinuationError{Op: op, Scope: c.scope.Name(), Err: err}
}

// Run mounts the continuation on the calling carrier and runs its body,
// starting it if Fresh or resuming it where it last yielded.
//
// Run returns nil when the body yields or completes, and the body's failure
// when the segment it just ran failed. Running a Done continuation is a
// no-op that returns nil. Running a continuation that is already mounted
// fails with ErrMounted; exactly one caller may resume each suspension.
func (c *Continuation) Run(ctx context.Context) error {
	var prev State
	for {
		prev = State(c.state.Load())
		switch prev {
		case Done:
			return nil
		case Mounted:
			return c.protocolError("run", ErrMounted)
		case stateCaptured:
			return c.protocolError("run", ErrCaptured)
		}
		if c.state.CompareAndSwap(int32(prev), int32(Mounted)) {
			break
		}
	}

	c.mount(ctx)
	if prev == Fresh {
		go c.enter(context.WithValue(context.WithoutCancel(ctx), continuationKey{}, c))
	} else {
		c.resume(wakeResume)
	}
	return c.await()
}

// Discard abandons a Fresh or Suspended continuation. A suspended body is
// unwound with runtime.Goexit, so its deferred calls run, and continuations
// captured with it are discarded too. Discard records ErrDiscarded and is a
// no-op on a Done continuation.
func (c *Continuation) Discard() error {
	for {
		prev := State(c.state.Load())
		switch prev {
		case Done:
			return nil
		case Mounted:
			return c.protocolError("discard", ErrMounted)
		case stateCaptured:
			return c.protocolError("discard", ErrCaptured)
		}
		if !c.state.CompareAndSwap(int32(prev), int32(Mounted)) {
			continue
		}
		if prev == Fresh {
			c.err = ErrDiscarded
			c.state.Store(int32(Done))
			return nil
		}
		break
	}

	c.discarding.Store(true)
	c.parent = nil
	c.carrier = nil
	c.resume(wakeDiscard)
	if err := c.await(); !errors.Is(err, ErrDiscarded) {
		return err
	}
	return nil
}

// mount records where the continuation now runs: under the continuation
// whose body ctx belongs to, or directly on ctx's carrier.
func (c *Continuation) mount(ctx context.Context) {
	parent := fromContext(ctx)
	c.parent = parent
	if parent != nil {
		c.carrier = nil
		parent.child.Store(c)
		return
	}
	c.carrier, _ = ctx.Value(carrierKey{}).(*Carrier)
}

func (c *Continuation) unmount() {
	if c.parent != nil {
		c.parent.child.CompareAndSwap(c, nil)
	}
}

// resume wakes the goroutine parked in the captured stack. Continuations
// captured between the leaf and c are mounted again along with c.
func (c *Continuation) resume(sig wakeSignal) {
	cp := c.capture.Swap(nil)
	leaf := cp.leaf
	releaseCapture(cp)
	if sig == wakeResume {
		for k := leaf; k != c; k = k.parent {
			k.state.Store(int32(Mounted))
		}
	}
	leaf.wake <- sig
}

// await blocks the mounting caller until the body hands control back.
func (c *Continuation) await() error {
	ev := <-c.events
	c.unmount()
	switch ev.kind {
	case eventYield:
		c.capture.Store(ev.capture)
		c.state.Store(int32(Suspended))
		return nil
	case eventDiscarded:
		c.err = ErrDiscarded
		c.state.Store(int32(Done))
		if c.parent != nil && c.parent.discardRequested() {
			// The caller is part of the same discarded capture.
			runtime.Goexit()
		}
		return ErrDiscarded
	default:
		c.err = ev.err
		c.state.Store(int32(Done))
		return ev.err
	}
}

func (c *Continuation) discardRequested() bool {
	for k := c; k != nil; k = k.parent {
		if k.discarding.Load() {
			return true
		}
	}
	return false
}

// enter is the body goroutine. It distinguishes a normal return, a panic,
// and runtime.Goexit, and reports exactly one terminal event.
func (c *Continuation) enter(ctx context.Context) {
	c.goid.Store(goid.Get())
	var err error
	normalReturn := false
	recovered := false
	defer func() {
		switch {
		case normalReturn || recovered:
			c.events <- event{kind: eventDone, err: err}
		case c.discardRequested():
			c.events <- event{kind: eventDiscarded}
		default:
			c.events <- event{kind: eventDone, err: errGoexit}
		}
	}()

	func() {
		defer func() {
			if !normalReturn {
				if r := recover(); r != nil {
					err = newPanicError(r)
				}
			}
		}()
		err = c.body(ctx)
		normalReturn = true
	}()
	if !normalReturn {
		recovered = true
	}
}

// Yield suspends the nearest continuation bound to scope in ctx's mount
// chain and returns control to the caller of its Run. Continuations nested
// inside it are suspended with it. Yield returns nil once the continuation
// is resumed, possibly on a different carrier.
//
// Yield fails with ErrNoScope when ctx belongs to no continuation of scope,
// and with ErrDiscarded when called from a body being unwound by Discard.
func Yield(ctx context.Context, scope *Scope) error {
	cur := fromContext(ctx)
	var target *Continuation
	for k := cur; k != nil; k = k.parent {
		if k.scope == scope {
			target = k
			break
		}
	}
	if target == nil {
		return &ContinuationError{Op: "yield", Scope: scope.Name(), Err: ErrNoScope}
	}
	if State(cur.state.Load()) != Mounted {
		return cur.protocolError("yield", ErrCaptured)
	}
	for k := cur; ; k = k.parent {
		if k.discarding.Load() {
			return target.protocolError("yield", ErrDiscarded)
		}
		if k == target {
			break
		}
	}

	cp := acquireCapture()
	cp.leaf = cur
	cp.record(1)
	for k := cur; k != target; k = k.parent {
		k.state.Store(int32(stateCaptured))
	}
	target.events <- event{kind: eventYield, capture: cp}

	if <-cur.wake == wakeDiscard {
		runtime.Goexit()
	}
	return nil
}

type continuationKey struct{}

func fromContext(ctx context.Context) *Continuation {
	c, _ := ctx.Value(continuationKey{}).(*Continuation)
	return c
}

// root returns the outermost continuation of c's mount chain.
func (c *Continuation) root() *Continuation {
	k := c
	for k.parent != nil {
		k = k.parent
	}
	return k
}
