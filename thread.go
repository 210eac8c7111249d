// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ThreadState is the scheduling state of a virtual thread.
type ThreadState int32

const (
	ThreadNew ThreadState = iota
	ThreadStarted
	ThreadRunnable
	ThreadRunning
	threadParking
	ThreadParked
	threadYielding
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadNew:
		return "NEW"
	case ThreadStarted:
		return "STARTED"
	case ThreadRunnable:
		return "RUNNABLE"
	case ThreadRunning, threadParking, threadYielding:
		return "RUNNING"
	case ThreadParked:
		return "PARKED"
	case ThreadTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

var threadSeq atomic.Uint64

// VirtualThread is a lightweight thread: a continuation scheduled on an
// Executor. Each scheduling step mounts the continuation on whichever
// carrier runs the step, until the body parks, yields, or returns.
//
// Park and Unpark form a permit protocol. Unpark on a parked thread makes
// it runnable and resubmits it; otherwise it stores a single permit that
// the next Park consumes without suspending. Permits do not accumulate.
type VirtualThread struct {
	id   uint64
	name string
	exec Executor
	cont *Continuation
	log  *zap.Logger

	// mu guards state transitions, the permit, joiners, and err.
	mu          sync.Mutex
	state       atomic.Int32
	permit      bool
	joiners     []*VirtualThread
	err         error
	interrupted atomic.Bool

	carrier atomic.Pointer[Carrier]
	locals  localMap
	done    chan struct{}
}

type loggerSource interface {
	logger() *zap.Logger
}

func (s *Scheduler) logger() *zap.Logger { return s.log }

// NewVirtualThread creates an unstarted virtual thread that runs body on exec.
func NewVirtualThread(exec Executor, name string, body func(ctx context.Context) error) *VirtualThread {
	vt := &VirtualThread{
		id:   threadSeq.Add(1),
		name: name,
		exec: exec,
		log:  Logger(),
		done: make(chan struct{}),
	}
	if ls, ok := exec.(loggerSource); ok {
		vt.log = ls.logger()
	}
	vt.cont = NewContinuation(vthreadScope, body)
	vt.cont.owner = vt
	return vt
}

// ID returns the thread's process-unique id.
func (vt *VirtualThread) ID() uint64 { return vt.id }

// Name returns the thread name.
func (vt *VirtualThread) Name() string { return vt.name }

// IsVirtual reports true.
func (vt *VirtualThread) IsVirtual() bool { return true }

func (vt *VirtualThread) threadLocals() *localMap { return &vt.locals }

// State returns the current state. Transitional states report as ThreadRunning.
func (vt *VirtualThread) State() ThreadState {
	s := ThreadState(vt.state.Load())
	if s == threadParking || s == threadYielding {
		return ThreadRunning
	}
	return s
}

func (vt *VirtualThread) setState(s ThreadState) {
	vt.state.Store(int32(s))
}

// Carrier returns the carrier the thread is mounted on, or nil.
func (vt *VirtualThread) Carrier() *Carrier {
	return vt.carrier.Load()
}

// IsInterrupted reports whether the interrupt flag is set.
func (vt *VirtualThread) IsInterrupted() bool {
	return vt.interrupted.Load()
}

// Done returns a channel closed when the thread terminates.
func (vt *VirtualThread) Done() <-chan struct{} { return vt.done }

// Err returns the body's failure once the thread has terminated.
func (vt *VirtualThread) Err() error {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return vt.err
}

func (vt *VirtualThread) String() string {
	s := "VirtualThread[#" + strconv.FormatUint(vt.id, 10)
	if vt.name != "" {
		s += "," + vt.name
	}
	s += "]/" + vt.State().String()
	if c := vt.Carrier(); c != nil {
		s += "@" + c.Name()
	}
	return s
}

func (vt *VirtualThread) errorf(op string, err error) error {
	return &ThreadError{Op: op, Thread: vt.name, Err: err}
}

// Start schedules the thread for its first run.
func (vt *VirtualThread) Start() error {
	if vt.exec == nil {
		return vt.errorf("start", ErrNoExecutor)
	}
	vt.mu.Lock()
	if ThreadState(vt.state.Load()) != ThreadNew {
		vt.mu.Unlock()
		return vt.errorf("start", ErrAlreadyStarted)
	}
	vt.setState(ThreadStarted)
	vt.mu.Unlock()

	if err := vt.exec.Execute(vt.step); err != nil {
		err = fmt.Errorf("%w: %w", ErrRejected, err)
		vt.reject(err)
		return vt.errorf("start", err)
	}
	return nil
}

// step runs the continuation until it parks, yields, or terminates.
// It is the task submitted to the executor for every scheduling step.
func (vt *VirtualThread) step(ctx context.Context) {
	vt.mu.Lock()
	switch ThreadState(vt.state.Load()) {
	case ThreadStarted, ThreadRunnable:
		vt.setState(ThreadRunning)
	default:
		vt.mu.Unlock()
		return
	}
	vt.mu.Unlock()

	c, _ := CurrentCarrier(ctx)
	vt.carrier.Store(c)
	err := vt.cont.Run(ctx)
	vt.carrier.Store(nil)

	if vt.cont.IsDone() {
		vt.terminate(vt.cont.Err())
		return
	}
	if err != nil {
		vt.log.Error("virtual thread step failed", zap.Stringer("thread", vt), zap.Error(err))
	}
	vt.afterYield()
}

// afterYield completes a park or a yield once the continuation is unmounted.
func (vt *VirtualThread) afterYield() {
	vt.mu.Lock()
	resubmit := false
	switch ThreadState(vt.state.Load()) {
	case threadParking:
		if vt.permit || vt.interrupted.Load() {
			vt.permit = false
			vt.setState(ThreadRunnable)
			resubmit = true
		} else {
			vt.setState(ThreadParked)
		}
	case threadYielding:
		vt.setState(ThreadRunnable)
		resubmit = true
	default:
		// The body yielded the thread scope without parking.
		vt.setState(ThreadRunnable)
		resubmit = true
	}
	vt.mu.Unlock()
	if resubmit {
		vt.submit()
	}
}

func (vt *VirtualThread) submit() {
	if err := vt.exec.Execute(vt.step); err != nil {
		vt.log.Warn("virtual thread rejected", zap.Stringer("thread", vt), zap.Error(err))
		vt.reject(fmt.Errorf("%w: %w", ErrRejected, err))
	}
}

// reject terminates a thread its executor refused to run.
func (vt *VirtualThread) reject(err error) {
	if derr := vt.cont.Discard(); derr != nil {
		vt.log.Error("discard rejected thread", zap.Stringer("thread", vt), zap.Error(derr))
	}
	vt.terminate(err)
}

func (vt *VirtualThread) terminate(err error) {
	vt.mu.Lock()
	vt.err = err
	vt.setState(ThreadTerminated)
	joiners := vt.joiners
	vt.joiners = nil
	vt.mu.Unlock()

	if err != nil {
		vt.log.Warn("virtual thread terminated with error",
			zap.Uint64("id", vt.id),
			zap.String("thread", vt.name),
			zap.Error(err))
	}
	vt.locals.clear()
	close(vt.done)
	for _, j := range joiners {
		j.Unpark()
	}
}

// Unpark makes a parked thread runnable, or stores the permit for its next
// park. It has no effect on a terminated thread.
func (vt *VirtualThread) Unpark() {
	vt.mu.Lock()
	switch ThreadState(vt.state.Load()) {
	case ThreadParked:
		vt.setState(ThreadRunnable)
		vt.mu.Unlock()
		vt.submit()
		return
	case ThreadTerminated:
	default:
		vt.permit = true
	}
	vt.mu.Unlock()
}

// Interrupt sets the interrupt flag and wakes the thread if it is parked.
// The flag stays set until Interrupted clears it.
func (vt *VirtualThread) Interrupt() {
	vt.interrupted.Store(true)
	vt.mu.Lock()
	if ThreadState(vt.state.Load()) == ThreadParked {
		vt.setState(ThreadRunnable)
		vt.mu.Unlock()
		vt.submit()
		return
	}
	vt.mu.Unlock()
}

// park suspends the calling thread until a permit or interrupt arrives.
// ctx must belong to vt's continuation.
func (vt *VirtualThread) park(ctx context.Context) error {
	vt.mu.Lock()
	if vt.permit {
		vt.permit = false
		vt.mu.Unlock()
		return nil
	}
	if vt.interrupted.Load() {
		vt.mu.Unlock()
		return vt.errorf("park", ErrInterrupted)
	}
	vt.mu.Unlock()

	if err := vt.yieldAs(ctx, threadParking); err != nil {
		return err
	}
	if vt.interrupted.Load() {
		return vt.errorf("park", ErrInterrupted)
	}
	return nil
}

// yieldAs suspends vt's continuation in transitional state s.
func (vt *VirtualThread) yieldAs(ctx context.Context, s ThreadState) error {
	vt.mu.Lock()
	vt.setState(s)
	vt.mu.Unlock()
	if err := Yield(ctx, vthreadScope); err != nil {
		vt.mu.Lock()
		vt.setState(ThreadRunning)
		vt.mu.Unlock()
		return err
	}
	return nil
}

// Join waits for the thread to terminate and returns its body's failure.
// Called from a virtual thread, Join parks instead of blocking the carrier.
func (vt *VirtualThread) Join(ctx context.Context) error {
	if vt.State() == ThreadNew {
		return vt.errorf("join", ErrNotStarted)
	}
	if cur, ok := CurrentVirtual(ctx); ok {
		if cur == vt {
			return vt.errorf("join", ErrJoinSelf)
		}
		return vt.joinParked(ctx, cur)
	}
	select {
	case <-vt.done:
		return vt.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (vt *VirtualThread) joinParked(ctx context.Context, cur *VirtualThread) error {
	stop := context.AfterFunc(ctx, cur.Unpark)
	defer stop()
	for {
		vt.mu.Lock()
		if ThreadState(vt.state.Load()) == ThreadTerminated {
			err := vt.err
			vt.mu.Unlock()
			return err
		}
		if err := ctx.Err(); err != nil {
			vt.joiners = slices.DeleteFunc(vt.joiners, func(j *VirtualThread) bool { return j == cur })
			vt.mu.Unlock()
			return err
		}
		if !slices.Contains(vt.joiners, cur) {
			vt.joiners = append(vt.joiners, cur)
		}
		vt.mu.Unlock()

		if err := cur.park(ctx); err != nil {
			vt.mu.Lock()
			vt.joiners = slices.DeleteFunc(vt.joiners, func(j *VirtualThread) bool { return j == cur })
			vt.mu.Unlock()
			return err
		}
	}
}

// Factory creates virtual threads named with a common prefix and a
// sequence number starting at zero.
type Factory struct {
	exec   Executor
	prefix string
	seq    atomic.Uint64
}

// NewFactory returns a factory for threads scheduled on exec.
func NewFactory(exec Executor, prefix string) *Factory {
	return &Factory{exec: exec, prefix: prefix}
}

// New creates an unstarted thread.
func (f *Factory) New(body func(ctx context.Context) error) *VirtualThread {
	n := f.seq.Add(1) - 1
	return NewVirtualThread(f.exec, f.prefix+strconv.FormatUint(n, 10), body)
}

// Start creates and starts a thread.
func (f *Factory) Start(body func(ctx context.Context) error) (*VirtualThread, error) {
	vt := f.New(body)
	return vt, vt.Start()
}
