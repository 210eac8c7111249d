// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Option configures a Scheduler.
type Option func(o *options)

type options struct {
	name        string
	parallelism int
	logger      *zap.Logger
}

// WithParallelism sets the number of carrier workers.
// Values below one select runtime.GOMAXPROCS(0).
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithName sets the scheduler name, used as the carrier name prefix.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the scheduler's logger. The package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Scheduler is a FIFO run queue served by a fixed pool of carrier workers.
// Each worker is one goroutine locked to an OS thread and owns one Carrier.
// Tasks run on the worker goroutine; a virtual thread's body runs on its
// continuation's goroutine while the worker waits in Run, so the OS thread
// lock pins the worker loop only.
// A Scheduler runs tasks; it never owns virtual thread identity.
type Scheduler struct {
	name     string
	log      *zap.Logger
	carriers []*Carrier

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Task
	closed    bool
	workerIDs map[int64]bool

	workers errgroup.Group

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// Stats is a snapshot of scheduler counters. Completed counts tasks that
// returned normally; a panicked task is counted in Panicked only.
type Stats struct {
	Submitted   uint64
	Completed   uint64
	Panicked    uint64
	Queued      int
	Parallelism int
}

// NewScheduler starts a scheduler and its carrier workers.
func NewScheduler(opts ...Option) *Scheduler {
	o := options{name: "vthread"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parallelism < 1 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	s := &Scheduler{
		name:      o.name,
		log:       o.logger.With(zap.String("scheduler", o.name)),
		carriers:  make([]*Carrier, o.parallelism),
		workerIDs: make(map[int64]bool, o.parallelism),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.carriers {
		c := NewCarrier(fmt.Sprintf("%s-carrier-%d", o.name, i))
		s.carriers[i] = c
		s.workers.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			s.work(c.Context(context.Background()))
			return nil
		})
	}
	s.log.Debug("scheduler started", zap.Int("parallelism", o.parallelism))
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// Carriers returns the worker carriers.
func (s *Scheduler) Carriers() []*Carrier {
	return append([]*Carrier(nil), s.carriers...)
}

// Execute enqueues task. It fails with ErrClosed after Close.
func (s *Scheduler) Execute(task Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()
	s.submitted.Add(1)
	s.cond.Signal()
	return nil
}

// Submit schedules one step of vt.
func (s *Scheduler) Submit(vt *VirtualThread) error {
	return s.Execute(vt.step)
}

// Close stops accepting tasks, lets the workers drain the queue, and waits
// for them to exit. Called from a task running on s, Close fails with
// ErrCloseFromWorker. A virtual thread body must not call Close on its own
// scheduler: its worker waits for the body, so Close would never return.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.workerIDs[goid.Get()] {
		s.mu.Unlock()
		return ErrCloseFromWorker
	}
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	err := s.workers.Wait()
	if !already {
		s.log.Debug("scheduler closed",
			zap.Uint64("submitted", s.submitted.Load()),
			zap.Uint64("completed", s.completed.Load()))
	}
	return err
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Submitted:   s.submitted.Load(),
		Completed:   s.completed.Load(),
		Panicked:    s.panicked.Load(),
		Queued:      queued,
		Parallelism: len(s.carriers),
	}
}

func (s *Scheduler) next() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 {
		if s.closed {
			return nil, false
		}
		s.cond.Wait()
	}
	task := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return task, true
}

func (s *Scheduler) work(ctx context.Context) {
	s.mu.Lock()
	s.workerIDs[goid.Get()] = true
	s.mu.Unlock()
	for {
		task, ok := s.next()
		if !ok {
			return
		}
		s.run(ctx, task)
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			c, _ := CurrentCarrier(ctx)
			s.log.Error("task panicked",
				zap.String("carrier", c.Name()),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	task(ctx)
	s.completed.Add(1)
}
