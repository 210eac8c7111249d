// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"sync"
)

// localMap holds one thread's local values, keyed by *Local.
// Access is normally single-threaded; the mutex covers StackTrace-style
// observers and clearing at termination.
type localMap struct {
	mu sync.Mutex
	m  map[any]any
}

func (l *localMap) get(k any) (any, bool) {
	l.mu.Lock()
	v, ok := l.m[k]
	l.mu.Unlock()
	return v, ok
}

func (l *localMap) set(k, v any) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[any]any)
	}
	l.m[k] = v
	l.mu.Unlock()
}

func (l *localMap) remove(k any) {
	l.mu.Lock()
	delete(l.m, k)
	l.mu.Unlock()
}

func (l *localMap) clear() {
	l.mu.Lock()
	l.m = nil
	l.mu.Unlock()
}

// Local is a thread-local variable.
//
// Get, Set and Remove act on the current virtual thread, or on the current
// carrier when no virtual thread is mounted. CarrierGet and CarrierSet
// always act on the physical carrier, even from inside a virtual thread.
// Mounting a virtual thread never changes the carrier's values.
type Local[T any] struct {
	_ byte // distinct addresses for distinct locals
}

// NewLocal creates a thread-local variable.
func NewLocal[T any]() *Local[T] {
	return new(Local[T])
}

// Get returns the current thread's value.
func (l *Local[T]) Get(ctx context.Context) (T, bool) {
	return l.load(CurrentThread(ctx))
}

// Set stores v for the current thread.
func (l *Local[T]) Set(ctx context.Context, v T) error {
	return l.store(CurrentThread(ctx), v)
}

// Remove deletes the current thread's value.
func (l *Local[T]) Remove(ctx context.Context) {
	if t := CurrentThread(ctx); t != nil {
		t.threadLocals().remove(l)
	}
}

// CarrierGet returns the value of the carrier the caller is mounted on.
func (l *Local[T]) CarrierGet(ctx context.Context) (T, bool) {
	c, ok := CurrentCarrier(ctx)
	if !ok {
		var zero T
		return zero, false
	}
	return l.load(c)
}

// CarrierSet stores v on the carrier the caller is mounted on.
func (l *Local[T]) CarrierSet(ctx context.Context, v T) error {
	c, ok := CurrentCarrier(ctx)
	if !ok {
		return &ThreadError{Op: "set carrier local", Err: ErrNoThread}
	}
	return l.store(c, v)
}

func (l *Local[T]) load(t Thread) (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}
	v, ok := t.threadLocals().get(l)
	if !ok {
		return zero, false
	}
	return v.(T), true
}

func (l *Local[T]) store(t Thread, v T) error {
	if t == nil {
		return &ThreadError{Op: "set local", Err: ErrNoThread}
	}
	t.threadLocals().set(l, v)
	return nil
}
