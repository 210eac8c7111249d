// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"runtime"
	"strconv"
	"sync/atomic"
)

var carrierSeq atomic.Uint64

// Carrier is the identity of a physical thread that continuations mount on.
//
// A Carrier is attached to a context with Context; every continuation run
// with that context, directly or nested, observes the carrier as its mount.
// Scheduler workers own one Carrier each and lock their goroutine to an OS
// thread for their lifetime.
type Carrier struct {
	id     uint64
	name   string
	locals localMap
}

// NewCarrier creates a carrier identity.
func NewCarrier(name string) *Carrier {
	id := carrierSeq.Add(1)
	if name == "" {
		name = "carrier-" + strconv.FormatUint(id, 10)
	}
	return &Carrier{id: id, name: name}
}

// ID returns the carrier's process-unique id.
func (c *Carrier) ID() uint64 { return c.id }

// Name returns the carrier name.
func (c *Carrier) Name() string { return c.name }

// IsVirtual reports false.
func (c *Carrier) IsVirtual() bool { return false }

func (c *Carrier) threadLocals() *localMap { return &c.locals }

func (c *Carrier) String() string {
	return "Carrier(" + c.name + ")"
}

type carrierKey struct{}

// Context returns a copy of parent in which c is the current carrier.
func (c *Carrier) Context(parent context.Context) context.Context {
	return context.WithValue(parent, carrierKey{}, c)
}

// Go runs fn on a new goroutine locked to its OS thread, with c as the
// current carrier. The returned channel is closed when fn returns.
func (c *Carrier) Go(parent context.Context, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		fn(c.Context(parent))
	}()
	return done
}

// Thread is either a carrier or a virtual thread: whatever is currently
// executing from the program's point of view.
type Thread interface {
	Name() string
	IsVirtual() bool
	threadLocals() *localMap
}

// CurrentCarrier returns the carrier the calling code is mounted on.
// Inside a continuation this is the carrier of the outermost continuation
// as of its latest Run, not the carrier it was created on.
func CurrentCarrier(ctx context.Context) (*Carrier, bool) {
	if k := fromContext(ctx); k != nil {
		c := k.root().carrier
		return c, c != nil
	}
	c, ok := ctx.Value(carrierKey{}).(*Carrier)
	return c, ok
}

// CurrentVirtual returns the innermost virtual thread the calling code runs in.
func CurrentVirtual(ctx context.Context) (*VirtualThread, bool) {
	for k := fromContext(ctx); k != nil; k = k.parent {
		if k.owner != nil {
			return k.owner, true
		}
	}
	return nil, false
}

// CurrentThread returns the current virtual thread, or the current carrier
// when no virtual thread is mounted. It returns nil when ctx carries neither.
func CurrentThread(ctx context.Context) Thread {
	if vt, ok := CurrentVirtual(ctx); ok {
		return vt
	}
	if c, ok := CurrentCarrier(ctx); ok {
		return c
	}
	return nil
}
