// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vthread provides one-shot delimited continuations and a
// cooperative virtual-thread scheduler built on them.
//
// A [Continuation] is a unit of sequential execution bound to a [Scope].
// [Continuation.Run] mounts it on the calling carrier and executes the body
// until the body calls [Yield] for that scope, returns, or fails. A later Run,
// from any goroutine, resumes the body exactly where it yielded.
//
// Virtual threads multiplex many logical threads onto a small pool of
// carrier threads. A [VirtualThread] wraps its body in a continuation bound
// to a private scope; [Park], [Gosched], and the blocking primitives in
// package vsync yield that continuation back to the [Scheduler] instead of
// blocking the carrier.
//
// # Design Philosophy
//
// vthread provides:
//   - Suspension that is invisible to the suspended code: Yield behaves like
//     an ordinary call that returns once the continuation is resumed
//   - At most one mounter per continuation, enforced by compare-and-swap
//   - No carrier affinity: a suspended continuation may resume on any carrier
//   - Explicit context propagation instead of hidden thread identity
//
// # Continuations
//
//   - [NewScope]: Create a named nesting boundary
//   - [NewContinuation]: Create a FRESH continuation bound to a scope
//   - [Continuation.Run]: Mount and run until yield, completion, or failure
//   - [Yield]: Suspend the nearest enclosing continuation of a scope
//   - [Continuation.IsDone], [Continuation.State], [Continuation.Err]
//   - [Continuation.Discard]: Abandon a suspended continuation, unwinding its body
//   - [Step], [Steps], [Drive]: Run a continuation segment by segment or to completion
//
// Each continuation body runs on its own goroutine. Mounting hands control
// from the caller to that goroutine and waits; yielding hands it back. At
// any instant exactly one side runs, so the body behaves as if it ran on the
// mounting carrier, and the parked goroutine is the captured stack.
//
// The ctx passed to a body identifies the continuation. Yield, Park, and the
// current-thread queries read the mount chain from it, so the ctx must not
// be handed to other goroutines for those calls.
//
// # Carriers
//
//   - [NewCarrier]: Create a carrier identity
//   - [Carrier.Context]: Adopt the carrier identity on the calling goroutine
//   - [Carrier.Go]: Run a function on a new OS-thread-locked goroutine as the carrier
//   - [CurrentCarrier], [CurrentThread], [CurrentVirtual]
//
// # Virtual Threads
//
//   - [NewVirtualThread], [Factory]: Create unstarted virtual threads
//   - [VirtualThread.Start], [VirtualThread.Join]
//   - [Park], [ParkTimeout], [Sleep], [Gosched]: Suspension points
//   - [VirtualThread.Unpark]: Wake a parked thread or leave a single permit
//   - [VirtualThread.Interrupt], [Interrupted]: Interrupt as an alternate wake reason
//   - [VirtualThread.StackTrace]: Frames of a mounted or parked thread
//
// # Scheduling
//
//   - [Executor]: Anything that runs tasks on carriers
//   - [Scheduler]: FIFO run queue drained by a fixed pool of carrier workers
//   - [DirectExecutor]: Runs tasks inline on a single carrier
//
// # Thread Locals
//
// [Local] values resolve against the mounted virtual thread, or against the
// carrier when no virtual thread is mounted. [Local.CarrierGet] and
// [Local.CarrierSet] always address the physical carrier.
//
// # Example
//
//	scope := vthread.NewScope("gen")
//	c := vthread.NewContinuation(scope, func(ctx context.Context) error {
//		fmt.Println("first")
//		if err := vthread.Yield(ctx, scope); err != nil {
//			return err
//		}
//		fmt.Println("second")
//		return nil
//	})
//	_ = c.Run(ctx) // prints "first"
//	_ = c.Run(ctx) // prints "second"
//	// c.IsDone() == true
package vthread
