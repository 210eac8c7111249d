// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import "context"

// Task is a unit of work run by an Executor. ctx identifies the carrier
// the task runs on.
type Task func(ctx context.Context)

// Executor runs tasks on carriers. Virtual threads submit one task per
// scheduling step: each run of the task mounts the thread's continuation
// until it parks, yields, or terminates.
//
// Execute must be safe to call from any goroutine, including from tasks
// it is currently running.
type Executor interface {
	Execute(task Task) error
}

// DirectExecutor runs each task inline on the submitting goroutine, with
// its own carrier as the current carrier.
type DirectExecutor struct {
	carrier *Carrier
}

// NewDirectExecutor returns an executor that runs tasks on c.
// A nil c creates a fresh carrier.
func NewDirectExecutor(c *Carrier) *DirectExecutor {
	if c == nil {
		c = NewCarrier("direct")
	}
	return &DirectExecutor{carrier: c}
}

// Carrier returns the executor's carrier.
func (e *DirectExecutor) Carrier() *Carrier { return e.carrier }

// Execute runs task before returning.
func (e *DirectExecutor) Execute(task Task) error {
	task(e.carrier.Context(context.Background()))
	return nil
}
