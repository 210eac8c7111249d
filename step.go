// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"iter"
)

// Stepping boundary for external drivers.
// Step and Steps run a continuation one segment at a time, leaving the
// caller in control between segments; Drive runs it to completion.

// Step runs one segment of c and reports whether c can be run again.
func Step(ctx context.Context, c *Continuation) (more bool, err error) {
	err = c.Run(ctx)
	return !c.IsDone(), err
}

// Steps returns an iterator that runs one segment of c per iteration and
// yields the segment number with the error of that run. It stops after
// the segment that completes c.
//
// Breaking out of the loop leaves c suspended; Discard it if it will not
// be resumed.
//
// Example:
//
//	for i, err := range vthread.Steps(ctx, c) {
//	    if err != nil {
//	        return err
//	    }
//	    log.Printf("segment %d done", i)
//	}
func Steps(ctx context.Context, c *Continuation) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := 0; !c.IsDone(); i++ {
			err := c.Run(ctx)
			if !yield(i, err) {
				return
			}
		}
	}
}

// Drive runs c until it is done and returns the number of runs it took.
// A protocol error stops Drive early.
func Drive(ctx context.Context, c *Continuation) (runs int, err error) {
	for i, err := range Steps(ctx, c) {
		runs = i + 1
		if err != nil {
			return runs, err
		}
	}
	return runs, c.Err()
}
