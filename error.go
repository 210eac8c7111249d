// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Protocol violations. These are returned synchronously to the caller that
// misused the API and never recorded on the continuation.
var (
	ErrMounted        = errors.New("vthread: continuation already mounted")
	ErrCaptured       = errors.New("vthread: continuation captured by an enclosing suspension")
	ErrNoScope        = errors.New("vthread: no enclosing continuation for scope")
	ErrNotVirtual     = errors.New("vthread: not running in a virtual thread")
	ErrAlreadyStarted = errors.New("vthread: thread already started")
	ErrNotStarted     = errors.New("vthread: thread not started")
	ErrNoExecutor     = errors.New("vthread: thread has no executor")
	ErrJoinSelf       = errors.New("vthread: thread cannot join itself")
	ErrNoThread       = errors.New("vthread: no current thread")

	// ErrCloseFromWorker is returned by Close when called from one of the
	// scheduler's own tasks.
	ErrCloseFromWorker = errors.New("vthread: scheduler closed from its own worker")
)

var (
	// ErrInterrupted reports that a park returned because the thread was interrupted.
	ErrInterrupted = errors.New("vthread: interrupted")

	// ErrDiscarded is recorded on a continuation abandoned with Discard.
	ErrDiscarded = errors.New("vthread: continuation discarded")

	// ErrRejected is recorded on a virtual thread whose executor refused it.
	ErrRejected = errors.New("vthread: virtual thread rejected by executor")

	// ErrClosed is returned by Execute after the scheduler is closed.
	ErrClosed = errors.New("vthread: scheduler closed")

	errGoexit = errors.New("vthread: body called runtime.Goexit")
)

// ContinuationError provides context when a continuation operation fails.
type ContinuationError struct {
	Err   error
	Op    string
	Scope string
}

func (e *ContinuationError) Error() string {
	var b strings.Builder
	b.WriteString("vthread: ")
	b.WriteString(e.Op)
	if e.Scope != "" {
		b.WriteString(" (scope ")
		b.WriteString(e.Scope)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(strings.TrimPrefix(e.Err.Error(), "vthread: "))
	}
	return b.String()
}

func (e *ContinuationError) Unwrap() error {
	return e.Err
}

// ThreadError provides context when a virtual thread operation fails.
type ThreadError struct {
	Err    error
	Op     string
	Thread string
}

func (e *ThreadError) Error() string {
	var b strings.Builder
	b.WriteString("vthread: ")
	b.WriteString(e.Op)
	if e.Thread != "" {
		fmt.Fprintf(&b, " %q", e.Thread)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(strings.TrimPrefix(e.Err.Error(), "vthread: "))
	}
	return b.String()
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}

// PanicError is the failure recorded when a continuation body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("vthread: body panicked: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ErrorKind categorizes errors for integration with external error handling.
type ErrorKind string

const (
	KindUnknown     ErrorKind = "Unknown"
	KindProtocol    ErrorKind = "Protocol"
	KindInterrupted ErrorKind = "Interrupted"
	KindBodyFailure ErrorKind = "BodyFailure"
	KindCanceled    ErrorKind = "Canceled"
	KindDiscarded   ErrorKind = "Discarded"
	KindRejected    ErrorKind = "Rejected"
)

// Classify maps an error returned by this package to its kind.
// Errors that did not originate here are treated as body failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, ErrMounted), errors.Is(err, ErrCaptured), errors.Is(err, ErrNoScope),
		errors.Is(err, ErrNotVirtual), errors.Is(err, ErrAlreadyStarted), errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrNoExecutor), errors.Is(err, ErrJoinSelf), errors.Is(err, ErrNoThread), errors.Is(err, ErrCloseFromWorker):
		return KindProtocol
	case errors.Is(err, ErrInterrupted):
		return KindInterrupted
	case errors.Is(err, ErrRejected), errors.Is(err, ErrClosed):
		return KindRejected
	case errors.Is(err, ErrDiscarded):
		return KindDiscarded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindBodyFailure
}
