// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stackdump reads the goroutine dumps produced by runtime.Stack.
package stackdump

import (
	"bytes"
	"errors"
	"io"
	"runtime"

	"github.com/maruel/panicparse/v2/stack"
)

// Frame is one call frame of a parsed goroutine stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Goroutine is one parsed goroutine of a dump.
type Goroutine struct {
	ID     int64
	State  string
	Frames []Frame
}

const initialBufSize = 64 << 10

// Snapshot dumps every goroutine and returns the ones whose ids are in want.
// A nil want returns all of them.
func Snapshot(want map[int64]bool) map[int64]*Goroutine {
	return Parse(dumpAll(), want)
}

func dumpAll() []byte {
	buf := make([]byte, initialBufSize)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Parse reads a runtime.Stack dump. Text that is not part of a goroutine
// block is ignored, as are the "created by" frames.
func Parse(dump []byte, want map[int64]bool) map[int64]*Goroutine {
	out := make(map[int64]*Goroutine)
	s, _, err := stack.ScanSnapshot(bytes.NewReader(dump), io.Discard, &stack.Opts{})
	if err != nil && !errors.Is(err, io.EOF) {
		return out
	}
	if s == nil {
		return out
	}
	for _, g := range s.Goroutines {
		id := int64(g.ID)
		if want != nil && !want[id] {
			continue
		}
		frames := make([]Frame, 0, len(g.Stack.Calls))
		for _, c := range g.Stack.Calls {
			frames = append(frames, Frame{Function: c.Func.Complete, File: c.RemoteSrcPath, Line: c.Line})
		}
		out[id] = &Goroutine{ID: id, State: g.State, Frames: frames}
	}
	return out
}
