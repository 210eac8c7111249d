// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vthread

// Scope is a named nesting boundary for continuations.
// Yield(ctx, s) suspends the nearest enclosing continuation bound to s.
// Scopes compare by identity, not by name.
type Scope struct {
	name string
}

// NewScope creates a scope with the given name.
func NewScope(name string) *Scope {
	return &Scope{name: name}
}

// Name returns the scope name. A nil scope has an empty name.
func (s *Scope) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (s *Scope) String() string {
	return "Scope(" + s.Name() + ")"
}

// vthreadScope bounds every virtual thread continuation.
// It is unexported so user continuations can never shadow it.
var vthreadScope = NewScope("VirtualThreads")
