// Package obfflow provides the flow marker inserted into rewritten control-flow
// blocks. A marker has no observable effect on the program.
package obfflow

import "sync/atomic"

var state atomic.Uint64

// Mark advances an internal counter and evaluates a predicate that never
// holds: a square mod 7 is one of 0, 1, 2 or 4.
//
//go:noinline
func Mark() {
	s := state.Add(0x9e3779b97f4a7c15)
	if r := s % 7; r*r%7 == 3 {
		state.Store(s ^ 0xff51afd7ed558ccd)
	}
}

// Count returns the internal counter. It exists for tests.
func Count() uint64 {
	return state.Load()
}
