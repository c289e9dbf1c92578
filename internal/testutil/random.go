package testutil

import "sync"

// ScriptedSource replays a fixed script of values as the randomness for
// child selection and reordering. Each Intn call consumes the next
// scripted value modulo n; an exhausted script wraps around. An empty
// script always returns 0.
//
// Use tree.NewSeededSource when any reproducible stream will do;
// ScriptedSource is for tests that need to force a specific selection
// or shuffle outcome.
type ScriptedSource struct {
	mu     sync.Mutex
	script []int
	pos    int
}

// NewScriptedSource creates a source replaying the given values.
func NewScriptedSource(script ...int) *ScriptedSource {
	return &ScriptedSource{script: script}
}

// Intn implements tree.Source.
func (s *ScriptedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return 0
	}
	v := s.script[s.pos%len(s.script)] % n
	s.pos++
	return v
}

// Reset rewinds the script so the same source can drive a re-run.
func (s *ScriptedSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
}
