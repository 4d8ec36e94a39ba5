package pipeline

import (
	"errors"
	"fmt"

	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/schema"
)

// ErrStageRecorded is returned by State.Put for a key that already holds a call.
var ErrStageRecorded = errors.New("stage already recorded")

// State is the append-only record of one synset run. It is owned by a single
// TranslateSynset call and never shared.
type State struct {
	calls map[schema.Stage]invoke.StageCall
	order []schema.Stage
}

func NewState() *State {
	return &State{calls: make(map[schema.Stage]invoke.StageCall)}
}

// Put records call under its stage key. An existing entry is never replaced.
func (s *State) Put(call invoke.StageCall) error {
	if _, ok := s.calls[call.Stage]; ok {
		return fmt.Errorf("%w: %s", ErrStageRecorded, call.Stage)
	}
	s.calls[call.Stage] = call
	s.order = append(s.order, call.Stage)
	return nil
}

// Get returns the call recorded under key.
func (s *State) Get(key schema.Stage) (invoke.StageCall, bool) {
	c, ok := s.calls[key]
	return c, ok
}

// Payload returns the validated payload recorded under key, or nil.
func (s *State) Payload(key schema.Stage) schema.Payload {
	return s.calls[key].Payload
}

// Calls returns every recorded call in insertion order.
func (s *State) Calls() []invoke.StageCall {
	out := make([]invoke.StageCall, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.calls[k])
	}
	return out
}

// Len is the number of recorded calls.
func (s *State) Len() int {
	return len(s.order)
}
