package conversation

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Reducer is the single mutator of conversation state.
type Reducer struct {
	IDs IDSource
}

func NewReducer(ids IDSource) *Reducer {
	if ids == nil {
		ids = UUIDSource{}
	}
	return &Reducer{IDs: ids}
}

// Apply returns the state that results from applying action to state. The input is
// never modified; on error the returned state is nil. A nil state is treated as empty.
func (r *Reducer) Apply(state *State, action Action) (*State, error) {
	if action == nil {
		return nil, ErrNilAction
	}
	ids := r.IDs
	if ids == nil {
		ids = UUIDSource{}
	}

	next := state.Clone()
	if next == nil {
		next = NewState()
	}
	if next.Messages == nil {
		next.Messages = map[MessageID]*Message{}
	}
	if next.CurrentPath == nil {
		next.CurrentPath = []MessageID{}
	}

	if err := action.apply(next, ids); err != nil {
		log.Trace().Err(err).Str("action", action.Name()).Msg("action rejected")
		return nil, errors.Wrapf(err, "%s", action.Name())
	}

	log.Trace().
		Str("action", action.Name()).
		Int("path_length", len(next.CurrentPath)).
		Int("messages", len(next.Messages)).
		Bool("is_generating", next.IsGenerating).
		Msg("applied action")
	return next, nil
}

// ApplyAll folds actions over state, stopping at the first error.
func (r *Reducer) ApplyAll(state *State, actions ...Action) (*State, error) {
	cur := state
	for _, a := range actions {
		next, err := r.Apply(cur, a)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if cur == nil {
		return NewState(), nil
	}
	return cur, nil
}
