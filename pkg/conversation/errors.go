package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("message not found")
	ErrInvalidVersionIndex = errors.New("invalid version index")
	ErrBrokenInvariant     = errors.New("broken invariant")
	ErrInvalidRole         = errors.New("invalid role")
	ErrNilAction           = errors.New("action is nil")
)

// Where names the collection a lookup failed in.
type Where string

const (
	WhereMessages    Where = "messages"
	WhereCurrentPath Where = "current path"
)

// NotFoundError reports a message id missing from the message map or from the current path.
type NotFoundError struct {
	ID    MessageID
	Where Where
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	where := e.Where
	if where == "" {
		where = WhereMessages
	}
	return fmt.Sprintf("%s: %q not in %s", ErrNotFound, e.ID, where)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidVersionIndexError reports a SwitchVersion target outside [0, Max].
type InvalidVersionIndexError struct {
	ID    MessageID
	Index int
	Max   int
}

func (e *InvalidVersionIndexError) Error() string {
	if e == nil {
		return ErrInvalidVersionIndex.Error()
	}
	return fmt.Sprintf("%s %d for %q: valid range is [0, %d]", ErrInvalidVersionIndex, e.Index, e.ID, e.Max)
}

func (e *InvalidVersionIndexError) Is(target error) bool { return target == ErrInvalidVersionIndex }

// BrokenInvariantError reports state corruption, never a caller mistake.
type BrokenInvariantError struct {
	ID     MessageID
	Reason string
}

func (e *BrokenInvariantError) Error() string {
	if e == nil {
		return ErrBrokenInvariant.Error()
	}
	if e.ID.IsZero() {
		return fmt.Sprintf("%s: %s", ErrBrokenInvariant, e.Reason)
	}
	return fmt.Sprintf("%s at %q: %s", ErrBrokenInvariant, e.ID, e.Reason)
}

func (e *BrokenInvariantError) Is(target error) bool { return target == ErrBrokenInvariant }

func brokenf(id MessageID, format string, args ...interface{}) error {
	return &BrokenInvariantError{ID: id, Reason: fmt.Sprintf(format, args...)}
}
