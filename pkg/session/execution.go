package session

import (
	"context"
	"errors"
	"sync"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents a single in-flight submission.
//
// It is cancelable and waitable. Cancel only stops the reply call; the generating flag
// is still cleared before the handle completes.
type ExecutionHandle struct {
	ConversationID string
	SubmissionID   string

	Input SubmitInput

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    *SubmitResult
	err    error
}

func newExecutionHandle(conversationID, submissionID string, input SubmitInput, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		ConversationID: conversationID,
		SubmissionID:   submissionID,
		Input:          input,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

func (h *ExecutionHandle) setResult(out *SubmitResult, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	close(h.done)
	h.cancel = nil
	h.mu.Unlock()
}

// Cancel cancels the reply call. It is safe to call multiple times.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the submission completes. The result is returned even on error so
// callers can see the state the conversation was left in.
func (h *ExecutionHandle) Wait() (*SubmitResult, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

func (h *ExecutionHandle) Done() <-chan struct{} {
	return h.done
}

func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
