package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/events"
	"github.com/go-go-golems/branchat/pkg/reply"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNil        = errors.New("session is nil")
	ErrAlreadyGenerating = errors.New("a reply is already being generated")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrProviderNil       = errors.New("session has no reply provider")
	ErrNoActive          = errors.New("session has no active submission")
)

// Publisher receives a summary of every state change.
type Publisher interface {
	PublishStateChanged(ctx context.Context, ev events.StateChanged) error
}

// Session owns one conversation state and is the only place it is replaced.
// Dispatches are serialized; readers get copies.
type Session struct {
	conversationID string
	reducer        *conversation.Reducer
	provider       reply.Provider
	publisher      Publisher

	mu     sync.Mutex
	state  *conversation.State
	active *ExecutionHandle

	// held while publishing so events leave in commit order
	publishMu sync.Mutex
}

type Option func(*Session)

func WithState(s *conversation.State) Option {
	return func(sess *Session) {
		if s != nil {
			sess.state = s.Clone()
		}
	}
}

func WithIDSource(ids conversation.IDSource) Option {
	return func(sess *Session) {
		sess.reducer = conversation.NewReducer(ids)
	}
}

func WithProvider(p reply.Provider) Option {
	return func(sess *Session) {
		sess.provider = p
	}
}

func WithPublisher(p Publisher) Option {
	return func(sess *Session) {
		sess.publisher = p
	}
}

func WithConversationID(id string) Option {
	return func(sess *Session) {
		sess.conversationID = id
	}
}

func New(options ...Option) *Session {
	ret := &Session{}
	for _, o := range options {
		o(ret)
	}
	if ret.conversationID == "" {
		ret.conversationID = uuid.NewString()
	}
	if ret.reducer == nil {
		ret.reducer = conversation.NewReducer(conversation.UUIDSource{})
	}
	if ret.state == nil {
		ret.state = conversation.NewState()
	}
	return ret
}

func (s *Session) ConversationID() string {
	return s.conversationID
}

// State returns a copy of the current state.
func (s *Session) State() *conversation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// IsRunning reports whether a submission is in flight.
func (s *Session) IsRunning() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}

// Dispatch applies action to the current state. On error the state is unchanged.
func (s *Session) Dispatch(ctx context.Context, action conversation.Action) (*conversation.State, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	s.mu.Lock()
	next, err := s.reducer.Apply(s.state, action)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = next
	ev := s.eventLocked(action)
	s.publishMu.Lock()
	s.mu.Unlock()

	defer s.publishMu.Unlock()
	s.publish(ctx, ev)
	return next.Clone(), nil
}

func (s *Session) eventLocked(action conversation.Action) events.StateChanged {
	log.Debug().
		Str("conversation", s.conversationID).
		Str("action", action.Name()).
		Object("state", s.state).
		Msg("dispatched")
	return events.NewStateChanged(s.conversationID, action, s.state)
}

func (s *Session) publish(ctx context.Context, evs ...events.StateChanged) {
	if s.publisher == nil {
		return
	}
	for _, ev := range evs {
		if err := s.publisher.PublishStateChanged(ctx, ev); err != nil {
			log.Warn().Err(err).Str("conversation", s.conversationID).Str("action", ev.Action).Msg("failed to publish state change")
		}
	}
}

// applyLocked folds actions over the current state and commits only if all succeed.
func (s *Session) applyLocked(actions ...conversation.Action) ([]events.StateChanged, error) {
	cur := s.state
	evs := make([]events.StateChanged, 0, len(actions))
	for _, a := range actions {
		next, err := s.reducer.Apply(cur, a)
		if err != nil {
			return nil, err
		}
		cur = next
		evs = append(evs, events.NewStateChanged(s.conversationID, a, cur))
	}
	s.state = cur
	for _, a := range actions {
		log.Debug().Str("conversation", s.conversationID).Str("action", a.Name()).Msg("dispatched")
	}
	return evs, nil
}

// SubmitInput describes a prompt submission. When EditID is set the prompt replaces that
// message as a new version instead of being appended.
type SubmitInput struct {
	Prompt string
	EditID conversation.MessageID
	Files  []reply.File
}

type SubmitResult struct {
	// PromptID is the user message created by the submission.
	PromptID conversation.MessageID
	// ReplyID is empty when the reply failed.
	ReplyID conversation.MessageID
	Reply   string
	State   *conversation.State
}

// StartSubmit records the prompt, marks the conversation as generating and asks the
// provider for a reply in the background. The reply is appended when it arrives and
// the generating flag is cleared whatever the outcome.
func (s *Session) StartSubmit(ctx context.Context, in SubmitInput) (*ExecutionHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if s.provider == nil {
		return nil, ErrProviderNil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.state.IsGenerating || (s.active != nil && s.active.IsRunning()) {
		s.mu.Unlock()
		return nil, ErrAlreadyGenerating
	}

	var promptAction conversation.Action = conversation.Append{Content: in.Prompt, Role: conversation.RoleUser}
	if !in.EditID.IsZero() {
		if _, ok := s.state.Message(in.EditID); !ok {
			s.mu.Unlock()
			return nil, &conversation.NotFoundError{ID: in.EditID, Where: conversation.WhereMessages}
		}
		if s.state.PathIndex(in.EditID) < 0 {
			s.mu.Unlock()
			return nil, &conversation.NotFoundError{ID: in.EditID, Where: conversation.WhereCurrentPath}
		}
		promptAction = conversation.Edit{MessageID: in.EditID, Content: in.Prompt}
	}

	evs, err := s.applyLocked(conversation.ToggleGenerating{}, promptAction)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	promptID, _ := s.state.LastID()
	history, err := s.state.History()
	if err != nil {
		// the path was just rebuilt by the reducer, a failure here means corruption
		s.mu.Unlock()
		return nil, err
	}
	history = history[:len(history)-1]

	submissionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	handle := newExecutionHandle(s.conversationID, submissionID, in, cancel)
	s.active = handle

	s.publishMu.Lock()
	s.mu.Unlock()
	s.publish(ctx, evs...)
	s.publishMu.Unlock()

	log.Debug().
		Str("conversation", s.conversationID).
		Str("submission", submissionID).
		Str("prompt_id", promptID.String()).
		Int("history", len(history)).
		Msg("requesting reply")

	go func() {
		defer cancel()
		text, replyErr := s.provider.Reply(runCtx, reply.Request{
			Prompt:  in.Prompt,
			Files:   in.Files,
			History: history,
		})

		result := &SubmitResult{PromptID: promptID}
		actions := []conversation.Action{}
		if replyErr == nil {
			actions = append(actions, conversation.Append{Content: text, Role: conversation.RoleAssistant})
		} else {
			log.Warn().Err(replyErr).Str("conversation", s.conversationID).Str("submission", submissionID).Msg("reply failed")
		}

		s.mu.Lock()
		evs, err := s.applyLocked(append(actions, conversation.ToggleGenerating{})...)
		if err != nil && len(actions) > 0 {
			// the reply could not be recorded, still clear the flag
			log.Error().Err(err).Str("conversation", s.conversationID).Msg("failed to record reply")
			replyErr = err
			evs, err = s.applyLocked(conversation.ToggleGenerating{})
		}
		if err != nil {
			log.Error().Err(err).Str("conversation", s.conversationID).Msg("failed to clear generating flag")
			if replyErr == nil {
				replyErr = err
			}
		}
		if replyErr == nil {
			result.ReplyID = s.lastAssistantLocked()
			result.Reply = text
		}
		result.State = s.state.Clone()
		s.active = nil
		s.publishMu.Lock()
		s.mu.Unlock()
		s.publish(ctx, evs...)
		s.publishMu.Unlock()

		if replyErr != nil {
			replyErr = pkgerrors.Wrap(replyErr, "reply")
		}
		handle.setResult(result, replyErr)
	}()

	return handle, nil
}

func (s *Session) lastAssistantLocked() conversation.MessageID {
	id, ok := s.state.LastID()
	if !ok {
		return ""
	}
	if m, ok := s.state.Message(id); ok && m.Role == conversation.RoleAssistant {
		return id
	}
	return ""
}

// Submit is the blocking form of StartSubmit.
func (s *Session) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	h, err := s.StartSubmit(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// CancelActive cancels the in-flight submission, if any.
func (s *Session) CancelActive() error {
	if s == nil {
		return ErrSessionNil
	}
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrNoActive
	}
	h.Cancel()
	return nil
}
