package persistence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-go-golems/branchat/pkg/conversation"
)

var (
	ErrStoreClosed             = errors.New("store is closed")
	ErrInvalidConversationID   = errors.New("invalid conversation id")
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrUnsupportedFormat       = errors.New("unsupported snapshot format")
	ErrUnsupportedStoreBackend = errors.New("unsupported store backend")
)

// Summary is the listing view of a stored conversation.
type Summary struct {
	ID           string    `json:"id" yaml:"id"`
	MessageCount int       `json:"message_count" yaml:"message_count"`
	PathLength   int       `json:"path_length" yaml:"path_length"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Reader provides read access to conversation snapshots.
type Reader interface {
	// Load returns false when no conversation is stored under id.
	Load(ctx context.Context, id string) (*conversation.State, bool, error)
	List(ctx context.Context) ([]Summary, error)
}

// Writer provides write access to conversation snapshots.
type Writer interface {
	Save(ctx context.Context, id string, s *conversation.State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Store keeps whole-conversation snapshots keyed by conversation id.
type Store interface {
	Reader
	Writer
}

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateConversationID accepts ids that are safe to use as file names.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, id)
	}
	return nil
}

func summarize(id string, s *conversation.State, updatedAt time.Time) Summary {
	return Summary{
		ID:           id,
		MessageCount: len(s.Messages),
		PathLength:   len(s.CurrentPath),
		UpdatedAt:    updatedAt,
	}
}
