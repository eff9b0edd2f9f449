package events

import (
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
)

// TopicConversation carries one StateChanged event per successful dispatch.
const TopicConversation = "conversation"

const (
	MetadataSequenceNumber = "sequence_number"
	MetadataCorrelationID  = "correlation_id"
	MetadataConversationID = "conversation_id"
)

// StateChanged summarizes a conversation state right after an action was applied.
type StateChanged struct {
	ConversationID   string                   `json:"conversation_id"`
	Action           string                   `json:"action"`
	Sequence         uint64                   `json:"sequence"`
	PathLength       int                      `json:"path_length"`
	MessageCount     int                      `json:"message_count"`
	IsGenerating     bool                     `json:"is_generating"`
	DisableAnimation bool                     `json:"disable_animation"`
	LastID           conversation.MessageID   `json:"last_id,omitempty"`
	CurrentPath      []conversation.MessageID `json:"current_path"`
}

func NewStateChanged(conversationID string, action conversation.Action, s *conversation.State) StateChanged {
	ret := StateChanged{
		ConversationID:   conversationID,
		Action:           action.Name(),
		PathLength:       len(s.CurrentPath),
		MessageCount:     len(s.Messages),
		IsGenerating:     s.IsGenerating,
		DisableAnimation: s.DisableAnimation,
		CurrentPath:      append([]conversation.MessageID{}, s.CurrentPath...),
	}
	if last, ok := s.LastID(); ok {
		ret.LastID = last
	}
	return ret
}

// DecodeStateChanged reads the payload of a message published on TopicConversation.
// The sequence number comes from the metadata when the payload does not carry one.
func DecodeStateChanged(msg *message.Message) (StateChanged, error) {
	var ev StateChanged
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return StateChanged{}, errors.Wrap(err, "decode state changed event")
	}
	if ev.Sequence == 0 {
		if raw := msg.Metadata.Get(MetadataSequenceNumber); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return StateChanged{}, errors.Wrapf(err, "invalid %s %q", MetadataSequenceNumber, raw)
			}
			ev.Sequence = n
		}
	}
	return ev, nil
}
