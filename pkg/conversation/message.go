package conversation

import (
	"fmt"
	"strings"
)

// MessageID is an opaque message identifier minted by an IDSource.
type MessageID string

func (id MessageID) String() string {
	return string(id)
}

func (id MessageID) IsZero() bool {
	return id == ""
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single node of the conversation graph.
//
// Content and Role never change after creation. NextID is the forward link in thread
// order and is rewritten when a reply is appended after this message. VersionIDs and
// ActiveVersionPosition are only meaningful on the root of a version group: position 0
// means the root itself is active, k >= 1 means VersionIDs[k-1] is active.
type Message struct {
	ID      MessageID `json:"id" yaml:"id"`
	Content string    `json:"content" yaml:"content"`
	Role    Role      `json:"role" yaml:"role"`

	NextID MessageID `json:"next_id,omitempty" yaml:"next_id,omitempty"`

	VersionParentID       MessageID   `json:"version_parent_id,omitempty" yaml:"version_parent_id,omitempty"`
	VersionIDs            []MessageID `json:"version_ids,omitempty" yaml:"version_ids,omitempty"`
	ActiveVersionPosition int         `json:"active_version_position" yaml:"active_version_position"`
}

// IsRoot reports whether the message is the original of its version group.
func (m *Message) IsRoot() bool {
	return m.VersionParentID.IsZero()
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	ret := *m
	if m.VersionIDs != nil {
		ret.VersionIDs = make([]MessageID, len(m.VersionIDs))
		copy(ret.VersionIDs, m.VersionIDs)
	}
	return &ret
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// HistoryEntry is the projection of a message handed to a reply collaborator.
type HistoryEntry struct {
	Content string `json:"content" yaml:"content"`
	Role    Role   `json:"role" yaml:"role"`
}
