package conversation

import (
	"github.com/rs/zerolog"
)

// State is the whole conversation: the message arena plus the derived visible path.
type State struct {
	Messages         map[MessageID]*Message `json:"messages_by_id" yaml:"messages_by_id"`
	CurrentPath      []MessageID            `json:"current_path" yaml:"current_path"`
	IsGenerating     bool                   `json:"is_generating" yaml:"is_generating"`
	DisableAnimation bool                   `json:"disable_animation" yaml:"disable_animation"`
}

func NewState() *State {
	return &State{
		Messages:    map[MessageID]*Message{},
		CurrentPath: []MessageID{},
	}
}

// Clone returns a deep copy. Nil and empty slices are preserved as they are.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	ret := &State{
		IsGenerating:     s.IsGenerating,
		DisableAnimation: s.DisableAnimation,
	}
	if s.Messages != nil {
		ret.Messages = make(map[MessageID]*Message, len(s.Messages))
		for id, m := range s.Messages {
			ret.Messages[id] = m.Clone()
		}
	}
	if s.CurrentPath != nil {
		ret.CurrentPath = make([]MessageID, len(s.CurrentPath))
		copy(ret.CurrentPath, s.CurrentPath)
	}
	return ret
}

// Message looks up a message by id.
func (s *State) Message(id MessageID) (*Message, bool) {
	m, ok := s.Messages[id]
	return m, ok
}

// PathIndex returns the position of id in the current path, or -1.
func (s *State) PathIndex(id MessageID) int {
	for i, pid := range s.CurrentPath {
		if pid == id {
			return i
		}
	}
	return -1
}

func (s *State) LastID() (MessageID, bool) {
	if len(s.CurrentPath) == 0 {
		return "", false
	}
	return s.CurrentPath[len(s.CurrentPath)-1], true
}

// PathMessages resolves the current path through the arena.
func (s *State) PathMessages() ([]*Message, error) {
	ret := make([]*Message, 0, len(s.CurrentPath))
	for _, id := range s.CurrentPath {
		m, ok := s.Messages[id]
		if !ok {
			return nil, brokenf(id, "path entry is missing from messages")
		}
		ret = append(ret, m)
	}
	return ret, nil
}

// History projects the current path to the content/role pairs a reply service consumes.
func (s *State) History() ([]HistoryEntry, error) {
	msgs, err := s.PathMessages()
	if err != nil {
		return nil, err
	}
	ret := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, HistoryEntry{Content: m.Content, Role: m.Role})
	}
	return ret, nil
}

// VersionInfo describes the version group of a message for "< 2 / 3 >" navigation.
type VersionInfo struct {
	Root     MessageID
	Position int
	Total    int
}

// Current is the 1-based position of the active member.
func (v VersionInfo) Current() int { return v.Position + 1 }

func (v VersionInfo) CanPrev() bool { return v.Position > 0 }

func (v VersionInfo) CanNext() bool { return v.Position < v.Total-1 }

// Prev returns the SwitchVersion index of the previous member, clamped at 0.
func (v VersionInfo) Prev() int {
	if !v.CanPrev() {
		return v.Position
	}
	return v.Position - 1
}

// Next returns the SwitchVersion index of the following member, clamped at the last one.
func (v VersionInfo) Next() int {
	if !v.CanNext() {
		return v.Position
	}
	return v.Position + 1
}

func (s *State) VersionInfo(id MessageID) (VersionInfo, error) {
	root, err := ResolveRoot(s, id)
	if err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{
		Root:     root.ID,
		Position: root.ActiveVersionPosition,
		Total:    len(root.VersionIDs) + 1,
	}, nil
}

// Validate checks the structural invariants of the arena and the path. It is meant for
// snapshots coming from outside the reducer.
func (s *State) Validate() error {
	if s == nil {
		return brokenf("", "state is nil")
	}
	for id, m := range s.Messages {
		if m == nil {
			return brokenf(id, "message is nil")
		}
		if m.ID != id {
			return brokenf(id, "message is keyed under a different id %q", m.ID)
		}
		if !m.Role.Valid() {
			return brokenf(id, "invalid role %q", m.Role)
		}
		if !m.NextID.IsZero() {
			if _, ok := s.Messages[m.NextID]; !ok {
				return brokenf(id, "next message %q is missing", m.NextID)
			}
		}
		if m.IsRoot() {
			if m.ActiveVersionPosition < 0 || m.ActiveVersionPosition > len(m.VersionIDs) {
				return brokenf(id, "active version position %d out of range", m.ActiveVersionPosition)
			}
			for _, vid := range m.VersionIDs {
				v, ok := s.Messages[vid]
				if !ok {
					return brokenf(id, "version %q is missing", vid)
				}
				if v.VersionParentID != id {
					return brokenf(id, "version %q points at parent %q", vid, v.VersionParentID)
				}
			}
			continue
		}
		if len(m.VersionIDs) != 0 {
			return brokenf(id, "non-root message carries versions")
		}
		root, err := ResolveRoot(s, id)
		if err != nil {
			return err
		}
		found := false
		for _, vid := range root.VersionIDs {
			if vid == id {
				found = true
				break
			}
		}
		if !found {
			return brokenf(id, "not listed in the versions of %q", root.ID)
		}
	}

	seen := make(map[MessageID]struct{}, len(s.CurrentPath))
	for _, id := range s.CurrentPath {
		if _, ok := s.Messages[id]; !ok {
			return brokenf(id, "path entry is missing from messages")
		}
		if _, dup := seen[id]; dup {
			return brokenf(id, "path entry appears twice")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// MarshalZerologObject lets a state be logged with zerolog's Object().
func (s *State) MarshalZerologObject(e *zerolog.Event) {
	e.Int("messages", len(s.Messages)).
		Int("path_length", len(s.CurrentPath)).
		Bool("is_generating", s.IsGenerating).
		Bool("disable_animation", s.DisableAnimation)
}
