package conversation

// Action is a state transition applied by a Reducer. The set of actions is closed:
// apply is unexported so only this package can define new ones.
type Action interface {
	Name() string
	apply(s *State, ids IDSource) error
}

// Append adds a new message at the end of the current path.
type Append struct {
	Content string
	Role    Role
}

func (a Append) Name() string { return "append" }

func (a Append) apply(s *State, ids IDSource) error {
	if !a.Role.Valid() {
		return ErrInvalidRole
	}
	m := &Message{
		ID:      ids.NewID(),
		Content: a.Content,
		Role:    a.Role,
	}
	s.Messages[m.ID] = m
	if last, ok := s.LastID(); ok {
		prev, ok := s.Messages[last]
		if !ok {
			return brokenf(last, "path entry is missing from messages")
		}
		prev.NextID = m.ID
	}
	s.CurrentPath = append(s.CurrentPath, m.ID)
	s.DisableAnimation = false
	return nil
}

// Edit records new content as a fresh version of the group MessageID belongs to and
// makes it active. When the edited message is on the path, everything after it is
// discarded.
type Edit struct {
	MessageID MessageID
	Content   string
}

func (a Edit) Name() string { return "edit" }

func (a Edit) apply(s *State, ids IDSource) error {
	root, err := ResolveRoot(s, a.MessageID)
	if err != nil {
		return err
	}
	next := len(root.VersionIDs) + 1
	m := &Message{
		ID:              ids.NewID(),
		Content:         a.Content,
		Role:            root.Role,
		VersionParentID: root.ID,
	}
	s.Messages[m.ID] = m
	root.VersionIDs = append(root.VersionIDs, m.ID)
	root.ActiveVersionPosition = next

	if i := s.PathIndex(a.MessageID); i >= 0 {
		path := make([]MessageID, 0, i+1)
		path = append(path, s.CurrentPath[:i]...)
		s.CurrentPath = append(path, m.ID)
	}
	s.DisableAnimation = false
	return nil
}

// SwitchVersion activates position TargetVersionIndex of the group MessageID belongs
// to and rebuilds the path after it from forward links. MessageID must be displayed on
// the current path.
type SwitchVersion struct {
	MessageID          MessageID
	TargetVersionIndex int
}

func (a SwitchVersion) Name() string { return "switch_version" }

func (a SwitchVersion) apply(s *State, _ IDSource) error {
	root, err := ResolveRoot(s, a.MessageID)
	if err != nil {
		return err
	}
	target, err := versionTarget(root, a.TargetVersionIndex)
	if err != nil {
		return err
	}
	i := s.PathIndex(a.MessageID)
	if i < 0 {
		return &NotFoundError{ID: a.MessageID, Where: WhereCurrentPath}
	}

	downstream, err := DownstreamPath(s, target)
	if err != nil {
		return err
	}
	path := make([]MessageID, 0, i+1+len(downstream))
	path = append(path, s.CurrentPath[:i]...)
	path = append(path, target)
	s.CurrentPath = append(path, downstream...)
	root.ActiveVersionPosition = a.TargetVersionIndex
	s.DisableAnimation = true
	return nil
}

// ToggleGenerating flips IsGenerating and touches nothing else.
type ToggleGenerating struct{}

func (ToggleGenerating) Name() string { return "toggle_generating" }

func (ToggleGenerating) apply(s *State, _ IDSource) error {
	s.IsGenerating = !s.IsGenerating
	return nil
}

var (
	_ Action = Append{}
	_ Action = Edit{}
	_ Action = SwitchVersion{}
	_ Action = ToggleGenerating{}
)
