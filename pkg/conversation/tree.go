package conversation

// ResolveRoot returns the root of the version group id belongs to: the message itself
// when it has no version parent, otherwise the message at its VersionParentID.
func ResolveRoot(s *State, id MessageID) (*Message, error) {
	m, ok := s.Messages[id]
	if !ok {
		return nil, &NotFoundError{ID: id, Where: WhereMessages}
	}
	if m.IsRoot() {
		return m, nil
	}
	root, ok := s.Messages[m.VersionParentID]
	if !ok {
		return nil, brokenf(id, "version parent %q is missing", m.VersionParentID)
	}
	if !root.IsRoot() {
		return nil, brokenf(id, "version parent %q is itself a version of %q", root.ID, root.VersionParentID)
	}
	return root, nil
}

// versionTarget maps a 0-based group position to the member id it selects.
func versionTarget(root *Message, position int) (MessageID, error) {
	if position < 0 || position > len(root.VersionIDs) {
		return "", &InvalidVersionIndexError{ID: root.ID, Index: position, Max: len(root.VersionIDs)}
	}
	if position == 0 {
		return root.ID, nil
	}
	return root.VersionIDs[position-1], nil
}

// ActiveMember returns the currently selected member of the group rooted at root.
func ActiveMember(s *State, root *Message) (*Message, error) {
	id, err := versionTarget(root, root.ActiveVersionPosition)
	if err != nil {
		return nil, brokenf(root.ID, "active version position %d out of range", root.ActiveVersionPosition)
	}
	m, ok := s.Messages[id]
	if !ok {
		return nil, brokenf(root.ID, "active version %q is missing", id)
	}
	return m, nil
}

// DownstreamPath follows forward links from start and returns the ids that come after
// it, start excluded. Each followed-to message is replaced by the active member of its
// version group when the group's root selects a non-zero position; the walk then
// continues from the substituted message.
func DownstreamPath(s *State, start MessageID) ([]MessageID, error) {
	cur, ok := s.Messages[start]
	if !ok {
		return nil, &NotFoundError{ID: start, Where: WhereMessages}
	}

	seen := map[MessageID]struct{}{start: {}}
	ret := []MessageID{}
	for !cur.NextID.IsZero() {
		next, ok := s.Messages[cur.NextID]
		if !ok {
			return nil, brokenf(cur.ID, "next message %q is missing", cur.NextID)
		}
		root, err := ResolveRoot(s, next.ID)
		if err != nil {
			return nil, err
		}
		if root.ActiveVersionPosition != 0 {
			next, err = ActiveMember(s, root)
			if err != nil {
				return nil, err
			}
		}
		if _, dup := seen[next.ID]; dup {
			return nil, brokenf(next.ID, "forward links form a cycle")
		}
		seen[next.ID] = struct{}{}
		ret = append(ret, next.ID)
		cur = next
	}
	return ret, nil
}
