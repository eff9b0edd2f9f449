package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestReducer() *Reducer {
	return NewReducer(NewSequenceSource("m", 0))
}

func mustApply(t *testing.T, r *Reducer, s *State, a Action) *State {
	t.Helper()
	next, err := r.Apply(s, a)
	require.NoError(t, err)
	require.NotNil(t, next)
	return next
}

func TestAppendGrowsPath(t *testing.T) {
	r := newTestReducer()
	s := NewState()
	for i := 0; i < 4; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		next := mustApply(t, r, s, Append{Content: "x", Role: role})
		require.Len(t, next.CurrentPath, len(s.CurrentPath)+1)
		require.Len(t, next.Messages, len(s.Messages)+1)

		last := next.CurrentPath[len(next.CurrentPath)-1]
		require.Equal(t, role, next.Messages[last].Role)
		if len(s.CurrentPath) > 0 {
			prev := s.CurrentPath[len(s.CurrentPath)-1]
			require.Equal(t, last, next.Messages[prev].NextID)
		}
		s = next
	}
}

func TestAppendLeavesGeneratingAlone(t *testing.T) {
	r := newTestReducer()
	s := mustApply(t, r, nil, ToggleGenerating{})
	s.DisableAnimation = true
	s = mustApply(t, r, s, Append{Content: "hi", Role: RoleUser})
	require.True(t, s.IsGenerating)
	require.False(t, s.DisableAnimation)
}

func TestAppendRejectsInvalidRole(t *testing.T) {
	r := newTestReducer()
	_, err := r.Apply(NewState(), Append{Content: "hi", Role: "system"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidRole))
	require.Contains(t, err.Error(), "append")
}

func TestEditGrowsVersionGroup(t *testing.T) {
	r := newTestReducer()
	s := mustApply(t, r, nil, Append{Content: "hi", Role: RoleUser})

	for n := 1; n <= 3; n++ {
		// editing through any member of the group lands on the same root
		target := s.CurrentPath[0]
		s = mustApply(t, r, s, Edit{MessageID: target, Content: "v"})
		root := s.Messages["m1"]
		require.Len(t, root.VersionIDs, n)
		require.Equal(t, n, root.ActiveVersionPosition)

		newest := root.VersionIDs[n-1]
		require.Equal(t, []MessageID{newest}, s.CurrentPath)
		require.Equal(t, MessageID("m1"), s.Messages[newest].VersionParentID)
		require.Equal(t, RoleUser, s.Messages[newest].Role)
		require.Empty(t, s.Messages[newest].VersionIDs)
	}
}

func TestEditTruncatesDownstream(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Append{Content: "c", Role: RoleUser},
		Append{Content: "d", Role: RoleAssistant},
	)
	require.NoError(t, err)

	s = mustApply(t, r, s, Edit{MessageID: "m3", Content: "c'"})
	require.Equal(t, []MessageID{"m1", "m2", "m5"}, s.CurrentPath)
	require.False(t, s.DisableAnimation)
	require.Equal(t, "c'", s.Messages["m5"].Content)
	require.Equal(t, "c", s.Messages["m3"].Content)
}

func TestEditOffPathKeepsPath(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "a'"},
	)
	require.NoError(t, err)
	require.Equal(t, []MessageID{"m3"}, s.CurrentPath)

	// m2 is no longer displayed
	s = mustApply(t, r, s, Edit{MessageID: "m2", Content: "b'"})
	require.Equal(t, []MessageID{"m3"}, s.CurrentPath)
	require.Equal(t, []MessageID{"m4"}, s.Messages["m2"].VersionIDs)
	require.Equal(t, 1, s.Messages["m2"].ActiveVersionPosition)
	require.Equal(t, RoleAssistant, s.Messages["m4"].Role)
}

func TestEditUnknownID(t *testing.T) {
	r := newTestReducer()
	_, err := r.Apply(NewState(), Edit{MessageID: "nope", Content: "x"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, MessageID("nope"), nf.ID)
	require.Equal(t, WhereMessages, nf.Where)
}

func TestSwitchIdempotence(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "a'"},
		Append{Content: "b'", Role: RoleAssistant},
	)
	require.NoError(t, err)

	require.Equal(t, []MessageID{"m3", "m4"}, s.CurrentPath)

	// m3 is displayed and already active
	once := mustApply(t, r, s, SwitchVersion{MessageID: "m3", TargetVersionIndex: 1})
	twice := mustApply(t, r, once, SwitchVersion{MessageID: "m3", TargetVersionIndex: 1})
	require.Equal(t, s.CurrentPath, once.CurrentPath)
	require.Equal(t, once.CurrentPath, twice.CurrentPath)
	require.Equal(t, once.Messages, twice.Messages)
	require.True(t, twice.DisableAnimation)

	// after switching to the original, m1 is the displayed id
	once = mustApply(t, r, s, SwitchVersion{MessageID: "m3", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1", "m2"}, once.CurrentPath)
	twice = mustApply(t, r, once, SwitchVersion{MessageID: "m1", TargetVersionIndex: 0})
	require.Equal(t, once.CurrentPath, twice.CurrentPath)
	require.Equal(t, once.Messages, twice.Messages)
}

func TestSwitchRejectsHiddenGroupMember(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "a'"},
		Append{Content: "b'", Role: RoleAssistant},
	)
	require.NoError(t, err)
	require.Equal(t, []MessageID{"m3", "m4"}, s.CurrentPath)

	// m1 is in the arena and its group is displayed through m3, but m1 itself is not
	next, err := r.Apply(s, SwitchVersion{MessageID: "m1", TargetVersionIndex: 0})
	require.Nil(t, next)
	require.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, MessageID("m1"), nf.ID)
	require.Equal(t, WhereCurrentPath, nf.Where)
	require.Equal(t, []MessageID{"m3", "m4"}, s.CurrentPath)
}

func TestSwitchPreservesDownstream(t *testing.T) {
	r := newTestReducer()
	// A(m1) -> B(m2) -> C(m3); B gets a second version B2(m4) which is then abandoned
	s, err := r.ApplyAll(nil,
		Append{Content: "A", Role: RoleUser},
		Append{Content: "B", Role: RoleAssistant},
		Append{Content: "C", Role: RoleUser},
		Edit{MessageID: "m2", Content: "B2"},
	)
	require.NoError(t, err)
	require.Equal(t, []MessageID{"m1", "m4"}, s.CurrentPath)

	s = mustApply(t, r, s, SwitchVersion{MessageID: "m4", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1", "m2", "m3"}, s.CurrentPath)
	require.Equal(t, 0, s.Messages["m2"].ActiveVersionPosition)
	require.True(t, s.DisableAnimation)
}

func TestSwitchSubstitutesActiveDownstreamVersion(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "A", Role: RoleUser},       // m1
		Append{Content: "B", Role: RoleAssistant},  // m2
		Append{Content: "C", Role: RoleUser},       // m3
		Append{Content: "D", Role: RoleAssistant},  // m4
		Edit{MessageID: "m3", Content: "C2"},       // m5, path [m1 m2 m5]
		Append{Content: "D2", Role: RoleAssistant}, // m6
		Edit{MessageID: "m2", Content: "B2"},       // m7, path [m1 m7]
	)
	require.NoError(t, err)
	require.Equal(t, []MessageID{"m1", "m7"}, s.CurrentPath)

	// back to B: C's group still selects C2, so C2 and its reply are restored
	s = mustApply(t, r, s, SwitchVersion{MessageID: "m7", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1", "m2", "m5", "m6"}, s.CurrentPath)

	// selecting the original C brings back D
	s = mustApply(t, r, s, SwitchVersion{MessageID: "m5", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1", "m2", "m3", "m4"}, s.CurrentPath)
}

func TestSwitchRoundTrip(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m2", Content: "b'"},
		Edit{MessageID: "m3", Content: "b''"},
	)
	require.NoError(t, err)
	info, err := s.VersionInfo("m4")
	require.NoError(t, err)

	next := mustApply(t, r, s, SwitchVersion{MessageID: "m4", TargetVersionIndex: info.Position})
	require.Equal(t, s.Messages, next.Messages)
	require.Equal(t, s.CurrentPath, next.CurrentPath)
	require.True(t, next.DisableAnimation)
}

func TestSwitchErrors(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "a'"},
	)
	require.NoError(t, err)

	_, err = r.Apply(s, SwitchVersion{MessageID: "missing", TargetVersionIndex: 0})
	require.True(t, errors.Is(err, ErrNotFound))

	for _, k := range []int{-1, 2} {
		_, err = r.Apply(s, SwitchVersion{MessageID: "m1", TargetVersionIndex: k})
		require.True(t, errors.Is(err, ErrInvalidVersionIndex), "index %d", k)
		var iv *InvalidVersionIndexError
		require.True(t, errors.As(err, &iv))
		require.Equal(t, 1, iv.Max)
	}

	// m2 is in the arena but no member of its group is displayed
	_, err = r.Apply(s, SwitchVersion{MessageID: "m2", TargetVersionIndex: 0})
	require.True(t, errors.Is(err, ErrNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, WhereCurrentPath, nf.Where)
}

func TestToggleGenerating(t *testing.T) {
	r := newTestReducer()
	s := mustApply(t, r, nil, Append{Content: "a", Role: RoleUser})
	on := mustApply(t, r, s, ToggleGenerating{})
	require.True(t, on.IsGenerating)
	require.Equal(t, s.Messages, on.Messages)
	require.Equal(t, s.CurrentPath, on.CurrentPath)
	require.Equal(t, s.DisableAnimation, on.DisableAnimation)

	off := mustApply(t, r, on, ToggleGenerating{})
	require.False(t, off.IsGenerating)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
	)
	require.NoError(t, err)
	before := s.Clone()

	actions := []Action{
		Append{Content: "c", Role: RoleUser},
		Edit{MessageID: "m1", Content: "a'"},
		SwitchVersion{MessageID: "m1", TargetVersionIndex: 0},
		ToggleGenerating{},
		Edit{MessageID: "nope"},
		SwitchVersion{MessageID: "m1", TargetVersionIndex: 7},
	}
	for _, a := range actions {
		_, _ = r.Apply(s, a)
		require.Equal(t, before, s, a.Name())
	}
}

func TestApplyErrorReturnsNilState(t *testing.T) {
	r := newTestReducer()
	next, err := r.Apply(NewState(), SwitchVersion{MessageID: "m1"})
	require.Error(t, err)
	require.Nil(t, next)
}

func TestApplyRejectsNilAction(t *testing.T) {
	r := newTestReducer()
	_, err := r.Apply(NewState(), nil)
	require.True(t, errors.Is(err, ErrNilAction))
}

func TestApplyIsDeterministic(t *testing.T) {
	actions := []Action{
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "a'"},
		Append{Content: "c", Role: RoleAssistant},
		SwitchVersion{MessageID: "m3", TargetVersionIndex: 0},
	}
	s1, err := newTestReducer().ApplyAll(nil, actions...)
	require.NoError(t, err)
	s2, err := newTestReducer().ApplyAll(nil, actions...)
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

// Walks the m1..m4 scenario. Append always links the previous tail forward, so m1
// still points at m2 when the original is switched back in and m2 is restored.
func TestConcreteScenario(t *testing.T) {
	r := newTestReducer()

	s := mustApply(t, r, nil, Append{Content: "hi", Role: RoleUser})
	require.Equal(t, []MessageID{"m1"}, s.CurrentPath)

	s = mustApply(t, r, s, Append{Content: "hello", Role: RoleAssistant})
	require.Equal(t, []MessageID{"m1", "m2"}, s.CurrentPath)

	s = mustApply(t, r, s, Edit{MessageID: "m1", Content: "hi there"})
	require.Equal(t, []MessageID{"m3"}, s.Messages["m1"].VersionIDs)
	require.Equal(t, 1, s.Messages["m1"].ActiveVersionPosition)
	require.Equal(t, []MessageID{"m3"}, s.CurrentPath)

	s = mustApply(t, r, s, Append{Content: "hey", Role: RoleAssistant})
	require.Equal(t, []MessageID{"m3", "m4"}, s.CurrentPath)
	require.Equal(t, MessageID("m4"), s.Messages["m3"].NextID)
	require.Equal(t, MessageID("m2"), s.Messages["m1"].NextID)

	s = mustApply(t, r, s, SwitchVersion{MessageID: "m3", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1", "m2"}, s.CurrentPath)
	require.Equal(t, 0, s.Messages["m1"].ActiveVersionPosition)
	require.True(t, s.DisableAnimation)

	s = mustApply(t, r, s, SwitchVersion{MessageID: "m1", TargetVersionIndex: 1})
	require.Equal(t, []MessageID{"m3", "m4"}, s.CurrentPath)
}

// An original whose forward link was never set comes back alone.
func TestSwitchBackToOriginalWithoutNext(t *testing.T) {
	r := newTestReducer()
	s, err := r.ApplyAll(nil,
		Append{Content: "hi", Role: RoleUser},
		Edit{MessageID: "m1", Content: "hi there"},
		Append{Content: "hey", Role: RoleAssistant},
	)
	require.NoError(t, err)
	require.Equal(t, []MessageID{"m2", "m3"}, s.CurrentPath)
	require.True(t, s.Messages["m1"].NextID.IsZero())

	s = mustApply(t, r, s, SwitchVersion{MessageID: "m2", TargetVersionIndex: 0})
	require.Equal(t, []MessageID{"m1"}, s.CurrentPath)
	require.Equal(t, 0, s.Messages["m1"].ActiveVersionPosition)
}
