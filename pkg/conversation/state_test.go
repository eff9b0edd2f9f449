package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildState(t *testing.T, actions ...Action) *State {
	t.Helper()
	s, err := newTestReducer().ApplyAll(nil, actions...)
	require.NoError(t, err)
	return s
}

func TestResolveRoot(t *testing.T) {
	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Edit{MessageID: "m1", Content: "a'"},
	)

	root, err := ResolveRoot(s, "m1")
	require.NoError(t, err)
	require.Equal(t, MessageID("m1"), root.ID)

	root, err = ResolveRoot(s, "m2")
	require.NoError(t, err)
	require.Equal(t, MessageID("m1"), root.ID)

	_, err = ResolveRoot(s, "m9")
	require.True(t, errors.Is(err, ErrNotFound))

	delete(s.Messages, "m1")
	_, err = ResolveRoot(s, "m2")
	require.True(t, errors.Is(err, ErrBrokenInvariant))
}

func TestDownstreamPathDetectsCycle(t *testing.T) {
	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
	)
	s.Messages["m2"].NextID = "m1"

	_, err := DownstreamPath(s, "m1")
	require.True(t, errors.Is(err, ErrBrokenInvariant))
}

func TestDownstreamPathMissingNext(t *testing.T) {
	s := buildState(t, Append{Content: "a", Role: RoleUser})
	s.Messages["m1"].NextID = "ghost"

	_, err := DownstreamPath(s, "m1")
	var bi *BrokenInvariantError
	require.True(t, errors.As(err, &bi))
	require.Equal(t, MessageID("m1"), bi.ID)
}

func TestVersionInfo(t *testing.T) {
	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Edit{MessageID: "m1", Content: "a'"},
		Edit{MessageID: "m2", Content: "a''"},
	)

	for _, id := range []MessageID{"m1", "m2", "m3"} {
		info, err := s.VersionInfo(id)
		require.NoError(t, err)
		require.Equal(t, MessageID("m1"), info.Root)
		require.Equal(t, 3, info.Total)
		require.Equal(t, 3, info.Current())
		require.True(t, info.CanPrev())
		require.False(t, info.CanNext())
		require.Equal(t, 1, info.Prev())
		require.Equal(t, 2, info.Next())
	}

	first := VersionInfo{Root: "m1", Position: 0, Total: 3}
	require.Equal(t, 1, first.Current())
	require.False(t, first.CanPrev())
	require.Equal(t, 0, first.Prev())
	require.Equal(t, 1, first.Next())

	single := VersionInfo{Root: "x", Position: 0, Total: 1}
	require.False(t, single.CanPrev())
	require.False(t, single.CanNext())

	_, err := s.VersionInfo("nope")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestHistoryFollowsCurrentPath(t *testing.T) {
	s := buildState(t,
		Append{Content: "hi", Role: RoleUser},
		Append{Content: "hello", Role: RoleAssistant},
		Edit{MessageID: "m1", Content: "hi there"},
		Append{Content: "hey", Role: RoleAssistant},
	)

	h, err := s.History()
	require.NoError(t, err)
	require.Equal(t, []HistoryEntry{
		{Content: "hi there", Role: RoleUser},
		{Content: "hey", Role: RoleAssistant},
	}, h)

	empty, err := NewState().History()
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCloneIsDeep(t *testing.T) {
	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Edit{MessageID: "m1", Content: "a'"},
	)
	c := s.Clone()
	require.Equal(t, s, c)

	c.Messages["m1"].VersionIDs[0] = "zz"
	c.CurrentPath[0] = "zz"
	c.Messages["m1"].Content = "changed"
	require.Equal(t, MessageID("m2"), s.Messages["m1"].VersionIDs[0])
	require.Equal(t, MessageID("m2"), s.CurrentPath[0])
	require.Equal(t, "a", s.Messages["m1"].Content)

	var nilState *State
	require.Nil(t, nilState.Clone())
	require.Equal(t, &State{}, (&State{}).Clone())
}

func TestValidate(t *testing.T) {
	good := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
		Edit{MessageID: "m2", Content: "b'"},
	)
	require.NoError(t, good.Validate())
	require.NoError(t, NewState().Validate())

	tests := []struct {
		name    string
		corrupt func(s *State)
	}{
		{"wrong key", func(s *State) { s.Messages["m1"].ID = "other" }},
		{"bad role", func(s *State) { s.Messages["m1"].Role = "system" }},
		{"dangling next", func(s *State) { s.Messages["m2"].NextID = "ghost" }},
		{"position out of range", func(s *State) { s.Messages["m2"].ActiveVersionPosition = 5 }},
		{"missing version", func(s *State) { s.Messages["m2"].VersionIDs = append(s.Messages["m2"].VersionIDs, "ghost") }},
		{"unlisted version", func(s *State) { s.Messages["m2"].VersionIDs = nil; s.Messages["m2"].ActiveVersionPosition = 0 }},
		{"version with versions", func(s *State) { s.Messages["m3"].VersionIDs = []MessageID{"m1"} }},
		{"path entry missing", func(s *State) { s.CurrentPath = append(s.CurrentPath, "ghost") }},
		{"duplicate path entry", func(s *State) { s.CurrentPath = append(s.CurrentPath, "m1") }},
		{"nil message", func(s *State) { s.Messages["m4"] = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good.Clone()
			tt.corrupt(s)
			err := s.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrBrokenInvariant))
		})
	}
}

func TestPathMessages(t *testing.T) {
	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
	)
	msgs, err := s.PathMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "[assistant]: b", msgs[1].String())

	s.CurrentPath = append(s.CurrentPath, "ghost")
	_, err = s.PathMessages()
	require.True(t, errors.Is(err, ErrBrokenInvariant))
}

func TestSequenceSource(t *testing.T) {
	src := NewSequenceSource("m", 0)
	require.Equal(t, MessageID("m1"), src.NewID())
	require.Equal(t, MessageID("m2"), src.NewID())

	s := buildState(t,
		Append{Content: "a", Role: RoleUser},
		Append{Content: "b", Role: RoleAssistant},
	)
	require.Equal(t, MessageID("m3"), SequenceSourceFor("m", s).NewID())
	require.Equal(t, MessageID("m1"), SequenceSourceFor("m", nil).NewID())

	var wg sync.WaitGroup
	seen := sync.Map{}
	conc := NewSequenceSource("c", 0)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(conc.NewID(), true)
			require.False(t, dup)
		}()
	}
	wg.Wait()
}

func TestUUIDSource(t *testing.T) {
	a := UUIDSource{}.NewID()
	b := UUIDSource{}.NewID()
	require.Len(t, a.String(), 36)
	require.NotEqual(t, a, b)
}
