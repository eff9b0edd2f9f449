package render

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/stretchr/testify/require"
)

func sampleState(t *testing.T) *conversation.State {
	t.Helper()
	r := conversation.NewReducer(conversation.NewSequenceSource("m", 0))
	s, err := r.ApplyAll(nil,
		conversation.Append{Content: "hi", Role: conversation.RoleUser},
		conversation.Append{Content: "hello", Role: conversation.RoleAssistant},
		conversation.Edit{MessageID: "m1", Content: "hi there"},
		conversation.Append{Content: "# Title\n\nsome **bold** text", Role: conversation.RoleAssistant},
	)
	require.NoError(t, err)
	return s
}

func TestPlainRenderer(t *testing.T) {
	s := sampleState(t)
	buf := &bytes.Buffer{}
	require.NoError(t, PlainRenderer{}.RenderState(buf, s))
	require.Equal(t, "m3 [user] (v2/2)\nhi there\n\nm4 [assistant]\n# Title\n\nsome **bold** text\n", buf.String())

	s.IsGenerating = true
	buf.Reset()
	require.NoError(t, PlainRenderer{}.RenderState(buf, s))
	require.Contains(t, buf.String(), "... generating")

	buf.Reset()
	require.NoError(t, PlainRenderer{}.RenderState(buf, conversation.NewState()))
	require.Empty(t, buf.String())
}

func TestMarkdownRenderer(t *testing.T) {
	s := sampleState(t)
	r, err := NewMarkdownRenderer(StyleNoTTY, 60)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, r.RenderState(buf, s))
	out := buf.String()
	require.Contains(t, out, "m3 [user] (v2/2)\nhi there\n")
	require.Contains(t, out, "Title")
	require.Contains(t, out, "bold")
}

func TestWriteVersions(t *testing.T) {
	s := sampleState(t)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteVersions(buf, s, "m1"))
	require.Equal(t, "  0 m1 hi\n* 1 m3 hi there\n", buf.String())

	err := WriteVersions(buf, s, "nope")
	require.True(t, errors.Is(err, conversation.ErrNotFound))
}

func TestVersions(t *testing.T) {
	s := sampleState(t)
	versions, err := Versions(s, "m3")
	require.NoError(t, err)
	require.Equal(t, []VersionEntry{
		{Position: 0, ID: "m1", FirstLine: "hi"},
		{Position: 1, ID: "m3", Active: true, FirstLine: "hi there"},
	}, versions)
}

func TestNew(t *testing.T) {
	buf := &bytes.Buffer{}
	r, err := New(KindAuto, buf)
	require.NoError(t, err)
	require.IsType(t, PlainRenderer{}, r)
	require.False(t, IsTerminal(buf))

	r, err = New(KindMarkdown, buf)
	require.NoError(t, err)
	require.IsType(t, &MarkdownRenderer{}, r)

	_, err = New("html", buf)
	require.Error(t, err)
}
