package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Renderer writes the visible thread of a conversation.
type Renderer interface {
	RenderState(w io.Writer, s *conversation.State) error
}

// Header is the one-line label of a message: id, role and, for messages with
// alternatives, the "v2/3" position of the displayed version.
func Header(s *conversation.State, m *conversation.Message) string {
	ret := fmt.Sprintf("%s [%s]", m.ID, m.Role)
	info, err := s.VersionInfo(m.ID)
	if err == nil && info.Total > 1 {
		ret += fmt.Sprintf(" (v%d/%d)", info.Current(), info.Total)
	}
	return ret
}

func renderThread(w io.Writer, s *conversation.State, content func(m *conversation.Message) (string, error)) error {
	msgs, err := s.PathMessages()
	if err != nil {
		return err
	}
	for i, m := range msgs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		body, err := content(m)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n", Header(s, m), strings.TrimRight(body, "\n")); err != nil {
			return err
		}
	}
	if s.IsGenerating {
		if _, err := fmt.Fprintln(w, "\n... generating"); err != nil {
			return err
		}
	}
	return nil
}

type PlainRenderer struct{}

func (PlainRenderer) RenderState(w io.Writer, s *conversation.State) error {
	return renderThread(w, s, func(m *conversation.Message) (string, error) {
		return m.Content, nil
	})
}

// VersionEntry is one member of a version group.
type VersionEntry struct {
	Position int
	ID       conversation.MessageID
	Active   bool
	// FirstLine is the first line of the content.
	FirstLine string
}

// Versions lists every member of the version group id belongs to, root first.
func Versions(s *conversation.State, id conversation.MessageID) ([]VersionEntry, error) {
	root, err := conversation.ResolveRoot(s, id)
	if err != nil {
		return nil, err
	}
	members := append([]conversation.MessageID{root.ID}, root.VersionIDs...)
	ret := make([]VersionEntry, 0, len(members))
	for i, mid := range members {
		m, ok := s.Message(mid)
		if !ok {
			return nil, errors.Errorf("version %s of %s is missing", mid, root.ID)
		}
		ret = append(ret, VersionEntry{
			Position:  i,
			ID:        m.ID,
			Active:    i == root.ActiveVersionPosition,
			FirstLine: strings.SplitN(m.Content, "\n", 2)[0],
		})
	}
	return ret, nil
}

// WriteVersions prints Versions one per line, the active one marked with *.
func WriteVersions(w io.Writer, s *conversation.State, id conversation.MessageID) error {
	versions, err := Versions(s, id)
	if err != nil {
		return err
	}
	for _, v := range versions {
		marker := " "
		if v.Active {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %d %s %s\n", marker, v.Position, v.ID, v.FirstLine); err != nil {
			return err
		}
	}
	return nil
}

const (
	KindPlain    = "plain"
	KindMarkdown = "markdown"
	KindAuto     = "auto"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Auto renders markdown on a terminal and plain text elsewhere.
func Auto(w io.Writer) (Renderer, error) {
	if IsTerminal(w) {
		return NewMarkdownRenderer(StyleAuto, 0)
	}
	return PlainRenderer{}, nil
}

func New(kind string, w io.Writer) (Renderer, error) {
	switch kind {
	case "", KindAuto:
		return Auto(w)
	case KindPlain:
		return PlainRenderer{}, nil
	case KindMarkdown:
		return NewMarkdownRenderer(StyleAuto, 0)
	}
	return nil, errors.Errorf("unknown renderer %q", kind)
}
