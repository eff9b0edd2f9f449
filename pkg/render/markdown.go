package render

import (
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
)

const (
	StyleAuto  = "auto"
	StyleNoTTY = "notty"
	StyleDark  = "dark"
	StyleLight = "light"
)

// MarkdownRenderer renders assistant messages as markdown with glamour. User messages
// are printed as typed.
type MarkdownRenderer struct {
	tr *glamour.TermRenderer
}

func NewMarkdownRenderer(style string, wordWrap int) (*MarkdownRenderer, error) {
	options := []glamour.TermRendererOption{}
	if style == "" || style == StyleAuto {
		options = append(options, glamour.WithAutoStyle())
	} else {
		options = append(options, glamour.WithStandardStyle(style))
	}
	if wordWrap > 0 {
		options = append(options, glamour.WithWordWrap(wordWrap))
	}
	tr, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil, errors.Wrap(err, "create markdown renderer")
	}
	return &MarkdownRenderer{tr: tr}, nil
}

func (r *MarkdownRenderer) RenderState(w io.Writer, s *conversation.State) error {
	return renderThread(w, s, func(m *conversation.Message) (string, error) {
		if m.Role != conversation.RoleAssistant {
			return m.Content, nil
		}
		out, err := r.tr.Render(m.Content)
		if err != nil {
			return "", errors.Wrapf(err, "render %s", m.ID)
		}
		return out, nil
	})
}
