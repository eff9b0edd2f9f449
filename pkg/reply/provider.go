package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
)

var ErrEmptyReply = errors.New("provider returned an empty reply")

// File is a piece of selected context sent along with a prompt.
type File struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// Request is what a Provider sees of a submission. History is the visible thread before
// the prompt, oldest first; the prompt itself is not part of it.
type Request struct {
	Prompt  string
	Files   []File
	History []conversation.HistoryEntry
}

// Provider produces the assistant reply to a prompt.
type Provider interface {
	Reply(ctx context.Context, req Request) (string, error)
}

type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Reply(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// PromptWithFiles renders the prompt followed by every file as a fenced block.
func PromptWithFiles(prompt string, files []File) string {
	if len(files) == 0 {
		return prompt
	}
	sb := strings.Builder{}
	sb.WriteString(prompt)
	for _, f := range files {
		_, _ = fmt.Fprintf(&sb, "\n\nFile: %s\n```\n%s\n```", f.Path, strings.TrimRight(f.Content, "\n"))
	}
	return sb.String()
}

// EchoProvider answers with the prompt it was given. It needs no network and is the
// default for demos and tests.
type EchoProvider struct {
	Prefix string
}

func (e EchoProvider) Reply(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ret := e.Prefix + req.Prompt
	if len(req.Files) > 0 {
		names := make([]string, 0, len(req.Files))
		for _, f := range req.Files {
			names = append(names, f.Path)
		}
		ret += fmt.Sprintf(" (files: %s)", strings.Join(names, ", "))
	}
	return ret, nil
}

var (
	_ Provider = EchoProvider{}
	_ Provider = ProviderFunc(nil)
)
