package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/render"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const replHelp = `plain text     send a message
:edit <id> <text>            replace a message with a new version
:switch <id> <k|prev|next>   select another version
:versions <id>               list the versions of a message
:show                        print the thread
:quit                        leave
`

// Asker reads one answer from the user.
type Asker interface {
	Ask(query string, opts *input.Options) (string, error)
}

func NewReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively, with commands to edit and switch versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInEnv(cmd, runOptions{save: true}, func(ctx context.Context, e *Env) error {
				ui := &input.UI{
					Writer: cmd.OutOrStdout(),
					Reader: cmd.InOrStdin(),
				}
				return repl(ctx, e, ui)
			})
		},
	}
}

func repl(ctx context.Context, e *Env, asker Asker) error {
	if render.IsTerminal(e.Out) {
		_, _ = fmt.Fprint(e.Out, "type :help for commands\n\n")
		if err := e.Show(); err != nil {
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := asker.Ask(">", &input.Options{HideOrder: true})
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, input.ErrInterrupted) {
				return nil
			}
			return errors.Wrap(err, "read input")
		}
		quit, err := handleLine(ctx, e, line)
		if err != nil {
			_, _ = fmt.Fprintf(e.ErrOut, "error: %v\n", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

// handleLine runs one repl input and saves the conversation if it changed.
func handleLine(ctx context.Context, e *Env, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, ":") {
		out, err := e.Submit(ctx, line, "")
		if err != nil {
			return false, err
		}
		if err := printReply(e, out); err != nil {
			return false, err
		}
		return false, e.Save(ctx)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true, nil
	case ":help":
		_, err := fmt.Fprint(e.Out, replHelp)
		return false, err
	case ":show":
		return false, e.Show()
	case ":versions":
		if len(fields) != 2 {
			return false, errors.New("usage: :versions <id>")
		}
		return false, render.WriteVersions(e.Out, e.Session.State(), conversation.MessageID(fields[1]))
	case ":edit":
		if len(fields) < 3 {
			return false, errors.New("usage: :edit <id> <text>")
		}
		rest := strings.TrimSpace(line[len(fields[0]):])
		text := strings.TrimSpace(rest[len(fields[1]):])
		out, err := e.Submit(ctx, text, conversation.MessageID(fields[1]))
		if err != nil {
			return false, err
		}
		if err := printReply(e, out); err != nil {
			return false, err
		}
		return false, e.Save(ctx)
	case ":switch":
		if len(fields) != 3 {
			return false, errors.New("usage: :switch <id> <k|prev|next>")
		}
		id := conversation.MessageID(fields[1])
		k, err := parseVersionTarget(e.Session.State(), id, fields[2])
		if err != nil {
			return false, err
		}
		if _, err := e.Session.Dispatch(ctx, conversation.SwitchVersion{MessageID: id, TargetVersionIndex: k}); err != nil {
			return false, err
		}
		if err := e.Show(); err != nil {
			return false, err
		}
		return false, e.Save(ctx)
	}
	return false, errors.Errorf("unknown command %s, try :help", fields[0])
}
