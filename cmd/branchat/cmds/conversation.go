package cmds

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/conversation/builder"
	"github.com/go-go-golems/branchat/pkg/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// parseVariables turns key=value pairs into template variables.
func parseVariables(pairs []string) (map[string]interface{}, error) {
	ret := map[string]interface{}{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid variable %q, expected key=value", p)
		}
		ret[k] = v
	}
	return ret, nil
}

func NewNewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new [prompt...]",
		Short: "Start the conversation over, optionally from a seed file and with a first prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedPath, _ := cmd.Flags().GetString("seed")
			vars, _ := cmd.Flags().GetStringArray("set")
			force, _ := cmd.Flags().GetBool("force")

			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}

			return runInEnv(cmd, runOptions{save: true}, func(ctx context.Context, e *Env) error {
				if len(e.Session.State().Messages) > 0 && !force {
					return errors.Errorf("conversation %s already exists, use --force to replace it", e.Settings.Conversation)
				}

				b := builder.NewBuilder()
				if seedPath != "" {
					seed, err := builder.LoadSeedFile(seedPath)
					if err != nil {
						return err
					}
					b.WithSeed(seed)
				}
				b.WithVariables(variables)
				if len(args) > 0 {
					b.WithPrompt(strings.Join(args, " "))
				}

				empty := conversation.NewState()
				res, err := b.Build(conversation.NewReducer(e.Settings.NewIDSource(empty)))
				if err != nil {
					return err
				}
				if res.SystemPrompt != "" {
					e.Settings.SystemPrompt = res.SystemPrompt
				}
				if err := e.Reset(res.State); err != nil {
					return err
				}

				if res.Prompt == "" {
					return e.Show()
				}
				out, err := e.Submit(ctx, res.Prompt, "")
				if err != nil {
					return err
				}
				return printReply(e, out)
			})
		},
	}
	cmd.Flags().String("seed", "", "YAML or JSON file with the opening messages")
	cmd.Flags().StringArray("set", nil, "Template variable as key=value (repeatable)")
	cmd.Flags().Bool("force", false, "Replace an existing conversation")
	return cmd
}

func printReply(e *Env, out *session.SubmitResult) error {
	_, err := fmt.Fprintf(e.Out, "%s\n%s\n", out.ReplyID, out.Reply)
	return err
}

func NewSayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text...>",
		Short: "Add a user message and wait for the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInEnv(cmd, runOptions{save: true}, func(ctx context.Context, e *Env) error {
				out, err := e.Submit(ctx, strings.Join(args, " "), "")
				if err != nil {
					return err
				}
				return printReply(e, out)
			})
		},
	}
}

func NewEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <text...>",
		Short: "Replace a message on the current path with a new version and wait for the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInEnv(cmd, runOptions{save: true}, func(ctx context.Context, e *Env) error {
				out, err := e.Submit(ctx, strings.Join(args[1:], " "), conversation.MessageID(args[0]))
				if err != nil {
					return err
				}
				return printReply(e, out)
			})
		},
	}
}

// parseVersionTarget accepts a 0-based version index, or "prev" / "next" relative to
// the active version of id's group.
func parseVersionTarget(s *conversation.State, id conversation.MessageID, arg string) (int, error) {
	switch arg {
	case "prev", "next":
		info, err := s.VersionInfo(id)
		if err != nil {
			return 0, err
		}
		if arg == "prev" {
			if !info.CanPrev() {
				return 0, errors.Errorf("%s is already the first version", id)
			}
			return info.Prev(), nil
		}
		if !info.CanNext() {
			return 0, errors.Errorf("%s is already the last version", id)
		}
		return info.Next(), nil
	}
	k, err := strconv.Atoi(arg)
	if err != nil {
		return 0, errors.Errorf("invalid version %q, expected a number, prev or next", arg)
	}
	return k, nil
}

func NewSwitchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <id> <version|prev|next>",
		Short: "Make another version of a message active and show the resulting thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInEnv(cmd, runOptions{save: true}, func(ctx context.Context, e *Env) error {
				id := conversation.MessageID(args[0])
				k, err := parseVersionTarget(e.Session.State(), id, args[1])
				if err != nil {
					return err
				}
				if _, err := e.Session.Dispatch(ctx, conversation.SwitchVersion{MessageID: id, TargetVersionIndex: k}); err != nil {
					return err
				}
				return e.Show()
			})
		},
	}
}
