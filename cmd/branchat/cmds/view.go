package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/branchat/pkg/config"
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/persistence"
	"github.com/go-go-golems/branchat/pkg/render"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInEnv(cmd, runOptions{}, func(_ context.Context, e *Env) error {
				return e.Show()
			})
		},
	}
}

type HistoryCommand struct {
	*cmds.CommandDescription
}

func NewHistoryCommand() (*HistoryCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	return &HistoryCommand{
		CommandDescription: cmds.NewCommandDescription(
			"history",
			cmds.WithShort("Print the current thread, one row per message"),
			cmds.WithLong("Print the messages of the current path with their role and version position."),
			cmds.WithSections(glazedSection, commandSettingsSection),
		),
	}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	s, err := loadConversation(ctx)
	if err != nil {
		return err
	}
	rows, err := historyRows(s)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, rows)
}

// historyRows has one row per message on the current path.
func historyRows(s *conversation.State) ([]types.Row, error) {
	msgs, err := s.PathMessages()
	if err != nil {
		return nil, err
	}
	ret := make([]types.Row, 0, len(msgs))
	for i, m := range msgs {
		version := ""
		info, err := s.VersionInfo(m.ID)
		if err != nil {
			return nil, err
		}
		if info.Total > 1 {
			version = fmt.Sprintf("%d/%d", info.Current(), info.Total)
		}
		ret = append(ret, types.NewRow(
			types.MRP("position", i),
			types.MRP("id", string(m.ID)),
			types.MRP("role", string(m.Role)),
			types.MRP("content", m.Content),
			types.MRP("version", version),
		))
	}
	return ret, nil
}

type VersionsCommand struct {
	*cmds.CommandDescription
}

type VersionsSettings struct {
	ID string `glazed:"id"`
}

func NewVersionsCommand() (*VersionsCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	return &VersionsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"versions",
			cmds.WithShort("List the versions of a message"),
			cmds.WithLong("List every member of the version group a message belongs to. The active member has active=true."),
			cmds.WithArguments(
				fields.New(
					"id",
					fields.TypeString,
					fields.WithRequired(true),
					fields.WithHelp("Any message of the version group"),
				),
			),
			cmds.WithSections(glazedSection, commandSettingsSection),
		),
	}, nil
}

func (c *VersionsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	vs := &VersionsSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, vs); err != nil {
		return err
	}
	s, err := loadConversation(ctx)
	if err != nil {
		return err
	}
	rows, err := versionRows(s, conversation.MessageID(vs.ID))
	if err != nil {
		return err
	}
	return addRows(ctx, gp, rows)
}

func versionRows(s *conversation.State, id conversation.MessageID) ([]types.Row, error) {
	versions, err := render.Versions(s, id)
	if err != nil {
		return nil, err
	}
	ret := make([]types.Row, 0, len(versions))
	for _, v := range versions {
		ret = append(ret, types.NewRow(
			types.MRP("position", v.Position),
			types.MRP("id", string(v.ID)),
			types.MRP("active", v.Active),
			types.MRP("content", v.FirstLine),
		))
	}
	return ret, nil
}

type ListCommand struct {
	*cmds.CommandDescription
}

func NewListCommand() (*ListCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsSection, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	return &ListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List stored conversations"),
			cmds.WithLong("List the conversations of the configured store with their message and path counts."),
			cmds.WithSections(glazedSection, commandSettingsSection),
		),
	}, nil
}

func (c *ListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedValues *values.Values,
	gp middlewares.Processor,
) error {
	rows, err := conversationRows(ctx)
	if err != nil {
		return err
	}
	return addRows(ctx, gp, rows)
}

// conversationRows has one row per conversation of the configured store.
func conversationRows(ctx context.Context) ([]types.Row, error) {
	var ret []types.Row
	err := withStore(ctx, func(ctx context.Context, _ *config.Settings, store persistence.Store) error {
		summaries, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			ret = append(ret, types.NewRow(
				types.MRP("id", s.ID),
				types.MRP("messages", s.MessageCount),
				types.MRP("path_length", s.PathLength),
				types.MRP("updated_at", s.UpdatedAt),
			))
		}
		return nil
	})
	return ret, err
}

func addRows(ctx context.Context, gp middlewares.Processor, rows []types.Row) error {
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// loadConversation reads the configured conversation, empty if it was never saved.
func loadConversation(ctx context.Context) (*conversation.State, error) {
	var ret *conversation.State
	err := withStore(ctx, func(ctx context.Context, cs *config.Settings, store persistence.Store) error {
		s, ok, err := store.Load(ctx, cs.Conversation)
		if err != nil {
			return err
		}
		if !ok {
			s = conversation.NewState()
		}
		ret = s
		return nil
	})
	return ret, err
}

var (
	_ cmds.GlazeCommand = &HistoryCommand{}
	_ cmds.GlazeCommand = &VersionsCommand{}
	_ cmds.GlazeCommand = &ListCommand{}
)

func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation...>",
		Short: "Delete stored conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, _ *config.Settings, store persistence.Store) error {
				for _, id := range args {
					if err := store.Delete(ctx, id); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := loadSettings()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer func() {
				_ = enc.Close()
			}()
			return enc.Encode(cs.Redacted())
		},
	}
}
