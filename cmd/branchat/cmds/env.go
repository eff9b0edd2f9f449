package cmds

import (
	"context"
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/branchat/pkg/config"
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/events"
	"github.com/go-go-golems/branchat/pkg/persistence"
	"github.com/go-go-golems/branchat/pkg/render"
	"github.com/go-go-golems/branchat/pkg/reply"
	"github.com/go-go-golems/branchat/pkg/session"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Env is everything a command needs to work on the configured conversation.
type Env struct {
	Settings *config.Settings
	Store    persistence.Store
	Bus      *events.Bus
	Session  *session.Session
	Renderer render.Renderer
	Out      io.Writer
	ErrOut   io.Writer

	files []reply.File
}

func loadSettings() (*config.Settings, error) {
	return config.FromViper(viper.GetViper())
}

// NewEnv opens the store and loads the conversation named in settings. A missing
// conversation starts empty.
func NewEnv(ctx context.Context, settings *config.Settings, out io.Writer, errOut io.Writer) (*Env, error) {
	store, err := settings.OpenStore()
	if err != nil {
		return nil, err
	}
	ret := &Env{
		Settings: settings,
		Store:    store,
		Out:      out,
		ErrOut:   errOut,
	}

	ret.Renderer, err = render.New(settings.Render, out)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ret.Bus, err = events.NewBus(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	state, ok, err := store.Load(ctx, settings.Conversation)
	if err != nil {
		_ = ret.Close()
		return nil, err
	}
	if !ok {
		log.Debug().Str("conversation", settings.Conversation).Msg("starting new conversation")
		state = conversation.NewState()
	}
	if err := ret.Reset(state); err != nil {
		_ = ret.Close()
		return nil, err
	}
	return ret, nil
}

// Reset replaces the session with one holding state.
func (e *Env) Reset(state *conversation.State) error {
	provider, err := e.Settings.NewProvider()
	if err != nil {
		return err
	}
	e.Session = session.New(
		session.WithConversationID(e.Settings.Conversation),
		session.WithState(state),
		session.WithIDSource(e.Settings.NewIDSource(state)),
		session.WithProvider(provider),
		session.WithPublisher(e.Bus),
	)
	return nil
}

// Files loads the configured context files once.
func (e *Env) Files() ([]reply.File, error) {
	if e.files != nil || len(e.Settings.Files) == 0 {
		return e.files, nil
	}
	files, err := reply.LoadFiles(e.Settings.Files)
	if err != nil {
		return nil, err
	}
	e.files = files
	return e.files, nil
}

// Submit sends prompt through the session, replacing editID when it is set.
func (e *Env) Submit(ctx context.Context, prompt string, editID conversation.MessageID) (*session.SubmitResult, error) {
	files, err := e.Files()
	if err != nil {
		return nil, err
	}
	return e.Session.Submit(ctx, session.SubmitInput{
		Prompt: prompt,
		EditID: editID,
		Files:  files,
	})
}

func (e *Env) Save(ctx context.Context) error {
	return e.Store.Save(ctx, e.Settings.Conversation, e.Session.State())
}

func (e *Env) Show() error {
	return e.Renderer.RenderState(e.Out, e.Session.State())
}

func (e *Env) Close() error {
	var ret error
	if e.Bus != nil {
		ret = e.Bus.Close()
	}
	if err := e.Store.Close(); err != nil && ret == nil {
		ret = err
	}
	return ret
}

// printEvent writes a one-line summary of ev, used with --print-events.
func printEvent(w io.Writer) func(ev events.StateChanged, msg *message.Message) error {
	return func(ev events.StateChanged, msg *message.Message) error {
		_, err := fmt.Fprintf(w, "event #%d %s path=%d messages=%d generating=%t\n",
			ev.Sequence, ev.Action, ev.PathLength, ev.MessageCount, ev.IsGenerating)
		return err
	}
}

type runOptions struct {
	save bool
}

// runInEnv runs f against a fresh Env while the event bus is running. When save is
// set the conversation is written back to the store after f succeeds.
func runInEnv(cmd *cobra.Command, opts runOptions, f func(ctx context.Context, e *Env) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := events.ContextWithCorrelationID(cmd.Context(), cmd.Name()+"_"+shortuuid.New())

	e, err := NewEnv(ctx, settings, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	e.Bus.AddHandler("log", func(ev events.StateChanged, msg *message.Message) error {
		log.Debug().
			Str("conversation", ev.ConversationID).
			Str("action", ev.Action).
			Uint64("sequence", ev.Sequence).
			Str("correlation_id", msg.Metadata.Get(events.MetadataCorrelationID)).
			Msg("state changed")
		return nil
	})
	if viper.GetBool("print-events") {
		e.Bus.AddHandler("print", printEvent(e.ErrOut))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return e.Bus.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = e.Bus.Close()
		}()
		select {
		case <-e.Bus.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := f(ctx, e); err != nil {
			return err
		}
		if opts.save {
			if err := e.Save(ctx); err != nil {
				return errors.Wrapf(err, "save conversation %s", settings.Conversation)
			}
		}
		return nil
	})
	return eg.Wait()
}

// withStore runs f against the configured store only.
func withStore(ctx context.Context, f func(ctx context.Context, settings *config.Settings, store persistence.Store) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := settings.OpenStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()
	return f(ctx, settings, store)
}
