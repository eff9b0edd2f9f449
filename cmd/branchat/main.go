package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/branchat/cmd/branchat/cmds"
	"github.com/go-go-golems/branchat/pkg/config"
	"github.com/go-go-golems/branchat/pkg/doc"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "branchat",
	Short: "branchat is a chat client whose messages can be edited into alternate versions",
	Long: `branchat keeps a conversation as a tree of message versions. Editing a message
creates a new version and starts a new branch; switching versions brings back the
thread that followed it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		if err := initConfig(configPath); err != nil {
			return err
		}
		// reinitialize the logger now that the flags and the config file are known
		return initLogger()
	},
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initLogger() error {
	logLevel := viper.GetString("log-level")
	if viper.GetBool("verbose") && logLevel != "trace" {
		logLevel = "debug"
	}

	return InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is text on stderr
	var logWriter io.Writer
	if config.LogFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	log.Logger = log.Output(logWriter)

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", config.Level)
	}
	if level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix(config.EnvPrefix)

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.branchat")
		viper.AddConfigPath("/etc/branchat")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(xdgConfigPath, "branchat"))
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return errors.Wrap(err, "read config file")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("loaded configuration")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the config file")

	flags.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (json, text)")
	flags.String("log-file", "", "Also write logs to this file, rotated")
	flags.Bool("with-caller", false, "Log caller")
	flags.BoolP("verbose", "v", false, "Debug logging")
	flags.Bool("print-events", false, "Print every state change to stderr")

	flags.StringP("conversation", "c", "", "Conversation to work on (default \"default\")")
	flags.String("store", "", "Storage backend: file, sqlite or memory (default \"file\")")
	flags.String("store-path", "", "Directory (file) or database path (sqlite) (default ~/.branchat/conversations)")
	flags.String("store-format", "", "Snapshot format of the file store: json or yaml (default \"json\")")
	flags.String("provider", "", "Reply provider: echo or openai (default \"echo\")")
	flags.String("openai-base-url", "", "Base URL of an OpenAI compatible API")
	flags.String("model", "", "Model used by the openai provider (default \"gpt-4o-mini\")")
	flags.Float64("temperature", 0, "Sampling temperature (default 0.7)")
	flags.Int("max-tokens", 0, "Maximum tokens in a reply (default 1024)")
	flags.Int("history-token-budget", 0, "Drop the oldest history beyond this many tokens, 0 keeps everything")
	flags.String("system-prompt", "", "System prompt sent before the history")
	flags.String("render", "", "Output: plain, markdown or auto (default \"auto\")")
	flags.String("id-source", "", "Message ids: sequence or uuid (default \"sequence\")")
	flags.StringSlice("files", nil, "Files or glob patterns sent along with every prompt")

	cobra.CheckErr(config.SetDefaults(viper.GetViper()))
	cobra.CheckErr(viper.BindPFlags(flags))

	helpSystem := help.NewHelpSystem()
	cobra.CheckErr(doc.AddDocToHelpSystem(helpSystem))
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	rootCmd.AddCommand(
		cmds.NewNewCommand(),
		cmds.NewSayCommand(),
		cmds.NewEditCommand(),
		cmds.NewSwitchCommand(),
		cmds.NewShowCommand(),
		cmds.NewDeleteCommand(),
		cmds.NewReplCommand(),
		cmds.NewConfigCommand(),
	)

	historyCmd, err := cmds.NewHistoryCommand()
	cobra.CheckErr(err)
	historyCobra, err := cli.BuildCobraCommand(historyCmd)
	cobra.CheckErr(err)
	versionsCmd, err := cmds.NewVersionsCommand()
	cobra.CheckErr(err)
	versionsCobra, err := cli.BuildCobraCommand(versionsCmd)
	cobra.CheckErr(err)
	listCmd, err := cmds.NewListCommand()
	cobra.CheckErr(err)
	listCobra, err := cli.BuildCobraCommand(listCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(historyCobra, versionsCobra, listCobra)
}
