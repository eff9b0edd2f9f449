package config

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/go-go-golems/branchat/pkg/persistence"
	"github.com/go-go-golems/branchat/pkg/reply"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed "defaults.yaml"
var defaultsYAML []byte

const EnvPrefix = "BRANCHAT"

type Settings struct {
	Store        string `mapstructure:"store" yaml:"store"`
	StorePath    string `mapstructure:"store-path" yaml:"store-path"`
	StoreFormat  string `mapstructure:"store-format" yaml:"store-format"`
	Conversation string `mapstructure:"conversation" yaml:"conversation"`

	Provider           string  `mapstructure:"provider" yaml:"provider"`
	OpenAIAPIKey       string  `mapstructure:"openai-api-key" yaml:"openai-api-key"`
	OpenAIBaseURL      string  `mapstructure:"openai-base-url" yaml:"openai-base-url"`
	Model              string  `mapstructure:"model" yaml:"model"`
	Temperature        float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens          int     `mapstructure:"max-tokens" yaml:"max-tokens"`
	HistoryTokenBudget int     `mapstructure:"history-token-budget" yaml:"history-token-budget"`
	SystemPrompt       string  `mapstructure:"system-prompt" yaml:"system-prompt"`

	Render   string   `mapstructure:"render" yaml:"render"`
	IDSource string   `mapstructure:"id-source" yaml:"id-source"`
	Files    []string `mapstructure:"files" yaml:"files"`
}

// SetDefaults registers the embedded defaults on v so that every key is known to
// AutomaticEnv.
func SetDefaults(v *viper.Viper) error {
	defaults := map[string]interface{}{}
	if err := yaml.NewDecoder(bytes.NewReader(defaultsYAML)).Decode(&defaults); err != nil {
		return errors.Wrap(err, "parse embedded defaults")
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return nil
}

func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) normalize() error {
	s.Store = strings.ToLower(strings.TrimSpace(s.Store))
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	s.Render = strings.ToLower(strings.TrimSpace(s.Render))
	s.IDSource = strings.ToLower(strings.TrimSpace(s.IDSource))

	switch s.Store {
	case "file", "sqlite", "memory":
	default:
		return errors.Errorf("invalid store %q, expected file, sqlite or memory", s.Store)
	}
	if _, err := persistence.ParseFormat(s.StoreFormat); err != nil {
		return err
	}
	if err := persistence.ValidateConversationID(s.Conversation); err != nil {
		return err
	}
	switch s.Provider {
	case "echo":
	case "openai":
		if s.OpenAIAPIKey == "" {
			s.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
		}
	default:
		return errors.Errorf("invalid provider %q, expected openai or echo", s.Provider)
	}
	switch s.Render {
	case "plain", "markdown", "auto":
	default:
		return errors.Errorf("invalid render %q, expected plain, markdown or auto", s.Render)
	}
	switch s.IDSource {
	case "sequence", "uuid":
	default:
		return errors.Errorf("invalid id-source %q, expected sequence or uuid", s.IDSource)
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return errors.Errorf("temperature %v out of range [0, 2]", s.Temperature)
	}
	if s.StorePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolve home directory for store-path")
		}
		s.StorePath = filepath.Join(home, ".branchat", "conversations")
	} else if strings.HasPrefix(s.StorePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolve home directory for store-path")
		}
		s.StorePath = filepath.Join(home, s.StorePath[2:])
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Redacted is a copy safe to print.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	if ret.OpenAIAPIKey != "" {
		ret.OpenAIAPIKey = "***"
	}
	return ret
}

func (s *Settings) OpenAISettings() reply.OpenAISettings {
	return reply.OpenAISettings{
		APIKey:             s.OpenAIAPIKey,
		BaseURL:            s.OpenAIBaseURL,
		Model:              s.Model,
		Temperature:        s.Temperature,
		MaxTokens:          s.MaxTokens,
		SystemPrompt:       s.SystemPrompt,
		HistoryTokenBudget: s.HistoryTokenBudget,
	}
}

// NewProvider builds the reply provider the settings name.
func (s *Settings) NewProvider() (reply.Provider, error) {
	if s.Provider == "openai" {
		return reply.NewOpenAIProvider(s.OpenAISettings())
	}
	return reply.EchoProvider{Prefix: "echo: "}, nil
}

// NewIDSource continues numbering after state for sequence ids.
func (s *Settings) NewIDSource(state *conversation.State) conversation.IDSource {
	if s.IDSource == "uuid" {
		return conversation.UUIDSource{}
	}
	return conversation.SequenceSourceFor("m", state)
}

func (s *Settings) OpenStore() (persistence.Store, error) {
	format, err := persistence.ParseFormat(s.StoreFormat)
	if err != nil {
		return nil, err
	}
	return persistence.Open(s.Store, s.StorePath, format)
}
