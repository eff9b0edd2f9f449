package builder

import (
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SeedMessage is a message template; Content is rendered with text/template and sprig.
type SeedMessage struct {
	Role    conversation.Role `yaml:"role" json:"role"`
	Content string            `yaml:"content" json:"content"`
}

// Seed is the file form of a conversation opening. JSON files parse as YAML.
type Seed struct {
	SystemPrompt string                 `yaml:"system-prompt,omitempty" json:"system-prompt,omitempty"`
	Messages     []SeedMessage          `yaml:"messages,omitempty" json:"messages,omitempty"`
	Prompt       string                 `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Variables    map[string]interface{} `yaml:"variables,omitempty" json:"variables,omitempty"`
}

func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read seed file %s", path)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, errors.Wrapf(err, "parse seed file %s", path)
	}
	return seed, nil
}

// Builder renders seed templates and replays them into a fresh conversation state.
type Builder struct {
	systemPrompt string
	messages     []SeedMessage
	prompt       string
	variables    map[string]interface{}
}

func NewBuilder() *Builder {
	return &Builder{
		variables: make(map[string]interface{}),
	}
}

func (b *Builder) WithSystemPrompt(systemPrompt string) *Builder {
	b.systemPrompt = systemPrompt
	return b
}

func (b *Builder) WithMessages(messages ...SeedMessage) *Builder {
	b.messages = append(b.messages, messages...)
	return b
}

func (b *Builder) WithPrompt(prompt string) *Builder {
	b.prompt = prompt
	return b
}

// WithVariables merges variables; later calls win.
func (b *Builder) WithVariables(variables map[string]interface{}) *Builder {
	if b.variables == nil {
		b.variables = make(map[string]interface{})
	}
	for k, v := range variables {
		b.variables[k] = v
	}
	return b
}

// WithSeed takes every non-empty part of seed. Seed variables do not override ones
// already set on the builder.
func (b *Builder) WithSeed(seed *Seed) *Builder {
	if seed == nil {
		return b
	}
	if seed.SystemPrompt != "" {
		b.systemPrompt = seed.SystemPrompt
	}
	b.messages = append(b.messages, seed.Messages...)
	if seed.Prompt != "" {
		b.prompt = seed.Prompt
	}
	for k, v := range seed.Variables {
		if _, ok := b.variables[k]; !ok {
			b.variables[k] = v
		}
	}
	return b
}

// Result is a seeded conversation. Prompt is left for the caller to submit so the
// reply goes through the normal submission path.
type Result struct {
	State        *conversation.State
	SystemPrompt string
	Prompt       string
}

func createTemplate(name string) *template.Template {
	return template.New(name).Funcs(sprig.TxtFuncMap())
}

func (b *Builder) render(name string, text string) (string, error) {
	tmpl, err := createTemplate(name).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse %s template", name)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, b.variables); err != nil {
		return "", errors.Wrapf(err, "failed to execute %s template", name)
	}
	return buf.String(), nil
}

// Build renders every template and appends the messages in order through r.
func (b *Builder) Build(r *conversation.Reducer) (*Result, error) {
	ret := &Result{State: conversation.NewState()}

	if b.systemPrompt != "" {
		s, err := b.render("system-prompt", b.systemPrompt)
		if err != nil {
			return nil, err
		}
		ret.SystemPrompt = s
	}

	for i, m := range b.messages {
		content, err := b.render("message", m.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		next, err := r.Apply(ret.State, conversation.Append{Content: content, Role: m.Role})
		if err != nil {
			return nil, errors.Wrapf(err, "message %d", i)
		}
		ret.State = next
	}

	if b.prompt != "" {
		p, err := b.render("prompt", b.prompt)
		if err != nil {
			return nil, err
		}
		ret.Prompt = p
	}
	return ret, nil
}
