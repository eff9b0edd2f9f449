package persistence

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatForPath picks a format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

func (f Format) Extension() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func Encode(s *conversation.State, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(s, "", "  ")
	case FormatYAML:
		return yaml.Marshal(s)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Decode parses a snapshot and checks its invariants.
func Decode(data []byte, format Format) (*conversation.State, error) {
	s := conversation.NewState()
	var err error
	switch format {
	case FormatJSON, "":
		err = json.Unmarshal(data, s)
	case FormatYAML:
		err = yaml.Unmarshal(data, s)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s snapshot", format)
	}
	if s.Messages == nil {
		s.Messages = map[conversation.MessageID]*conversation.Message{}
	}
	if s.CurrentPath == nil {
		s.CurrentPath = []conversation.MessageID{}
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid snapshot")
	}
	return s, nil
}
