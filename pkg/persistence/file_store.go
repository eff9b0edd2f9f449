package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-go-golems/branchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one snapshot file per conversation in a directory.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	format Format
	closed bool
}

func NewFileStore(dir string, format Format) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "file store: %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store directory %s", dir)
	}
	return &FileStore{dir: dir, format: format}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+s.format.Extension())
}

func (s *FileStore) Load(_ context.Context, id string) (*conversation.State, bool, error) {
	if err := ValidateConversationID(id); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "read conversation %s", id)
	}
	state, err := Decode(data, s.format)
	if err != nil {
		return nil, false, errors.Wrapf(err, "conversation %s", id)
	}
	return state, true, nil
}

func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", s.dir)
	}
	ext := s.format.Extension()
	out := []Summary{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		if ValidateConversationID(id) != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read conversation %s", id)
		}
		state, err := Decode(data, s.format)
		if err != nil {
			log.Warn().Err(err).Str("conversation", id).Msg("skipping unreadable snapshot")
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat conversation %s", id)
		}
		out = append(out, summarize(id, state, info.ModTime()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Save writes to a temporary file and renames it over the snapshot.
func (s *FileStore) Save(_ context.Context, id string, state *conversation.State) error {
	if err := ValidateConversationID(id); err != nil {
		return err
	}
	if state == nil {
		state = conversation.NewState()
	}
	data, err := Encode(state, s.format)
	if err != nil {
		return errors.Wrapf(err, "encode conversation %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temporary snapshot")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temporary snapshot")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temporary snapshot")
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "save conversation %s", id)
	}
	log.Debug().Str("conversation", id).Str("path", s.path(id)).Msg("saved conversation")
	return nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateConversationID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ Store = (*FileStore)(nil)
