package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Open builds the store named by backend: "file" keeps snapshots under path as a
// directory, "sqlite" uses path as the database file, "memory" ignores path.
func Open(backend string, path string, format Format) (Store, error) {
	log.Debug().Str("backend", backend).Str("path", path).Str("format", string(format)).Msg("opening store")
	switch strings.ToLower(backend) {
	case "", "file":
		return NewFileStore(path, format)
	case "sqlite":
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "branchat.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}
		return NewSQLiteStore(SQLiteDSN(path))
	case "memory":
		return NewInMemoryStore(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedStoreBackend, backend)
}
