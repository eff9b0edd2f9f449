package persistence

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-go-golems/branchat/pkg/conversation"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteConversationsSchemaV1 = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    payload_json TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore persists one JSON snapshot row per conversation and serves reads from
// an in-memory mirror loaded at open time.
type SQLiteStore struct {
	mu     sync.RWMutex
	dsn    string
	store  *InMemoryStore
	db     *sql.DB
	closed bool
}

// SQLiteDSN builds a DSN for a database file.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	s := &SQLiteStore{
		dsn:   dsn,
		store: NewInMemoryStore(),
		db:    db,
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadFromDB(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*conversation.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, false, err
	}
	return s.store.Load(ctx, id)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *SQLiteStore) Save(ctx context.Context, id string, state *conversation.State) error {
	if err := ValidateConversationID(id); err != nil {
		return err
	}
	if state == nil {
		state = conversation.NewState()
	}
	payload, err := Encode(state, FormatJSON)
	if err != nil {
		return errors.Wrapf(err, "encode conversation %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversations (id, payload_json, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  payload_json = excluded.payload_json,
  updated_at_ms = excluded.updated_at_ms
`, id, string(payload), now.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "upsert conversation %s", id)
	}

	s.store.mu.Lock()
	s.store.put(id, state.Clone(), now)
	s.store.mu.Unlock()
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := ValidateConversationID(id); err != nil {
		return err
	}
	// the mirror only follows the table once the row is gone
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	if n == 0 {
		return ErrConversationNotFound
	}

	s.store.mu.Lock()
	delete(s.store.entries, id)
	s.store.mu.Unlock()
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.store.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	if s.db == nil {
		return errors.New("sqlite store: db is nil")
	}
	if _, err := s.db.Exec(sqliteConversationsSchemaV1); err != nil {
		return errors.Wrap(err, "sqlite store: migrate")
	}
	return nil
}

func (s *SQLiteStore) loadFromDB() error {
	if s.db == nil {
		return errors.New("sqlite store: db is nil")
	}
	rows, err := s.db.Query(`SELECT id, payload_json, updated_at_ms FROM conversations ORDER BY id ASC`)
	if err != nil {
		return errors.Wrap(err, "sqlite store: query conversations")
	}
	defer func() {
		_ = rows.Close()
	}()

	s.store = NewInMemoryStore()
	for rows.Next() {
		var (
			id        string
			payload   string
			updatedAt int64
		)
		if err := rows.Scan(&id, &payload, &updatedAt); err != nil {
			return errors.Wrap(err, "sqlite store: scan conversation")
		}
		state, err := Decode([]byte(payload), FormatJSON)
		if err != nil {
			return errors.Wrapf(err, "sqlite store: conversation %s", id)
		}
		s.store.put(id, state, time.UnixMilli(updatedAt))
	}
	return errors.Wrap(rows.Err(), "sqlite store: iterate conversations")
}

func (s *SQLiteStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
