package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/channelmesh/core"
	"github.com/hupe1980/channelmesh/logging"
)

// SQLiteStore implements Store on SQLite through the pure Go modernc driver.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore opens (or creates) the database at path. The schema is
// created if it doesn't exist and parent directories are created as needed.
// The special path ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	logger = logging.With(logging.OrNoOp(logger), "component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store.sqlite.opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			channel_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_records_channel_seq
			ON records(channel_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO records (id, channel_id, conversation_id, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.ChannelID),
		rec.ConversationID,
		string(rec.Kind),
		rec.Content,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	s.logger.Debug("store.record.saved", "id", rec.ID, "channel_id", string(rec.ChannelID), "kind", string(rec.Kind))
	return nil
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, channelID core.ChannelID, limit int) ([]Record, error) {
	var (
		query string
		args  []any
	)
	if limit > 0 {
		// newest N, returned oldest first
		query = `
			SELECT id, channel_id, conversation_id, kind, content, created_at
			FROM (
				SELECT seq, id, channel_id, conversation_id, kind, content, created_at
				FROM records
				WHERE channel_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)
			ORDER BY seq ASC
		`
		args = []any{string(channelID), limit}
	} else {
		query = `
			SELECT id, channel_id, conversation_id, kind, content, created_at
			FROM records
			WHERE channel_id = ?
			ORDER BY seq ASC
		`
		args = []any{string(channelID)}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			channel   string
			kind      string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &channel, &rec.ConversationID, &kind, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.ChannelID = core.ChannelID(channel)
		rec.Kind = Kind(kind)
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.logger.Info("store.sqlite.closing")
	return s.db.Close()
}
