// Package sqlite implements storage.Driver on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/zyra/pkg/llm"
	"github.com/papercomputeco/zyra/pkg/logger"
	"github.com/papercomputeco/zyra/pkg/storage"
	"github.com/papercomputeco/zyra/pkg/storage/inmemory"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	messages  TEXT NOT NULL,
	timestamp TEXT NOT NULL
)`

var _ storage.Driver = (*Driver)(nil)

// Driver stores conversations in a single SQLite table. AUTOINCREMENT keeps
// ids from ever being reused, even after Clear.
type Driver struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used for conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithLogger sets the driver's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		d.logger = logger.OrNop(l)
	}
}

// NewDriver opens (creating if needed) the database at path and migrates it
// to storage.SchemaVersion. Use ":memory:" or "" for an in-memory database.
func NewDriver(ctx context.Context, path string, opts ...Option) (*Driver, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writes and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	d := &Driver{
		db:     db,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// OpenOrFallback opens the SQLite database at path. When that fails it logs
// the error and returns an empty in-memory driver so the caller can keep
// working without persistence.
func OpenOrFallback(ctx context.Context, path string, l *zap.Logger, opts ...Option) storage.Driver {
	l = logger.OrNop(l)

	d, err := NewDriver(ctx, path, append([]Option{WithLogger(l)}, opts...)...)
	if err != nil {
		l.Warn("conversation store unavailable, history will not be saved",
			zap.String("path", path),
			zap.Error(err),
		)
		return inmemory.NewDriver()
	}

	l.Debug("using SQLite storage", zap.String("path", path))
	return d
}

func (d *Driver) migrate(ctx context.Context) error {
	var version int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version > storage.SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, storage.SchemaVersion)
	}
	if version == storage.SchemaVersion {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", storage.SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	d.logger.Debug("migrated conversation store",
		zap.Int("from", version),
		zap.Int("to", storage.SchemaVersion),
	)
	return nil
}

// Append stores messages as a new conversation.
func (d *Driver) Append(ctx context.Context, messages []llm.Message) (*storage.Conversation, error) {
	msgs := storage.StripImages(messages)

	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}

	ts := d.now().UTC()
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO conversations (messages, timestamp) VALUES (?, ?)",
		string(data), ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read conversation id: %w", err)
	}

	d.logger.Debug("stored conversation",
		zap.Int64("id", id),
		zap.Int("message_count", len(msgs)),
	)

	return &storage.Conversation{ID: id, Messages: msgs, Timestamp: ts}, nil
}

// Import stores conv as a new conversation, keeping its timestamp. The id
// is assigned by this database.
func (d *Driver) Import(ctx context.Context, conv *storage.Conversation) (*storage.Conversation, error) {
	msgs := storage.StripImages(conv.Messages)

	data, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}

	ts := conv.Timestamp.UTC()
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO conversations (messages, timestamp) VALUES (?, ?)",
		string(data), ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("import conversation %d: %w", conv.ID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read conversation id: %w", err)
	}

	return &storage.Conversation{ID: id, Messages: msgs, Timestamp: ts}, nil
}

// List returns every conversation, most recent first. Sorting happens here,
// the table keeps no timestamp index.
func (d *Driver) List(ctx context.Context) ([]*storage.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, messages, timestamp FROM conversations")
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	convs := []*storage.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	storage.SortByRecency(convs)
	return convs, nil
}

// Get returns the conversation with the given id.
func (d *Driver) Get(ctx context.Context, id int64) (*storage.Conversation, error) {
	row := d.db.QueryRowContext(ctx, "SELECT id, messages, timestamp FROM conversations WHERE id = ?", id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{ID: id}
	}
	return conv, err
}

// Delete removes one conversation.
func (d *Driver) Delete(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	return nil
}

// Clear removes every conversation.
func (d *Driver) Clear(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*storage.Conversation, error) {
	var (
		conv     storage.Conversation
		messages string
		ts       string
	)

	if err := s.Scan(&conv.ID, &messages, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of conversation %d: %w", conv.ID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp of conversation %d: %w", conv.ID, err)
	}
	conv.Timestamp = t

	return &conv, nil
}
