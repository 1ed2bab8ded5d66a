package syncserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one stored update. Sequence is assigned by the log and is unique across all rooms.
type Entry struct {
	Sequence int64
	RoomKey  string
	ClientID string
	Data     []byte
}

type RoomStats struct {
	Entries      int64 `json:"entries"`
	LastSequence int64 `json:"last_sequence"`
}

// Log is the durable, ordered record of every submitted update. The server never inspects the data.
type Log interface {
	// Append stores the update and returns its sequence, which is greater than every sequence returned before it.
	Append(ctx context.Context, roomKey, clientID string, data []byte) (int64, error)
	// Since returns the room's entries with a sequence greater than after, in ascending order.
	Since(ctx context.Context, roomKey string, after int64) ([]Entry, error)
	Stats(ctx context.Context, roomKey string) (RoomStats, error)
	Close() error
}

type SQLiteLog struct {
	database *sql.DB
	// appendLock linearizes appends so that sequence order matches commit order.
	appendLock sync.Mutex
}

var _ Log = (*SQLiteLog)(nil)

func OpenSQLiteLog(ctx context.Context, path string) (*SQLiteLog, error) {
	slog.Info("opening database", "path", path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases are per connection
	db.SetMaxOpenConns(1)
	l := &SQLiteLog{database: db}
	if err := l.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) init(ctx context.Context) error {
	if _, err := l.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS updates (
		id integer primary key autoincrement,
		discovery_key text not null,
		client_id text not null,
		data blob not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create updates table: %w", err)
	}
	if _, err := l.database.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS updates_discovery_key_id ON updates (discovery_key, id)`,
	); err != nil {
		return fmt.Errorf("failed to create updates index: %w", err)
	}
	slog.Info("ensured update log exists")
	return nil
}

func (l *SQLiteLog) Append(ctx context.Context, roomKey, clientID string, data []byte) (int64, error) {
	l.appendLock.Lock()
	defer l.appendLock.Unlock()
	if data == nil {
		data = []byte{}
	}
	res, err := l.database.ExecContext(ctx,
		`INSERT INTO updates (discovery_key, client_id, data) VALUES (?, ?, ?)`, roomKey, clientID, data,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append update: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return seq, nil
}

func (l *SQLiteLog) Since(ctx context.Context, roomKey string, after int64) ([]Entry, error) {
	tx, err := l.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, client_id, data FROM updates WHERE discovery_key = ? AND id > ? ORDER BY id`, roomKey, after,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query updates: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0)
	for rows.Next() {
		e := Entry{RoomKey: roomKey}
		if err := rows.Scan(&e.Sequence, &e.ClientID, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read updates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return out, nil
}

func (l *SQLiteLog) Stats(ctx context.Context, roomKey string) (RoomStats, error) {
	var out RoomStats
	if err := l.database.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0) FROM updates WHERE discovery_key = ?`, roomKey,
	).Scan(&out.Entries, &out.LastSequence); err != nil {
		return out, fmt.Errorf("failed to query stats: %w", err)
	}
	return out, nil
}

func (l *SQLiteLog) Close() error {
	return l.database.Close()
}
