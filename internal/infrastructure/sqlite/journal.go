package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

// Journal persists engine events to a local SQLite file.
type Journal struct {
	db     *sql.DB
	logger *logger.Logger
	mu     sync.Mutex
}

// Open opens (or creates) the database at path and creates the schema.
func Open(path string, logger *logger.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets /events readers run alongside the engine's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Infow("SQLite event journal opened", "path", path)
	return j, nil
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id              TEXT PRIMARY KEY,
			seq             INTEGER NOT NULL UNIQUE,
			name            TEXT NOT NULL,
			topic           TEXT NOT NULL,
			args            TEXT NOT NULL DEFAULT '{}',
			block_timestamp INTEGER NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name_seq ON events(name, seq)`,
	}

	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// SaveBatch appends events in one transaction, skipping sequence numbers that
// are already stored.
func (j *Journal) SaveBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO events
		(id, seq, name, topic, args, block_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	duplicates := 0
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		args := e.Args
		if args == nil {
			args = map[string]string{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode args of event %d: %w", e.Seq, err)
		}

		res, err := stmt.ExecContext(ctx, e.ID, int64(e.Seq), e.Name, e.Topic.Hex(), string(raw),
			int64(e.Timestamp), e.CreatedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("failed to insert event %d: %w", e.Seq, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	j.logger.Debugw("Saved batch of events", "attempted", len(events), "duplicates", duplicates)
	return nil
}

func (j *Journal) FindAll(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, name, topic, args, block_timestamp, created_at
		FROM events
		WHERE (? = '' OR name = ?) AND seq > ?
		ORDER BY seq ASC
		LIMIT ?`,
		filter.Name, filter.Name, int64(filter.AfterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			seq       int64
			topic     string
			args      string
			timestamp int64
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &seq, &e.Name, &topic, &args, &timestamp, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Args = map[string]string{}
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args of event %d: %w", seq, err)
		}
		e.Seq = uint64(seq)
		e.Topic = common.HexToHash(topic)
		e.Timestamp = uint64(timestamp)
		e.CreatedAt = time.UnixMicro(createdAt).UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var last int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to get last event sequence: %w", err)
	}
	return uint64(last), nil
}
