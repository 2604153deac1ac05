package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

// Repository is the postgres event journal.
type Repository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewRepository(db *pgxpool.Pool, logger *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const insertEvent = `
	INSERT INTO events (id, seq, name, topic, args, block_timestamp, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT DO NOTHING
`

// SaveBatch appends events in one transaction. Events already journaled under
// the same sequence number are skipped.
func (r *Repository) SaveBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		tx.Rollback(context.Background())
	}()

	batch := &pgx.Batch{}
	for _, e := range events {
		row, err := toRow(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEvent, row.id, row.seq, row.name, row.topic, row.args, row.timestamp, row.createdAt)
	}

	br := tx.SendBatch(ctx, batch)

	saved := 0
	duplicates := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return errors.Wrapf(err, "failed to execute batch item %d", i)
		}
		if tag.RowsAffected() == 0 {
			duplicates++
			r.logger.Debugw("Duplicate event skipped", "seq", events[i].Seq, "name", events[i].Name)
			continue
		}
		saved++
	}

	if err := br.Close(); err != nil {
		return errors.Wrap(err, "failed to close batch result")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	r.logger.Debugw("Saved batch of events", "attempted", len(events), "saved", saved, "duplicates", duplicates)
	return nil
}

func (r *Repository) FindAll(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT id, seq, name, topic, args, block_timestamp, created_at
		FROM events
		WHERE ($1 = '' OR name = $1) AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := r.db.Query(ctx, query, filter.Name, int64(filter.AfterSeq), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var row eventRow
		if err := rows.Scan(&row.id, &row.seq, &row.name, &row.topic, &row.args, &row.timestamp, &row.createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		e, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating rows")
	}

	return events, nil
}

func (r *Repository) LastSeq(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var last int64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last); err != nil {
		return 0, errors.Wrap(err, "failed to get last event sequence")
	}
	return uint64(last), nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// eventRow is an event in its stored form.
type eventRow struct {
	id        string
	seq       int64
	name      string
	topic     string
	args      []byte
	timestamp int64
	createdAt time.Time
}

func toRow(e domain.Event) (eventRow, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	args := e.Args
	if args == nil {
		args = map[string]string{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return eventRow{}, errors.Wrapf(err, "failed to encode args of event %d", e.Seq)
	}
	return eventRow{
		id:        e.ID,
		seq:       int64(e.Seq),
		name:      e.Name,
		topic:     e.Topic.Hex(),
		args:      raw,
		timestamp: int64(e.Timestamp),
		createdAt: e.CreatedAt,
	}, nil
}

func (r eventRow) toEvent() (domain.Event, error) {
	args := map[string]string{}
	if len(r.args) > 0 {
		if err := json.Unmarshal(r.args, &args); err != nil {
			return domain.Event{}, errors.Wrapf(err, "failed to decode args of event %d", r.seq)
		}
	}
	return domain.Event{
		ID:        r.id,
		Seq:       uint64(r.seq),
		Name:      r.name,
		Topic:     common.HexToHash(r.topic),
		Args:      args,
		Timestamp: uint64(r.timestamp),
		CreatedAt: r.createdAt,
	}, nil
}
