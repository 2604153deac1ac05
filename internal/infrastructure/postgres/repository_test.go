package postgres

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/testutil"
)

// Queries against a live database run in internal/integration_test.go.

func TestEventRow_RoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.NewEvent(domain.EventRegistred, 1_700_000_000,
		"user", testutil.Addr(1),
		"price", testutil.Units(2),
	)
	event.ID = "6f1c3a52-4d0e-4f8e-9a57-0a4f0f3d6b11"
	event.Seq = 42
	event.CreatedAt = createdAt

	row, err := toRow(event)
	require.NoError(t, err)
	assert.Equal(t, int64(42), row.seq)
	assert.Equal(t, event.Topic.Hex(), row.topic)
	assert.JSONEq(t, `{"user":"`+testutil.Addr(1).Hex()+`","price":"2000000000000000000"}`, string(row.args))

	back, err := row.toEvent()
	require.NoError(t, err)
	assert.Equal(t, event, back)
}

func TestEventRow_FillsMissingFields(t *testing.T) {
	row, err := toRow(domain.Event{Name: domain.EventPaused, Seq: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, row.id)
	assert.False(t, row.createdAt.IsZero())
	assert.Equal(t, "{}", string(row.args))
}

func TestEventRow_BadArgs(t *testing.T) {
	row := eventRow{seq: 7, args: []byte("not json")}
	_, err := row.toEvent()
	assert.ErrorContains(t, err, "failed to decode args of event 7")
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/000001_create_events.down.sql",
		"migrations/000001_create_events.up.sql",
	}, files)

	up, err := migrationsFS.ReadFile("migrations/000001_create_events.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "seq BIGINT NOT NULL UNIQUE")
}
