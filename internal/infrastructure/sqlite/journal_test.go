package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/testutil"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_SaveAndFind(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	events := testutil.CreateTestEvents(t, 5)
	require.NoError(t, j.SaveBatch(ctx, events))

	got, err := j.FindAll(ctx, domain.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := range events {
		testutil.AssertEventsEqual(t, events[i], got[i])
		assert.NotEmpty(t, got[i].ID)
		assert.Equal(t, events[i].CreatedAt, got[i].CreatedAt)
	}

	last, err = j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestJournal_SkipsDuplicates(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	events := testutil.CreateTestEvents(t, 3)
	require.NoError(t, j.SaveBatch(ctx, events))
	require.NoError(t, j.SaveBatch(ctx, events[1:]))

	got, err := j.FindAll(ctx, domain.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestJournal_Filter(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()

	events := testutil.CreateTestEvents(t, 6)
	for i := range events {
		if i%2 == 1 {
			events[i] = domain.NewEvent(domain.EventQuit, events[i].Timestamp, "user", testutil.Addr(uint64(i)))
			events[i].Seq = uint64(i + 1)
		}
	}
	require.NoError(t, j.SaveBatch(ctx, events))

	tests := []struct {
		name   string
		filter domain.EventFilter
		seqs   []uint64
	}{
		{name: "all", filter: domain.EventFilter{}, seqs: []uint64{1, 2, 3, 4, 5, 6}},
		{name: "by name", filter: domain.EventFilter{Name: domain.EventQuit}, seqs: []uint64{2, 4, 6}},
		{name: "after seq", filter: domain.EventFilter{AfterSeq: 4}, seqs: []uint64{5, 6}},
		{name: "limit", filter: domain.EventFilter{Name: domain.EventClaim, Limit: 2}, seqs: []uint64{1, 3}},
		{name: "nothing newer", filter: domain.EventFilter{AfterSeq: 6}, seqs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.FindAll(ctx, tt.filter)
			require.NoError(t, err)
			var seqs []uint64
			for _, e := range got {
				seqs = append(seqs, e.Seq)
			}
			assert.Equal(t, tt.seqs, seqs)
		})
	}
}

func TestJournal_EmptyBatch(t *testing.T) {
	j := openJournal(t)
	assert.NoError(t, j.SaveBatch(context.Background(), nil))
	assert.NoError(t, j.Ping(context.Background()))
}

func TestJournal_ReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, j.SaveBatch(ctx, testutil.CreateTestEvents(t, 2)))
	require.NoError(t, j.Close())

	j, err = Open(path, logger.Nop())
	require.NoError(t, err)
	defer j.Close()

	last, err := j.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}
