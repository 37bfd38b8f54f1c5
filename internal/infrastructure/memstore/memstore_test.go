package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/domain/usage"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.DateOnly, s)
	return t
}

func record(date, identity, model string, input int64) *usage.Record {
	return &usage.Record{
		Date:         day(date),
		Identity:     identity,
		ProviderTool: "claude_code",
		ModelName:    model,
		RawModelName: model,
		InputTokens:  input,
		CostUSD:      decimal.NewFromInt(input).Div(decimal.NewFromInt(100)),
	}
}

func TestUsageStore_UpsertAggregatedReplacesTotals(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()

	require.NoError(t, s.UpsertAggregated(ctx, record("2025-01-02", "a@acme.io", "opus", 10)))
	require.NoError(t, s.UpsertAggregated(ctx, record("2025-01-02", "a@acme.io", "opus", 25)))

	rows := s.Records()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(25), rows[0].InputTokens)
}

func TestUsageStore_InsertEventSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()
	ev := record("2025-01-02", "a@acme.io", "gpt-5", 7)
	ev.EventTimestampMs = 1735776000123

	inserted, err := s.InsertEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	again := *ev
	again.InputTokens = 99
	inserted, err = s.InsertEvent(ctx, &again)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows := s.Records()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].InputTokens)
}

func TestUsageStore_PruneAggregatedKeepsListedKeysOnly(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()
	keep := record("2025-01-02", "a@acme.io", "opus", 1)
	stale := record("2025-01-02", "b@acme.io", "opus", 2)
	otherDay := record("2025-01-03", "b@acme.io", "opus", 3)
	for _, r := range []*usage.Record{keep, stale, otherDay} {
		require.NoError(t, s.UpsertAggregated(ctx, r))
	}

	removed, err := s.PruneAggregated(ctx, "claude_code", []time.Time{day("2025-01-02")}, []usage.Key{keep.Key()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var identities []string
	for _, r := range s.Records() {
		identities = append(identities, r.Date.Format(time.DateOnly)+" "+r.Identity)
	}
	assert.ElementsMatch(t, []string{"2025-01-02 a@acme.io", "2025-01-03 b@acme.io"}, identities)
}

func TestUsageStore_OldestLastAndDailyTotals(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()

	oldest, err := s.OldestDate(ctx, "claude_code")
	require.NoError(t, err)
	assert.Nil(t, oldest)

	require.NoError(t, s.UpsertAggregated(ctx, record("2025-01-02", "a@acme.io", "opus", 10)))
	require.NoError(t, s.UpsertAggregated(ctx, record("2025-01-02", "b@acme.io", "opus", 5)))
	require.NoError(t, s.UpsertAggregated(ctx, record("2025-01-04", "a@acme.io", "opus", 1)))

	oldest, err = s.OldestDate(ctx, "claude_code")
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, day("2025-01-02"), *oldest)

	last, err := s.LastDataDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, day("2025-01-04"), last["claude_code"])

	totals, err := s.DailyTotals(ctx, day("2025-01-01"), day("2025-01-03"))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, int64(15), totals[0].InputTokens)
	assert.True(t, decimal.RequireFromString("0.15").Equal(totals[0].CostUSD))
}

func TestSyncStateStore(t *testing.T) {
	ctx := context.Background()
	s := NewSyncStateStore()

	st, err := s.Get(ctx, "cursor")
	require.NoError(t, err)
	assert.Nil(t, st.LastSyncCursor)
	assert.False(t, st.BackfillComplete)

	cursor := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCursor(ctx, "cursor", cursor))
	require.NoError(t, s.SetBackfillComplete(ctx, "cursor", true))
	require.NoError(t, s.SetBackfillComplete(ctx, "anthropic", false))

	st, err = s.Get(ctx, "cursor")
	require.NoError(t, err)
	require.NotNil(t, st.LastSyncCursor)
	assert.Equal(t, cursor, *st.LastSyncCursor)
	assert.True(t, st.BackfillComplete)

	// Returned cursors are copies.
	*st.LastSyncCursor = cursor.Add(time.Hour)
	again, err := s.Get(ctx, "cursor")
	require.NoError(t, err)
	assert.Equal(t, cursor, *again.LastSyncCursor)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "anthropic", all[0].Provider)
	assert.Equal(t, "cursor", all[1].Provider)
}
