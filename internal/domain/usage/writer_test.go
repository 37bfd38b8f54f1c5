package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/utils/redact"
)

type fakeRepo struct {
	rows     map[Key]Record
	failFor  string
	pruned   []Key
	upserted int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[Key]Record)}
}

func (f *fakeRepo) UpsertAggregated(ctx context.Context, r *Record) error {
	if r.Identity == f.failFor {
		return errors.New("constraint violation")
	}
	f.upserted++
	f.rows[r.Key()] = *r
	return nil
}

func (f *fakeRepo) InsertEvent(ctx context.Context, r *Record) (bool, error) {
	if r.Identity == f.failFor {
		return false, errors.New("constraint violation")
	}
	if _, ok := f.rows[r.Key()]; ok {
		return false, nil
	}
	f.rows[r.Key()] = *r
	return true, nil
}

func (f *fakeRepo) PruneAggregated(ctx context.Context, tool string, dates []time.Time, keep []Key) (int64, error) {
	kept := make(map[Key]bool)
	for _, k := range keep {
		kept[k] = true
	}
	var n int64
	for k := range f.rows {
		if k.ProviderTool == tool && !kept[k] {
			f.pruned = append(f.pruned, k)
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) OldestDate(ctx context.Context, tool string) (*time.Time, error) { return nil, nil }
func (f *fakeRepo) LastDataDates(ctx context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeRepo) DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	return nil, nil
}

func newTestWriter(repo Repository) *Writer {
	return NewWriter(repo, redact.NewSanitizer(redact.LevelHashed, "salt"), zerolog.Nop())
}

var day = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestAggregate_SumsSubIdentities(t *testing.T) {
	in := []Record{
		{Date: day.Add(2 * time.Hour), Identity: "a@x.io", ProviderTool: "claude_code", RawModelName: "claude-sonnet-4", InputTokens: 1000, CostUSD: decimal.NewFromInt(1)},
		{Date: day, Identity: "b@x.io", ProviderTool: "claude_code", RawModelName: "claude-sonnet-4", InputTokens: 5},
		{Date: day.Add(5 * time.Hour), Identity: "a@x.io", ProviderTool: "claude_code", RawModelName: "claude-sonnet-4", InputTokens: 2000, OutputTokens: 7, CostUSD: decimal.NewFromInt(2)},
	}

	out := Aggregate(in)

	require.Len(t, out, 2)
	assert.Equal(t, "a@x.io", out[0].Identity)
	assert.Equal(t, int64(3000), out[0].InputTokens)
	assert.Equal(t, int64(7), out[0].OutputTokens)
	assert.True(t, decimal.NewFromInt(3).Equal(out[0].CostUSD))
	assert.Equal(t, day, out[0].Date)
	assert.Equal(t, "b@x.io", out[1].Identity)
}

func TestWriter_AggregatedPreAggregates(t *testing.T) {
	repo := newFakeRepo()
	w := newTestWriter(repo)

	stats := w.Write(context.Background(), RegimeAggregated, []Record{
		{Date: day, Identity: "a@x.io", ProviderTool: "claude_code", RawModelName: "claude-opus-4-5-20251101", InputTokens: 1000},
		{Date: day, Identity: "a@x.io", ProviderTool: "claude_code", RawModelName: "claude-opus-4-5-20251101", InputTokens: 2000},
	})

	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, repo.upserted)
	for _, r := range repo.rows {
		assert.Equal(t, int64(3000), r.InputTokens)
		assert.Equal(t, "opus-4.5", r.ModelName)
	}
}

func TestWriter_InsertErrorContinuesBatch(t *testing.T) {
	repo := newFakeRepo()
	repo.failFor = "bad@x.io"
	w := newTestWriter(repo)

	stats := w.Write(context.Background(), RegimePerEvent, []Record{
		{Date: day, Identity: "a@x.io", ProviderTool: "cursor", RawModelName: "gpt-4o", EventTimestampMs: 1},
		{Date: day, Identity: "bad@x.io", ProviderTool: "cursor", RawModelName: "gpt-4o", EventTimestampMs: 2},
		{Date: day, Identity: "c@x.io", ProviderTool: "cursor", RawModelName: "gpt-4o", EventTimestampMs: 3},
	})

	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "constraint violation")
	assert.NotContains(t, stats.Errors[0], "bad@x.io")
}

func TestWriter_MissingIdentitySkipped(t *testing.T) {
	repo := newFakeRepo()
	stats := newTestWriter(repo).Write(context.Background(), RegimeAggregated, []Record{
		{Date: day, ProviderTool: "claude_code", RawModelName: "m", InputTokens: 1},
	})
	assert.Zero(t, stats.Imported)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, stats.Errors)
	assert.Empty(t, repo.rows)
}

func TestWriter_PerEventDuplicateIsSkipped(t *testing.T) {
	repo := newFakeRepo()
	w := newTestWriter(repo)
	ev := Record{Date: day, Identity: "a@x.io", ProviderTool: "cursor", RawModelName: "gpt-4o", EventTimestampMs: 42}

	first := w.Write(context.Background(), RegimePerEvent, []Record{ev})
	second := w.Write(context.Background(), RegimePerEvent, []Record{ev})

	assert.Equal(t, 1, first.Imported)
	assert.Zero(t, second.Imported)
	assert.Equal(t, 1, second.Skipped)
}

func TestWriter_PruneKeepsReportedKeys(t *testing.T) {
	repo := newFakeRepo()
	w := newTestWriter(repo)
	keep := Record{Date: day, Identity: "a@x.io", ProviderTool: "claude_code", RawModelName: "m"}
	stale := Record{Date: day, Identity: "gone@x.io", ProviderTool: "claude_code", RawModelName: "m"}
	w.Write(context.Background(), RegimeAggregated, []Record{keep, stale})

	removed, err := w.Prune(context.Background(), "claude_code", []Record{keep}, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, []Key{stale.Key()}, repo.pruned)
}

func TestWriter_PruneEmptyRange(t *testing.T) {
	removed, err := newTestWriter(newFakeRepo()).Prune(context.Background(), "claude_code", nil, day, day)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNormalizeModelName(t *testing.T) {
	cases := map[string]string{
		"claude-opus-4-5-20251101":   "opus-4.5",
		"claude-3-5-sonnet-20241022": "sonnet-3.5",
		"claude-sonnet-4-20250514":   "sonnet-4",
		"claude-3-haiku-20240307":    "haiku-3",
		"GPT-4o":                     "gpt-4o",
		"gemini-2.5-pro-20250601":    "gemini-2.5-pro",
		"":                           "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeModelName(raw), raw)
	}
}
