package dbschema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/janhq/usage-sync/internal/domain/attribution"
	"github.com/janhq/usage-sync/internal/domain/usage"
)

func TestNewUsageRecord_TruncatesDate(t *testing.T) {
	rec := &usage.Record{
		Date:         time.Date(2025, 6, 1, 17, 45, 0, 0, time.FixedZone("x", 3600)),
		Identity:     "dev@acme.io",
		ProviderTool: "claude_code",
		RawModelName: "claude-opus-4-5-20251101",
		CostUSD:      decimal.RequireFromString("1.25"),
	}
	row := NewUsageRecord(rec)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), row.Date)
	assert.Equal(t, rec.Key(), row.EtoD().Key())
	assert.True(t, row.EtoD().CostUSD.Equal(rec.CostUSD))
}

func TestSyncState_EtoD(t *testing.T) {
	cursor := time.Date(2025, 6, 1, 10, 0, 0, 0, time.FixedZone("x", 7200))
	state := (&SyncState{Provider: "cursor", LastSyncCursor: &cursor}).EtoD()
	assert.Equal(t, time.UTC, state.LastSyncCursor.Location())
	assert.True(t, state.LastSyncCursor.Equal(cursor))

	var nilState *SyncState
	assert.Nil(t, nilState.EtoD())
}

func TestCommitAttribution_RoundTrip(t *testing.T) {
	a := attribution.Attribution{Tool: "claude_code", Model: "opus-4.5", Source: attribution.SourceCoAuthor, Confidence: attribution.ConfidenceHigh}
	row := NewCommitAttribution(42, a)
	assert.Equal(t, int64(42), row.CommitID)
	assert.Equal(t, a, row.EtoD())
}
