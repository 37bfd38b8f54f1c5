package dbschema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/janhq/usage-sync/internal/domain/usage"
)

// UsageRecord is one persisted usage row. Optional dedup key fields are
// stored as '' and 0, never NULL.
type UsageRecord struct {
	ID               int64           `gorm:"primaryKey"`
	Date             time.Time       `gorm:"type:date;not null"`
	Identity         string          `gorm:"not null"`
	ProviderTool     string          `gorm:"type:varchar(64);not null"`
	ModelName        string          `gorm:"type:varchar(128);not null;default:''"`
	RawModelName     string          `gorm:"type:varchar(256);not null;default:''"`
	InputTokens      int64           `gorm:"not null;default:0"`
	CacheWriteTokens int64           `gorm:"not null;default:0"`
	CacheReadTokens  int64           `gorm:"not null;default:0"`
	OutputTokens     int64           `gorm:"not null;default:0"`
	CostUSD          decimal.Decimal `gorm:"column:cost_usd;type:numeric(18,6);not null;default:0"`
	ProviderRecordID string          `gorm:"type:varchar(256);not null;default:''"`
	EventTimestampMs int64           `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UsageDedupColumns is the column list of the natural key unique index.
var UsageDedupColumns = []string{"date", "identity", "provider_tool", "raw_model_name", "provider_record_id", "event_timestamp_ms"}

// UsageValueColumns are replaced when an aggregated row is re-delivered.
var UsageValueColumns = []string{"model_name", "input_tokens", "cache_write_tokens", "cache_read_tokens", "output_tokens", "cost_usd", "updated_at"}

// EtoD converts schema model to domain representation.
func (u *UsageRecord) EtoD() *usage.Record {
	if u == nil {
		return nil
	}
	return &usage.Record{
		Date:             usage.Day(u.Date),
		Identity:         u.Identity,
		ProviderTool:     u.ProviderTool,
		ModelName:        u.ModelName,
		RawModelName:     u.RawModelName,
		InputTokens:      u.InputTokens,
		CacheWriteTokens: u.CacheWriteTokens,
		CacheReadTokens:  u.CacheReadTokens,
		OutputTokens:     u.OutputTokens,
		CostUSD:          u.CostUSD,
		ProviderRecordID: u.ProviderRecordID,
		EventTimestampMs: u.EventTimestampMs,
	}
}

// NewUsageRecord converts domain model to schema representation.
func NewUsageRecord(r *usage.Record) *UsageRecord {
	if r == nil {
		return nil
	}
	return &UsageRecord{
		Date:             usage.Day(r.Date),
		Identity:         r.Identity,
		ProviderTool:     r.ProviderTool,
		ModelName:        r.ModelName,
		RawModelName:     r.RawModelName,
		InputTokens:      r.InputTokens,
		CacheWriteTokens: r.CacheWriteTokens,
		CacheReadTokens:  r.CacheReadTokens,
		OutputTokens:     r.OutputTokens,
		CostUSD:          r.CostUSD,
		ProviderRecordID: r.ProviderRecordID,
		EventTimestampMs: r.EventTimestampMs,
	}
}

// UsageDailyTotal is the scan target of the daily rollup query.
type UsageDailyTotal struct {
	Date             time.Time
	ProviderTool     string
	InputTokens      int64
	CacheWriteTokens int64
	CacheReadTokens  int64
	OutputTokens     int64
	CostUSD          decimal.Decimal `gorm:"column:cost_usd"`
}

// EtoD converts the rollup row to its domain form.
func (t UsageDailyTotal) EtoD() usage.DailyTotal {
	return usage.DailyTotal{
		Date:             usage.Day(t.Date),
		ProviderTool:     t.ProviderTool,
		InputTokens:      t.InputTokens,
		CacheWriteTokens: t.CacheWriteTokens,
		CacheReadTokens:  t.CacheReadTokens,
		OutputTokens:     t.OutputTokens,
		CostUSD:          t.CostUSD,
	}
}
