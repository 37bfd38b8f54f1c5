package usage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Regime selects how repeated writes of the same dedup key behave.
type Regime string

const (
	// RegimeAggregated rows are per-day rollups; a conflicting write replaces the totals.
	RegimeAggregated Regime = "aggregated"
	// RegimePerEvent rows are discrete events; a conflicting write is a duplicate and a no-op.
	RegimePerEvent Regime = "per_event"
)

const dateLayout = "2006-01-02"

// Record is one usage row as delivered by a provider, after normalization.
type Record struct {
	Date             time.Time
	Identity         string
	ProviderTool     string
	ModelName        string
	RawModelName     string
	InputTokens      int64
	CacheWriteTokens int64
	CacheReadTokens  int64
	OutputTokens     int64
	CostUSD          decimal.Decimal
	// ProviderRecordID is empty when the provider has no record identity.
	ProviderRecordID string
	// EventTimestampMs is zero for aggregated rows.
	EventTimestampMs int64
}

// Key is the natural dedup key of a Record. Absent optional fields compare
// as their zero values.
type Key struct {
	Date             string
	Identity         string
	ProviderTool     string
	RawModelName     string
	ProviderRecordID string
	EventTimestampMs int64
}

// Key returns the dedup key of the record.
func (r Record) Key() Key {
	return Key{
		Date:             r.Date.UTC().Format(dateLayout),
		Identity:         r.Identity,
		ProviderTool:     r.ProviderTool,
		RawModelName:     r.RawModelName,
		ProviderRecordID: r.ProviderRecordID,
		EventTimestampMs: r.EventTimestampMs,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%d", k.Date, k.Identity, k.ProviderTool, k.RawModelName, k.ProviderRecordID, k.EventTimestampMs)
}

// TotalTokens sums all token fields.
func (r Record) TotalTokens() int64 {
	return r.InputTokens + r.CacheWriteTokens + r.CacheReadTokens + r.OutputTokens
}

// DailyTotal is the per-day, per-tool rollup used by charts.
type DailyTotal struct {
	Date             time.Time
	ProviderTool     string
	InputTokens      int64
	CacheWriteTokens int64
	CacheReadTokens  int64
	OutputTokens     int64
	CostUSD          decimal.Decimal
}

// TotalTokens sums all token fields.
func (d DailyTotal) TotalTokens() int64 {
	return d.InputTokens + d.CacheWriteTokens + d.CacheReadTokens + d.OutputTokens
}

// WriteStats summarizes one batch handed to the Writer.
type WriteStats struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Add merges other into s.
func (s *WriteStats) Add(other WriteStats) {
	s.Imported += other.Imported
	s.Skipped += other.Skipped
	s.Errors = append(s.Errors, other.Errors...)
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	claudeModelPattern = regexp.MustCompile(`^claude-(?:(opus|sonnet|haiku)-(\d+)(?:-(\d))?|(\d+)(?:-(\d))?-(opus|sonnet|haiku))(?:-\d{8})?$`)
	dateSuffixPattern  = regexp.MustCompile(`-\d{8}$`)
)

// NormalizeModelName maps a provider model id to the short display name used
// across tools, e.g. "claude-opus-4-5-20251101" -> "opus-4.5" and
// "claude-3-5-sonnet-20241022" -> "sonnet-3.5". Unknown ids are lowercased
// with any trailing date stamp removed.
func NormalizeModelName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return ""
	}
	if m := claudeModelPattern.FindStringSubmatch(name); m != nil {
		if m[1] != "" {
			return joinVersion(m[1], m[2], m[3])
		}
		return joinVersion(m[6], m[4], m[5])
	}
	return dateSuffixPattern.ReplaceAllString(name, "")
}

func joinVersion(family, major, minor string) string {
	if minor == "" {
		return family + "-" + major
	}
	return family + "-" + major + "." + minor
}
