// Package projection flags incomplete days in a daily usage series and fills
// them with estimates for charting.
package projection

import (
	"math"
	"sort"
	"time"
)

// minSameWeekdaySamples is the number of same-weekday samples needed before
// the weekday mean replaces the overall mean.
const minSameWeekdaySamples = 2

// DailyUsage is one day of per-tool totals. Totals hold displayed values;
// for any tool whose displayed value is an estimate, Projected holds the raw
// value actually observed. A tool flagged in Incomplete without a Projected
// entry means no estimate was possible.
type DailyUsage struct {
	Date       time.Time
	Totals     map[string]float64
	Cost       float64
	Incomplete map[string]bool
	Projected  map[string]float64
}

// IsIncomplete reports whether any tool on this day is incomplete.
func (d DailyUsage) IsIncomplete() bool {
	for _, v := range d.Incomplete {
		if v {
			return true
		}
	}
	return false
}

// Completeness maps a tool to the last date for which its data is final.
type Completeness map[string]time.Time

type sample struct {
	weekday time.Weekday
	value   float64
}

// ApplyProjections returns a copy of series with incomplete days flagged and
// estimated. A day is incomplete for a tool when it is today or later than
// the tool's last data date. Today is extrapolated from partial data by the
// fraction of the day elapsed; days with no data at all fall back to a
// historical mean. The input is not modified.
func ApplyProjections(series []DailyUsage, completeness Completeness, now time.Time) []DailyUsage {
	now = now.UTC()
	today := day(now)
	hoursElapsed := now.Sub(today).Hours()
	factor := hoursElapsed / 24

	out := make([]DailyUsage, len(series))
	for i, d := range series {
		out[i] = clone(d)
	}

	tools := toolSet(series, completeness)
	for _, tool := range tools {
		last, hasLast := completeness[tool]
		lastDay := day(last)

		isIncomplete := func(date time.Time) bool {
			if date.Equal(today) {
				return true
			}
			return hasLast && date.After(lastDay)
		}

		// Complete days from the tool's first nonzero day on are samples,
		// zero days included.
		var first time.Time
		for _, d := range out {
			date := day(d.Date)
			if isIncomplete(date) || d.Totals[tool] <= 0 {
				continue
			}
			if first.IsZero() || date.Before(first) {
				first = date
			}
		}
		samples := make([]sample, 0, len(out))
		for _, d := range out {
			date := day(d.Date)
			if first.IsZero() || date.Before(first) || isIncomplete(date) {
				continue
			}
			samples = append(samples, sample{weekday: date.Weekday(), value: d.Totals[tool]})
		}

		for i := range out {
			d := &out[i]
			date := day(d.Date)
			if !isIncomplete(date) {
				continue
			}
			d.Incomplete[tool] = true
			raw := d.Totals[tool]

			if date.Equal(today) {
				if raw > 0 {
					// Under an hour in, partial data is shown as is.
					if factor >= 1.0/24 {
						d.Projected[tool] = raw
						d.Totals[tool] = math.Round(raw / factor)
					}
					continue
				}
			} else if raw > 0 {
				// a past day that already reported data keeps it
				continue
			}

			if avg, ok := historicalAverage(samples, date.Weekday()); ok {
				d.Projected[tool] = raw
				d.Totals[tool] = math.Round(avg)
			} else {
				d.Totals[tool] = 0
			}
		}
	}
	return out
}

// historicalAverage prefers the mean of the same weekday when enough samples
// exist and falls back to the mean over all samples.
func historicalAverage(samples []sample, weekday time.Weekday) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sameSum, allSum float64
	sameCount := 0
	for _, s := range samples {
		allSum += s.value
		if s.weekday == weekday {
			sameSum += s.value
			sameCount++
		}
	}
	if sameCount >= minSameWeekdaySamples {
		return sameSum / float64(sameCount), true
	}
	return allSum / float64(len(samples)), true
}

func toolSet(series []DailyUsage, completeness Completeness) []string {
	set := make(map[string]struct{})
	for _, d := range series {
		for tool := range d.Totals {
			set[tool] = struct{}{}
		}
	}
	for tool := range completeness {
		set[tool] = struct{}{}
	}
	tools := make([]string, 0, len(set))
	for tool := range set {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

func clone(d DailyUsage) DailyUsage {
	c := DailyUsage{
		Date:       d.Date,
		Cost:       d.Cost,
		Totals:     make(map[string]float64, len(d.Totals)),
		Incomplete: make(map[string]bool, len(d.Incomplete)),
		Projected:  make(map[string]float64, len(d.Projected)),
	}
	for k, v := range d.Totals {
		c.Totals[k] = v
	}
	for k, v := range d.Incomplete {
		c.Incomplete[k] = v
	}
	for k, v := range d.Projected {
		c.Projected[k] = v
	}
	return c
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
