// Package aggregate buckets normalized records by calendar day and month.
// It is pure: same records in, same counts out, regardless of input order.
package aggregate

import (
	"sort"
	"time"

	"github.com/railisac/reporting/internal/model"
)

// Day is a calendar-day bucket key, formatted "2006-01-02".
type Day string

// Month is a calendar-month bucket key with the abbreviated month name,
// formatted "Jan 2006".
type Month string

const (
	dayLayout   = "2006-01-02"
	monthLayout = "Jan 2006"
)

func DayOf(t time.Time) Day     { return Day(t.UTC().Format(dayLayout)) }
func MonthOf(t time.Time) Month { return Month(t.UTC().Format(monthLayout)) }

func (m Month) time() time.Time {
	t, _ := time.Parse(monthLayout, string(m))
	return t
}

// Counts holds sparse per-bucket per-category counts. Buckets with zero
// occurrences are omitted; the renderer zero-fills when plotting
// continuous ranges.
type Counts struct {
	Daily    map[Day]map[string]int
	Monthly  map[Month]map[string]int
	BySource map[string]int
	Window   model.Window
}

// Aggregate counts records per day and per month per category. Records
// outside the window are dropped as a second line of defense; fetchers
// already filter.
func Aggregate(records []model.Record, win model.Window) *Counts {
	c := &Counts{
		Daily:    make(map[Day]map[string]int),
		Monthly:  make(map[Month]map[string]int),
		BySource: make(map[string]int),
		Window:   win,
	}
	for _, r := range records {
		if !win.Contains(r.Timestamp) {
			continue
		}
		bump(c.Daily, DayOf(r.Timestamp), r.Category)
		bump(c.Monthly, MonthOf(r.Timestamp), r.Category)
		c.BySource[r.Source]++
	}
	return c
}

func bump[K comparable](m map[K]map[string]int, key K, category string) {
	inner, ok := m[key]
	if !ok {
		inner = make(map[string]int)
		m[key] = inner
	}
	inner[category]++
}

// Categories returns every category seen, sorted.
func (c *Counts) Categories() []string {
	seen := make(map[string]struct{})
	for _, inner := range c.Daily {
		for cat := range inner {
			seen[cat] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Months returns the month buckets in chronological order.
func (c *Counts) Months() []Month {
	out := make([]Month, 0, len(c.Monthly))
	for m := range c.Monthly {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].time().Before(out[j].time()) })
	return out
}

// Total returns the count for one category over the whole window.
func (c *Counts) Total(category string) int {
	n := 0
	for _, inner := range c.Daily {
		n += inner[category]
	}
	return n
}

// TotalAll returns the count across all categories.
func (c *Counts) TotalAll() int {
	n := 0
	for _, inner := range c.Daily {
		for _, v := range inner {
			n += v
		}
	}
	return n
}

// DailySeries returns a zero-filled day-by-day series over the window for
// one category, suitable for plotting a continuous range without
// misleading gaps.
func (c *Counts) DailySeries(category string) (days []time.Time, values []float64) {
	for cur := c.Window.Start; !cur.After(c.Window.End); cur = cur.AddDate(0, 0, 1) {
		days = append(days, cur)
		values = append(values, float64(c.Daily[DayOf(cur)][category]))
	}
	return days, values
}
