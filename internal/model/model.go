package model

import "time"

// Record is the normalized representation for all fetched items: MISP
// events, MISP attributes and chat posts all reduce to this before
// aggregation.
type Record struct {
	Timestamp time.Time // when the item was published / created
	Category  string    // tag family, attribute category, or channel label
	Source    string    // which instance it came from, e.g. "misp"
}

// Window is a closed range of whole UTC days.
type Window struct {
	Start time.Time
	End   time.Time
	Days  int
}

// WindowEnding returns the window of `days` days ending at now, truncated
// to whole UTC days. A 30-day window ending on the 30th starts on the 1st.
func WindowEnding(now time.Time, days int) Window {
	if days < 1 {
		days = 1
	}
	end := now.UTC().Truncate(24 * time.Hour)
	return Window{Start: end.AddDate(0, 0, -(days - 1)), End: end, Days: days}
}

// Contains reports whether t falls inside the window, inclusive on both
// ends, comparing at day granularity.
func (w Window) Contains(t time.Time) bool {
	d := t.UTC().Truncate(24 * time.Hour)
	return !d.Before(w.Start) && !d.After(w.End)
}

// String renders the window as "2026-07-26 – 2026-08-24".
func (w Window) String() string {
	return w.Start.Format("2006-01-02") + " – " + w.End.Format("2006-01-02")
}
