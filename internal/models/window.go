package models

import "time"

// Window bounds a time range. Nil bounds are open. To is inclusive unless
// OpenEnd is set.
type Window struct {
	From    *time.Time
	To      *time.Time
	OpenEnd bool
}

// Year returns the half-open window [Jan 1 year, Jan 1 year+1) in UTC.
func Year(year int) Window {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	return Window{From: &from, To: &to, OpenEnd: true}
}

// Unbounded reports whether neither bound is set.
func (w Window) Unbounded() bool {
	return w.From == nil && w.To == nil
}

// Contains reports whether t lies within the window.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil {
		if w.OpenEnd && !t.Before(*w.To) {
			return false
		}
		if t.After(*w.To) {
			return false
		}
	}
	return true
}

// Intersects reports whether any of ts lies within the window.
func (w Window) Intersects(ts []time.Time) bool {
	for _, t := range ts {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
