package storage

import "time"

// Window: UTC 달력일 단위 버킷 [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowStart returns the UTC calendar-day bucket start containing t.
func WindowStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WindowOf: t가 속한 윈도우
func WindowOf(t time.Time) Window {
	start := WindowStart(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Windows enumerates whole-day windows covering [since, until) in ascending
// order. Both bounds must be window-aligned; callers align via WindowStart.
func Windows(since, until time.Time) []Window {
	var out []Window
	for start := WindowStart(since); start.Before(until); start = start.AddDate(0, 0, 1) {
		out = append(out, Window{Start: start, End: start.AddDate(0, 0, 1)})
	}
	return out
}
