package monitor

import "time"

// Window is a daily blackout in local wall-clock hours, [BlackoutStart,
// BlackoutEnd). It wraps past midnight when start > end; start == end never
// blocks.
type Window struct {
	BlackoutStart int
	BlackoutEnd   int
}

// Blocked reports whether t falls inside the blackout.
func (w Window) Blocked(t time.Time) bool {
	if w.BlackoutStart == w.BlackoutEnd {
		return false
	}
	h := t.Hour()
	if w.BlackoutStart < w.BlackoutEnd {
		return h >= w.BlackoutStart && h < w.BlackoutEnd
	}
	return h >= w.BlackoutStart || h < w.BlackoutEnd
}
