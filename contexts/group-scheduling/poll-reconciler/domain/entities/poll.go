package entities

import "time"

// Poll metadata is learned from the first gateway notification that references
// the poll id and is immutable afterwards: later events never rewrite the
// question or the option list, and unseen labels are never unioned in.
type Poll struct {
	PollID    string
	ChatID    string
	Question  string
	Options   []string
	CreatedAt time.Time
}

// StaleAt reports whether an event timestamp falls outside the poll's
// validity window. Both instants are passed in so the rule stays a pure
// function of (event_time, created_at).
func (p Poll) StaleAt(eventTime time.Time, window time.Duration) bool {
	return eventTime.Sub(p.CreatedAt) > window
}

// ExpiredAt reports whether the poll is past retention at the given instant.
func (p Poll) ExpiredAt(now time.Time, window time.Duration) bool {
	return now.Sub(p.CreatedAt) > window
}
