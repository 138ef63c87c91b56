package entities

import "time"

// VoteEvent is the canonical form of a gateway vote notification after
// normalization. Selected holds the voter's raw picks before override
// resolution; Options is the full label list the event observed, used only
// when the event is the poll's first sighting.
type VoteEvent struct {
	PollID    string
	ChatID    string
	VoterID   string
	VoterName string
	Question  string
	Options   []string
	Selected  []string
	EventTime time.Time
}

// Vote is the authoritative current selection for one (poll, voter) pair.
// Every applied event fully replaces Selected. UpdatedAt carries the event
// timestamp that produced the state, not the wall clock of the write, so
// last-writer-wins is decided by application-level time.
type Vote struct {
	PollID    string
	VoterID   string
	VoterName string
	Selected  []string
	UpdatedAt time.Time
}

// VoteHistoryEntry is appended once per accepted event, revotes and stale
// events included. RawSelected is the selection exactly as received,
// ResolvedSelected the selection after the unavailability override.
type VoteHistoryEntry struct {
	EntryID          string
	PollID           string
	VoterID          string
	VoterName        string
	RawSelected      []string
	ResolvedSelected []string
	RecordedAt       time.Time
}
