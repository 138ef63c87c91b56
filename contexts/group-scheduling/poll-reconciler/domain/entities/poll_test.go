package entities

import (
	"testing"
	"time"
)

func TestPollStaleAtUsesStrictWindow(t *testing.T) {
	createdAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	poll := Poll{PollID: "poll-1", CreatedAt: createdAt}
	window := 7 * 24 * time.Hour

	if poll.StaleAt(createdAt.Add(window), window) {
		t.Fatalf("event exactly at the window boundary must still be fresh")
	}
	if !poll.StaleAt(createdAt.Add(window+time.Second), window) {
		t.Fatalf("event past the window must be stale")
	}
	if poll.StaleAt(createdAt.Add(-time.Hour), window) {
		t.Fatalf("event before creation must not be stale")
	}
}

func TestPollExpiredAt(t *testing.T) {
	createdAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	poll := Poll{PollID: "poll-1", CreatedAt: createdAt}
	window := 7 * 24 * time.Hour

	if poll.ExpiredAt(createdAt.Add(window), window) {
		t.Fatalf("poll exactly at the window boundary must not be expired")
	}
	if !poll.ExpiredAt(createdAt.Add(window+time.Minute), window) {
		t.Fatalf("poll past the window must be expired")
	}
}
