package ports

import (
	"context"
	"time"

	contractsv1 "rollcall/contracts/gen/events/v1"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
)

// PollRepository owns poll registration, current-vote state, and the
// append-only vote history. Correctness under concurrent handlers is enforced
// here, at the store layer, never with in-process locks.
type PollRepository interface {
	// CreatePollIfAbsent registers the poll on first sighting. The write must
	// be atomic create-if-absent: the loser of a concurrent race gets the
	// winner's record back with created=false and its own metadata discarded.
	CreatePollIfAbsent(ctx context.Context, poll entities.Poll) (entities.Poll, bool, error)
	GetPoll(ctx context.Context, pollID string) (entities.Poll, error)
	// AppendHistory adds one audit entry. Appends carry no ordering or
	// uniqueness constraints; every delivery of an accepted event lands here.
	AppendHistory(ctx context.Context, entry entities.VoteHistoryEntry) error
	// UpsertCurrentVote fully replaces the voter's selection unless the stored
	// row carries a strictly later event timestamp. Applied reports whether
	// the write took effect.
	UpsertCurrentVote(ctx context.Context, vote entities.Vote) (bool, error)
	GetVote(ctx context.Context, pollID string, voterID string) (entities.Vote, error)
	ListVotes(ctx context.Context, pollID string) ([]entities.Vote, error)
	ListHistory(ctx context.Context, pollID string, voterID string) ([]entities.VoteHistoryEntry, error)
	// ListExpiredPolls returns polls created before the cutoff, oldest first.
	ListExpiredPolls(ctx context.Context, cutoff time.Time, limit int) ([]entities.Poll, error)
	// PurgePoll deletes the poll with its votes and history. Purging an
	// already-absent poll is a no-op so sweeps can repeat safely.
	PurgePoll(ctx context.Context, pollID string) (PurgeResult, error)
}

// PurgeResult counts what a poll purge removed.
type PurgeResult struct {
	PollDeleted    bool
	VotesDeleted   int
	HistoryDeleted int
}

// RowRef and ColumnRef identify a voter row and a header column in the
// external attendance store. Opaque outside the store adapter.
type RowRef int

type ColumnRef int

// AttendanceStore is the columnar roster the projector writes through. The
// projector only locates cells and writes single values; it never
// restructures rows or columns.
type AttendanceStore interface {
	// FindRow locates the voter's roster row. found=false means the voter is
	// not on the roster, which skips projection without failing the event.
	FindRow(ctx context.Context, voterID string, voterName string) (RowRef, bool, error)
	// FindColumn matches an option label against the grid's column headers:
	// exact, case-sensitive, first match left to right.
	FindColumn(ctx context.Context, label string) (ColumnRef, bool, error)
	WriteMark(ctx context.Context, row RowRef, column ColumnRef, attending bool) error
	WriteLastVoted(ctx context.Context, row RowRef, votedAt time.Time) error
}

// Clock allows deterministic testing of freshness and retention rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts history/event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxWriter persists envelopes for the relay worker to publish.
type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
