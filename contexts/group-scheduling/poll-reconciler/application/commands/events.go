package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "rollcall/contexts/group-scheduling/poll-reconciler/application"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

func newReconcilerEnvelope(
	eventID string,
	eventType string,
	pollID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Command-side events are partitioned by poll so poll-scoped consumers
	// see a stable order per poll.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "poll-reconciler",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "poll_id",
		PartitionKey:     pollID,
		Data:             payload,
	}, nil
}

// appendVoteRecorded enqueues the vote.recorded integration event. The
// durable history and current-vote rows are the correctness contract, so an
// outbox failure is logged and swallowed rather than failing the delivery.
func (uc IngestUseCase) appendVoteRecorded(
	ctx context.Context,
	event entities.VoteEvent,
	resolved []string,
	applied bool,
	stale bool,
) {
	if uc.Outbox == nil {
		return
	}
	logger := application.ResolveLogger(uc.Logger)
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		uc.logOutboxSkipped(logger, "vote.recorded", event.PollID, err)
		return
	}
	data := map[string]any{
		"poll_id":      event.PollID,
		"chat_id":      event.ChatID,
		"voter_id":     event.VoterID,
		"voter_name":   event.VoterName,
		"raw_selected": event.Selected,
		"resolved":     resolved,
		"applied":      applied,
		"stale":        stale,
		"occurred_at":  event.EventTime.UTC().Format(time.RFC3339),
	}
	envelope, err := newReconcilerEnvelope(eventID, "vote.recorded", event.PollID, event.EventTime, data)
	if err != nil {
		uc.logOutboxSkipped(logger, "vote.recorded", event.PollID, err)
		return
	}
	if err := uc.Outbox.AppendOutbox(ctx, envelope); err != nil {
		uc.logOutboxSkipped(logger, "vote.recorded", event.PollID, err)
	}
}

func (uc IngestUseCase) appendPollRegistered(ctx context.Context, poll entities.Poll) {
	if uc.Outbox == nil {
		return
	}
	logger := application.ResolveLogger(uc.Logger)
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		uc.logOutboxSkipped(logger, "poll.registered", poll.PollID, err)
		return
	}
	data := map[string]any{
		"poll_id":     poll.PollID,
		"chat_id":     poll.ChatID,
		"question":    poll.Question,
		"options":     poll.Options,
		"created_at":  poll.CreatedAt.UTC().Format(time.RFC3339),
		"occurred_at": poll.CreatedAt.UTC().Format(time.RFC3339),
	}
	envelope, err := newReconcilerEnvelope(eventID, "poll.registered", poll.PollID, poll.CreatedAt, data)
	if err != nil {
		uc.logOutboxSkipped(logger, "poll.registered", poll.PollID, err)
		return
	}
	if err := uc.Outbox.AppendOutbox(ctx, envelope); err != nil {
		uc.logOutboxSkipped(logger, "poll.registered", poll.PollID, err)
	}
}

func (uc IngestUseCase) logOutboxSkipped(logger *slog.Logger, eventType string, pollID string, err error) {
	logger.Error("outbox append skipped",
		"event", "reconciler_outbox_append_failed",
		"module", "group-scheduling/poll-reconciler",
		"layer", "application",
		"event_type", eventType,
		"poll_id", pollID,
		"error", err.Error(),
	)
}
