package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "rollcall/contexts/group-scheduling/poll-reconciler/application"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/services"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// IngestOutcome classifies how a notification was handled. Rejected and
// ignored notifications are acknowledged upstream; only a returned error asks
// the gateway to redeliver.
type IngestOutcome string

const (
	OutcomeRecorded       IngestOutcome = "recorded"
	OutcomePollRegistered IngestOutcome = "poll_registered"
	OutcomeIgnored        IngestOutcome = "ignored"
	OutcomeRejected       IngestOutcome = "rejected"
)

// IngestResult reports what one notification did to durable state.
type IngestResult struct {
	Outcome     IngestOutcome
	PollID      string
	VoterID     string
	PollCreated bool
	Stale       bool
	Applied     bool
	Overridden  bool
	Resolved    []string
	Projection  ProjectionReport
}

// IngestUseCase runs the reconciliation pipeline for one gateway
// notification: normalize, resolve the poll (create on first sighting),
// apply the unavailability override, append history, upsert current state
// last-writer-wins, then project attendance best-effort. Handlers are
// stateless; every correctness guarantee lives in the store ports.
type IngestUseCase struct {
	Polls               ports.PollRepository
	Projector           AttendanceProjector
	Outbox              ports.OutboxWriter
	IDGen               ports.IDGenerator
	RetentionWindow     time.Duration
	CannotAttendPhrases []string
	WriteAttempts       int
	WriteBackoff        time.Duration
	Logger              *slog.Logger
}

// IngestNotification dispatches a raw gateway notification. Unknown kinds are
// acknowledged and ignored so unrelated gateway traffic never errors.
func (uc IngestUseCase) IngestNotification(ctx context.Context, raw RawNotification) (IngestResult, error) {
	switch raw.Kind {
	case NotificationPollUpdate:
		return uc.ingestVote(ctx, raw)
	case NotificationPollCreated:
		return uc.ingestAnnouncement(ctx, raw)
	default:
		application.ResolveLogger(uc.Logger).Debug("notification ignored",
			"event", "reconciler_notification_ignored",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"kind", raw.Kind,
		)
		return IngestResult{Outcome: OutcomeIgnored}, nil
	}
}

func (uc IngestUseCase) ingestVote(ctx context.Context, raw RawNotification) (IngestResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	event, err := NormalizeVote(raw)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrMalformedEvent) {
			return IngestResult{}, fmt.Errorf("normalize vote: %w", err)
		}
		logger.Warn("vote notification rejected",
			"event", "reconciler_vote_rejected",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", raw.PollID,
			"sender", raw.SenderID,
			"error", err.Error(),
		)
		return IngestResult{Outcome: OutcomeRejected}, nil
	}

	poll, created, err := uc.Polls.CreatePollIfAbsent(ctx, entities.Poll{
		PollID:    event.PollID,
		ChatID:    event.ChatID,
		Question:  event.Question,
		Options:   event.Options,
		CreatedAt: event.EventTime,
	})
	if err != nil {
		logger.Error("poll resolution failed",
			"event", "reconciler_poll_resolve_failed",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", event.PollID,
			"error", err.Error(),
		)
		return IngestResult{}, fmt.Errorf("resolve poll %s: %w", event.PollID, err)
	}
	if created {
		logger.Info("poll registered from first sighting",
			"event", "reconciler_poll_first_sighting",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", poll.PollID,
			"chat_id", poll.ChatID,
			"options", len(poll.Options),
		)
	}

	stale := poll.StaleAt(event.EventTime, uc.retentionWindow())
	resolved, overridden := services.ResolveSelection(event.Selected, uc.CannotAttendPhrases)
	if overridden {
		logger.Info("unavailability override applied",
			"event", "reconciler_override_applied",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", event.PollID,
			"voter_id", event.VoterID,
			"raw_count", len(event.Selected),
			"resolved_count", len(resolved),
		)
	}

	entryID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("history entry id: %w", err)
	}
	entry := entities.VoteHistoryEntry{
		EntryID:          entryID,
		PollID:           event.PollID,
		VoterID:          event.VoterID,
		VoterName:        event.VoterName,
		RawSelected:      services.NormalizeSelection(event.Selected),
		ResolvedSelected: resolved,
		RecordedAt:       event.EventTime,
	}
	// History lands for every accepted event, stale and superseded ones
	// included; the audit log never enforces ordering.
	if err := uc.withRetry(ctx, "append_history", func() error {
		return uc.Polls.AppendHistory(ctx, entry)
	}); err != nil {
		return IngestResult{}, fmt.Errorf("append history for poll %s voter %s: %w", event.PollID, event.VoterID, err)
	}

	applied := false
	if !stale {
		vote := entities.Vote{
			PollID:    event.PollID,
			VoterID:   event.VoterID,
			VoterName: event.VoterName,
			Selected:  resolved,
			UpdatedAt: event.EventTime,
		}
		if err := uc.withRetry(ctx, "upsert_current_vote", func() error {
			var upsertErr error
			applied, upsertErr = uc.Polls.UpsertCurrentVote(ctx, vote)
			return upsertErr
		}); err != nil {
			return IngestResult{}, fmt.Errorf("upsert vote for poll %s voter %s: %w", event.PollID, event.VoterID, err)
		}
	} else {
		logger.Info("stale vote recorded to history only",
			"event", "reconciler_stale_vote_recorded",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", event.PollID,
			"voter_id", event.VoterID,
			"event_time", event.EventTime,
			"poll_created_at", poll.CreatedAt,
		)
	}

	uc.appendVoteRecorded(ctx, event, resolved, applied, stale)

	result := IngestResult{
		Outcome:     OutcomeRecorded,
		PollID:      event.PollID,
		VoterID:     event.VoterID,
		PollCreated: created,
		Stale:       stale,
		Applied:     applied,
		Overridden:  overridden,
		Resolved:    resolved,
	}
	if applied {
		result.Projection = uc.Projector.Project(ctx, poll, entities.Vote{
			PollID:    event.PollID,
			VoterID:   event.VoterID,
			VoterName: event.VoterName,
			Selected:  resolved,
			UpdatedAt: event.EventTime,
		})
	}

	logger.Info("vote notification recorded",
		"event", "reconciler_vote_recorded",
		"module", "group-scheduling/poll-reconciler",
		"layer", "application",
		"poll_id", event.PollID,
		"voter_id", event.VoterID,
		"applied", applied,
		"stale", stale,
		"overridden", overridden,
		"marks_written", result.Projection.MarksWritten,
	)
	return result, nil
}

func (uc IngestUseCase) ingestAnnouncement(ctx context.Context, raw RawNotification) (IngestResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	seed, err := NormalizeAnnouncement(raw)
	if err != nil {
		if !errors.Is(err, domainerrors.ErrMalformedEvent) {
			return IngestResult{}, fmt.Errorf("normalize announcement: %w", err)
		}
		logger.Warn("poll announcement rejected",
			"event", "reconciler_announcement_rejected",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", raw.PollID,
			"error", err.Error(),
		)
		return IngestResult{Outcome: OutcomeRejected}, nil
	}

	poll, created, err := uc.Polls.CreatePollIfAbsent(ctx, seed)
	if err != nil {
		logger.Error("poll registration failed",
			"event", "reconciler_poll_register_failed",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", seed.PollID,
			"error", err.Error(),
		)
		return IngestResult{}, fmt.Errorf("register poll %s: %w", seed.PollID, err)
	}
	if created {
		uc.appendPollRegistered(ctx, poll)
	}

	logger.Info("poll announcement processed",
		"event", "reconciler_poll_registered",
		"module", "group-scheduling/poll-reconciler",
		"layer", "application",
		"poll_id", poll.PollID,
		"created", created,
	)
	return IngestResult{
		Outcome:     OutcomePollRegistered,
		PollID:      poll.PollID,
		PollCreated: created,
	}, nil
}

// withRetry runs a correctness-critical store write with bounded linear
// backoff. Exhaustion surfaces the last error so the caller NACKs and the
// gateway redelivers; the replace-based model keeps redelivery idempotent.
func (uc IngestUseCase) withRetry(ctx context.Context, op string, fn func() error) error {
	logger := application.ResolveLogger(uc.Logger)
	attempts := uc.WriteAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := uc.WriteBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		logger.Warn("store write failed",
			"event", "reconciler_store_write_retry",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"op", op,
			"attempt", attempt,
			"error", lastErr.Error(),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	logger.Error("store write retries exhausted",
		"event", "reconciler_store_write_exhausted",
		"module", "group-scheduling/poll-reconciler",
		"layer", "application",
		"op", op,
		"attempts", attempts,
		"error", lastErr.Error(),
	)
	return lastErr
}

func (uc IngestUseCase) retentionWindow() time.Duration {
	if uc.RetentionWindow <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.RetentionWindow
}
