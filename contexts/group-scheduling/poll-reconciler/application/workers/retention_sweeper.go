package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	application "rollcall/contexts/group-scheduling/poll-reconciler/application"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// RetentionSweeper purges polls whose retention window has lapsed: the poll
// row, its current votes, and its history all go. The sweep keys off
// created_at against the injected clock, so rerunning it is a no-op until
// another poll ages out. A poll id recreated after a sweep starts a fresh
// retention window from its next sighting.
type RetentionSweeper struct {
	Polls           ports.PollRepository
	Outbox          ports.OutboxWriter
	IDGen           ports.IDGenerator
	Clock           ports.Clock
	RetentionWindow time.Duration
	BatchSize       int
	Logger          *slog.Logger
}

func (s RetentionSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	window := s.RetentionWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	limit := s.BatchSize
	if limit <= 0 {
		limit = 50
	}
	cutoff := now.Add(-window)

	expired, err := s.Polls.ListExpiredPolls(ctx, cutoff, limit)
	if err != nil {
		logger.Error("retention sweep listing failed",
			"event", "reconciler_sweep_list_failed",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(expired) == 0 {
		logger.Debug("retention sweep found nothing to purge",
			"event", "reconciler_sweep_noop",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"cutoff", cutoff,
		)
		return nil
	}

	purged := 0
	for _, poll := range expired {
		result, err := s.Polls.PurgePoll(ctx, poll.PollID)
		if err != nil {
			logger.Error("retention purge failed",
				"event", "reconciler_sweep_purge_failed",
				"module", "group-scheduling/poll-reconciler",
				"layer", "worker",
				"poll_id", poll.PollID,
				"error", err.Error(),
			)
			return fmt.Errorf("purge poll %s: %w", poll.PollID, err)
		}
		purged++
		logger.Info("poll purged past retention",
			"event", "reconciler_poll_purged",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"poll_id", poll.PollID,
			"created_at", poll.CreatedAt,
			"votes_deleted", result.VotesDeleted,
			"history_deleted", result.HistoryDeleted,
		)
		s.appendPollSwept(ctx, logger, poll.PollID, now, result)
	}

	logger.Info("retention sweep completed",
		"event", "reconciler_sweep_completed",
		"module", "group-scheduling/poll-reconciler",
		"layer", "worker",
		"purged_count", purged,
		"cutoff", cutoff,
	)
	return nil
}

// appendPollSwept is best-effort: losing a sweep notification only costs
// downstream observers, never retention correctness.
func (s RetentionSweeper) appendPollSwept(
	ctx context.Context,
	logger *slog.Logger,
	pollID string,
	sweptAt time.Time,
	result ports.PurgeResult,
) {
	if s.Outbox == nil || s.IDGen == nil {
		return
	}
	eventID, err := s.IDGen.NewID(ctx)
	if err != nil {
		s.logSweepEventSkipped(logger, pollID, err)
		return
	}
	envelope, err := newReconcilerEnvelope(eventID, "poll.swept", pollID, sweptAt, map[string]any{
		"poll_id":         pollID,
		"votes_deleted":   result.VotesDeleted,
		"history_deleted": result.HistoryDeleted,
		"swept_at":        sweptAt.Format(time.RFC3339),
	})
	if err != nil {
		s.logSweepEventSkipped(logger, pollID, err)
		return
	}
	if err := s.Outbox.AppendOutbox(ctx, envelope); err != nil {
		s.logSweepEventSkipped(logger, pollID, err)
	}
}

func (s RetentionSweeper) logSweepEventSkipped(logger *slog.Logger, pollID string, err error) {
	logger.Error("sweep event append skipped",
		"event", "reconciler_sweep_event_append_failed",
		"module", "group-scheduling/poll-reconciler",
		"layer", "worker",
		"poll_id", pollID,
		"error", err.Error(),
	)
}
