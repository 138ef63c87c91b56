package commands

import (
	"context"
	"log/slog"

	application "rollcall/contexts/group-scheduling/poll-reconciler/application"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// ProjectionReport summarizes one best-effort projection pass. Failures are
// collected here and logged; they never fail the event that triggered them.
type ProjectionReport struct {
	RowFound      bool
	MarksWritten  int
	SkippedLabels []string
	LastVoted     bool
	Errors        []string
}

// AttendanceProjector pushes the resolved current vote into the attendance
// grid. The grid is a denormalized view: the durable store stays the source
// of truth and a later delivery rewrites the same cells, so every write here
// is safe to lose and safe to repeat.
type AttendanceProjector struct {
	Store  ports.AttendanceStore
	Logger *slog.Logger
}

// Project writes y/n marks for the voter's row plus the last-voted stamp.
// Only the poll's registered option labels are projected, matched against the
// grid headers by exact, case-sensitive, first-match comparison; labels with
// no matching column are skipped. A resolved label outside the registered
// options stays in the audit trail and the current vote but never reaches the
// grid. Marks cover the full option list so a changed vote clears its
// previous cells.
func (p AttendanceProjector) Project(ctx context.Context, poll entities.Poll, vote entities.Vote) ProjectionReport {
	logger := application.ResolveLogger(p.Logger)
	report := ProjectionReport{}
	if p.Store == nil {
		return report
	}

	row, found, err := p.Store.FindRow(ctx, vote.VoterID, vote.VoterName)
	if err != nil {
		report.Errors = append(report.Errors, "find row: "+err.Error())
		p.logReport(logger, poll, vote, report)
		return report
	}
	if !found {
		logger.Info("voter has no roster row",
			"event", "reconciler_projection_row_missing",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", poll.PollID,
			"voter_id", vote.VoterID,
			"voter_name", vote.VoterName,
		)
		return report
	}
	report.RowFound = true

	selected := make(map[string]bool, len(vote.Selected))
	for _, label := range vote.Selected {
		selected[label] = true
	}
	for _, label := range poll.Options {
		column, ok, err := p.Store.FindColumn(ctx, label)
		if err != nil {
			report.Errors = append(report.Errors, "find column "+label+": "+err.Error())
			continue
		}
		if !ok {
			report.SkippedLabels = append(report.SkippedLabels, label)
			logger.Info("option label has no grid column",
				"event", "reconciler_projection_label_skipped",
				"module", "group-scheduling/poll-reconciler",
				"layer", "application",
				"poll_id", poll.PollID,
				"label", label,
			)
			continue
		}
		if err := p.Store.WriteMark(ctx, row, column, selected[label]); err != nil {
			report.Errors = append(report.Errors, "write mark "+label+": "+err.Error())
			continue
		}
		report.MarksWritten++
	}

	// The last-voted stamp lands regardless of how many labels matched, so
	// the roster still shows the voter responded.
	if err := p.Store.WriteLastVoted(ctx, row, vote.UpdatedAt); err != nil {
		report.Errors = append(report.Errors, "write last voted: "+err.Error())
	} else {
		report.LastVoted = true
	}

	p.logReport(logger, poll, vote, report)
	return report
}

func (p AttendanceProjector) logReport(logger *slog.Logger, poll entities.Poll, vote entities.Vote, report ProjectionReport) {
	if len(report.Errors) > 0 {
		logger.Error("attendance projection incomplete",
			"event", "reconciler_projection_incomplete",
			"module", "group-scheduling/poll-reconciler",
			"layer", "application",
			"poll_id", poll.PollID,
			"voter_id", vote.VoterID,
			"marks_written", report.MarksWritten,
			"errors", report.Errors,
		)
		return
	}
	logger.Info("attendance projection written",
		"event", "reconciler_projection_written",
		"module", "group-scheduling/poll-reconciler",
		"layer", "application",
		"poll_id", poll.PollID,
		"voter_id", vote.VoterID,
		"marks_written", report.MarksWritten,
		"skipped", len(report.SkippedLabels),
		"last_voted", report.LastVoted,
	)
}
