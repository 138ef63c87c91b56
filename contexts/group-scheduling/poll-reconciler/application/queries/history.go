package queries

import (
	"context"
	"errors"
	"strings"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// VoterHistory pairs the voter's current reconciled vote with the append-only
// audit trail of every delivery that reached the resolver, raw and resolved
// selections both.
type VoterHistory struct {
	PollID     string
	VoterID    string
	Current    entities.Vote
	HasCurrent bool
	Entries    []entities.VoteHistoryEntry
}

type VoterHistoryUseCase struct {
	Polls ports.PollRepository
}

func (uc VoterHistoryUseCase) History(ctx context.Context, pollID string, voterID string) (VoterHistory, error) {
	pollID = strings.TrimSpace(pollID)
	voterID = strings.TrimSpace(voterID)

	poll, err := uc.Polls.GetPoll(ctx, pollID)
	if err != nil {
		return VoterHistory{}, err
	}

	result := VoterHistory{PollID: poll.PollID, VoterID: voterID}
	current, err := uc.Polls.GetVote(ctx, poll.PollID, voterID)
	switch {
	case err == nil:
		result.Current = current
		result.HasCurrent = true
	case errors.Is(err, domainerrors.ErrVoteNotFound):
		// A voter can appear in history with no surviving current vote, for
		// example when every delivery arrived stale.
	default:
		return VoterHistory{}, err
	}

	entries, err := uc.Polls.ListHistory(ctx, poll.PollID, voterID)
	if err != nil {
		return VoterHistory{}, err
	}
	result.Entries = entries
	return result, nil
}
