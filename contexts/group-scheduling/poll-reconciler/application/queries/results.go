package queries

import (
	"context"
	"sort"
	"strings"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// OptionTally is the current standing of one option label.
type OptionTally struct {
	Label  string
	Count  int
	Voters []string
}

// PollResults is the reconciled standing of a poll: one row per voter from
// the current-vote table, tallied per option label.
type PollResults struct {
	Poll        entities.Poll
	TotalVoters int
	Tallies     []OptionTally
}

type PollResultsUseCase struct {
	Polls ports.PollRepository
}

func (uc PollResultsUseCase) Results(ctx context.Context, pollID string) (PollResults, error) {
	poll, err := uc.Polls.GetPoll(ctx, strings.TrimSpace(pollID))
	if err != nil {
		return PollResults{}, err
	}
	votes, err := uc.Polls.ListVotes(ctx, poll.PollID)
	if err != nil {
		return PollResults{}, err
	}
	return PollResults{
		Poll:        poll,
		TotalVoters: len(votes),
		Tallies:     tally(poll.Options, votes),
	}, nil
}

// tally counts voters per label. Registered options come first in their poll
// order, labels seen only in votes follow sorted, and voter lists are sorted
// so repeated reads render identically.
func tally(options []string, votes []entities.Vote) []OptionTally {
	byLabel := make(map[string][]string)
	for _, vote := range votes {
		for _, label := range vote.Selected {
			byLabel[label] = append(byLabel[label], vote.VoterID)
		}
	}

	seen := make(map[string]bool, len(options))
	tallies := make([]OptionTally, 0, len(byLabel))
	for _, label := range options {
		if seen[label] {
			continue
		}
		seen[label] = true
		voters := byLabel[label]
		sort.Strings(voters)
		tallies = append(tallies, OptionTally{Label: label, Count: len(voters), Voters: voters})
	}

	extras := make([]string, 0)
	for label := range byLabel {
		if !seen[label] {
			extras = append(extras, label)
		}
	}
	sort.Strings(extras)
	for _, label := range extras {
		voters := byLabel[label]
		sort.Strings(voters)
		tallies = append(tallies, OptionTally{Label: label, Count: len(voters), Voters: voters})
	}
	return tallies
}
