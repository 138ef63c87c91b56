package commands

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/adapters/memory"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

func newIngestUseCase(store *memory.Store) IngestUseCase {
	return IngestUseCase{
		Polls:           store,
		Projector:       AttendanceProjector{Store: store},
		Outbox:          store,
		IDGen:           store,
		RetentionWindow: 7 * 24 * time.Hour,
		WriteBackoff:    time.Millisecond,
	}
}

func voteNotification(pollID string, sender string, eventTime time.Time, options []RawOption) RawNotification {
	return RawNotification{
		Kind:       NotificationPollUpdate,
		ChatID:     "group-1@g.us",
		SenderID:   sender,
		SenderName: "Jordan",
		PollID:     pollID,
		Question:   "Who's in this weekend?",
		Options:    options,
		Timestamp:  eventTime.Unix(),
	}
}

func TestIngestVoteRecordsAndProjects(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	store.SetGrid(
		[]string{"Name", "Mobile", "Last Voted", "Sat 6/6", "Sun 6/7"},
		map[string]string{"13106001023": "Jordan"},
	)
	uc := newIngestUseCase(store)

	result, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", eventTime, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
		{Label: "Sun 6/7", Voters: []string{"15550001111@c.us"}},
		{Label: "Can't play", Voters: nil},
	}))
	if err != nil {
		t.Fatalf("ingest vote failed: %v", err)
	}
	if result.Outcome != OutcomeRecorded {
		t.Fatalf("expected recorded outcome, got %s", result.Outcome)
	}
	if !result.PollCreated || !result.Applied || result.Stale || result.Overridden {
		t.Fatalf("unexpected result flags: %+v", result)
	}
	if !reflect.DeepEqual(result.Resolved, []string{"Sat 6/6"}) {
		t.Fatalf("expected resolved selection [Sat 6/6], got %v", result.Resolved)
	}

	poll, err := store.GetPoll(context.Background(), "poll-1")
	if err != nil {
		t.Fatalf("load poll failed: %v", err)
	}
	if poll.Question != "Who's in this weekend?" || len(poll.Options) != 3 {
		t.Fatalf("expected poll metadata from first sighting, got %+v", poll)
	}
	if !poll.CreatedAt.Equal(eventTime) {
		t.Fatalf("expected poll created_at from event time, got %v", poll.CreatedAt)
	}

	vote, err := store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("load current vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Sat 6/6"}) || !vote.UpdatedAt.Equal(eventTime) {
		t.Fatalf("unexpected current vote: %+v", vote)
	}

	history, err := store.ListHistory(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	if !reflect.DeepEqual(history[0].RawSelected, []string{"Sat 6/6"}) {
		t.Fatalf("expected raw selection in history, got %v", history[0].RawSelected)
	}

	if mark, ok := store.MarkAt("13106001023", "Sat 6/6"); !ok || mark != "y" {
		t.Fatalf("expected y mark for selected date, got %q ok=%v", mark, ok)
	}
	if mark, ok := store.MarkAt("13106001023", "Sun 6/7"); !ok || mark != "n" {
		t.Fatalf("expected n mark for unselected date, got %q ok=%v", mark, ok)
	}
	if votedAt, ok := store.LastVotedAt("13106001023"); !ok || !votedAt.Equal(eventTime) {
		t.Fatalf("expected last-voted stamp %v, got %v ok=%v", eventTime, votedAt, ok)
	}
	if result.Projection.MarksWritten != 2 {
		t.Fatalf("expected two marks written, got %d", result.Projection.MarksWritten)
	}
	if !reflect.DeepEqual(result.Projection.SkippedLabels, []string{"Can't play"}) {
		t.Fatalf("expected non-column label skipped, got %v", result.Projection.SkippedLabels)
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(pending))
	}
	var envelope struct {
		EventType string `json:"event_type"`
		Data      struct {
			Applied bool `json:"applied"`
			Stale   bool `json:"stale"`
		} `json:"data"`
	}
	if err := json.Unmarshal(pending[0].Payload, &envelope); err != nil {
		t.Fatalf("decode outbox envelope failed: %v", err)
	}
	if envelope.EventType != "vote.recorded" || !envelope.Data.Applied || envelope.Data.Stale {
		t.Fatalf("unexpected vote.recorded envelope: %+v", envelope)
	}
}

func TestIngestVoteLastWriterWinsByEventTime(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)
	store := memory.NewStore(nil)
	uc := newIngestUseCase(store)

	options := func(selected string, voter string) []RawOption {
		out := []RawOption{
			{Label: "Sat 6/6"},
			{Label: "Sun 6/7"},
		}
		for i := range out {
			if out[i].Label == selected {
				out[i].Voters = []string{voter}
			}
		}
		return out
	}

	// The later event lands first; the delayed earlier one must not win.
	first, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", later, options("Sun 6/7", "13106001023@c.us")))
	if err != nil {
		t.Fatalf("ingest newer vote failed: %v", err)
	}
	if !first.Applied {
		t.Fatalf("expected newer vote applied")
	}

	second, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", base, options("Sat 6/6", "13106001023@c.us")))
	if err != nil {
		t.Fatalf("ingest older vote failed: %v", err)
	}
	if second.Outcome != OutcomeRecorded {
		t.Fatalf("expected out-of-order vote still recorded, got %s", second.Outcome)
	}
	if second.Applied {
		t.Fatalf("expected out-of-order vote suppressed by last-writer-wins")
	}

	vote, err := store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("load current vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Sun 6/7"}) || !vote.UpdatedAt.Equal(later) {
		t.Fatalf("expected newer selection to survive, got %+v", vote)
	}

	history, err := store.ListHistory(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both deliveries in history, got %d", len(history))
	}

	// Equal timestamps apply: a redelivery with the same event time replaces.
	third, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", later, options("Sat 6/6", "13106001023@c.us")))
	if err != nil {
		t.Fatalf("ingest equal-timestamp vote failed: %v", err)
	}
	if !third.Applied {
		t.Fatalf("expected equal-timestamp vote to apply")
	}
	vote, err = store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("load current vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Sat 6/6"}) {
		t.Fatalf("expected equal-timestamp replacement, got %v", vote.Selected)
	}
}

func TestIngestStaleVoteRecordsHistoryOnly(t *testing.T) {
	createdAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	staleTime := createdAt.Add(8 * 24 * time.Hour)
	store := memory.NewStore(nil)
	store.SetPoll(entities.Poll{
		PollID:    "poll-1",
		ChatID:    "group-1@g.us",
		Question:  "Who's in this weekend?",
		Options:   []string{"Sat 6/6", "Sun 6/7"},
		CreatedAt: createdAt,
	})
	store.SetGrid(
		[]string{"Name", "Sat 6/6", "Sun 6/7"},
		map[string]string{"13106001023": "Jordan"},
	)
	uc := newIngestUseCase(store)

	result, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", staleTime, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
	}))
	if err != nil {
		t.Fatalf("ingest stale vote failed: %v", err)
	}
	if result.Outcome != OutcomeRecorded || !result.Stale || result.Applied {
		t.Fatalf("expected stale recorded outcome, got %+v", result)
	}

	if _, err := store.GetVote(context.Background(), "poll-1", "13106001023"); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected no current vote for stale event, got %v", err)
	}
	history, err := store.ListHistory(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected stale event in history, got %d entries", len(history))
	}
	if _, ok := store.MarkAt("13106001023", "Sat 6/6"); ok {
		t.Fatalf("expected no projection for stale event")
	}
	if result.Projection.MarksWritten != 0 || result.Projection.RowFound {
		t.Fatalf("expected empty projection report, got %+v", result.Projection)
	}
}

func TestIngestVoteUnavailabilityOverrideClearsDates(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	store.SetGrid(
		[]string{"Name", "Sat 6/6", "Sun 6/7"},
		map[string]string{"13106001023": "Jordan"},
	)
	uc := newIngestUseCase(store)

	result, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", eventTime, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
		{Label: "Sun 6/7", Voters: nil},
		{Label: "Can't play this week", Voters: []string{"13106001023@c.us"}},
	}))
	if err != nil {
		t.Fatalf("ingest override vote failed: %v", err)
	}
	if !result.Overridden {
		t.Fatalf("expected unavailability override")
	}
	if !reflect.DeepEqual(result.Resolved, []string{"Can't play this week"}) {
		t.Fatalf("expected only unavailability label resolved, got %v", result.Resolved)
	}

	vote, err := store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("load current vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Can't play this week"}) {
		t.Fatalf("expected override stored as current vote, got %v", vote.Selected)
	}

	history, err := store.ListHistory(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	if !reflect.DeepEqual(history[0].RawSelected, []string{"Sat 6/6", "Can't play this week"}) {
		t.Fatalf("expected raw picks preserved in history, got %v", history[0].RawSelected)
	}

	// Both date columns read n: the voter is recorded as out, not partially in.
	if mark, ok := store.MarkAt("13106001023", "Sat 6/6"); !ok || mark != "n" {
		t.Fatalf("expected overridden date marked n, got %q ok=%v", mark, ok)
	}
	if mark, ok := store.MarkAt("13106001023", "Sun 6/7"); !ok || mark != "n" {
		t.Fatalf("expected unselected date marked n, got %q ok=%v", mark, ok)
	}
	if !reflect.DeepEqual(result.Projection.SkippedLabels, []string{"Can't play this week"}) {
		t.Fatalf("expected unavailability label skipped on the grid, got %v", result.Projection.SkippedLabels)
	}
}

func TestIngestVoteKeepsFirstSightingMetadata(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	uc := newIngestUseCase(store)

	if _, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", base, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
	})); err != nil {
		t.Fatalf("ingest first vote failed: %v", err)
	}

	second := voteNotification("poll-1", "15550001111@c.us", base.Add(time.Minute), []RawOption{
		{Label: "Sat 6/6", Voters: nil},
		{Label: "Mon 6/8", Voters: []string{"15550001111@c.us"}},
	})
	second.Question = "Rescheduled?"
	result, err := uc.IngestNotification(context.Background(), second)
	if err != nil {
		t.Fatalf("ingest second vote failed: %v", err)
	}
	if result.PollCreated {
		t.Fatalf("expected existing poll reused")
	}

	poll, err := store.GetPoll(context.Background(), "poll-1")
	if err != nil {
		t.Fatalf("load poll failed: %v", err)
	}
	if poll.Question != "Who's in this weekend?" {
		t.Fatalf("expected first-sighting question kept, got %q", poll.Question)
	}
	if !reflect.DeepEqual(poll.Options, []string{"Sat 6/6"}) {
		t.Fatalf("expected option list immutable after registration, got %v", poll.Options)
	}

	// The newer event's unseen label still lands in the voter's current state.
	vote, err := store.GetVote(context.Background(), "poll-1", "15550001111")
	if err != nil {
		t.Fatalf("load second vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Mon 6/8"}) {
		t.Fatalf("expected unseen label in current vote, got %v", vote.Selected)
	}
}

func TestIngestVoteProjectsOnlyRegisteredOptions(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	store.SetGrid(
		[]string{"Name", "Sat 6/6", "Mon 6/8"},
		map[string]string{"13106001023": "Jordan"},
	)
	uc := newIngestUseCase(store)

	if _, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", base, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
	})); err != nil {
		t.Fatalf("ingest first vote failed: %v", err)
	}

	// A later delivery carries Mon 6/8, which the registry never sighted. The
	// grid has a Mon 6/8 column, but only registered options may reach it.
	result, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", base.Add(time.Hour), []RawOption{
		{Label: "Sat 6/6", Voters: nil},
		{Label: "Mon 6/8", Voters: []string{"13106001023@c.us"}},
	}))
	if err != nil {
		t.Fatalf("ingest unregistered-label vote failed: %v", err)
	}
	if !result.Applied {
		t.Fatalf("expected unregistered-label vote applied")
	}
	if !reflect.DeepEqual(result.Resolved, []string{"Mon 6/8"}) {
		t.Fatalf("expected label resolved verbatim, got %v", result.Resolved)
	}

	vote, err := store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("load current vote failed: %v", err)
	}
	if !reflect.DeepEqual(vote.Selected, []string{"Mon 6/8"}) {
		t.Fatalf("expected unregistered label in current vote, got %v", vote.Selected)
	}

	if _, ok := store.MarkAt("13106001023", "Mon 6/8"); ok {
		t.Fatalf("expected no mark for a label outside the registered options")
	}
	if mark, ok := store.MarkAt("13106001023", "Sat 6/6"); !ok || mark != "n" {
		t.Fatalf("expected registered option cleared to n, got %q ok=%v", mark, ok)
	}
	if result.Projection.MarksWritten != 1 {
		t.Fatalf("expected one mark written, got %d", result.Projection.MarksWritten)
	}
	if len(result.Projection.SkippedLabels) != 0 {
		t.Fatalf("expected no skipped labels, got %v", result.Projection.SkippedLabels)
	}
}

func TestIngestRejectsAndIgnoresWithoutError(t *testing.T) {
	store := memory.NewStore(nil)
	uc := newIngestUseCase(store)

	missingPoll := voteNotification("", "13106001023@c.us", time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), nil)
	result, err := uc.IngestNotification(context.Background(), missingPoll)
	if err != nil {
		t.Fatalf("rejected vote must not error: %v", err)
	}
	if result.Outcome != OutcomeRejected {
		t.Fatalf("expected rejected outcome, got %s", result.Outcome)
	}

	result, err = uc.IngestNotification(context.Background(), RawNotification{Kind: "text_message"})
	if err != nil {
		t.Fatalf("ignored notification must not error: %v", err)
	}
	if result.Outcome != OutcomeIgnored {
		t.Fatalf("expected ignored outcome, got %s", result.Outcome)
	}

	if _, err := store.ListPendingOutbox(context.Background(), 10); err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	history, err := store.ListHistory(context.Background(), "", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected nothing persisted for rejected event, got %d entries", len(history))
	}
}

func TestIngestAnnouncementRegistersOnce(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	uc := newIngestUseCase(store)

	announcement := RawNotification{
		Kind:     NotificationPollCreated,
		ChatID:   "group-1@g.us",
		SenderID: "13106001023@c.us",
		PollID:   "poll-5",
		Question: "Next session?",
		Options: []RawOption{
			{Label: "Sat 6/6"},
			{Label: "Sun 6/7"},
		},
		Timestamp: eventTime.Unix(),
	}

	first, err := uc.IngestNotification(context.Background(), announcement)
	if err != nil {
		t.Fatalf("ingest announcement failed: %v", err)
	}
	if first.Outcome != OutcomePollRegistered || !first.PollCreated {
		t.Fatalf("expected poll registered on first announcement, got %+v", first)
	}

	second, err := uc.IngestNotification(context.Background(), announcement)
	if err != nil {
		t.Fatalf("ingest repeat announcement failed: %v", err)
	}
	if second.PollCreated {
		t.Fatalf("expected repeat announcement to reuse the poll")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	registered := 0
	for _, message := range pending {
		if message.EventType == "poll.registered" {
			registered++
		}
	}
	if registered != 1 {
		t.Fatalf("expected exactly one poll.registered event, got %d", registered)
	}
}

type flakyPolls struct {
	ports.PollRepository
	failAppends int
	failUpserts int
}

func (f *flakyPolls) AppendHistory(ctx context.Context, entry entities.VoteHistoryEntry) error {
	if f.failAppends > 0 {
		f.failAppends--
		return errors.New("transient store failure")
	}
	return f.PollRepository.AppendHistory(ctx, entry)
}

func (f *flakyPolls) UpsertCurrentVote(ctx context.Context, vote entities.Vote) (bool, error) {
	if f.failUpserts > 0 {
		f.failUpserts--
		return false, errors.New("transient store failure")
	}
	return f.PollRepository.UpsertCurrentVote(ctx, vote)
}

func TestIngestRetriesTransientStoreFailures(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	flaky := &flakyPolls{PollRepository: store, failAppends: 2, failUpserts: 1}
	uc := newIngestUseCase(store)
	uc.Polls = flaky
	uc.WriteAttempts = 3

	result, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", eventTime, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
	}))
	if err != nil {
		t.Fatalf("expected retries to absorb transient failures: %v", err)
	}
	if !result.Applied {
		t.Fatalf("expected vote applied after retries")
	}
	history, err := store.ListHistory(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry after retries, got %d", len(history))
	}
}

func TestIngestSurfacesExhaustedStoreFailure(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	flaky := &flakyPolls{PollRepository: store, failAppends: 3}
	uc := newIngestUseCase(store)
	uc.Polls = flaky
	uc.WriteAttempts = 3

	_, err := uc.IngestNotification(context.Background(), voteNotification("poll-1", "13106001023@c.us", eventTime, []RawOption{
		{Label: "Sat 6/6", Voters: []string{"13106001023@c.us"}},
	}))
	if err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}
	if _, getErr := store.GetVote(context.Background(), "poll-1", "13106001023"); !errors.Is(getErr, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected no current vote after failed history append, got %v", getErr)
	}
}
