package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/services"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type rosterRow struct {
	voterID   string
	voterName string
}

// Store is the in-memory rendition of every reconciler port, used by unit
// tests and local bootstrapping. The attendance grid lives here too so the
// projector can run without a spreadsheet behind it.
type Store struct {
	mu sync.RWMutex

	polls   map[string]entities.Poll
	votes   map[string]map[string]entities.Vote
	history []entities.VoteHistoryEntry
	outbox  map[string]outboxRecord

	headers   []string
	roster    []rosterRow
	marks     map[int]map[int]string
	lastVoted map[int]time.Time
}

func NewStore(seed []entities.Poll) *Store {
	polls := make(map[string]entities.Poll, len(seed))
	for _, poll := range seed {
		polls[poll.PollID] = poll
	}
	return &Store{
		polls:     polls,
		votes:     make(map[string]map[string]entities.Vote),
		outbox:    make(map[string]outboxRecord),
		marks:     make(map[int]map[int]string),
		lastVoted: make(map[int]time.Time),
	}
}

func (s *Store) SetPoll(poll entities.Poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[strings.TrimSpace(poll.PollID)] = poll
}

func (s *Store) SetVote(vote entities.Vote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pollID := strings.TrimSpace(vote.PollID)
	if s.votes[pollID] == nil {
		s.votes[pollID] = make(map[string]entities.Vote)
	}
	s.votes[pollID][strings.TrimSpace(vote.VoterID)] = vote
}

// SetGrid replaces the attendance grid headers and roster in one call.
func (s *Store) SetGrid(headers []string, roster map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append([]string(nil), headers...)
	s.roster = s.roster[:0]
	ids := make([]string, 0, len(roster))
	for voterID := range roster {
		ids = append(ids, voterID)
	}
	sort.Strings(ids)
	for _, voterID := range ids {
		s.roster = append(s.roster, rosterRow{voterID: voterID, voterName: roster[voterID]})
	}
	s.marks = make(map[int]map[int]string)
	s.lastVoted = make(map[int]time.Time)
}

func (s *Store) CreatePollIfAbsent(_ context.Context, poll entities.Poll) (entities.Poll, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pollID := strings.TrimSpace(poll.PollID)
	if pollID == "" {
		return entities.Poll{}, false, domainerrors.ErrMalformedEvent
	}
	if existing, ok := s.polls[pollID]; ok {
		return existing, false, nil
	}
	stored := entities.Poll{
		PollID:    pollID,
		ChatID:    strings.TrimSpace(poll.ChatID),
		Question:  strings.TrimSpace(poll.Question),
		Options:   append([]string(nil), poll.Options...),
		CreatedAt: poll.CreatedAt.UTC(),
	}
	s.polls[pollID] = stored
	return stored, true, nil
}

func (s *Store) GetPoll(_ context.Context, pollID string) (entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	poll, ok := s.polls[strings.TrimSpace(pollID)]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollNotFound
	}
	return poll, nil
}

func (s *Store) AppendHistory(_ context.Context, entry entities.VoteHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID := strings.TrimSpace(entry.EntryID)
	for _, existing := range s.history {
		if existing.EntryID == entryID && entryID != "" {
			return nil
		}
	}
	if entryID == "" {
		entryID = uuid.NewString()
	}
	stored := entry
	stored.EntryID = entryID
	stored.RawSelected = append([]string(nil), entry.RawSelected...)
	stored.ResolvedSelected = append([]string(nil), entry.ResolvedSelected...)
	stored.RecordedAt = entry.RecordedAt.UTC()
	s.history = append(s.history, stored)
	return nil
}

func (s *Store) UpsertCurrentVote(_ context.Context, vote entities.Vote) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pollID := strings.TrimSpace(vote.PollID)
	voterID := strings.TrimSpace(vote.VoterID)
	if s.votes[pollID] == nil {
		s.votes[pollID] = make(map[string]entities.Vote)
	}
	if existing, ok := s.votes[pollID][voterID]; ok && existing.UpdatedAt.After(vote.UpdatedAt) {
		return false, nil
	}
	s.votes[pollID][voterID] = entities.Vote{
		PollID:    pollID,
		VoterID:   voterID,
		VoterName: strings.TrimSpace(vote.VoterName),
		Selected:  append([]string(nil), vote.Selected...),
		UpdatedAt: vote.UpdatedAt.UTC(),
	}
	return true, nil
}

func (s *Store) GetVote(_ context.Context, pollID string, voterID string) (entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.votes[strings.TrimSpace(pollID)][strings.TrimSpace(voterID)]
	if !ok {
		return entities.Vote{}, domainerrors.ErrVoteNotFound
	}
	return vote, nil
}

func (s *Store) ListVotes(_ context.Context, pollID string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVoter := s.votes[strings.TrimSpace(pollID)]
	items := make([]entities.Vote, 0, len(byVoter))
	for _, vote := range byVoter {
		items = append(items, vote)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].VoterID < items[j].VoterID
	})
	return items, nil
}

func (s *Store) ListHistory(_ context.Context, pollID string, voterID string) ([]entities.VoteHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pollID = strings.TrimSpace(pollID)
	voterID = strings.TrimSpace(voterID)
	items := make([]entities.VoteHistoryEntry, 0)
	for _, entry := range s.history {
		if entry.PollID == pollID && entry.VoterID == voterID {
			items = append(items, entry)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RecordedAt.Before(items[j].RecordedAt)
	})
	return items, nil
}

func (s *Store) ListExpiredPolls(_ context.Context, cutoff time.Time, limit int) ([]entities.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	items := make([]entities.Poll, 0)
	for _, poll := range s.polls {
		if poll.CreatedAt.Before(cutoff.UTC()) {
			items = append(items, poll)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) PurgePoll(_ context.Context, pollID string) (ports.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pollID = strings.TrimSpace(pollID)
	var result ports.PurgeResult
	if _, ok := s.polls[pollID]; ok {
		delete(s.polls, pollID)
		result.PollDeleted = true
	}
	result.VotesDeleted = len(s.votes[pollID])
	delete(s.votes, pollID)

	kept := s.history[:0]
	for _, entry := range s.history {
		if entry.PollID == pollID {
			result.HistoryDeleted++
			continue
		}
		kept = append(kept, entry)
	}
	s.history = kept
	return result, nil
}

func (s *Store) FindRow(_ context.Context, voterID string, voterName string) (ports.RowRef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	voterID = strings.TrimSpace(voterID)
	voterName = strings.TrimSpace(voterName)
	for index, row := range s.roster {
		if row.voterID == voterID {
			return ports.RowRef(index), true, nil
		}
	}
	if voterName == "" {
		return 0, false, nil
	}
	for index, row := range s.roster {
		if row.voterName == voterName {
			return ports.RowRef(index), true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) FindColumn(_ context.Context, label string) (ports.ColumnRef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := services.FindColumn(label, s.headers)
	if !ok {
		return 0, false, nil
	}
	return ports.ColumnRef(index), true, nil
}

func (s *Store) WriteMark(_ context.Context, row ports.RowRef, column ports.ColumnRef, attending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marks[int(row)] == nil {
		s.marks[int(row)] = make(map[int]string)
	}
	mark := "n"
	if attending {
		mark = "y"
	}
	s.marks[int(row)][int(column)] = mark
	return nil
}

func (s *Store) WriteLastVoted(_ context.Context, row ports.RowRef, votedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVoted[int(row)] = votedAt.UTC()
	return nil
}

// MarkAt reads a mark back by voter and label, for assertions against the
// grid state.
func (s *Store) MarkAt(voterID string, label string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowIndex(voterID)
	if !ok {
		return "", false
	}
	column, ok := services.FindColumn(label, s.headers)
	if !ok {
		return "", false
	}
	mark, ok := s.marks[row][column]
	return mark, ok
}

func (s *Store) LastVotedAt(voterID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rowIndex(voterID)
	if !ok {
		return time.Time{}, false
	}
	votedAt, ok := s.lastVoted[row]
	return votedAt, ok
}

func (s *Store) rowIndex(voterID string) (int, bool) {
	for index, row := range s.roster {
		if row.voterID == strings.TrimSpace(voterID) {
			return index, true
		}
	}
	return 0, false
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
