package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreatePollIfAbsent registers the poll on first sighting. Concurrent first
// sightings race on the primary key; the insert that loses re-reads the row
// the winner committed so every caller leaves with the same metadata.
func (r *Repository) CreatePollIfAbsent(ctx context.Context, poll entities.Poll) (entities.Poll, bool, error) {
	row := pollModelFromEntity(poll)
	if row.PollID == "" {
		return entities.Poll{}, false, domainerrors.ErrMalformedEvent
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return r.loadPoll(ctx, row.PollID)
		}
		return entities.Poll{}, false, r.logError("reconciler_repo_create_poll_failed", create.Error,
			"poll_id", row.PollID,
		)
	}
	if create.RowsAffected > 0 {
		return row.toEntity(), true, nil
	}
	return r.loadPoll(ctx, row.PollID)
}

func (r *Repository) loadPoll(ctx context.Context, pollID string) (entities.Poll, bool, error) {
	var existing pollModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		First(&existing).Error; err != nil {
		return entities.Poll{}, false, r.logError("reconciler_repo_load_existing_poll_failed", err,
			"poll_id", pollID,
		)
	}
	return existing.toEntity(), false, nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, r.logError("reconciler_repo_get_poll_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	return row.toEntity(), nil
}

// AppendHistory inserts one audit entry. The entry id is the conflict target
// so a retried append after a half-failed write stays a single row.
func (r *Repository) AppendHistory(ctx context.Context, entry entities.VoteHistoryEntry) error {
	row := historyModelFromEntity(entry)
	if row.EntryID == "" {
		row.EntryID = uuid.NewString()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("reconciler_repo_append_history_failed", create.Error,
			"entry_id", row.EntryID,
			"poll_id", row.PollID,
			"voter_id", row.VoterID,
		)
	}
	return nil
}

// UpsertCurrentVote applies last-writer-wins by event time. The insert path
// covers first votes; on conflict the update only lands when the stored row
// is not newer, so out-of-order redeliveries cannot roll the vote back.
// Equal timestamps apply, keeping replays of the winning delivery idempotent.
func (r *Repository) UpsertCurrentVote(ctx context.Context, vote entities.Vote) (bool, error) {
	row := voteModelFromEntity(vote)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "voter_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil && !isUniqueViolation(create.Error) {
		return false, r.logError("reconciler_repo_insert_vote_failed", create.Error,
			"poll_id", row.PollID,
			"voter_id", row.VoterID,
		)
	}
	if create.Error == nil && create.RowsAffected > 0 {
		return true, nil
	}

	update := r.db.WithContext(ctx).
		Model(&voteModel{}).
		Where("poll_id = ?", row.PollID).
		Where("voter_id = ?", row.VoterID).
		Where("updated_at <= ?", row.UpdatedAt).
		Updates(map[string]any{
			"voter_name": row.VoterName,
			"selected":   row.Selected,
			"updated_at": row.UpdatedAt,
		})
	if update.Error != nil {
		return false, r.logError("reconciler_repo_update_vote_failed", update.Error,
			"poll_id", row.PollID,
			"voter_id", row.VoterID,
		)
	}
	return update.RowsAffected > 0, nil
}

func (r *Repository) GetVote(ctx context.Context, pollID string, voterID string) (entities.Vote, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, domainerrors.ErrVoteNotFound
		}
		return entities.Vote{}, r.logError("reconciler_repo_get_vote_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListVotes(ctx context.Context, pollID string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Order("voter_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("reconciler_repo_list_votes_failed", err,
			"poll_id", strings.TrimSpace(pollID),
		)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListHistory(ctx context.Context, pollID string, voterID string) ([]entities.VoteHistoryEntry, error) {
	var rows []historyModel
	if err := r.db.WithContext(ctx).
		Where("poll_id = ?", strings.TrimSpace(pollID)).
		Where("voter_id = ?", strings.TrimSpace(voterID)).
		Order("recorded_at ASC, entry_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("reconciler_repo_list_history_failed", err,
			"poll_id", strings.TrimSpace(pollID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	items := make([]entities.VoteHistoryEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) ListExpiredPolls(ctx context.Context, cutoff time.Time, limit int) ([]entities.Poll, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []pollModel
	if err := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("reconciler_repo_list_expired_polls_failed", err,
			"cutoff", cutoff.UTC(),
		)
	}
	items := make([]entities.Poll, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// PurgePoll removes the poll and everything keyed to it in one transaction,
// so a failed sweep leaves the poll intact for the next cycle instead of
// half-deleted.
func (r *Repository) PurgePoll(ctx context.Context, pollID string) (ports.PurgeResult, error) {
	pollID = strings.TrimSpace(pollID)
	var result ports.PurgeResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		history := tx.Where("poll_id = ?", pollID).Delete(&historyModel{})
		if history.Error != nil {
			return history.Error
		}
		result.HistoryDeleted = int(history.RowsAffected)

		votes := tx.Where("poll_id = ?", pollID).Delete(&voteModel{})
		if votes.Error != nil {
			return votes.Error
		}
		result.VotesDeleted = int(votes.RowsAffected)

		poll := tx.Where("poll_id = ?", pollID).Delete(&pollModel{})
		if poll.Error != nil {
			return poll.Error
		}
		result.PollDeleted = poll.RowsAffected > 0
		return nil
	})
	if err != nil {
		return ports.PurgeResult{}, r.logError("reconciler_repo_purge_poll_failed", err,
			"poll_id", pollID,
		)
	}
	return result, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("reconciler_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("reconciler_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := r.db.WithContext(ctx).
		Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("reconciler_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("reconciler_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("reconciler_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "group-scheduling/poll-reconciler",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("reconciler repository operation failed", fields...)
	return err
}

type pollModel struct {
	PollID    string    `gorm:"column:poll_id;primaryKey"`
	ChatID    string    `gorm:"column:chat_id"`
	Question  string    `gorm:"column:question"`
	Options   []byte    `gorm:"column:options"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (pollModel) TableName() string {
	return "reconciler_polls"
}

func pollModelFromEntity(item entities.Poll) pollModel {
	return pollModel{
		PollID:    strings.TrimSpace(item.PollID),
		ChatID:    strings.TrimSpace(item.ChatID),
		Question:  strings.TrimSpace(item.Question),
		Options:   encodeLabels(item.Options),
		CreatedAt: item.CreatedAt.UTC(),
	}
}

func (m pollModel) toEntity() entities.Poll {
	return entities.Poll{
		PollID:    m.PollID,
		ChatID:    m.ChatID,
		Question:  m.Question,
		Options:   decodeLabels(m.Options),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type voteModel struct {
	PollID    string    `gorm:"column:poll_id;primaryKey"`
	VoterID   string    `gorm:"column:voter_id;primaryKey"`
	VoterName string    `gorm:"column:voter_name"`
	Selected  []byte    `gorm:"column:selected"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (voteModel) TableName() string {
	return "reconciler_votes"
}

func voteModelFromEntity(item entities.Vote) voteModel {
	return voteModel{
		PollID:    strings.TrimSpace(item.PollID),
		VoterID:   strings.TrimSpace(item.VoterID),
		VoterName: strings.TrimSpace(item.VoterName),
		Selected:  encodeLabels(item.Selected),
		UpdatedAt: item.UpdatedAt.UTC(),
	}
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		PollID:    m.PollID,
		VoterID:   m.VoterID,
		VoterName: m.VoterName,
		Selected:  decodeLabels(m.Selected),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type historyModel struct {
	EntryID          string    `gorm:"column:entry_id;primaryKey"`
	PollID           string    `gorm:"column:poll_id"`
	VoterID          string    `gorm:"column:voter_id"`
	VoterName        string    `gorm:"column:voter_name"`
	RawSelected      []byte    `gorm:"column:raw_selected"`
	ResolvedSelected []byte    `gorm:"column:resolved_selected"`
	RecordedAt       time.Time `gorm:"column:recorded_at"`
}

func (historyModel) TableName() string {
	return "reconciler_vote_history"
}

func historyModelFromEntity(item entities.VoteHistoryEntry) historyModel {
	return historyModel{
		EntryID:          strings.TrimSpace(item.EntryID),
		PollID:           strings.TrimSpace(item.PollID),
		VoterID:          strings.TrimSpace(item.VoterID),
		VoterName:        strings.TrimSpace(item.VoterName),
		RawSelected:      encodeLabels(item.RawSelected),
		ResolvedSelected: encodeLabels(item.ResolvedSelected),
		RecordedAt:       item.RecordedAt.UTC(),
	}
}

func (m historyModel) toEntity() entities.VoteHistoryEntry {
	return entities.VoteHistoryEntry{
		EntryID:          m.EntryID,
		PollID:           m.PollID,
		VoterID:          m.VoterID,
		VoterName:        m.VoterName,
		RawSelected:      decodeLabels(m.RawSelected),
		ResolvedSelected: decodeLabels(m.ResolvedSelected),
		RecordedAt:       m.RecordedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "reconciler_outbox"
}

func encodeLabels(labels []string) []byte {
	if labels == nil {
		labels = []string{}
	}
	payload, _ := json.Marshal(labels)
	return payload
}

func decodeLabels(payload []byte) []string {
	labels := []string{}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &labels)
	}
	return labels
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.PollRepository = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
