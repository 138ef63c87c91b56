package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/adapters/memory"
	"rollcall/contexts/group-scheduling/poll-reconciler/application/commands"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type stubSubscriber struct {
	handlers map[string]func(context.Context, ports.EventEnvelope) error
	groups   map[string]string
}

func (s *stubSubscriber) Subscribe(
	_ context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if s.handlers == nil {
		s.handlers = map[string]func(context.Context, ports.EventEnvelope) error{}
		s.groups = map[string]string{}
	}
	s.handlers[topic] = handler
	s.groups[topic] = consumerGroup
	return nil
}

type stubPublisher struct {
	published []ports.EventEnvelope
	topics    []string
	failAfter int
}

func (p *stubPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failAfter > 0 && len(p.published) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, event)
	p.topics = append(p.topics, topic)
	return nil
}

func TestRetentionSweeperPurgesExpiredPolls(t *testing.T) {
	now := time.Date(2026, 6, 10, 3, 0, 0, 0, time.UTC)
	store := memory.NewStore([]entities.Poll{
		{PollID: "poll-old", ChatID: "group-1@g.us", CreatedAt: now.Add(-8 * 24 * time.Hour)},
		{PollID: "poll-fresh", ChatID: "group-1@g.us", CreatedAt: now.Add(-time.Hour)},
	})
	store.SetVote(entities.Vote{PollID: "poll-old", VoterID: "voter-a", Selected: []string{"Sat 6/6"}, UpdatedAt: now.Add(-8 * 24 * time.Hour)})
	if err := store.AppendHistory(context.Background(), entities.VoteHistoryEntry{
		EntryID:    "entry-1",
		PollID:     "poll-old",
		VoterID:    "voter-a",
		RecordedAt: now.Add(-8 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed history failed: %v", err)
	}

	sweeper := RetentionSweeper{
		Polls:           store,
		Outbox:          store,
		IDGen:           store,
		Clock:           fixedClock{now: now},
		RetentionWindow: 7 * 24 * time.Hour,
		BatchSize:       10,
	}
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("retention sweep failed: %v", err)
	}

	if _, err := store.GetPoll(context.Background(), "poll-old"); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected expired poll purged, got %v", err)
	}
	if _, err := store.GetPoll(context.Background(), "poll-fresh"); err != nil {
		t.Fatalf("expected fresh poll kept: %v", err)
	}
	if _, err := store.GetVote(context.Background(), "poll-old", "voter-a"); !errors.Is(err, domainerrors.ErrVoteNotFound) {
		t.Fatalf("expected purged poll votes gone, got %v", err)
	}
	history, err := store.ListHistory(context.Background(), "poll-old", "voter-a")
	if err != nil {
		t.Fatalf("list history failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected purged poll history gone, got %d entries", len(history))
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != "poll.swept" {
		t.Fatalf("expected one poll.swept event, got %+v", pending)
	}
	var envelope struct {
		Data struct {
			PollID         string `json:"poll_id"`
			VotesDeleted   int    `json:"votes_deleted"`
			HistoryDeleted int    `json:"history_deleted"`
		} `json:"data"`
	}
	if err := json.Unmarshal(pending[0].Payload, &envelope); err != nil {
		t.Fatalf("decode sweep envelope failed: %v", err)
	}
	if envelope.Data.PollID != "poll-old" || envelope.Data.VotesDeleted != 1 || envelope.Data.HistoryDeleted != 1 {
		t.Fatalf("unexpected sweep payload: %+v", envelope.Data)
	}

	// A rerun finds nothing new to purge and emits nothing new.
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("repeat sweep failed: %v", err)
	}
	pending, err = store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected rerun to be a no-op, got %d outbox rows", len(pending))
	}
}

func TestRetentionSweeperHonorsBatchSize(t *testing.T) {
	now := time.Date(2026, 6, 10, 3, 0, 0, 0, time.UTC)
	store := memory.NewStore([]entities.Poll{
		{PollID: "poll-1", CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{PollID: "poll-2", CreatedAt: now.Add(-9 * 24 * time.Hour)},
		{PollID: "poll-3", CreatedAt: now.Add(-8 * 24 * time.Hour)},
	})
	sweeper := RetentionSweeper{
		Polls:           store,
		Clock:           fixedClock{now: now},
		RetentionWindow: 7 * 24 * time.Hour,
		BatchSize:       2,
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if _, err := store.GetPoll(context.Background(), "poll-1"); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected oldest poll purged first, got %v", err)
	}
	if _, err := store.GetPoll(context.Background(), "poll-3"); err != nil {
		t.Fatalf("expected batch limit to defer the newest expired poll: %v", err)
	}

	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if _, err := store.GetPoll(context.Background(), "poll-3"); !errors.Is(err, domainerrors.ErrPollNotFound) {
		t.Fatalf("expected remaining expired poll purged on next cycle, got %v", err)
	}
}

func TestOutboxRelayPublishesPendingRows(t *testing.T) {
	now := time.Date(2026, 6, 10, 4, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	for i, eventType := range []string{"vote.recorded", "poll.swept"} {
		envelope, err := newReconcilerEnvelope(
			"event-"+eventType,
			eventType,
			"poll-1",
			now.Add(time.Duration(i)*time.Minute),
			map[string]any{"poll_id": "poll-1"},
		)
		if err != nil {
			t.Fatalf("build envelope failed: %v", err)
		}
		if err := store.AppendOutbox(context.Background(), envelope); err != nil {
			t.Fatalf("seed outbox failed: %v", err)
		}
	}

	publisher := &stubPublisher{}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: now},
		BatchSize: 10,
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("relay cycle failed: %v", err)
	}

	if len(publisher.published) != 2 {
		t.Fatalf("expected two events published, got %d", len(publisher.published))
	}
	if publisher.topics[0] != "vote.recorded" || publisher.topics[1] != "poll.swept" {
		t.Fatalf("expected topics derived from event types, got %v", publisher.topics)
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected all rows marked published, got %d pending", len(pending))
	}

	// Nothing pending means a quiet cycle, not an error.
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("empty relay cycle failed: %v", err)
	}
	if len(publisher.published) != 2 {
		t.Fatalf("expected no republish on empty cycle, got %d", len(publisher.published))
	}
}

func TestOutboxRelayStopsOnPublishFailure(t *testing.T) {
	now := time.Date(2026, 6, 10, 4, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	for i := 0; i < 3; i++ {
		envelope, err := newReconcilerEnvelope(
			fmt.Sprintf("event-%d", i),
			"vote.recorded",
			"poll-1",
			now.Add(time.Duration(i)*time.Minute),
			map[string]any{"poll_id": "poll-1"},
		)
		if err != nil {
			t.Fatalf("build envelope failed: %v", err)
		}
		if err := store.AppendOutbox(context.Background(), envelope); err != nil {
			t.Fatalf("seed outbox failed: %v", err)
		}
	}

	publisher := &stubPublisher{failAfter: 1}
	relay := OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: now},
		BatchSize: 10,
	}
	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected relay to surface publish failure")
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected unpublished rows to stay pending, got %d", len(pending))
	}
}

func TestGatewayConsumerFeedsIngestPipeline(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	sub := &stubSubscriber{}
	consumer := GatewayConsumer{
		Subscriber: sub,
		Ingest: commands.IngestUseCase{
			Polls:           store,
			Outbox:          store,
			IDGen:           store,
			RetentionWindow: 7 * 24 * time.Hour,
			WriteBackoff:    time.Millisecond,
		},
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start gateway consumer failed: %v", err)
	}
	handler := sub.handlers["gateway.notifications"]
	if handler == nil {
		t.Fatalf("expected gateway.notifications handler registration")
	}
	if sub.groups["gateway.notifications"] != "poll-reconciler-gateway-cg" {
		t.Fatalf("expected default consumer group, got %q", sub.groups["gateway.notifications"])
	}

	payload, _ := json.Marshal(map[string]any{
		"kind":      commands.NotificationPollUpdate,
		"chat_id":   "group-1@g.us",
		"sender_id": "13106001023@c.us",
		"poll_id":   "poll-1",
		"question":  "Who's in this weekend?",
		"options": []map[string]any{
			{"label": "Sat 6/6", "voters": []string{"13106001023@c.us"}},
		},
		"timestamp": eventTime.Unix(),
	})
	if err := handler(context.Background(), ports.EventEnvelope{
		EventID:   "event-1",
		EventType: "gateway.notification",
		Data:      payload,
	}); err != nil {
		t.Fatalf("gateway notification handler failed: %v", err)
	}

	vote, err := store.GetVote(context.Background(), "poll-1", "13106001023")
	if err != nil {
		t.Fatalf("expected vote reconciled from bus delivery: %v", err)
	}
	if len(vote.Selected) != 1 || vote.Selected[0] != "Sat 6/6" {
		t.Fatalf("unexpected reconciled selection: %v", vote.Selected)
	}
}

func TestGatewayConsumerAcksUndecodablePayload(t *testing.T) {
	store := memory.NewStore(nil)
	sub := &stubSubscriber{}
	consumer := GatewayConsumer{
		Subscriber: sub,
		Ingest:     commands.IngestUseCase{Polls: store, IDGen: store},
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start gateway consumer failed: %v", err)
	}

	handler := sub.handlers["gateway.notifications"]
	if err := handler(context.Background(), ports.EventEnvelope{
		EventID: "event-1",
		Data:    []byte("not json"),
	}); err != nil {
		t.Fatalf("undecodable payload must ack, got %v", err)
	}
}

type failingPolls struct {
	ports.PollRepository
}

func (failingPolls) CreatePollIfAbsent(context.Context, entities.Poll) (entities.Poll, bool, error) {
	return entities.Poll{}, false, errors.New("store offline")
}

func TestGatewayConsumerNacksOnStoreFailure(t *testing.T) {
	eventTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	sub := &stubSubscriber{}
	consumer := GatewayConsumer{
		Subscriber: sub,
		Ingest: commands.IngestUseCase{
			Polls:        failingPolls{PollRepository: store},
			IDGen:        store,
			WriteBackoff: time.Millisecond,
		},
	}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start gateway consumer failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"kind":      commands.NotificationPollUpdate,
		"sender_id": "13106001023@c.us",
		"poll_id":   "poll-1",
		"timestamp": eventTime.Unix(),
	})
	handler := sub.handlers["gateway.notifications"]
	if err := handler(context.Background(), ports.EventEnvelope{EventID: "event-1", Data: payload}); err == nil {
		t.Fatalf("expected store failure to propagate for redelivery")
	}
}

func TestGatewayConsumerDisabled(t *testing.T) {
	sub := &stubSubscriber{}
	consumer := GatewayConsumer{Subscriber: sub, Disabled: true}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("disabled consumer start failed: %v", err)
	}
	if len(sub.handlers) != 0 {
		t.Fatalf("expected no subscription when disabled")
	}
}
