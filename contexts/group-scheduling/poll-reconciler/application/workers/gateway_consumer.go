package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	application "rollcall/contexts/group-scheduling/poll-reconciler/application"
	"rollcall/contexts/group-scheduling/poll-reconciler/application/commands"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

const (
	gatewayNotificationsTopic = "gateway.notifications"
	defaultGatewayCG          = "poll-reconciler-gateway-cg"
)

// GatewayConsumer feeds bus-delivered gateway notifications through the same
// ingest pipeline the webhook uses. Deliveries are not deduplicated on
// purpose: each one appends its own history entry, and the replace-based
// current-vote table makes redelivery converge anyway.
type GatewayConsumer struct {
	Subscriber    ports.EventSubscriber
	Ingest        commands.IngestUseCase
	ConsumerGroup string
	Disabled      bool
	Logger        *slog.Logger
}

// Start subscribes to the gateway notification topic. The consumer group can
// be overridden for environment-specific deployment.
func (c GatewayConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("gateway consumer disabled by feature flag",
			"event", "reconciler_gateway_consumer_disabled",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultGatewayCG
	}
	if err := c.Subscriber.Subscribe(ctx, gatewayNotificationsTopic, group, c.handleNotification); err != nil {
		logger.Error("gateway consumer subscribe failed",
			"event", "reconciler_gateway_consumer_subscribe_failed",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"topic", gatewayNotificationsTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("gateway consumer subscription active",
		"event", "reconciler_gateway_consumer_started",
		"module", "group-scheduling/poll-reconciler",
		"layer", "worker",
		"topic", gatewayNotificationsTopic,
		"consumer_group", group,
	)
	return nil
}

func (c GatewayConsumer) handleNotification(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var raw commands.RawNotification
	if err := json.Unmarshal(event.Data, &raw); err != nil {
		// Undecodable payloads can never succeed on redelivery, so they are
		// acknowledged and dropped rather than left to poison the topic.
		logger.Warn("gateway notification payload undecodable",
			"event", "reconciler_gateway_payload_undecodable",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return nil
	}

	result, err := c.Ingest.IngestNotification(ctx, raw)
	if err != nil {
		logger.Error("gateway notification processing failed",
			"event", "reconciler_gateway_processing_failed",
			"module", "group-scheduling/poll-reconciler",
			"layer", "worker",
			"event_id", event.EventID,
			"poll_id", raw.PollID,
			"error", err.Error(),
		)
		return err
	}
	logger.Debug("gateway notification handled",
		"event", "reconciler_gateway_notification_handled",
		"module", "group-scheduling/poll-reconciler",
		"layer", "worker",
		"event_id", event.EventID,
		"outcome", string(result.Outcome),
		"poll_id", result.PollID,
	)
	return nil
}
