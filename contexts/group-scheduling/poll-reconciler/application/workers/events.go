package workers

import (
	"encoding/json"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

// newReconcilerEnvelope builds canonical envelopes for worker-produced
// events. Sweep events are partitioned by poll like the command side.
func newReconcilerEnvelope(
	eventID string,
	eventType string,
	pollID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "poll-reconciler",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "poll_id",
		PartitionKey:     pollID,
		Data:             payload,
	}, nil
}
