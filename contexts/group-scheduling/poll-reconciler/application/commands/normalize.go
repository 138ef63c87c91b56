package commands

import (
	"strings"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	domainerrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/services"
)

// Notification kinds recognized at the gateway boundary. Anything else is
// acknowledged and ignored.
const (
	NotificationPollUpdate  = "poll_update"
	NotificationPollCreated = "poll_created"
)

// RawNotification is the gateway record as the transport adapters hand it
// over: untrusted, unstripped, with the poll's full option rosters attached.
// A poll-update notification reports every option with the voters currently
// on it, so one record carries both this voter's picks and the option list
// needed for a first sighting.
type RawNotification struct {
	Kind       string      `json:"kind"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	PollID     string      `json:"poll_id"`
	Question   string      `json:"question"`
	Options    []RawOption `json:"options"`
	Timestamp  int64       `json:"timestamp"`
}

// RawOption is one poll option with the gateway identities currently voting
// for it.
type RawOption struct {
	Label  string   `json:"label"`
	Voters []string `json:"voters"`
}

// gateway identity suffixes stripped when deriving the stable voter id.
var senderHostSuffixes = []string{"@c.us", "@s.whatsapp.net", "@g.us"}

// NormalizeVote validates a poll-update notification and converts it into a
// canonical VoteEvent. Pure: no I/O, no clock reads. Returns
// ErrMalformedEvent when the poll id or sender is missing or the timestamp
// does not parse to a positive instant; rejection is terminal for the event.
func NormalizeVote(raw RawNotification) (entities.VoteEvent, error) {
	pollID := strings.TrimSpace(raw.PollID)
	sender := strings.TrimSpace(raw.SenderID)
	if pollID == "" || sender == "" {
		return entities.VoteEvent{}, domainerrors.ErrMalformedEvent
	}
	eventTime, err := parseEventTime(raw.Timestamp)
	if err != nil {
		return entities.VoteEvent{}, err
	}

	// Roster entries and the sender can arrive with different gateway hosts
	// for the same identity, so both sides are compared host-stripped.
	voterID := StripSenderHost(sender)
	options := make([]string, 0, len(raw.Options))
	selected := make([]string, 0, len(raw.Options))
	for _, option := range raw.Options {
		label := strings.TrimSpace(option.Label)
		if label == "" {
			continue
		}
		options = append(options, label)
		for _, voter := range option.Voters {
			if StripSenderHost(voter) == voterID {
				selected = append(selected, label)
				break
			}
		}
	}

	return entities.VoteEvent{
		PollID:    pollID,
		ChatID:    strings.TrimSpace(raw.ChatID),
		VoterID:   voterID,
		VoterName: strings.TrimSpace(raw.SenderName),
		Question:  strings.TrimSpace(raw.Question),
		Options:   services.NormalizeSelection(options),
		Selected:  selected,
		EventTime: eventTime,
	}, nil
}

// NormalizeAnnouncement validates a poll-created notification. The
// announcement carries no votes; it only seeds the registry, through the same
// create-if-absent path a first vote would take.
func NormalizeAnnouncement(raw RawNotification) (entities.Poll, error) {
	pollID := strings.TrimSpace(raw.PollID)
	if pollID == "" {
		return entities.Poll{}, domainerrors.ErrMalformedEvent
	}
	eventTime, err := parseEventTime(raw.Timestamp)
	if err != nil {
		return entities.Poll{}, err
	}

	options := make([]string, 0, len(raw.Options))
	for _, option := range raw.Options {
		options = append(options, option.Label)
	}

	return entities.Poll{
		PollID:    pollID,
		ChatID:    strings.TrimSpace(raw.ChatID),
		Question:  strings.TrimSpace(raw.Question),
		Options:   services.NormalizeSelection(options),
		CreatedAt: eventTime,
	}, nil
}

// StripSenderHost derives the stable voter id from a gateway JID.
func StripSenderHost(sender string) string {
	id := strings.TrimSpace(sender)
	for _, suffix := range senderHostSuffixes {
		id = strings.TrimSuffix(id, suffix)
	}
	return id
}

func parseEventTime(unixSeconds int64) (time.Time, error) {
	if unixSeconds <= 0 {
		return time.Time{}, domainerrors.ErrMalformedEvent
	}
	return time.Unix(unixSeconds, 0).UTC(), nil
}
