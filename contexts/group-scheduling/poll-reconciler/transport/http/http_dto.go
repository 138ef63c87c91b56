package httptransport

// Inbound webhook DTOs mirror the GREEN-API notification payload, camelCase
// field names included. The gateway sends poll updates under pollMessageData
// on current firmware and pollUpdateMessage on older ones, and voter lists
// under optionVoters with voters as the legacy key, so both spellings decode.

type WebhookRequest struct {
	TypeWebhook string         `json:"typeWebhook"`
	Timestamp   int64          `json:"timestamp"`
	IDMessage   string         `json:"idMessage"`
	SenderData  WebhookSender  `json:"senderData"`
	MessageData WebhookMessage `json:"messageData"`
}

type WebhookSender struct {
	ChatID     string `json:"chatId"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
}

type WebhookMessage struct {
	TypeMessage       string       `json:"typeMessage"`
	PollMessageData   *WebhookPoll `json:"pollMessageData"`
	PollUpdateMessage *WebhookPoll `json:"pollUpdateMessage"`
}

type WebhookPoll struct {
	StanzaID        string              `json:"stanzaId"`
	Name            string              `json:"name"`
	PollName        string              `json:"pollName"`
	Votes           []WebhookPollOption `json:"votes"`
	Options         []WebhookPollOption `json:"options"`
	MultipleAnswers bool                `json:"multipleAnswers"`
}

type WebhookPollOption struct {
	OptionName   string   `json:"optionName"`
	OptionVoters []string `json:"optionVoters"`
	Voters       []string `json:"voters"`
}

// WebhookAck is always returned with HTTP 200 for payloads the gateway
// should not redeliver, status distinguishing ok, ignored, and error.
type WebhookAck struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Type     string   `json:"type,omitempty"`
	PollID   string   `json:"poll_id,omitempty"`
	Voter    string   `json:"voter,omitempty"`
	Selected []string `json:"selected,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type OptionTallyDTO struct {
	Label  string   `json:"label"`
	Count  int      `json:"count"`
	Voters []string `json:"voters"`
}

type PollResultsResponse struct {
	PollID      string           `json:"poll_id"`
	ChatID      string           `json:"chat_id"`
	Question    string           `json:"question"`
	Options     []string         `json:"options"`
	CreatedAt   string           `json:"created_at"`
	TotalVoters int              `json:"total_voters"`
	Tallies     []OptionTallyDTO `json:"tallies"`
}

type CurrentVoteDTO struct {
	VoterID   string   `json:"voter_id"`
	VoterName string   `json:"voter_name"`
	Selected  []string `json:"selected"`
	UpdatedAt string   `json:"updated_at"`
}

type HistoryEntryDTO struct {
	EntryID          string   `json:"entry_id"`
	RawSelected      []string `json:"raw_selected"`
	ResolvedSelected []string `json:"resolved_selected"`
	RecordedAt       string   `json:"recorded_at"`
}

type VoterHistoryResponse struct {
	PollID  string            `json:"poll_id"`
	VoterID string            `json:"voter_id"`
	Current *CurrentVoteDTO   `json:"current,omitempty"`
	Entries []HistoryEntryDTO `json:"entries"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
