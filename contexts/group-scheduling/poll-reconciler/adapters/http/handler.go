package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/application/commands"
	"rollcall/contexts/group-scheduling/poll-reconciler/application/queries"
	httptransport "rollcall/contexts/group-scheduling/poll-reconciler/transport/http"
)

type Handler struct {
	Ingest  commands.IngestUseCase
	Results queries.PollResultsUseCase
	History queries.VoterHistoryUseCase
	Logger  *slog.Logger
}

const (
	messageTypePollUpdate = "pollUpdateMessage"
	messageTypePollCreate = "pollMessage"
)

// WebhookHandler maps one GREEN-API notification onto the ingest pipeline.
// Anything the pipeline classifies as rejected or ignored still acks with a
// descriptive status; only store failures bubble as errors so the gateway
// redelivers.
func (h Handler) WebhookHandler(ctx context.Context, req httptransport.WebhookRequest) (httptransport.WebhookAck, error) {
	raw, ack := mapNotification(req)
	if raw.Kind == "" {
		return ack, nil
	}

	result, err := h.Ingest.IngestNotification(ctx, raw)
	if err != nil {
		return httptransport.WebhookAck{}, err
	}

	switch result.Outcome {
	case commands.OutcomeRecorded:
		return httptransport.WebhookAck{
			Status:   "ok",
			PollID:   result.PollID,
			Voter:    result.VoterID,
			Selected: result.Resolved,
		}, nil
	case commands.OutcomePollRegistered:
		return httptransport.WebhookAck{
			Status:  "ok",
			PollID:  result.PollID,
			Options: optionLabels(raw.Options),
		}, nil
	case commands.OutcomeRejected:
		message := "Missing poll_id"
		if raw.Kind == commands.NotificationPollUpdate {
			message = "Missing poll_id or voter_id"
		}
		return httptransport.WebhookAck{Status: "error", Message: message}, nil
	default:
		return httptransport.WebhookAck{Status: "ignored", Type: req.MessageData.TypeMessage}, nil
	}
}

// mapNotification flattens the webhook envelope into the pipeline's input. A
// zero Kind means the message type is not poll traffic and the prepared ack
// should be returned as-is.
func mapNotification(req httptransport.WebhookRequest) (commands.RawNotification, httptransport.WebhookAck) {
	switch req.MessageData.TypeMessage {
	case messageTypePollUpdate:
		poll := req.MessageData.PollMessageData
		if poll == nil {
			poll = req.MessageData.PollUpdateMessage
		}
		if poll == nil {
			poll = &httptransport.WebhookPoll{}
		}
		question := poll.Name
		if question == "" {
			question = poll.PollName
		}
		return commands.RawNotification{
			Kind:       commands.NotificationPollUpdate,
			ChatID:     req.SenderData.ChatID,
			SenderID:   req.SenderData.Sender,
			SenderName: req.SenderData.SenderName,
			PollID:     poll.StanzaID,
			Question:   question,
			Options:    mapVoteOptions(poll.Votes),
			Timestamp:  req.Timestamp,
		}, httptransport.WebhookAck{}
	case messageTypePollCreate:
		poll := req.MessageData.PollMessageData
		if poll == nil {
			poll = &httptransport.WebhookPoll{}
		}
		pollID := req.IDMessage
		if pollID == "" {
			pollID = poll.StanzaID
		}
		return commands.RawNotification{
			Kind:       commands.NotificationPollCreated,
			ChatID:     req.SenderData.ChatID,
			SenderID:   req.SenderData.Sender,
			SenderName: req.SenderData.SenderName,
			PollID:     pollID,
			Question:   poll.Name,
			Options:    mapVoteOptions(poll.Options),
			Timestamp:  req.Timestamp,
		}, httptransport.WebhookAck{}
	default:
		return commands.RawNotification{}, httptransport.WebhookAck{
			Status: "ignored",
			Type:   req.MessageData.TypeMessage,
		}
	}
}

func mapVoteOptions(options []httptransport.WebhookPollOption) []commands.RawOption {
	mapped := make([]commands.RawOption, 0, len(options))
	for _, option := range options {
		voters := option.OptionVoters
		if len(voters) == 0 {
			voters = option.Voters
		}
		mapped = append(mapped, commands.RawOption{
			Label:  option.OptionName,
			Voters: voters,
		})
	}
	return mapped
}

func optionLabels(options []commands.RawOption) []string {
	labels := make([]string, 0, len(options))
	for _, option := range options {
		labels = append(labels, option.Label)
	}
	return labels
}

func (h Handler) PollResultsHandler(ctx context.Context, pollID string) (httptransport.PollResultsResponse, error) {
	results, err := h.Results.Results(ctx, pollID)
	if err != nil {
		return httptransport.PollResultsResponse{}, err
	}
	tallies := make([]httptransport.OptionTallyDTO, 0, len(results.Tallies))
	for _, item := range results.Tallies {
		tallies = append(tallies, httptransport.OptionTallyDTO{
			Label:  item.Label,
			Count:  item.Count,
			Voters: item.Voters,
		})
	}
	return httptransport.PollResultsResponse{
		PollID:      results.Poll.PollID,
		ChatID:      results.Poll.ChatID,
		Question:    results.Poll.Question,
		Options:     results.Poll.Options,
		CreatedAt:   results.Poll.CreatedAt.UTC().Format(time.RFC3339),
		TotalVoters: results.TotalVoters,
		Tallies:     tallies,
	}, nil
}

func (h Handler) VoterHistoryHandler(ctx context.Context, pollID string, voterID string) (httptransport.VoterHistoryResponse, error) {
	history, err := h.History.History(ctx, pollID, voterID)
	if err != nil {
		return httptransport.VoterHistoryResponse{}, err
	}
	entries := make([]httptransport.HistoryEntryDTO, 0, len(history.Entries))
	for _, entry := range history.Entries {
		entries = append(entries, httptransport.HistoryEntryDTO{
			EntryID:          entry.EntryID,
			RawSelected:      entry.RawSelected,
			ResolvedSelected: entry.ResolvedSelected,
			RecordedAt:       entry.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	resp := httptransport.VoterHistoryResponse{
		PollID:  history.PollID,
		VoterID: history.VoterID,
		Entries: entries,
	}
	if history.HasCurrent {
		resp.Current = &httptransport.CurrentVoteDTO{
			VoterID:   history.Current.VoterID,
			VoterName: history.Current.VoterName,
			Selected:  history.Current.Selected,
			UpdatedAt: history.Current.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp, nil
}
