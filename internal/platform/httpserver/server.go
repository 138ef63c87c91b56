package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	pollreconciler "rollcall/contexts/group-scheduling/poll-reconciler"
	reconcilererrors "rollcall/contexts/group-scheduling/poll-reconciler/domain/errors"
	reconcilerhttp "rollcall/contexts/group-scheduling/poll-reconciler/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "rollcall/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	reconciler pollreconciler.Module
}

func New(reconciler pollreconciler.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		reconciler: reconciler,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /polls/{poll_id}/results", s.handlePollResults)
	s.mux.HandleFunc("GET /polls/{poll_id}/voters/{voter_id}/history", s.handleVoterHistory)

	s.mux.HandleFunc("POST /v1/reconciler/webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /v1/reconciler/polls/{poll_id}/results", s.handlePollResults)
	s.mux.HandleFunc("GET /v1/reconciler/polls/{poll_id}/voters/{voter_id}/history", s.handleVoterHistory)
}

// handleWebhook receives GREEN-API notifications. Every decodable payload is
// answered 200 regardless of content so the gateway stops redelivering;
// store failures answer 500, which is the one case a redelivery can fix.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req reconcilerhttp.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReconcilerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	ack, err := s.reconciler.Handler.WebhookHandler(r.Context(), req)
	if err != nil {
		writeReconcilerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("poll_id")
	resp, err := s.reconciler.Handler.PollResultsHandler(r.Context(), pollID)
	if err != nil {
		writeReconcilerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVoterHistory(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("poll_id")
	voterID := r.PathValue("voter_id")
	resp, err := s.reconciler.Handler.VoterHistoryHandler(r.Context(), pollID, voterID)
	if err != nil {
		writeReconcilerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeReconcilerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reconcilererrors.ErrPollNotFound):
		writeReconcilerError(w, http.StatusNotFound, "poll_not_found", err.Error())
	case errors.Is(err, reconcilererrors.ErrVoteNotFound):
		writeReconcilerError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, reconcilererrors.ErrMalformedEvent):
		writeReconcilerError(w, http.StatusBadRequest, "malformed_event", err.Error())
	case errors.Is(err, reconcilererrors.ErrConflict):
		writeReconcilerError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeReconcilerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeReconcilerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, reconcilerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
