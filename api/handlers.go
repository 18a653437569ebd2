package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/health"
	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/orchestrator"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/synthesis"
)

type handlers struct {
	orch      *orchestrator.Orchestrator
	conv      *conversation.Manager
	repo      store.Repository
	health    *health.Monitor
	providers func() []ProviderStatus
	logger    logging.Logger
}

// ErrorResponse is the JSON body of every non-2xx response, grounded on the
// same {error, code} shape the rest of the framework's HTTP handlers use.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// queryRequestBody is the inbound JSON body for POST /query.
type queryRequestBody struct {
	Query         string `json:"query"`
	Project       string `json:"project"`
	Mode          string `json:"mode"`
	SynthesisMode string `json:"synthesis_mode"`
	RequestID     string `json:"request_id"`
}

func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}
	if body.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", "MISSING_QUERY")
		return
	}

	resp, err := h.orch.Handle(r.Context(), orchestrator.Request{
		Query:         body.Query,
		Project:       body.Project,
		Mode:          orchestrator.Mode(body.Mode),
		SynthesisMode: synthesis.Mode(body.SynthesisMode),
		RequestID:     body.RequestID,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "query handling failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "query handling failed", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type continueRequestBody struct {
	ConversationID string            `json:"conversation_id"`
	Answers        map[string]string `json:"answers"`
}

func (h *handlers) handleContinue(w http.ResponseWriter, r *http.Request) {
	var body continueRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}
	if body.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required", "MISSING_CONVERSATION_ID")
		return
	}

	resp, err := h.orch.Continue(r.Context(), orchestrator.ContinueRequest{
		ConversationID: body.ConversationID,
		Answers:        body.Answers,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrConversationNotFound()) {
			writeError(w, http.StatusNotFound, "conversation not found", "NOT_FOUND")
			return
		}
		h.logger.ErrorContext(r.Context(), "continue handling failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "continue handling failed", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type conversationSnapshot struct {
	ConversationID string                 `json:"conversation_id"`
	Round          int                    `json:"round"`
	MaxRounds      int                    `json:"max_rounds"`
	Phase          string                 `json:"phase"`
	Query          string                 `json:"query"`
	Context        map[string]interface{} `json:"context"`
}

func (h *handlers) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.conv.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found", "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, conversationSnapshot{
		ConversationID: s.ID, Round: s.Round, MaxRounds: s.MaxRounds,
		Phase: string(s.Phase), Query: s.Query, Context: s.Context,
	})
}

func (h *handlers) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.conv.End(r.Context(), id); !ok {
		writeError(w, http.StatusNotFound, "conversation not found", "NOT_FOUND")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequestBody struct {
	RequestID string `json:"request_id"`
	Feedback  string `json:"feedback"`
	Comment   string `json:"comment"`
}

func (h *handlers) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "INVALID_REQUEST")
		return
	}
	if body.RequestID == "" || body.Feedback == "" {
		writeError(w, http.StatusBadRequest, "request_id and feedback are required", "MISSING_FIELDS")
		return
	}

	err := h.repo.AttachFeedback(r.Context(), store.Feedback{
		QueryID: body.RequestID, Rating: store.FeedbackRating(body.Feedback),
		Comment: body.Comment, CreatedAt: time.Now(),
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusCreated)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "query not found", "NOT_FOUND")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "feedback already submitted for this query", "CONFLICT")
	default:
		h.logger.ErrorContext(r.Context(), "attach feedback failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to record feedback", "INTERNAL")
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Services []health.Snapshot `json:"services"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: string(health.StatusUnknown)})
		return
	}

	overall := h.health.OverallStatus()
	status := http.StatusOK
	if overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: string(overall), Services: h.health.AllSnapshots()})
}

func (h *handlers) handleProviders(w http.ResponseWriter, r *http.Request) {
	if h.providers == nil {
		writeJSON(w, http.StatusOK, []ProviderStatus{})
		return
	}
	writeJSON(w, http.StatusOK, h.providers())
}
