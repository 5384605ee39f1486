package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RamonAndres1967/tutor-backend/internal/model/chat"
	"github.com/RamonAndres1967/tutor-backend/internal/service/tutor"
)

// TutorService abstracts the turn orchestrator for testing.
type TutorService interface {
	HandleChatTurn(ctx context.Context, identity, utterance string, history []chat.Turn) (tutor.TurnResult, error)
	RecordPracticeTime(ctx context.Context, identity string, deltaSeconds float64) (float64, error)
}

// Handler serves the chat and practice-time endpoints.
type Handler struct {
	log   *zap.Logger
	tutor TutorService
}

// New creates the chat handler.
func New(log *zap.Logger, tutorSvc TutorService) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{log: log, tutor: tutorSvc}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/practice-time", h.handlePracticeTime)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string      `json:"userId"`
		Message string      `json:"message"`
		History []chat.Turn `json:"history"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	identity := h.identity(payload.UserID, r)

	result, err := h.tutor.HandleChatTurn(r.Context(), identity, payload.Message, payload.History)
	if err != nil {
		h.log.Error("chat turn failed", zap.String("identity", identity), zap.Error(err))
		switch {
		case errors.Is(err, tutor.ErrModelUnavailable):
			respondError(w, http.StatusServiceUnavailable, "tutor unavailable")
		case errors.Is(err, tutor.ErrIdentityRequired):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "chat turn failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePracticeTime(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID  string  `json:"userId"`
		Seconds float64 `json:"seconds"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := h.identity(payload.UserID, r)

	total, err := h.tutor.RecordPracticeTime(r.Context(), identity, payload.Seconds)
	if err != nil {
		switch {
		case errors.Is(err, tutor.ErrNegativeDelta), errors.Is(err, tutor.ErrIdentityRequired):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("practice time failed", zap.String("identity", identity), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "recording practice time failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "total": total})
}

// identity resolves the ledger key: an explicit user id wins, the client
// IP is the anonymous fallback. The two are never mixed for one learner
// because the frontend either always sends the id or never does.
func (h *Handler) identity(userID string, r *http.Request) string {
	if userID != "" {
		return userID
	}
	// middleware.RealIP has already folded X-Forwarded-For into RemoteAddr.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
