// Package handler provides the HTTP handlers of the reference conversation store.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/quorra/internal/middleware"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/service"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// ClientHandler handles client endpoints.
type ClientHandler struct {
	service *service.ClientService
}

// NewClientHandler creates a client handler.
func NewClientHandler(svc *service.ClientService) *ClientHandler {
	return &ClientHandler{service: svc}
}

// List handles GET /clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  logger.OrNop(log),
	}
}

// Create handles POST /conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateID("client_id", req.ClientID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.GetUserID(ctx)
	}
	if !middleware.IsSelf(ctx, req.UserID) {
		writeError(w, http.StatusForbidden, "cannot create conversations for another user")
		return
	}

	conv, err := h.service.Create(ctx, req.ClientID, req.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "create conversation", err)
		return
	}

	writeJSON(w, http.StatusCreated, &model.CreateConversationResponse{Conversation: *conv})
}

// ListByUser handles GET /conversations/{userId}
func (h *ConversationHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if !middleware.IsSelf(ctx, userID) {
		writeError(w, http.StatusForbidden, "cannot list another user's conversations")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: h.service.ListByUser(ctx, userID),
	})
}

// Rename handles PATCH /conversations/{id}/title
func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Rename(ctx, middleware.GetUserID(ctx), conversationID, strings.TrimSpace(req.Title)); err != nil {
		writeServiceError(w, h.logger, "rename conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, &model.Ack{Status: "ok"})
}

// Delete handles DELETE /conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), conversationID); err != nil {
		writeServiceError(w, h.logger, "delete conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, &model.Ack{Status: "deleted"})
}
