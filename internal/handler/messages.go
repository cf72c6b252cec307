package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/quorra/internal/middleware"
	"github.com/capitalize-ai/quorra/internal/model"
	"github.com/capitalize-ai/quorra/internal/service"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  logger.OrNop(log),
	}
}

// List handles GET /messages/{conversationId}
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.service.List(ctx, middleware.GetUserID(ctx), conversationID)
	if err != nil {
		writeServiceError(w, h.logger, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Total:    len(msgs),
		Messages: msgs,
	})
}

// Send handles POST /messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.validate(w, r, &req.ConversationID, &req.UserID, req.Content, false) {
		return
	}

	reply, err := h.service.Send(ctx, &req)
	if err != nil {
		writeServiceError(w, h.logger, "send message", err)
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{Status: "ok", Message: *reply})
}

// SendWithFiles handles POST /messages/with-files
func (h *MessageHandler) SendWithFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, middleware.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := model.UploadRequest{
		ConversationID: r.FormValue("conversation_id"),
		UserID:         r.FormValue("user_id"),
		Content:        r.FormValue("content"),
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}
	if len(headers) > middleware.MaxUploadFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per message", middleware.MaxUploadFiles))
		return
	}
	if !h.validate(w, r, &req.ConversationID, &req.UserID, req.Content, true) {
		return
	}

	for _, fh := range headers {
		a, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Files = append(req.Files, a)
	}

	reply, err := h.service.SendWithFiles(ctx, &req)
	if err != nil {
		writeServiceError(w, h.logger, "send message with files", err)
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{Status: "ok", Message: *reply})
}

// validate checks the common send fields and defaults the user to the
// authenticated one. It writes the error response and returns false on failure.
func (h *MessageHandler) validate(w http.ResponseWriter, r *http.Request, conversationID, userID *string, content string, withFiles bool) bool {
	ctx := r.Context()
	if err := middleware.ValidateConversationID(*conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := middleware.ValidateMessageContent(content, withFiles); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if *userID == "" {
		*userID = middleware.GetUserID(ctx)
	}
	if !middleware.IsSelf(ctx, *userID) {
		writeError(w, http.StatusForbidden, "cannot send as another user")
		return false
	}
	return true
}

func readUpload(fh *multipart.FileHeader) (model.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return model.Attachment{}, fmt.Errorf("cannot read %s", fh.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("cannot read %s", fh.Filename)
	}
	if fh.Filename == "" {
		return model.Attachment{}, errors.New("file name is required")
	}
	return model.Attachment{
		Name:        fh.Filename,
		Size:        int64(len(data)),
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
