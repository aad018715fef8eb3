package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type messageSendRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type messageEditRequest struct {
	Content string `json:"content"`
}

// pathMessageID parses the message id path segment. A non-numeric id names
// no message, so it reads as not found rather than a malformed request.
func pathMessageID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		return 0, domain.E(domain.CodeMessageNotFound, "message not found")
	}
	return id, nil
}

// @Summary      Send a message
// @Description  Persists and fans out to the conversation's live subscribers
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        input body messageSendRequest true "content and optional type"
// @Success      201  {object}  service.MessageResponse
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Router       /conversations/{conversationID}/messages [post]
func handleSendMessage(pipeline *service.MessagePipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		msg, err := pipeline.Send(r.Context(), UserID(r), service.SendInput{
			ConversationID: chi.URLParam(r, "conversationID"),
			Content:        req.Content,
			Kind:           req.MessageType,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, pipeline.Render(r.Context(), msg))
	}
}

// @Summary      Page through history
// @Description  Chronological order; pass before_message_id to walk backwards
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        limit query int false "page size (max 100)"
// @Param        before_message_id query int false "exclusive upper bound"
// @Success      200  {object}  service.MessagePage
// @Failure      404  {object}  errorBody
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(pipeline *service.MessagePipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := pipeline.History(r.Context(), UserID(r),
			chi.URLParam(r, "conversationID"),
			queryInt(r, "limit", 0),
			queryInt64(r, "before_message_id", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// @Summary      Edit a message
// @Description  Sender-only, inside the edit window; fans out message_edited
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        messageID path int true "message id"
// @Param        input body messageEditRequest true "replacement content"
// @Success      200  {object}  service.MessageResponse
// @Failure      400  {object}  errorBody
// @Failure      403  {object}  errorBody
// @Router       /messages/{messageID} [put]
func handleEditMessage(pipeline *service.MessagePipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathMessageID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req messageEditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		msg, err := pipeline.Edit(r.Context(), UserID(r), id, req.Content)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pipeline.Render(r.Context(), msg))
	}
}

// @Summary      Delete a message
// @Description  Tombstones the message and fans out message_deleted
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID path int true "message id"
// @Success      200  {object}  successResponse
// @Failure      403  {object}  errorBody
// @Failure      404  {object}  errorBody
// @Router       /messages/{messageID} [delete]
func handleDeleteMessage(pipeline *service.MessagePipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathMessageID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := pipeline.Delete(r.Context(), UserID(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}
