package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

type directCreateRequest struct {
	TargetUserID string `json:"target_user_id"`
}

type groupCreateRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Participants []string `json:"participants"`
}

type businessCreateRequest struct {
	BusinessUserID string `json:"business_user_id"`
	AgentUserID    string `json:"agent_user_id"`
}

// conversationCreatedResponse carries the id of a created (or, for direct
// pairs, pre-existing) conversation.
type conversationCreatedResponse struct {
	ConversationID string `json:"conversation_id"`
}

type markReadRequest struct {
	MessageID int64 `json:"message_id"`
}

type participantAddRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type roleUpdateRequest struct {
	Role string `json:"role"`
}

type muteRequest struct {
	IsMuted bool `json:"is_muted"`
}

// @Summary      Open a direct conversation
// @Description  Returns the existing conversation for the pair or creates it
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body directCreateRequest true "Counterpart"
// @Success      200  {object}  conversationCreatedResponse
// @Failure      400  {object}  errorBody
// @Router       /conversations/direct [post]
func handleCreateDirect(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req directCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		conv, err := convs.CreateDirect(r.Context(), UserID(r), req.TargetUserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationCreatedResponse{ConversationID: conv.ID})
	}
}

// @Summary      Create a group conversation
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body groupCreateRequest true "Group definition"
// @Success      201  {object}  conversationCreatedResponse
// @Failure      400  {object}  errorBody
// @Router       /conversations/group [post]
func handleCreateGroup(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		conv, err := convs.CreateGroup(r.Context(), UserID(r), req.Name, req.Description, req.Participants)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conversationCreatedResponse{ConversationID: conv.ID})
	}
}

// @Summary      Open a business conversation
// @Description  Caller is the customer; an agent seat is optional
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body businessCreateRequest true "Business and optional agent"
// @Success      201  {object}  conversationCreatedResponse
// @Failure      400  {object}  errorBody
// @Router       /conversations/business [post]
func handleCreateBusiness(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req businessCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		conv, err := convs.CreateBusiness(r.Context(), UserID(r), req.BusinessUserID, req.AgentUserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conversationCreatedResponse{ConversationID: conv.ID})
	}
}

// @Summary      List the caller's conversations
// @Description  Most recent activity first, decorated with unread counts
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query int false "page size"
// @Param        offset  query int false "page offset"
// @Success      200  {array}  service.ConversationResponse
// @Router       /conversations [get]
func handleListConversations(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := convs.List(r.Context(), UserID(r), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// @Summary      Get one conversation
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Success      200  {object}  service.ConversationResponse
// @Failure      404  {object}  errorBody
// @Router       /conversations/{conversationID} [get]
func handleGetConversation(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := convs.Get(r.Context(), UserID(r), chi.URLParam(r, "conversationID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// @Summary      Advance the read cursor
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        input body markReadRequest true "last read message"
// @Success      200  {object}  successResponse
// @Failure      404  {object}  errorBody
// @Router       /conversations/{conversationID}/read [post]
func handleMarkConversationRead(cursors *service.ReadCursorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req markReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		if err := cursors.MarkRead(r.Context(), UserID(r), chi.URLParam(r, "conversationID"), req.MessageID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// @Summary      Add a participant
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        input body participantAddRequest true "user and role"
// @Success      201  {object}  domain.Participant
// @Failure      403  {object}  errorBody
// @Router       /conversations/{conversationID}/participants [post]
func handleAddParticipant(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req participantAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		role := domain.RoleMember
		if req.Role != "" {
			var err error
			if role, err = domain.ParseParticipantRole(req.Role); err != nil {
				writeError(w, r, err)
				return
			}
		}
		p, err := convs.AddParticipant(r.Context(), UserID(r), chi.URLParam(r, "conversationID"), req.UserID, role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// @Summary      Remove a participant
// @Description  Admins remove others; anyone may remove themselves
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        userID path string true "user id"
// @Success      200  {object}  successResponse
// @Failure      403  {object}  errorBody
// @Router       /conversations/{conversationID}/participants/{userID} [delete]
func handleRemoveParticipant(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := convs.RemoveParticipant(r.Context(), UserID(r),
			chi.URLParam(r, "conversationID"), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// @Summary      Change a participant's role
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        userID path string true "user id"
// @Param        input body roleUpdateRequest true "new role"
// @Success      200  {object}  successResponse
// @Failure      403  {object}  errorBody
// @Router       /conversations/{conversationID}/participants/{userID}/role [put]
func handleUpdateParticipantRole(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roleUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		role, err := domain.ParseParticipantRole(req.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		err = convs.UpdateRole(r.Context(), UserID(r),
			chi.URLParam(r, "conversationID"), chi.URLParam(r, "userID"), role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// @Summary      Mute or unmute a conversation
// @Description  Affects only the caller's own notifications
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "conversation id"
// @Param        input body muteRequest true "mute flag"
// @Success      200  {object}  successResponse
// @Failure      404  {object}  errorBody
// @Router       /conversations/{conversationID}/mute [put]
func handleMuteConversation(convs *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req muteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badJSON(w, r)
			return
		}
		if err := convs.SetMuted(r.Context(), UserID(r), chi.URLParam(r, "conversationID"), req.IsMuted); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}
