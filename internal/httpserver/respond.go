package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/parleyhq/parley/internal/domain"
)

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// errorPayload is the wire shape of a failed request. RequestID is attached
// on 500s so operators can find the matching log line.
type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorBody struct {
	Error errorPayload `json:"error"`
}

// writeError maps a failure onto the HTTP status taxonomy. Errors without a
// domain code are treated as internal and never leak their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)

	payload := errorPayload{Code: string(code), Message: "internal error"}
	var de *domain.Error
	if errors.As(err, &de) && status != http.StatusInternalServerError {
		payload.Message = de.Message
	}
	if status == http.StatusInternalServerError {
		if code == "" {
			payload.Code = string(domain.CodeStoreUnavailable)
		}
		payload.RequestID = middleware.GetReqID(r.Context())
		log.Error().Err(err).
			Str("request_id", payload.RequestID).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: payload})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeAuthMissing, domain.CodeAuthMalformed,
		domain.CodeAuthInvalid, domain.CodeAuthExpired:
		return http.StatusUnauthorized
	case domain.CodeNotAuthorized:
		return http.StatusForbidden
	case domain.CodeConversationNotFound, domain.CodeMessageNotFound,
		domain.CodeParticipantNotFound:
		return http.StatusNotFound
	case domain.CodeStoreConflict:
		return http.StatusConflict
	case domain.CodeContentInvalid, domain.CodeKindInvalid,
		domain.CodeParticipantCountInvalid, domain.CodeSelfConversation,
		domain.CodeRoleInvalidForKind, domain.CodeEditWindowExpired,
		domain.CodeDeleteWindowExpired, domain.CodeEditForbiddenKind,
		domain.CodeAlreadyDeleted:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// badJSON reports an unreadable request body.
func badJSON(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, domain.E(domain.CodeContentInvalid, "invalid JSON body"))
}

// queryInt reads an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

// successResponse acknowledges state-changing calls that return no entity.
type successResponse struct {
	Success bool `json:"success"`
}
