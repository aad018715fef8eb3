package ws

import (
	"errors"

	"github.com/parleyhq/parley/internal/domain"
)

// Inbound frame tags.
const (
	frameAuth      = "auth"
	frameJoin      = "join_conversation"
	frameLeave     = "leave_conversation"
	frameSend      = "send_message"
	frameTypingOn  = "typing_start"
	frameTypingOff = "typing_stop"
	frameMarkRead  = "mark_read"
)

// inboundFrame is the envelope for every client frame. Which fields matter
// depends on the tag; unused ones arrive zero-valued.
type inboundFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	MessageID      int64  `json:"message_id,omitempty"`
}

// connectedFrame acknowledges a completed handshake.
type connectedFrame struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func newConnectedFrame(userID string) connectedFrame {
	return connectedFrame{Type: "connected", UserID: userID, Message: "connected to chat"}
}

// joinedFrame confirms a room subscription back to its requester.
type joinedFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

func newJoinedFrame(conversationID string) joinedFrame {
	return joinedFrame{Type: "joined_conversation", ConversationID: conversationID}
}

// typingFrame fans a typing indicator out to everyone but its author.
type typingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

func newTypingFrame(conversationID, userID string, typing bool) typingFrame {
	return typingFrame{
		Type:           "user_typing",
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       typing,
	}
}

// errorFrame reports a failed frame in-band; the connection stays open
// unless the error was authorization-fatal.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newErrorFrame shapes err for the wire. Errors without a domain code are
// reported as StoreUnavailable so internals never leak to the peer.
func newErrorFrame(err error) errorFrame {
	var de *domain.Error
	if errors.As(err, &de) {
		return errorFrame{Type: "error", Code: string(de.Code), Message: de.Message}
	}
	return errorFrame{
		Type:    "error",
		Code:    string(domain.CodeStoreUnavailable),
		Message: "internal error",
	}
}
