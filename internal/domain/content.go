package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the message body limit in characters after trimming.
const MaxContentLength = 10_000

// MessageContent is a validated, trimmed message body. Construct through
// NewMessageContent; the zero value is not valid.
type MessageContent struct {
	value string
}

// NewMessageContent trims raw input and validates the result.
func NewMessageContent(raw string) (MessageContent, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MessageContent{}, E(CodeContentInvalid, "message content is empty")
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxContentLength {
		return MessageContent{}, Errorf(CodeContentInvalid, "message content is %d characters, limit is %d", n, MaxContentLength)
	}
	return MessageContent{value: trimmed}, nil
}

func (c MessageContent) String() string { return c.value }

// Conversation metadata bounds.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MinAutoDeleteDays    = 1
	MaxAutoDeleteDays    = 365
)

// ConversationMetadata is the optional display adjunct of a conversation.
// Construct through NewConversationMetadata; immutable afterwards.
type ConversationMetadata struct {
	title          string
	description    string
	autoDeleteDays int
}

// NewConversationMetadata validates title, description and the optional
// auto-delete policy (0 disables it).
func NewConversationMetadata(title, description string, autoDeleteDays int) (ConversationMetadata, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ConversationMetadata{}, Errorf(CodeContentInvalid, "title exceeds %d characters", MaxTitleLength)
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return ConversationMetadata{}, Errorf(CodeContentInvalid, "description exceeds %d characters", MaxDescriptionLength)
	}
	if autoDeleteDays != 0 && (autoDeleteDays < MinAutoDeleteDays || autoDeleteDays > MaxAutoDeleteDays) {
		return ConversationMetadata{}, Errorf(CodeContentInvalid, "auto-delete days must be within %d..%d", MinAutoDeleteDays, MaxAutoDeleteDays)
	}
	return ConversationMetadata{title: title, description: description, autoDeleteDays: autoDeleteDays}, nil
}

func (m ConversationMetadata) Title() string       { return m.title }
func (m ConversationMetadata) Description() string { return m.description }
func (m ConversationMetadata) AutoDeleteDays() int { return m.autoDeleteDays }
