package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error category shared by the HTTP and
// socket surfaces. The strings are part of the wire contract.
type Code string

const (
	CodeAuthMissing   Code = "AuthMissing"
	CodeAuthMalformed Code = "AuthMalformed"
	CodeAuthInvalid   Code = "AuthInvalid"
	CodeAuthExpired   Code = "AuthExpired"

	// Authenticated but not entitled.
	CodeNotAuthorized Code = "NotAuthorized"

	CodeConversationNotFound Code = "ConversationNotFound"
	CodeMessageNotFound      Code = "MessageNotFound"
	CodeParticipantNotFound  Code = "ParticipantNotFound"

	CodeContentInvalid          Code = "ContentInvalid"
	CodeKindInvalid             Code = "KindInvalid"
	CodeParticipantCountInvalid Code = "ParticipantCountInvalid"
	CodeSelfConversation        Code = "SelfConversation"
	CodeRoleInvalidForKind      Code = "RoleInvalidForKind"

	CodeEditWindowExpired   Code = "EditWindowExpired"
	CodeDeleteWindowExpired Code = "DeleteWindowExpired"
	CodeEditForbiddenKind   Code = "EditForbiddenKind"
	CodeAlreadyDeleted      Code = "AlreadyDeleted"

	// Socket-only: the connection is terminated, no error frame is sent.
	CodeSlowConsumer Code = "SlowConsumer"

	CodeStoreUnavailable Code = "StoreUnavailable"
	CodeStoreConflict    Code = "StoreConflict"
)

// Error is a failure carrying a stable code. Transports map the code to a
// status or frame; Message is safe to show to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a domain error with the given code and message.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a domain error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the domain code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
