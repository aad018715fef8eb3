package domain

import "time"

// Lifecycle windows. Checks are inclusive at the boundary: an edit at
// exactly EditWindow after sent-at is allowed.
const (
	EditWindow         = 24 * time.Hour
	DeleteWindow       = 90 * 24 * time.Hour
	TombstoneRetention = 7 * 24 * time.Hour
)

// Roster size bounds per conversation kind.
const (
	MinGroupParticipants = 2
	MaxGroupParticipants = 8
	DirectParticipants   = 2
)

// MaxParticipants returns the participant cap for a kind; 0 means uncapped.
func MaxParticipants(kind ConversationKind) int {
	switch kind {
	case KindDirect:
		return DirectParticipants
	case KindGroup:
		return MaxGroupParticipants
	default:
		return 0
	}
}

// RoleAllowedForKind reports whether a role may appear in a conversation of
// the given kind.
func RoleAllowedForKind(kind ConversationKind, role ParticipantRole) bool {
	switch kind {
	case KindDirect:
		return role == RoleMember
	case KindGroup:
		return role == RoleMember || role == RoleAdmin
	case KindBusiness:
		return role == RoleCustomer || role == RoleAgent || role == RoleBusiness
	}
	return false
}

// ValidateRoster enforces the membership invariants for a conversation kind:
// direct holds exactly two members; group holds 2..8 with at least one
// admin; business holds at least one customer and one business.
func ValidateRoster(kind ConversationKind, roles []ParticipantRole) error {
	for _, r := range roles {
		if !RoleAllowedForKind(kind, r) {
			return Errorf(CodeRoleInvalidForKind, "role %q is not valid in a %s conversation", r, kind)
		}
	}
	switch kind {
	case KindDirect:
		if len(roles) != DirectParticipants {
			return Errorf(CodeParticipantCountInvalid, "direct conversations hold exactly %d participants, got %d", DirectParticipants, len(roles))
		}
	case KindGroup:
		if len(roles) < MinGroupParticipants || len(roles) > MaxGroupParticipants {
			return Errorf(CodeParticipantCountInvalid, "group conversations hold %d..%d participants, got %d", MinGroupParticipants, MaxGroupParticipants, len(roles))
		}
		if countRole(roles, RoleAdmin) == 0 {
			return E(CodeRoleInvalidForKind, "group conversations need at least one admin")
		}
	case KindBusiness:
		if countRole(roles, RoleCustomer) == 0 || countRole(roles, RoleBusiness) == 0 {
			return E(CodeRoleInvalidForKind, "business conversations need at least one customer and one business participant")
		}
	default:
		return Errorf(CodeKindInvalid, "unknown conversation kind %q", kind)
	}
	return nil
}

func countRole(roles []ParticipantRole, want ParticipantRole) int {
	n := 0
	for _, r := range roles {
		if r == want {
			n++
		}
	}
	return n
}

// CheckEditable verifies the edit path preconditions: sender only, not
// deleted, not a system message, within the edit window.
func CheckEditable(m *Message, callerID string, now time.Time) error {
	if m.SenderID != callerID {
		return E(CodeNotAuthorized, "only the sender may edit a message")
	}
	if m.Deleted() {
		return E(CodeAlreadyDeleted, "message is deleted")
	}
	if m.Kind == MessageSystem {
		return E(CodeEditForbiddenKind, "system messages cannot be edited")
	}
	if now.Sub(m.SentAt) > EditWindow {
		return E(CodeEditWindowExpired, "messages can be edited within 24 hours of sending")
	}
	return nil
}

// CheckDeletable verifies the soft-delete path preconditions: sender (or the
// system identity), not already deleted, within the delete window.
func CheckDeletable(m *Message, callerID string, now time.Time) error {
	if m.SenderID != callerID && callerID != SystemUserID {
		return E(CodeNotAuthorized, "only the sender may delete a message")
	}
	if m.Deleted() {
		return E(CodeAlreadyDeleted, "message is already deleted")
	}
	if now.Sub(m.SentAt) > DeleteWindow {
		return E(CodeDeleteWindowExpired, "messages can be deleted within 90 days of sending")
	}
	return nil
}
