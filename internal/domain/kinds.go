package domain

// ConversationKind classifies a conversation.
type ConversationKind string

const (
	KindDirect   ConversationKind = "direct"
	KindGroup    ConversationKind = "group"
	KindBusiness ConversationKind = "business"
)

// ParseConversationKind validates a raw kind string.
func ParseConversationKind(s string) (ConversationKind, error) {
	switch k := ConversationKind(s); k {
	case KindDirect, KindGroup, KindBusiness:
		return k, nil
	}
	return "", Errorf(CodeKindInvalid, "unknown conversation kind %q", s)
}

// ParticipantRole is the role a user holds within one conversation.
type ParticipantRole string

const (
	RoleCustomer ParticipantRole = "customer"
	RoleAgent    ParticipantRole = "agent"
	RoleBusiness ParticipantRole = "business"
	RoleMember   ParticipantRole = "member"
	RoleAdmin    ParticipantRole = "admin"
)

// ParseParticipantRole validates a raw role string.
func ParseParticipantRole(s string) (ParticipantRole, error) {
	switch r := ParticipantRole(s); r {
	case RoleCustomer, RoleAgent, RoleBusiness, RoleMember, RoleAdmin:
		return r, nil
	}
	return "", Errorf(CodeRoleInvalidForKind, "unknown participant role %q", s)
}

// CanManageParticipants reports whether the role may add or remove other
// participants.
func (r ParticipantRole) CanManageParticipants() bool {
	return r == RoleAdmin || r == RoleBusiness
}

// MessageKind classifies a message body.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

// ParseMessageKind validates a raw message kind string.
func ParseMessageKind(s string) (MessageKind, error) {
	switch k := MessageKind(s); k {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return k, nil
	}
	return "", Errorf(CodeKindInvalid, "unknown message kind %q", s)
}
