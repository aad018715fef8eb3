package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
)

func TestNewMessageContent(t *testing.T) {
	t.Run("TrimsWhitespace", func(t *testing.T) {
		c, err := domain.NewMessageContent("  hi there \n")
		require.NoError(t, err)
		assert.Equal(t, "hi there", c.String())
	})

	t.Run("SingleCharacterAccepted", func(t *testing.T) {
		c, err := domain.NewMessageContent("x")
		require.NoError(t, err)
		assert.Equal(t, "x", c.String())
	})

	t.Run("ExactLimitAccepted", func(t *testing.T) {
		_, err := domain.NewMessageContent(strings.Repeat("a", domain.MaxContentLength))
		assert.NoError(t, err)
	})

	t.Run("OverLimitRejected", func(t *testing.T) {
		_, err := domain.NewMessageContent(strings.Repeat("a", domain.MaxContentLength+1))
		assert.True(t, domain.IsCode(err, domain.CodeContentInvalid))
	})

	t.Run("EmptyAfterTrimRejected", func(t *testing.T) {
		_, err := domain.NewMessageContent("   \t\n ")
		assert.True(t, domain.IsCode(err, domain.CodeContentInvalid))
	})

	t.Run("LimitCountsRunesNotBytes", func(t *testing.T) {
		_, err := domain.NewMessageContent(strings.Repeat("ä", domain.MaxContentLength))
		assert.NoError(t, err)
	})
}

func TestParseKinds(t *testing.T) {
	t.Run("ConversationKinds", func(t *testing.T) {
		for _, s := range []string{"direct", "group", "business"} {
			k, err := domain.ParseConversationKind(s)
			require.NoError(t, err)
			assert.Equal(t, s, string(k))
		}
		_, err := domain.ParseConversationKind("channel")
		assert.True(t, domain.IsCode(err, domain.CodeKindInvalid))
	})

	t.Run("MessageKinds", func(t *testing.T) {
		for _, s := range []string{"text", "image", "file", "system"} {
			k, err := domain.ParseMessageKind(s)
			require.NoError(t, err)
			assert.Equal(t, s, string(k))
		}
		_, err := domain.ParseMessageKind("video")
		assert.True(t, domain.IsCode(err, domain.CodeKindInvalid))
	})

	t.Run("Roles", func(t *testing.T) {
		for _, s := range []string{"customer", "agent", "business", "member", "admin"} {
			r, err := domain.ParseParticipantRole(s)
			require.NoError(t, err)
			assert.Equal(t, s, string(r))
		}
		_, err := domain.ParseParticipantRole("owner")
		assert.True(t, domain.IsCode(err, domain.CodeRoleInvalidForKind))
	})

	t.Run("ManagementPredicate", func(t *testing.T) {
		assert.True(t, domain.RoleAdmin.CanManageParticipants())
		assert.True(t, domain.RoleBusiness.CanManageParticipants())
		assert.False(t, domain.RoleMember.CanManageParticipants())
		assert.False(t, domain.RoleCustomer.CanManageParticipants())
		assert.False(t, domain.RoleAgent.CanManageParticipants())
	})
}

func TestValidateRoster(t *testing.T) {
	members := func(n int) []domain.ParticipantRole {
		roles := make([]domain.ParticipantRole, n)
		for i := range roles {
			roles[i] = domain.RoleMember
		}
		return roles
	}

	t.Run("DirectExactlyTwoMembers", func(t *testing.T) {
		assert.NoError(t, domain.ValidateRoster(domain.KindDirect, members(2)))

		err := domain.ValidateRoster(domain.KindDirect, members(1))
		assert.True(t, domain.IsCode(err, domain.CodeParticipantCountInvalid))

		err = domain.ValidateRoster(domain.KindDirect, members(3))
		assert.True(t, domain.IsCode(err, domain.CodeParticipantCountInvalid))

		err = domain.ValidateRoster(domain.KindDirect, []domain.ParticipantRole{domain.RoleAdmin, domain.RoleMember})
		assert.True(t, domain.IsCode(err, domain.CodeRoleInvalidForKind))
	})

	t.Run("GroupSizeBounds", func(t *testing.T) {
		withAdmin := func(n int) []domain.ParticipantRole {
			return append([]domain.ParticipantRole{domain.RoleAdmin}, members(n-1)...)
		}

		assert.NoError(t, domain.ValidateRoster(domain.KindGroup, withAdmin(2)))
		assert.NoError(t, domain.ValidateRoster(domain.KindGroup, withAdmin(8)))

		err := domain.ValidateRoster(domain.KindGroup, withAdmin(1))
		assert.True(t, domain.IsCode(err, domain.CodeParticipantCountInvalid))

		err = domain.ValidateRoster(domain.KindGroup, withAdmin(9))
		assert.True(t, domain.IsCode(err, domain.CodeParticipantCountInvalid))
	})

	t.Run("GroupNeedsAdmin", func(t *testing.T) {
		err := domain.ValidateRoster(domain.KindGroup, members(3))
		assert.True(t, domain.IsCode(err, domain.CodeRoleInvalidForKind))
	})

	t.Run("BusinessNeedsCustomerAndBusiness", func(t *testing.T) {
		ok := []domain.ParticipantRole{domain.RoleCustomer, domain.RoleBusiness}
		assert.NoError(t, domain.ValidateRoster(domain.KindBusiness, ok))

		withAgent := []domain.ParticipantRole{domain.RoleCustomer, domain.RoleBusiness, domain.RoleAgent}
		assert.NoError(t, domain.ValidateRoster(domain.KindBusiness, withAgent))

		err := domain.ValidateRoster(domain.KindBusiness, []domain.ParticipantRole{domain.RoleCustomer, domain.RoleAgent})
		assert.True(t, domain.IsCode(err, domain.CodeRoleInvalidForKind))
	})
}

func TestEditAndDeleteWindows(t *testing.T) {
	sentAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := func() *domain.Message {
		return &domain.Message{
			ID:             41,
			ConversationID: "c1",
			SenderID:       "u1",
			Content:        "hello",
			Kind:           domain.MessageText,
			SentAt:         sentAt,
		}
	}

	t.Run("EditAtExactWindowAllowed", func(t *testing.T) {
		assert.NoError(t, domain.CheckEditable(msg(), "u1", sentAt.Add(domain.EditWindow)))
	})

	t.Run("EditOneSecondLateRejected", func(t *testing.T) {
		err := domain.CheckEditable(msg(), "u1", sentAt.Add(domain.EditWindow+time.Second))
		assert.True(t, domain.IsCode(err, domain.CodeEditWindowExpired))
	})

	t.Run("EditByNonSenderRejected", func(t *testing.T) {
		err := domain.CheckEditable(msg(), "u2", sentAt)
		assert.True(t, domain.IsCode(err, domain.CodeNotAuthorized))
	})

	t.Run("EditDeletedRejected", func(t *testing.T) {
		m := msg()
		deletedAt := sentAt.Add(time.Minute)
		m.DeletedAt = &deletedAt
		err := domain.CheckEditable(m, "u1", sentAt.Add(2*time.Minute))
		assert.True(t, domain.IsCode(err, domain.CodeAlreadyDeleted))
	})

	t.Run("EditSystemKindRejected", func(t *testing.T) {
		m := msg()
		m.Kind = domain.MessageSystem
		err := domain.CheckEditable(m, "u1", sentAt)
		assert.True(t, domain.IsCode(err, domain.CodeEditForbiddenKind))
	})

	t.Run("DeleteAtExactWindowAllowed", func(t *testing.T) {
		assert.NoError(t, domain.CheckDeletable(msg(), "u1", sentAt.Add(domain.DeleteWindow)))
	})

	t.Run("DeleteOneSecondLateRejected", func(t *testing.T) {
		err := domain.CheckDeletable(msg(), "u1", sentAt.Add(domain.DeleteWindow+time.Second))
		assert.True(t, domain.IsCode(err, domain.CodeDeleteWindowExpired))
	})

	t.Run("DeleteTwiceRejected", func(t *testing.T) {
		m := msg()
		deletedAt := sentAt.Add(time.Hour)
		m.DeletedAt = &deletedAt
		err := domain.CheckDeletable(m, "u1", sentAt.Add(2*time.Hour))
		assert.True(t, domain.IsCode(err, domain.CodeAlreadyDeleted))
	})

	t.Run("SystemIdentityMayDelete", func(t *testing.T) {
		assert.NoError(t, domain.CheckDeletable(msg(), domain.SystemUserID, sentAt.Add(time.Hour)))
	})
}

func TestConversationMetadata(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		md, err := domain.NewConversationMetadata(" Team ", "weekly sync", 30)
		require.NoError(t, err)
		assert.Equal(t, "Team", md.Title())
		assert.Equal(t, "weekly sync", md.Description())
		assert.Equal(t, 30, md.AutoDeleteDays())
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		_, err := domain.NewConversationMetadata(strings.Repeat("t", domain.MaxTitleLength+1), "", 0)
		assert.True(t, domain.IsCode(err, domain.CodeContentInvalid))
	})

	t.Run("DescriptionTooLong", func(t *testing.T) {
		_, err := domain.NewConversationMetadata("ok", strings.Repeat("d", domain.MaxDescriptionLength+1), 0)
		assert.True(t, domain.IsCode(err, domain.CodeContentInvalid))
	})

	t.Run("AutoDeleteBounds", func(t *testing.T) {
		_, err := domain.NewConversationMetadata("ok", "", domain.MaxAutoDeleteDays+1)
		assert.True(t, domain.IsCode(err, domain.CodeContentInvalid))

		_, err = domain.NewConversationMetadata("ok", "", 0)
		assert.NoError(t, err)
	})
}
