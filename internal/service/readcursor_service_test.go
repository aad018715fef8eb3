package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

func TestMarkRead(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	other, err := e.convs.CreateDirect(ctx, "alice", "carol")
	require.NoError(t, err)

	var msgs []*domain.Message
	for _, text := range []string{"one", "two", "three"} {
		m, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: text})
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	foreign, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: other.ID, Content: "elsewhere"})
	require.NoError(t, err)

	t.Run("AdvancesCursor", func(t *testing.T) {
		require.NoError(t, e.cursors.MarkRead(ctx, "bob", conv.ID, msgs[1].ID))

		unread, err := e.cursors.UnreadFor(ctx, "bob", conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, unread)
	})

	t.Run("NeverMovesBackwards", func(t *testing.T) {
		require.NoError(t, e.cursors.MarkRead(ctx, "bob", conv.ID, msgs[0].ID))

		p, err := e.store.GetParticipant(ctx, conv.ID, "bob")
		require.NoError(t, err)
		require.NotNil(t, p.LastReadMessageID)
		assert.Equal(t, msgs[1].ID, *p.LastReadMessageID)
	})

	t.Run("MessageMustBelongToConversation", func(t *testing.T) {
		err := e.cursors.MarkRead(ctx, "bob", conv.ID, foreign.ID)
		assert.Equal(t, domain.CodeMessageNotFound, domain.CodeOf(err))
	})

	t.Run("MissingMessage", func(t *testing.T) {
		err := e.cursors.MarkRead(ctx, "bob", conv.ID, 987654)
		assert.Equal(t, domain.CodeMessageNotFound, domain.CodeOf(err))
	})

	t.Run("NonParticipantRejected", func(t *testing.T) {
		err := e.cursors.MarkRead(ctx, "mallory", conv.ID, msgs[2].ID)
		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
	})

	t.Run("ReadingEverythingZeroesUnread", func(t *testing.T) {
		require.NoError(t, e.cursors.MarkRead(ctx, "bob", conv.ID, msgs[2].ID))
		unread, err := e.cursors.UnreadFor(ctx, "bob", conv.ID)
		require.NoError(t, err)
		assert.Zero(t, unread)
	})
}

func TestUserListing(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	_, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	users, err := e.users.List(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, domain.SystemUserID, u.UserID)
		assert.Equal(t, "Unknown User", u.Name)
	}
}
