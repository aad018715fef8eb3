package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/service"
)

func TestSend(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	t.Run("PersistsAndBroadcasts", func(t *testing.T) {
		msg, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "  hello  "})
		require.NoError(t, err)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, domain.MessageText, msg.Kind)

		events := e.publisher.eventsFor(conv.ID)
		require.Len(t, events, 1)
		ev, ok := events[0].(service.NewMessageEvent)
		require.True(t, ok)
		assert.Equal(t, msg.ID, ev.MessageID)
		assert.Equal(t, "alice", ev.SenderID)
		assert.Equal(t, "hello", ev.Content)

		got, err := e.store.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessageID)
		assert.Equal(t, msg.ID, *got.LastMessageID)
	})

	t.Run("NonParticipantRejected", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "mallory", service.SendInput{ConversationID: conv.ID, Content: "hi"})
		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
		assert.Len(t, e.publisher.eventsFor(conv.ID), 1)
	})

	t.Run("MissingConversation", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: "gone", Content: "hi"})
		assert.Equal(t, domain.CodeConversationNotFound, domain.CodeOf(err))
	})

	t.Run("EmptyContent", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "   "})
		assert.Equal(t, domain.CodeContentInvalid, domain.CodeOf(err))
	})

	t.Run("OverlongContent", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{
			ConversationID: conv.ID,
			Content:        strings.Repeat("x", domain.MaxContentLength+1),
		})
		assert.Equal(t, domain.CodeContentInvalid, domain.CodeOf(err))
	})

	t.Run("SystemKindReserved", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "hi", Kind: "system"})
		assert.Equal(t, domain.CodeKindInvalid, domain.CodeOf(err))
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "hi", Kind: "video"})
		assert.Equal(t, domain.CodeKindInvalid, domain.CodeOf(err))
	})

	t.Run("MutedStillSends", func(t *testing.T) {
		require.NoError(t, e.convs.SetMuted(ctx, "alice", conv.ID, true))
		_, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "still here"})
		require.NoError(t, err)
	})

	t.Run("ImageKind", func(t *testing.T) {
		msg, err := e.pipeline.Send(ctx, "bob", service.SendInput{ConversationID: conv.ID, Content: "https://cdn/i.png", Kind: "image"})
		require.NoError(t, err)
		assert.Equal(t, domain.MessageImage, msg.Kind)
	})
}

func TestEdit(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "draft"})
	require.NoError(t, err)

	t.Run("SenderEditsWithinWindow", func(t *testing.T) {
		updated, err := e.pipeline.Edit(ctx, "alice", msg.ID, "final")
		require.NoError(t, err)
		assert.Equal(t, "final", updated.Content)
		require.NotNil(t, updated.EditedAt)

		events := e.publisher.eventsFor(conv.ID)
		last, ok := events[len(events)-1].(service.MessageEditedEvent)
		require.True(t, ok)
		assert.Equal(t, msg.ID, last.MessageID)
		assert.Equal(t, "final", last.NewContent)
	})

	t.Run("OnlySenderMayEdit", func(t *testing.T) {
		_, err := e.pipeline.Edit(ctx, "bob", msg.ID, "hijack")
		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
	})

	t.Run("MissingMessage", func(t *testing.T) {
		_, err := e.pipeline.Edit(ctx, "alice", 424242, "nope")
		assert.Equal(t, domain.CodeMessageNotFound, domain.CodeOf(err))
	})

	t.Run("WindowExpired", func(t *testing.T) {
		old, err := e.store.AppendMessage(ctx, domain.MessageDraft{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Content:        "yesterday's news",
			Kind:           domain.MessageText,
			SentAt:         time.Now().UTC().Add(-25 * time.Hour),
		})
		require.NoError(t, err)
		_, err = e.pipeline.Edit(ctx, "alice", old.ID, "too late")
		assert.Equal(t, domain.CodeEditWindowExpired, domain.CodeOf(err))
	})

	t.Run("SystemMessagesImmutable", func(t *testing.T) {
		sys, err := e.store.AppendMessage(ctx, domain.MessageDraft{
			ConversationID: conv.ID,
			SenderID:       domain.SystemUserID,
			Content:        "bob joined the conversation",
			Kind:           domain.MessageSystem,
			SentAt:         time.Now().UTC(),
		})
		require.NoError(t, err)
		_, err = e.pipeline.Edit(ctx, domain.SystemUserID, sys.ID, "rewrite history")
		assert.Equal(t, domain.CodeEditForbiddenKind, domain.CodeOf(err))
	})

	t.Run("DeletedCannotBeEdited", func(t *testing.T) {
		doomed, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "fleeting"})
		require.NoError(t, err)
		require.NoError(t, e.pipeline.Delete(ctx, "alice", doomed.ID))
		_, err = e.pipeline.Edit(ctx, "alice", doomed.ID, "resurrect")
		assert.Equal(t, domain.CodeAlreadyDeleted, domain.CodeOf(err))
	})
}

func TestDelete(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)
	msg, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: "to be removed"})
	require.NoError(t, err)

	t.Run("SenderDeletes", func(t *testing.T) {
		require.NoError(t, e.pipeline.Delete(ctx, "alice", msg.ID))

		got, err := e.store.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted())

		events := e.publisher.eventsFor(conv.ID)
		last, ok := events[len(events)-1].(service.MessageDeletedEvent)
		require.True(t, ok)
		assert.Equal(t, msg.ID, last.MessageID)
	})

	t.Run("TwiceIsAlreadyDeleted", func(t *testing.T) {
		err := e.pipeline.Delete(ctx, "alice", msg.ID)
		assert.Equal(t, domain.CodeAlreadyDeleted, domain.CodeOf(err))
	})

	t.Run("OnlySenderMayDelete", func(t *testing.T) {
		other, err := e.pipeline.Send(ctx, "bob", service.SendInput{ConversationID: conv.ID, Content: "bob's"})
		require.NoError(t, err)
		err = e.pipeline.Delete(ctx, "alice", other.ID)
		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
	})

	t.Run("WindowExpired", func(t *testing.T) {
		ancient, err := e.store.AppendMessage(ctx, domain.MessageDraft{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Content:        "from the archives",
			Kind:           domain.MessageText,
			SentAt:         time.Now().UTC().Add(-91 * 24 * time.Hour),
		})
		require.NoError(t, err)
		err = e.pipeline.Delete(ctx, "alice", ancient.ID)
		assert.Equal(t, domain.CodeDeleteWindowExpired, domain.CodeOf(err))
	})
}

func TestHistory(t *testing.T) {
	dir := &stubDirectory{profiles: map[string]directory.Profile{
		"alice": {ID: "alice", Name: "Alice Liddell", AvatarURL: "https://cdn/a.png", Kind: "user"},
	}}
	e := newEnv(t, dir)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	var sent []*domain.Message
	for _, text := range []string{"one", "two", "three"} {
		m, err := e.pipeline.Send(ctx, "alice", service.SendInput{ConversationID: conv.ID, Content: text})
		require.NoError(t, err)
		sent = append(sent, m)
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("ChronologicalWithDecoration", func(t *testing.T) {
		page, err := e.pipeline.History(ctx, "bob", conv.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 3)
		assert.False(t, page.HasMore)
		assert.Equal(t, "one", page.Messages[0].Content)
		assert.Equal(t, "three", page.Messages[2].Content)
		assert.Equal(t, "Alice Liddell", page.Messages[0].SenderName)
		assert.Equal(t, "https://cdn/a.png", page.Messages[0].SenderAvatar)
	})

	t.Run("PagingBackwards", func(t *testing.T) {
		page, err := e.pipeline.History(ctx, "bob", conv.ID, 2, 0)
		require.NoError(t, err)
		require.Len(t, page.Messages, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "two", page.Messages[0].Content)

		page, err = e.pipeline.History(ctx, "bob", conv.ID, 2, sent[1].ID)
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.False(t, page.HasMore)
		assert.Equal(t, "one", page.Messages[0].Content)
	})

	t.Run("NonParticipantGets404", func(t *testing.T) {
		_, err := e.pipeline.History(ctx, "mallory", conv.ID, 10, 0)
		assert.Equal(t, domain.CodeConversationNotFound, domain.CodeOf(err))
	})
}

// Concurrent senders to one conversation must broadcast in committed id
// order.
func TestSendOrderingUnderConcurrency(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	conv, err := e.convs.CreateDirect(ctx, "alice", "bob")
	require.NoError(t, err)

	const perSender = 20
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := e.pipeline.Send(ctx, sender, service.SendInput{ConversationID: conv.ID, Content: "tick"})
				assert.NoError(t, err)
			}
		}(sender)
	}
	wg.Wait()

	events := e.publisher.eventsFor(conv.ID)
	require.Len(t, events, 2*perSender)
	var lastID int64
	for _, raw := range events {
		ev, ok := raw.(service.NewMessageEvent)
		require.True(t, ok)
		assert.Greater(t, ev.MessageID, lastID)
		lastID = ev.MessageID
	}
}
