package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/metrics"
)

// ConversationService creates conversations, manages rosters and serves the
// conversation read surface. Mutations that emit a system message hold the
// conversation lock across persist and publish, like the send pipeline.
type ConversationService struct {
	store     domain.Store
	decorate  decorator
	publisher Publisher
	locks     *ConvLocks
	logger    zerolog.Logger
}

func NewConversationService(
	store domain.Store,
	dir directory.Client,
	publisher Publisher,
	locks *ConvLocks,
	logger zerolog.Logger,
) *ConversationService {
	return &ConversationService{
		store:     store,
		decorate:  decorator{directory: dir, logger: logger},
		publisher: publisher,
		locks:     locks,
		logger:    logger.With().Str("component", "conversations").Logger(),
	}
}

// CreateDirect returns the existing direct conversation for the pair or
// creates it. Idempotent per unordered pair; a concurrent duplicate loses
// the unique-key race and returns the winner.
func (s *ConversationService) CreateDirect(ctx context.Context, callerID, targetID string) (*domain.Conversation, error) {
	if callerID == targetID {
		return nil, domain.E(domain.CodeSelfConversation, "cannot start a direct conversation with yourself")
	}
	for _, id := range []string{callerID, targetID} {
		if err := s.store.InsertUser(ctx, id); err != nil {
			return nil, err
		}
	}
	existing, err := s.store.FindDirectConversation(ctx, callerID, targetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	key := domain.DirectPairKey(callerID, targetID)
	now := time.Now().UTC()
	conv, _, err := s.store.CreateConversation(ctx, domain.ConversationSeed{
		ID:        uuid.NewString(),
		Kind:      domain.KindDirect,
		DirectKey: &key,
		CreatedAt: now,
		Roster: []domain.RosterEntry{
			{UserID: callerID, Role: domain.RoleMember},
			{UserID: targetID, Role: domain.RoleMember},
		},
	})
	if domain.IsCode(err, domain.CodeStoreConflict) {
		winner, ferr := s.store.FindDirectConversation(ctx, callerID, targetID)
		if ferr == nil && winner != nil {
			return winner, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateGroup creates a group with the caller as admin and the others as
// members, and records a system "created" message in the same transaction.
func (s *ConversationService) CreateGroup(ctx context.Context, callerID, name, description string, others []string) (*domain.Conversation, error) {
	meta, err := domain.NewConversationMetadata(name, description, 0)
	if err != nil {
		return nil, err
	}
	if meta.Title() == "" {
		return nil, domain.E(domain.CodeContentInvalid, "group name is required")
	}

	roster := []domain.RosterEntry{{UserID: callerID, Role: domain.RoleAdmin}}
	seen := map[string]struct{}{callerID: {}}
	for _, id := range others {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		roster = append(roster, domain.RosterEntry{UserID: id, Role: domain.RoleMember})
	}
	if err := validateRosterEntries(domain.KindGroup, roster); err != nil {
		return nil, err
	}
	for _, entry := range roster {
		if err := s.store.InsertUser(ctx, entry.UserID); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	title := meta.Title()
	seed := domain.ConversationSeed{
		ID:        id,
		Kind:      domain.KindGroup,
		Title:     &title,
		CreatedAt: now,
		Roster:    roster,
		System: &domain.MessageDraft{
			ConversationID: id,
			SenderID:       domain.SystemUserID,
			Content:        fmt.Sprintf("%s created the group %q", callerID, title),
			Kind:           domain.MessageSystem,
			SentAt:         now,
		},
	}
	if desc := meta.Description(); desc != "" {
		seed.Description = &desc
	}

	conv, sysMsg, err := s.store.CreateConversation(ctx, seed)
	if err != nil {
		return nil, err
	}
	s.publishSystem(conv.ID, sysMsg)
	return conv, nil
}

// CreateBusiness opens a support thread between a customer and a business,
// optionally staffed with an agent. Pairs are not deduplicated; a customer
// may hold several threads with the same business.
func (s *ConversationService) CreateBusiness(ctx context.Context, customerID, businessID, agentID string) (*domain.Conversation, error) {
	if customerID == businessID {
		return nil, domain.E(domain.CodeSelfConversation, "cannot start a business conversation with yourself")
	}
	roster := []domain.RosterEntry{
		{UserID: customerID, Role: domain.RoleCustomer},
		{UserID: businessID, Role: domain.RoleBusiness},
	}
	if agentID != "" {
		roster = append(roster, domain.RosterEntry{UserID: agentID, Role: domain.RoleAgent})
	}
	if err := validateRosterEntries(domain.KindBusiness, roster); err != nil {
		return nil, err
	}
	for _, entry := range roster {
		if err := s.store.InsertUser(ctx, entry.UserID); err != nil {
			return nil, err
		}
	}

	conv, _, err := s.store.CreateConversation(ctx, domain.ConversationSeed{
		ID:        uuid.NewString(),
		Kind:      domain.KindBusiness,
		CreatedAt: time.Now().UTC(),
		Roster:    roster,
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// AddParticipant adds a user to the roster and records a system "joined"
// message; adding a user who is already present is a no-op. The participant
// cap is checked against the roster as it stands under the conversation
// lock, so concurrent adds cannot overshoot it.
func (s *ConversationService) AddParticipant(ctx context.Context, callerID, conversationID, userID string, role domain.ParticipantRole) (*domain.Participant, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	caller, err := s.requireParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManageParticipants() {
		return nil, domain.E(domain.CodeNotAuthorized, "only admins may manage participants")
	}
	if !domain.RoleAllowedForKind(conv.Kind, role) {
		return nil, domain.Errorf(domain.CodeRoleInvalidForKind, "role %q is not valid in a %s conversation", role, conv.Kind)
	}
	if err := s.store.InsertUser(ctx, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	// Re-read under the lock for the cap check. Re-adds skip it: the store
	// keeps them no-ops and they never grow the roster.
	conv, err = s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(conv, userID) {
		if limit := domain.MaxParticipants(conv.Kind); limit > 0 && len(conv.Participants) >= limit {
			return nil, domain.Errorf(domain.CodeParticipantCountInvalid, "conversation is full (%d participants)", limit)
		}
	}

	now := time.Now().UTC()
	participant, sysMsg, err := s.store.AddParticipant(ctx, conversationID, userID, role, &domain.MessageDraft{
		ConversationID: conversationID,
		SenderID:       domain.SystemUserID,
		Content:        fmt.Sprintf("%s joined the conversation", userID),
		Kind:           domain.MessageSystem,
		SentAt:         now,
	})
	if err != nil {
		return nil, err
	}
	s.publishSystem(conversationID, sysMsg)
	return participant, nil
}

// RemoveParticipant removes a user from the roster and records a system
// "left" message. Callers may remove themselves; removing others needs a
// managing role. Removals whose resulting roster would break the kind's
// membership rules are rejected: a direct pair never shrinks, a group keeps
// 2..8 members and at least one admin, a business thread keeps its customer
// and its business. The user's live connections are detached from the room.
func (s *ConversationService) RemoveParticipant(ctx context.Context, callerID, conversationID, userID string) error {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	caller, err := s.requireParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if callerID != userID && !caller.Role.CanManageParticipants() {
		return domain.E(domain.CodeNotAuthorized, "only admins may remove other participants")
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	// The roster that remains after the removal is validated against the
	// state under the lock, not the earlier authorization read.
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	remaining, present := remainingRoles(conv, userID)
	if !present {
		return domain.E(domain.CodeParticipantNotFound, "participant not found")
	}
	if err := domain.ValidateRoster(conv.Kind, remaining); err != nil {
		return err
	}

	now := time.Now().UTC()
	sysMsg, err := s.store.RemoveParticipant(ctx, conversationID, userID, &domain.MessageDraft{
		ConversationID: conversationID,
		SenderID:       domain.SystemUserID,
		Content:        fmt.Sprintf("%s left the conversation", userID),
		Kind:           domain.MessageSystem,
		SentAt:         now,
	})
	if err != nil {
		return err
	}
	s.publishSystem(conversationID, sysMsg)
	s.publisher.DetachUser(conversationID, userID)
	return nil
}

// UpdateRole changes a participant's role. The resulting roster must still
// satisfy the kind's membership rules, so the last admin of a group cannot
// be demoted and a business thread cannot re-role its only customer or
// business. Check and update run under the conversation lock so concurrent
// demotions serialize.
func (s *ConversationService) UpdateRole(ctx context.Context, callerID, conversationID, userID string, role domain.ParticipantRole) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	caller, err := s.requireParticipant(ctx, conversationID, callerID)
	if err != nil {
		return err
	}
	if !caller.Role.CanManageParticipants() {
		return domain.E(domain.CodeNotAuthorized, "only admins may change roles")
	}
	if !domain.RoleAllowedForKind(conv.Kind, role) {
		return domain.Errorf(domain.CodeRoleInvalidForKind, "role %q is not valid in a %s conversation", role, conv.Kind)
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err = s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	roles, present := rolesAfterChange(conv, userID, role)
	if !present {
		return domain.E(domain.CodeParticipantNotFound, "participant not found")
	}
	if err := domain.ValidateRoster(conv.Kind, roles); err != nil {
		return err
	}
	return s.store.UpdateRole(ctx, conversationID, userID, role)
}

// SetMuted flips the caller's own mute flag. Muted members still send and
// receive; the flag only suppresses notifications upstream.
func (s *ConversationService) SetMuted(ctx context.Context, callerID, conversationID string, muted bool) error {
	err := s.store.SetMuted(ctx, conversationID, callerID, muted)
	if domain.IsCode(err, domain.CodeParticipantNotFound) {
		return domain.E(domain.CodeConversationNotFound, "conversation not found")
	}
	return err
}

// Get returns the decorated conversation. Non-participants get
// ConversationNotFound rather than a hint that the id exists.
func (s *ConversationService) Get(ctx context.Context, callerID, conversationID string) (*ConversationResponse, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(conv, callerID) {
		return nil, domain.E(domain.CodeConversationNotFound, "conversation not found")
	}
	unread, err := s.store.UnreadCount(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	preview, err := s.previewFor(ctx, conv)
	if err != nil {
		return nil, err
	}
	profiles := s.decorate.profiles(ctx, participantIDs(conv))
	return toConversationResponse(conv, callerID, unread, preview, profiles), nil
}

// List returns the caller's conversations ordered by recent activity, each
// with its unread count and a tombstone-aware last-message preview.
func (s *ConversationService) List(ctx context.Context, callerID string, limit, offset int) ([]*ConversationResponse, error) {
	items, err := s.store.ListConversationsForUser(ctx, callerID, limit, offset)
	if err != nil {
		return nil, err
	}

	msgIDs := make([]int64, 0, len(items))
	var userIDs []string
	seen := map[string]struct{}{}
	for _, item := range items {
		if item.Conversation.LastMessageID != nil {
			msgIDs = append(msgIDs, *item.Conversation.LastMessageID)
		}
		for _, p := range item.Conversation.Participants {
			if _, ok := seen[p.UserID]; ok {
				continue
			}
			seen[p.UserID] = struct{}{}
			userIDs = append(userIDs, p.UserID)
		}
	}
	previews, err := s.store.GetMessagesByIDs(ctx, msgIDs)
	if err != nil {
		return nil, err
	}
	profiles := s.decorate.profiles(ctx, userIDs)

	out := make([]*ConversationResponse, 0, len(items))
	for _, item := range items {
		var preview *MessagePreview
		if id := item.Conversation.LastMessageID; id != nil {
			if m, ok := previews[*id]; ok {
				preview = toPreview(m)
			}
		}
		out = append(out, toConversationResponse(item.Conversation, callerID, item.UnreadCount, preview, profiles))
	}
	return out, nil
}

func (s *ConversationService) previewFor(ctx context.Context, conv *domain.Conversation) (*MessagePreview, error) {
	if conv.LastMessageID == nil {
		return nil, nil
	}
	msgs, err := s.store.GetMessagesByIDs(ctx, []int64{*conv.LastMessageID})
	if err != nil {
		return nil, err
	}
	if m, ok := msgs[*conv.LastMessageID]; ok {
		return toPreview(m), nil
	}
	return nil, nil
}

func (s *ConversationService) publishSystem(conversationID string, sysMsg *domain.Message) {
	if sysMsg == nil {
		return
	}
	metrics.MessagesSent.WithLabelValues(string(domain.MessageSystem)).Inc()
	s.publisher.Broadcast(conversationID, newMessageEvent(sysMsg))
}

func (s *ConversationService) requireParticipant(ctx context.Context, conversationID, userID string) (*domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, conversationID, userID)
	if domain.IsCode(err, domain.CodeParticipantNotFound) {
		return nil, domain.E(domain.CodeNotAuthorized, "you are not a participant in this conversation")
	}
	return p, err
}

func isParticipant(conv *domain.Conversation, userID string) bool {
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func participantIDs(conv *domain.Conversation) []string {
	ids := make([]string, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// remainingRoles is the roster's role multiset with userID removed, plus
// whether userID was present at all.
func remainingRoles(conv *domain.Conversation, userID string) ([]domain.ParticipantRole, bool) {
	roles := make([]domain.ParticipantRole, 0, len(conv.Participants))
	present := false
	for _, p := range conv.Participants {
		if p.UserID == userID {
			present = true
			continue
		}
		roles = append(roles, p.Role)
	}
	return roles, present
}

// rolesAfterChange is the roster's role multiset with userID's role swapped
// for role, plus whether userID was present at all.
func rolesAfterChange(conv *domain.Conversation, userID string, role domain.ParticipantRole) ([]domain.ParticipantRole, bool) {
	roles := make([]domain.ParticipantRole, 0, len(conv.Participants))
	present := false
	for _, p := range conv.Participants {
		if p.UserID == userID {
			roles = append(roles, role)
			present = true
			continue
		}
		roles = append(roles, p.Role)
	}
	return roles, present
}

func validateRosterEntries(kind domain.ConversationKind, roster []domain.RosterEntry) error {
	roles := make([]domain.ParticipantRole, 0, len(roster))
	for _, entry := range roster {
		roles = append(roles, entry.Role)
	}
	return domain.ValidateRoster(kind, roles)
}
