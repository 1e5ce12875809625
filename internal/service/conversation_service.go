package service

import (
	"context"
	"slices"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
)

// ConversationService decides who may use a conversation. One-to-one
// conversations belong to the two users named in their id. Any other
// conversation is open until it gets its first member, then restricted to
// its member list.
type ConversationService struct {
	members MemberStore
}

// NewConversationService creates a new ConversationService
func NewConversationService(members MemberStore) *ConversationService {
	return &ConversationService{members: members}
}

// CanAccess reports whether the user may join, post in and read the conversation
func (s *ConversationService) CanAccess(ctx context.Context, userId, conversationId string) (bool, error) {
	if a, b, ok := entity.DirectParticipants(conversationId); ok {
		return userId == a || userId == b, nil
	}
	members, err := s.members.Members(ctx, conversationId)
	if err != nil {
		return false, err
	}
	return len(members) == 0 || slices.Contains(members, userId), nil
}

// AddMembers grants users access to a conversation. The actor must already
// have access; adding to an open conversation makes the actor a member too,
// so restricting a room never locks out the one who restricted it.
func (s *ConversationService) AddMembers(ctx context.Context, actor Actor, conversationId string, userIds []string) ([]string, error) {
	if conversationId == "" || len(userIds) == 0 {
		return nil, errcode.ErrInvalidParam
	}
	if _, _, ok := entity.DirectParticipants(conversationId); ok {
		return nil, errcode.ErrInvalidParam.WithMsg("direct conversations have fixed members")
	}

	members, err := s.members.Members(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get members failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if len(members) > 0 && !slices.Contains(members, actor.UserId) {
		return nil, errcode.ErrNoPermission
	}

	add := make([]string, 0, len(userIds)+1)
	if len(members) == 0 {
		add = append(add, actor.UserId)
	}
	for _, id := range userIds {
		if id != "" && !slices.Contains(members, id) && !slices.Contains(add, id) {
			add = append(add, id)
		}
	}
	if err := s.members.AddMembers(ctx, conversationId, actor.UserId, add); err != nil {
		log.CtxError(ctx, "add members failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}

	log.CtxInfo(ctx, "members added: conversation_id=%s, inviter=%s, count=%d", conversationId, actor.UserId, len(add))
	return append(members, add...), nil
}
