package service

import (
	"context"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// Pusher delivers server -> client events. The gateway implements it.
type Pusher interface {
	// PushToUsers sends to every connection of the users except excludeConnId
	PushToUsers(ctx context.Context, userIds []string, event string, payload interface{}, excludeConnId string)
	// PushToRoom sends to every connection subscribed to room except excludeConnId
	PushToRoom(ctx context.Context, room string, event string, payload interface{}, excludeConnId string)
}

// OnlineChecker answers whether a user has a live connection
type OnlineChecker interface {
	IsOnline(ctx context.Context, userId string) bool
}

// Actor is the authenticated user behind a request
type Actor struct {
	UserId      string
	DisplayName string
	ConnId      string // originating connection, empty for REST
}

// MessageStore persists messages, reactions and receipts
type MessageStore interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error)
	GetById(ctx context.Context, id string) (*entity.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt int64) error
	MarkDeleted(ctx context.Context, id string) error
	AddReaction(ctx context.Context, reaction *entity.MessageReaction) (bool, error)
	RemoveReaction(ctx context.Context, messageId, userId, emoji string) (bool, error)
	SaveReceipt(ctx context.Context, receipt *entity.ReadReceipt) (bool, error)
}

// SeqAllocator hands out per-conversation sequence numbers
type SeqAllocator interface {
	AllocSeq(ctx context.Context, conversationId string) (int64, error)
}

// CallStore persists call history
type CallStore interface {
	Save(ctx context.Context, rec *entity.CallRecord) error
}

// MeetingStore persists meetings
type MeetingStore interface {
	Create(ctx context.Context, m *entity.Meeting) error
	Get(ctx context.Context, id string) (*entity.Meeting, error)
	Update(ctx context.Context, m *entity.Meeting) error
	SetResponse(ctx context.Context, meetingId, userId string, resp entity.MeetingResponse) error
	ListActive(ctx context.Context, startBefore int64) ([]*entity.Meeting, error)
}

// NotificationStore persists notifications
type NotificationStore interface {
	Create(ctx context.Context, n *entity.Notification) error
}

// PresenceStore shares presence between gateway nodes
type PresenceStore interface {
	Set(ctx context.Context, s entity.PresenceState) error
	Get(ctx context.Context, userId string) (entity.PresenceState, bool, error)
}

// MemberStore persists conversation membership
type MemberStore interface {
	Members(ctx context.Context, conversationId string) ([]string, error)
	AddMembers(ctx context.Context, conversationId, inviterId string, userIds []string) error
}

// AccessChecker answers whether a user may read and post in a conversation
type AccessChecker interface {
	CanAccess(ctx context.Context, userId, conversationId string) (bool, error)
}
