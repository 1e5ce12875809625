package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/events"
	"github.com/CyberTechArmor/NEON-sub002/internal/metrics"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/idgen"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

const maxEmojiLen = 32

// MessageService handles message-related business logic
type MessageService struct {
	msgs      MessageStore
	seqs      SeqAllocator
	ids       idgen.IDGenerator
	access    AccessChecker
	publisher events.Publisher
	pusher    Pusher
}

// NewMessageService creates a new MessageService. A nil access checker
// leaves every conversation open.
func NewMessageService(msgs MessageStore, seqs SeqAllocator, ids idgen.IDGenerator, access AccessChecker, publisher events.Publisher) *MessageService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &MessageService{msgs: msgs, seqs: seqs, ids: ids, access: access, publisher: publisher}
}

// SetPusher sets the event pusher
func (s *MessageService) SetPusher(pusher Pusher) {
	s.pusher = pusher
}

// Send stores a message and broadcasts it to the conversation room. A send
// repeating a (sender, tempId) pair returns the stored message instead of
// creating a second one.
func (s *MessageService) Send(ctx context.Context, actor Actor, req *protocol.MessageSendReq) (*entity.Message, error) {
	if req.ConversationId == "" || req.TempId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if strings.TrimSpace(req.Content) == "" && len(req.FileIds) == 0 {
		return nil, errcode.ErrEmptyMessage
	}
	if err := s.checkAccess(ctx, actor.UserId, req.ConversationId); err != nil {
		return nil, err
	}

	existing, err := s.msgs.GetByClientMsgId(ctx, actor.UserId, req.TempId)
	if err != nil {
		log.CtxError(ctx, "check idempotency failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if existing != nil {
		log.CtxDebug(ctx, "duplicate message: temp_id=%s, msg_id=%s", req.TempId, existing.Id)
		return existing, nil
	}

	seq, err := s.seqs.AllocSeq(ctx, req.ConversationId)
	if err != nil {
		log.CtxError(ctx, "alloc seq failed: conversation_id=%s, error=%v", req.ConversationId, err)
		return nil, errcode.ErrSeqAllocFailed
	}
	id, err := s.ids.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}

	msg := &entity.Message{
		Id:                id,
		ConversationId:    req.ConversationId,
		Seq:               seq,
		ClientMsgId:       req.TempId,
		SenderId:          actor.UserId,
		SenderDisplayName: actor.DisplayName,
		Content:           req.Content,
		FileIds:           req.FileIds,
		ReplyToId:         req.ReplyToId,
		CreatedAt:         entity.NowUnixMilli(),
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		// a concurrent duplicate may have won the unique key
		if stored, getErr := s.msgs.GetByClientMsgId(ctx, actor.UserId, req.TempId); getErr == nil && stored != nil {
			return stored, nil
		}
		log.CtxError(ctx, "create message failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	metrics.MessagesSent.Inc()
	if s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventMessageReceived, msg.ToWire(), actor.ConnId)
	}
	_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMessageSent, Key: msg.ConversationId, Payload: msg.ToWire()})

	log.CtxInfo(ctx, "message sent: sender_id=%s, conversation_id=%s, seq=%d", actor.UserId, msg.ConversationId, msg.Seq)
	return msg, nil
}

func (s *MessageService) checkAccess(ctx context.Context, userId, conversationId string) error {
	if s.access == nil {
		return nil
	}
	ok, err := s.access.CanAccess(ctx, userId, conversationId)
	if err != nil {
		log.CtxError(ctx, "check conversation access failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrInternalServer
	}
	if !ok {
		return errcode.ErrNoPermission
	}
	return nil
}

func (s *MessageService) ownMessage(ctx context.Context, userId, messageId string) (*entity.Message, error) {
	msg, err := s.liveMessage(ctx, messageId)
	if err != nil {
		return nil, err
	}
	if msg.SenderId != userId {
		return nil, errcode.ErrNotMessageOwner
	}
	return msg, nil
}

func (s *MessageService) liveMessage(ctx context.Context, messageId string) (*entity.Message, error) {
	if messageId == "" {
		return nil, errcode.ErrInvalidParam
	}
	msg, err := s.msgs.GetById(ctx, messageId)
	if err != nil {
		log.CtxError(ctx, "get message failed: msg_id=%s, error=%v", messageId, err)
		return nil, errcode.ErrInternalServer
	}
	if msg == nil || msg.IsDeleted {
		return nil, errcode.ErrMessageNotFound
	}
	return msg, nil
}

// Edit replaces the content of a message the actor sent
func (s *MessageService) Edit(ctx context.Context, actor Actor, messageId, content string) (*entity.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errcode.ErrEmptyMessage
	}
	msg, err := s.ownMessage(ctx, actor.UserId, messageId)
	if err != nil {
		return nil, err
	}

	now := entity.NowUnixMilli()
	if err := s.msgs.UpdateContent(ctx, msg.Id, content, now); err != nil {
		log.CtxError(ctx, "edit message failed: msg_id=%s, error=%v", msg.Id, err)
		return nil, errcode.ErrInternalServer
	}
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = now

	if s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventMessageEdited, msg.ToWire(), "")
	}
	_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMessageEdited, Key: msg.ConversationId, Payload: msg.ToWire()})
	return msg, nil
}

// Delete soft-deletes a message the actor sent
func (s *MessageService) Delete(ctx context.Context, actor Actor, messageId string) error {
	msg, err := s.ownMessage(ctx, actor.UserId, messageId)
	if err != nil {
		return err
	}
	if err := s.msgs.MarkDeleted(ctx, msg.Id); err != nil {
		log.CtxError(ctx, "delete message failed: msg_id=%s, error=%v", msg.Id, err)
		return errcode.ErrInternalServer
	}

	delta := &protocol.MessageDeleted{MessageId: msg.Id, ConversationId: msg.ConversationId}
	if s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventMessageDeleted, delta, "")
	}
	_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMessageDeleted, Key: msg.ConversationId, Payload: delta})
	return nil
}

func validEmoji(emoji string) bool {
	return emoji != "" && len(emoji) <= maxEmojiLen && strings.TrimSpace(emoji) == emoji
}

// AddReaction adds the actor's emoji to a message. Adding the same emoji
// twice is a no-op and broadcasts nothing.
func (s *MessageService) AddReaction(ctx context.Context, actor Actor, messageId, emoji string) error {
	if !validEmoji(emoji) {
		return errcode.ErrInvalidParam
	}
	msg, err := s.liveMessage(ctx, messageId)
	if err != nil {
		return err
	}
	if err := s.checkAccess(ctx, actor.UserId, msg.ConversationId); err != nil {
		return err
	}
	added, err := s.msgs.AddReaction(ctx, &entity.MessageReaction{
		MessageId:       msg.Id,
		UserId:          actor.UserId,
		UserDisplayName: actor.DisplayName,
		Emoji:           emoji,
	})
	if err != nil {
		log.CtxError(ctx, "add reaction failed: msg_id=%s, error=%v", msg.Id, err)
		return errcode.ErrInternalServer
	}
	if added && s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventReactionAdded,
			reactionPayload(msg, actor, emoji), "")
	}
	return nil
}

// RemoveReaction removes the actor's emoji from a message
func (s *MessageService) RemoveReaction(ctx context.Context, actor Actor, messageId, emoji string) error {
	if !validEmoji(emoji) {
		return errcode.ErrInvalidParam
	}
	msg, err := s.liveMessage(ctx, messageId)
	if err != nil {
		return err
	}
	removed, err := s.msgs.RemoveReaction(ctx, msg.Id, actor.UserId, emoji)
	if err != nil {
		log.CtxError(ctx, "remove reaction failed: msg_id=%s, error=%v", msg.Id, err)
		return errcode.ErrInternalServer
	}
	if removed && s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventReactionRemoved,
			reactionPayload(msg, actor, emoji), "")
	}
	return nil
}

func reactionPayload(msg *entity.Message, actor Actor, emoji string) *protocol.Reaction {
	return &protocol.Reaction{
		MessageId:       msg.Id,
		ConversationId:  msg.ConversationId,
		UserId:          actor.UserId,
		UserDisplayName: actor.DisplayName,
		Emoji:           emoji,
	}
}

// MarkRead records a read receipt and broadcasts it to the conversation. It
// is best-effort: callers log the error and carry on.
func (s *MessageService) MarkRead(ctx context.Context, actor Actor, req *protocol.MessageRead) error {
	if req.MessageId == "" {
		return errcode.ErrInvalidParam
	}
	msg, err := s.liveMessage(ctx, req.MessageId)
	if err != nil {
		return err
	}
	if req.ConversationId != "" && req.ConversationId != msg.ConversationId {
		return errcode.ErrInvalidParam
	}
	if err := s.checkAccess(ctx, actor.UserId, msg.ConversationId); err != nil {
		return err
	}

	receipt := &entity.ReadReceipt{
		UserId:         actor.UserId,
		MessageId:      msg.Id,
		ConversationId: msg.ConversationId,
		ReadAt:         entity.NowUnixMilli(),
	}
	created, err := s.msgs.SaveReceipt(ctx, receipt)
	if err != nil {
		return errors.Join(errcode.ErrInternalServer, err)
	}
	if created && s.pusher != nil {
		s.pusher.PushToRoom(ctx, entity.ConversationRoom(msg.ConversationId), protocol.EventReadReceipt, receipt.ToWire(), "")
	}
	return nil
}
