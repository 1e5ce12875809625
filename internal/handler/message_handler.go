package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

// MessageHandler handles message-related requests. Sending goes over the
// websocket; edits, deletes and reactions come through here.
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// EditMessageRequest represents edit message request
type EditMessageRequest struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

// MessageIdRequest names a single message
type MessageIdRequest struct {
	MessageId string `json:"message_id"`
}

// ReactionRequest represents add/remove reaction request
type ReactionRequest struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// EditMessage handles edit message request
func (h *MessageHandler) EditMessage(ctx context.Context, c *app.RequestContext) {
	var req EditMessageRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Edit(ctx, middleware.GetActor(c), req.MessageId, req.Content)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, msg.ToWire())
}

// DeleteMessage handles delete message request
func (h *MessageHandler) DeleteMessage(ctx context.Context, c *app.RequestContext) {
	var req MessageIdRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.msgService.Delete(ctx, middleware.GetActor(c), req.MessageId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// AddReaction handles add reaction request
func (h *MessageHandler) AddReaction(ctx context.Context, c *app.RequestContext) {
	var req ReactionRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.msgService.AddReaction(ctx, middleware.GetActor(c), req.MessageId, req.Emoji); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// RemoveReaction handles remove reaction request
func (h *MessageHandler) RemoveReaction(ctx context.Context, c *app.RequestContext) {
	var req ReactionRequest
	if err := c.BindAndValidate(&req); err != nil || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.msgService.RemoveReaction(ctx, middleware.GetActor(c), req.MessageId, req.Emoji); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
