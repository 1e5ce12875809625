package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

// ConversationHandler handles conversation membership requests
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// AddMembersRequest represents add members request
type AddMembersRequest struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// AddMembersResponse lists the conversation's members after the change
type AddMembersResponse struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// AddMembers handles add members request
func (h *ConversationHandler) AddMembers(ctx context.Context, c *app.RequestContext) {
	var req AddMembersRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	members, err := h.convService.AddMembers(ctx, middleware.GetActor(c), req.ConversationId, req.UserIds)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, &AddMembersResponse{ConversationId: req.ConversationId, UserIds: members})
}
