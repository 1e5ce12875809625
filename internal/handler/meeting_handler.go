package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

// MeetingHandler handles scheduled meeting requests
type MeetingHandler struct {
	meetingService *service.MeetingService
}

// NewMeetingHandler creates a new MeetingHandler
func NewMeetingHandler(meetingService *service.MeetingService) *MeetingHandler {
	return &MeetingHandler{meetingService: meetingService}
}

// MeetingIdRequest names a single meeting
type MeetingIdRequest struct {
	MeetingId string `json:"meeting_id"`
}

// RespondMeetingRequest represents an invitee's answer
type RespondMeetingRequest struct {
	MeetingId string `json:"meeting_id"`
	Response  string `json:"response"` // accepted, declined or tentative
}

// CreateMeeting handles create meeting request
func (h *MeetingHandler) CreateMeeting(ctx context.Context, c *app.RequestContext) {
	var req service.CreateMeetingRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	meeting, err := h.meetingService.Create(ctx, middleware.GetActor(c), &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, meeting.ToWire())
}

// CancelMeeting handles cancel meeting request
func (h *MeetingHandler) CancelMeeting(ctx context.Context, c *app.RequestContext) {
	var req MeetingIdRequest
	if err := c.BindAndValidate(&req); err != nil || req.MeetingId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.meetingService.Cancel(ctx, middleware.GetActor(c), req.MeetingId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// RespondMeeting handles an invitee response
func (h *MeetingHandler) RespondMeeting(ctx context.Context, c *app.RequestContext) {
	var req RespondMeetingRequest
	if err := c.BindAndValidate(&req); err != nil || req.MeetingId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	resp := entity.MeetingResponse(req.Response)
	if !resp.Valid() {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.meetingService.Respond(ctx, middleware.GetActor(c), req.MeetingId, resp); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
