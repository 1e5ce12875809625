package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

const maxPresenceQuery = 200

// PresenceReader answers presence queries. The gateway implements it.
type PresenceReader interface {
	IsOnline(ctx context.Context, userId string) bool
	Presence(userId string) (entity.PresenceState, bool)
}

// PresenceHandler handles presence queries
type PresenceHandler struct {
	reader PresenceReader
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(reader PresenceReader) *PresenceHandler {
	return &PresenceHandler{reader: reader}
}

// UserPresence is one row of the online query
type UserPresence struct {
	UserId       string `json:"user_id"`
	Online       bool   `json:"online"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	LastActiveAt int64  `json:"last_active_at,omitempty"`
}

// GetOnline handles GET /presence/online?user_ids=a,b
func (h *PresenceHandler) GetOnline(ctx context.Context, c *app.RequestContext) {
	raw := c.Query("user_ids")
	if raw == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	userIds := strings.Split(raw, ",")
	if len(userIds) > maxPresenceQuery {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	out := make([]UserPresence, 0, len(userIds))
	for _, userId := range userIds {
		userId = strings.TrimSpace(userId)
		if userId == "" {
			continue
		}
		row := UserPresence{UserId: userId, Status: string(entity.PresenceOffline)}
		row.Online = h.reader.IsOnline(ctx, userId)
		if st, ok := h.reader.Presence(userId); ok {
			row.Status = string(st.Status)
			row.Message = st.Message
			row.LastActiveAt = st.LastActiveAt
		} else if row.Online {
			row.Status = string(entity.PresenceOnline)
		}
		out = append(out, row)
	}

	response.Success(ctx, c, out)
}
