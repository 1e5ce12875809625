package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/gateway"
	"github.com/CyberTechArmor/NEON-sub002/internal/handler"
	"github.com/CyberTechArmor/NEON-sub002/internal/metrics"
	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
)

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer, tokens *jwt.TokenStore) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"status":       "ok",
			"online_users": wsServer.GetOnlineUserCount(),
			"online_conns": wsServer.GetOnlineConnCount(),
		})
	})

	if cfg.Metrics.Enabled {
		metrics.Init()
		h.GET(cfg.Metrics.Path, metrics.Handler())
	}

	auth := middleware.JWTAuth(cfg.JWT.Secret, tokens)

	h.GET("/integration/config", auth, handlers.Integration.GetConfig)

	sessionGroup := h.Group("/session", auth)
	{
		sessionGroup.POST("/logout", handlers.Auth.Logout)
	}

	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/edit", handlers.Message.EditMessage)
		msgGroup.POST("/delete", handlers.Message.DeleteMessage)
		msgGroup.POST("/reaction/add", handlers.Message.AddReaction)
		msgGroup.POST("/reaction/remove", handlers.Message.RemoveReaction)
	}

	convGroup := h.Group("/conversation", auth)
	{
		convGroup.POST("/members/add", handlers.Conversation.AddMembers)
	}

	meetingGroup := h.Group("/meeting", auth)
	{
		meetingGroup.POST("/create", handlers.Meeting.CreateMeeting)
		meetingGroup.POST("/cancel", handlers.Meeting.CancelMeeting)
		meetingGroup.POST("/respond", handlers.Meeting.RespondMeeting)
	}

	presenceGroup := h.Group("/presence", auth)
	{
		presenceGroup.GET("/online", handlers.Presence.GetOnline)
	}

	// WebSocket route; authentication happens in the first frame
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// If no origin header, allow (same-origin request or non-browser client)
	if origin == "" {
		return true
	}

	return middleware.OriginAllowed(origin, allowedOrigins)
}

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	Message      *handler.MessageHandler
	Meeting      *handler.MeetingHandler
	Integration  *handler.IntegrationHandler
	Presence     *handler.PresenceHandler
	Conversation *handler.ConversationHandler
}
