package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

// AuthHandler handles session requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Logout revokes the caller's token and closes the connections it opened
func (h *AuthHandler) Logout(ctx context.Context, c *app.RequestContext) {
	err := h.authService.Logout(ctx, middleware.GetUserId(c), middleware.GetPlatformId(c), middleware.GetToken(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}
