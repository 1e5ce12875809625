package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

// IntegrationConfigResp is the video integration config served to clients
type IntegrationConfigResp struct {
	Enabled        bool   `json:"enabled"`
	BaseURL        string `json:"base_url"`
	AutoJoin       bool   `json:"auto_join"`
	DefaultQuality string `json:"default_quality"`
}

// IntegrationHandler serves integration configuration
type IntegrationHandler struct {
	cfg config.IntegrationConfig
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(cfg config.IntegrationConfig) *IntegrationHandler {
	return &IntegrationHandler{cfg: cfg}
}

// GetConfig returns the integration config. An integration without an
// endpoint is reported as disabled.
func (h *IntegrationHandler) GetConfig(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, &IntegrationConfigResp{
		Enabled:        h.cfg.Enabled && h.cfg.Configured(),
		BaseURL:        h.cfg.BaseURL,
		AutoJoin:       h.cfg.AutoJoin,
		DefaultQuality: h.cfg.DefaultQuality,
	})
}
