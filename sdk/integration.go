package sdk

import (
	"context"
	"strings"
)

// FetchIntegrationConfig loads the video integration configuration
func (c *Client) FetchIntegrationConfig(ctx context.Context) (*IntegrationConfig, error) {
	var result IntegrationConfig
	if err := c.get(ctx, "/integration/config", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOnline queries the presence of up to 200 users
func (c *Client) GetOnline(ctx context.Context, userIds ...string) ([]UserPresence, error) {
	if len(userIds) == 0 {
		return nil, ErrInvalidParam
	}
	var result []UserPresence
	if err := c.get(ctx, "/presence/online", map[string]string{"user_ids": strings.Join(userIds, ",")}, &result); err != nil {
		return nil, err
	}
	return result, nil
}
