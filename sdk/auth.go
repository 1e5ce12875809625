package sdk

import "context"

// Logout revokes the current token and drops the caller's realtime
// connections on this platform. The stored token is cleared on success.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/session/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}
