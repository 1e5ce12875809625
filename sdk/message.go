package sdk

import "context"

// EditMessage replaces the content of a message the caller sent
func (c *Client) EditMessage(ctx context.Context, messageId, content string) (*MessageInfo, error) {
	var result MessageInfo
	if err := c.post(ctx, "/msg/edit", &EditMessageRequest{MessageId: messageId, Content: content}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteMessage soft-deletes a message the caller sent
func (c *Client) DeleteMessage(ctx context.Context, messageId string) error {
	return c.post(ctx, "/msg/delete", map[string]string{"message_id": messageId}, nil)
}

// AddReaction adds an emoji to a message
func (c *Client) AddReaction(ctx context.Context, messageId, emoji string) error {
	return c.post(ctx, "/msg/reaction/add", &ReactionRequest{MessageId: messageId, Emoji: emoji}, nil)
}

// RemoveReaction removes the caller's emoji from a message
func (c *Client) RemoveReaction(ctx context.Context, messageId, emoji string) error {
	return c.post(ctx, "/msg/reaction/remove", &ReactionRequest{MessageId: messageId, Emoji: emoji}, nil)
}
