package sdk

import "context"

// AddMembers restricts a conversation to a member list, or grows it. The
// caller joins the list when the conversation was open.
func (c *Client) AddMembers(ctx context.Context, conversationId string, userIds ...string) ([]string, error) {
	var out Members
	if err := c.post(ctx, "/conversation/members/add", &AddMembersRequest{ConversationId: conversationId, UserIds: userIds}, &out); err != nil {
		return nil, err
	}
	return out.UserIds, nil
}
