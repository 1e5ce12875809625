package sdk

import "context"

// CreateMeeting schedules a meeting and invites its participants
func (c *Client) CreateMeeting(ctx context.Context, req *CreateMeetingRequest) (*MeetingInfo, error) {
	var result MeetingInfo
	if err := c.post(ctx, "/meeting/create", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelMeeting cancels a meeting the caller organizes
func (c *Client) CancelMeeting(ctx context.Context, meetingId string) error {
	return c.post(ctx, "/meeting/cancel", map[string]string{"meeting_id": meetingId}, nil)
}

// RespondMeeting answers an invitation with accepted, declined or tentative
func (c *Client) RespondMeeting(ctx context.Context, meetingId, response string) error {
	return c.post(ctx, "/meeting/respond", map[string]string{"meeting_id": meetingId, "response": response}, nil)
}
