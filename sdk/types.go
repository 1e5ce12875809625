package sdk

import (
	"encoding/json"

	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IntegrationConfig is the video integration configuration served by the backend
type IntegrationConfig struct {
	Enabled        bool   `json:"enabled"`
	BaseURL        string `json:"base_url"`
	AutoJoin       bool   `json:"auto_join"`
	DefaultQuality string `json:"default_quality"`
}

// Configured reports whether the backend has an integration endpoint at all
func (c *IntegrationConfig) Configured() bool {
	return c.BaseURL != ""
}

// MessageInfo is a message as returned by the REST surface
type MessageInfo = protocol.MessageData

// MeetingInfo is a meeting as returned by the REST surface
type MeetingInfo = protocol.MeetingData

// EditMessageRequest replaces a message's content
type EditMessageRequest struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

// ReactionRequest adds or removes one emoji
type ReactionRequest struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// AddMembersRequest grants users access to a conversation
type AddMembersRequest struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// Members is a conversation's member list
type Members struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// CreateMeetingRequest schedules a meeting
type CreateMeetingRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	StartAt        int64    `json:"start_at"` // unix millis
	EndAt          int64    `json:"end_at"`
	Recurrence     string   `json:"recurrence,omitempty"` // cron expression, evaluated in UTC
	ParticipantIds []string `json:"participant_ids"`
}

// Meeting responses
const (
	MeetingAccepted  = "accepted"
	MeetingDeclined  = "declined"
	MeetingTentative = "tentative"
)

// UserPresence is one row of the presence query
type UserPresence struct {
	UserId       string `json:"user_id"`
	Online       bool   `json:"online"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	LastActiveAt int64  `json:"last_active_at,omitempty"`
}
