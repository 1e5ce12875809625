package protocol

// Timestamps on the wire are unix milliseconds.

// AuthReq is the auth handshake payload
type AuthReq struct {
	Token string `json:"token"`
}

// AuthAck is the reply to auth
type AuthAck struct {
	Success bool   `json:"success"`
	UserId  string `json:"userId,omitempty"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PresenceUpdate is sent by a client to change its own presence
type PresenceUpdate struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PresenceBroadcast is the server -> client form of presence:update
type PresenceBroadcast struct {
	UserId       string `json:"userId"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// MessageSendReq is the message:send payload
type MessageSendReq struct {
	ConversationId string   `json:"conversationId"`
	Content        string   `json:"content,omitempty"`
	FileIds        []string `json:"fileIds,omitempty"`
	ReplyToId      string   `json:"replyToId,omitempty"`
	TempId         string   `json:"tempId"`
}

// MessageSendAck is the reply to message:send
type MessageSendAck struct {
	Success bool         `json:"success"`
	Message *MessageData `json:"message,omitempty"`
	TempId  string       `json:"tempId"`
	Error   string       `json:"error,omitempty"`
}

// ReactionGroup aggregates the users who reacted with one emoji
type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIds []string `json:"userIds"`
}

// MessageData is a server-confirmed message
type MessageData struct {
	Id                string          `json:"id"`
	ConversationId    string          `json:"conversationId"`
	Seq               int64           `json:"seq"`
	SenderId          string          `json:"senderId"`
	SenderDisplayName string          `json:"senderDisplayName,omitempty"`
	Content           string          `json:"content,omitempty"`
	FileIds           []string        `json:"fileIds,omitempty"`
	ReplyToId         string          `json:"replyToId,omitempty"`
	Reactions         []ReactionGroup `json:"reactions,omitempty"`
	IsEdited          bool            `json:"isEdited"`
	IsDeleted         bool            `json:"isDeleted"`
	CreatedAt         int64           `json:"createdAt"`
	EditedAt          int64           `json:"editedAt,omitempty"`
	TempId            string          `json:"tempId,omitempty"`
}

// MessageDeleted is the message:deleted delta
type MessageDeleted struct {
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId"`
}

// Reaction is the message:reaction:added/removed payload
type Reaction struct {
	MessageId       string `json:"messageId"`
	ConversationId  string `json:"conversationId"`
	UserId          string `json:"userId"`
	UserDisplayName string `json:"userDisplayName"`
	Emoji           string `json:"emoji"`
}

// TypingIndicator is the typing:indicator payload
type TypingIndicator struct {
	UserId         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	ConversationId string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MessageRead is the message:read payload
type MessageRead struct {
	ConversationId string `json:"conversationId"`
	MessageId      string `json:"messageId"`
}

// ReadReceipt is the read:receipt payload
type ReadReceipt struct {
	UserId         string `json:"userId"`
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId,omitempty"`
	ReadAt         int64  `json:"readAt"`
}

// CallInitiateReq is the call:initiate payload
type CallInitiateReq struct {
	ParticipantIds []string `json:"participantIds"`
	ConversationId string   `json:"conversationId,omitempty"`
	IsVideo        bool     `json:"isVideo,omitempty"`
}

// CallAck is the reply to call:initiate and call:answer
type CallAck struct {
	Success  bool      `json:"success"`
	Call     *CallData `json:"call,omitempty"`
	JoinUrl  string    `json:"joinUrl"`
	Token    string    `json:"token"`
	RoomName string    `json:"roomName"`
	Error    string    `json:"error,omitempty"`
}

// CallParticipant is one participant's sub-state
type CallParticipant struct {
	UserId      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Status      string `json:"status"`
}

// CallData is the wire form of a call
type CallData struct {
	Id             string            `json:"id"`
	InitiatorId    string            `json:"initiatorId"`
	ConversationId string            `json:"conversationId,omitempty"`
	IsVideo        bool              `json:"isVideo"`
	RoomName       string            `json:"roomName"`
	Status         string            `json:"status"`
	EndReason      string            `json:"endReason,omitempty"`
	Participants   []CallParticipant `json:"participants"`
	CreatedAt      int64             `json:"createdAt"`
	ConnectedAt    int64             `json:"connectedAt,omitempty"`
	EndedAt        int64             `json:"endedAt,omitempty"`
}

// CallEnded is the call:ended payload
type CallEnded struct {
	CallId string `json:"callId"`
	Reason string `json:"reason"`
}

// CallParticipantEvent is the call:participant:joined/left payload
type CallParticipantEvent struct {
	CallId      string          `json:"callId"`
	Participant CallParticipant `json:"participant"`
}

// MeetingParticipant carries one invitee's response
type MeetingParticipant struct {
	UserId   string `json:"userId"`
	Response string `json:"response"`
}

// MeetingData is the wire form of a scheduled meeting
type MeetingData struct {
	Id           string               `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	OrganizerId  string               `json:"organizerId"`
	RoomName     string               `json:"roomName"`
	StartAt      int64                `json:"startAt"`
	EndAt        int64                `json:"endAt"`
	Recurrence   string               `json:"recurrence,omitempty"`
	Status       string               `json:"status"`
	Participants []MeetingParticipant `json:"participants"`
}

// MeetingEvent is the payload of every meeting:* event
type MeetingEvent struct {
	Meeting      MeetingData `json:"meeting"`
	MinutesUntil int         `json:"minutesUntil,omitempty"`
	InvitedBy    string      `json:"invitedBy,omitempty"`
}

// Notification is the notification payload
type Notification struct {
	Id        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt int64                  `json:"createdAt"`
}
