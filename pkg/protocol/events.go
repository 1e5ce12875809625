package protocol

// Version of the event vocabulary. Bumped on any incompatible payload change.
const Version = 1

// Client -> server events
const (
	EventAuth              = "auth"
	EventPresenceUpdate    = "presence:update" // also server -> client
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageRead       = "message:read"
	EventCallInitiate      = "call:initiate"
	EventCallAnswer        = "call:answer"
	EventCallDecline       = "call:decline"
	EventCallCancel        = "call:cancel"
	EventCallEnd           = "call:end"
)

// Server -> client events
const (
	EventMessageReceived       = "message:received"
	EventMessageEdited         = "message:edited"
	EventMessageDeleted        = "message:deleted"
	EventReactionAdded         = "message:reaction:added"
	EventReactionRemoved       = "message:reaction:removed"
	EventTypingIndicator       = "typing:indicator"
	EventReadReceipt           = "read:receipt"
	EventCallIncoming          = "call:incoming"
	EventCallEnded             = "call:ended"
	EventCallParticipantJoined = "call:participant:joined"
	EventCallParticipantLeft   = "call:participant:left"
	EventMeetingStarting       = "meeting:starting"
	EventMeetingStarted        = "meeting:started"
	EventMeetingEnded          = "meeting:ended"
	EventMeetingReminder       = "meeting:reminder"
	EventMeetingInvite         = "meeting:invite"
	EventNotification          = "notification"
)

// EventAck carries the reply to an ack-bearing request. It is the only
// envelope whose routing is by AckId rather than by event name.
const EventAck = "ack"

// Direction of an event on the wire
type Direction uint8

const (
	ClientToServer Direction = 1 << iota
	ServerToClient
)

var catalog = map[string]Direction{
	EventAuth:              ClientToServer,
	EventPresenceUpdate:    ClientToServer | ServerToClient,
	EventConversationJoin:  ClientToServer,
	EventConversationLeave: ClientToServer,
	EventMessageSend:       ClientToServer,
	EventTypingStart:       ClientToServer,
	EventTypingStop:        ClientToServer,
	EventMessageRead:       ClientToServer,
	EventCallInitiate:      ClientToServer,
	EventCallAnswer:        ClientToServer,
	EventCallDecline:       ClientToServer,
	EventCallCancel:        ClientToServer,
	EventCallEnd:           ClientToServer,

	EventMessageReceived:       ServerToClient,
	EventMessageEdited:         ServerToClient,
	EventMessageDeleted:        ServerToClient,
	EventReactionAdded:         ServerToClient,
	EventReactionRemoved:       ServerToClient,
	EventTypingIndicator:       ServerToClient,
	EventReadReceipt:           ServerToClient,
	EventCallIncoming:          ServerToClient,
	EventCallEnded:             ServerToClient,
	EventCallParticipantJoined: ServerToClient,
	EventCallParticipantLeft:   ServerToClient,
	EventMeetingStarting:       ServerToClient,
	EventMeetingStarted:        ServerToClient,
	EventMeetingEnded:          ServerToClient,
	EventMeetingReminder:       ServerToClient,
	EventMeetingInvite:         ServerToClient,
	EventNotification:          ServerToClient,
}

// acked lists the only requests that get a correlated reply
var acked = map[string]bool{
	EventAuth:         true,
	EventMessageSend:  true,
	EventCallInitiate: true,
	EventCallAnswer:   true,
}

// Known reports whether name is part of the catalog
func Known(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Accepts reports whether an event may travel in direction d
func Accepts(name string, d Direction) bool {
	return catalog[name]&d != 0
}

// RequiresAck reports whether the event carries an acknowledgment
func RequiresAck(name string) bool {
	return acked[name]
}
