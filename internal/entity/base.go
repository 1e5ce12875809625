package entity

import (
	"strings"
	"time"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

const (
	conversationRoomPrefix = "conv:"
	callRoomPrefix         = "call:"
)

// ConversationRoom returns the broadcast room name for a conversation
func ConversationRoom(conversationId string) string {
	return conversationRoomPrefix + conversationId
}

// CallRoom returns the broadcast room name for a call
func CallRoom(callId string) string {
	return callRoomPrefix + callId
}

// RoomConversationId extracts the conversation id from a conversation room name
func RoomConversationId(room string) (string, bool) {
	if !strings.HasPrefix(room, conversationRoomPrefix) {
		return "", false
	}
	return room[len(conversationRoomPrefix):], true
}
