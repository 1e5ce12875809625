package entity

import "strings"

const directConversationPrefix = "si_"

// ConversationMember grants a user access to a conversation. A conversation
// with no member rows is open to every authenticated user.
type ConversationMember struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:uk_conv_user,priority:1;size:128"`
	UserId         string `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_conv_user,priority:2;size:64"`
	InviterUserId  string `json:"inviter_user_id" gorm:"column:inviter_user_id;size:64"`
	JoinedAt       int64  `json:"joined_at" gorm:"column:joined_at"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for ConversationMember
func (ConversationMember) TableName() string {
	return "conversation_members"
}

// DirectConversationId builds the id of the one-to-one conversation between
// two users: si_{userA}:{userB} with userA < userB.
func DirectConversationId(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return directConversationPrefix + userA + ":" + userB
}

// DirectParticipants returns the two users of a one-to-one conversation id
func DirectParticipants(conversationId string) (string, string, bool) {
	if !strings.HasPrefix(conversationId, directConversationPrefix) {
		return "", "", false
	}
	a, b, ok := strings.Cut(conversationId[len(directConversationPrefix):], ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
