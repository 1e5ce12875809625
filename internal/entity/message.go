package entity

import (
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Message represents a persisted chat message
type Message struct {
	Id                string   `json:"id" gorm:"column:id;primaryKey;size:32"`
	ConversationId    string   `json:"conversation_id" gorm:"column:conversation_id;index:idx_conv_seq,priority:1"`
	Seq               int64    `json:"seq" gorm:"column:seq;index:idx_conv_seq,priority:2"`
	ClientMsgId       string   `json:"client_msg_id" gorm:"column:client_msg_id;uniqueIndex:uk_sender_client,priority:2;size:64"`
	SenderId          string   `json:"sender_id" gorm:"column:sender_id;uniqueIndex:uk_sender_client,priority:1;size:64"`
	SenderDisplayName string   `json:"sender_display_name" gorm:"column:sender_display_name"`
	Content           string   `json:"content" gorm:"column:content;type:text"`
	FileIds           []string `json:"file_ids" gorm:"column:file_ids;serializer:json"`
	ReplyToId         string   `json:"reply_to_id" gorm:"column:reply_to_id"`
	IsEdited          bool     `json:"is_edited" gorm:"column:is_edited"`
	IsDeleted         bool     `json:"is_deleted" gorm:"column:is_deleted"`
	CreatedAt         int64    `json:"created_at" gorm:"column:created_at"`
	EditedAt          int64    `json:"edited_at" gorm:"column:edited_at"`
	UpdatedAt         int64    `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`

	Reactions []MessageReaction `json:"reactions,omitempty" gorm:"foreignKey:MessageId;references:Id"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// HasBody reports whether the message carries text or at least one file
func (m *Message) HasBody() bool {
	return m.Content != "" || len(m.FileIds) > 0
}

// MessageReaction is one user's emoji on a message
type MessageReaction struct {
	Id              int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId       string `json:"message_id" gorm:"column:message_id;uniqueIndex:uk_reaction,priority:1;size:32"`
	UserId          string `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_reaction,priority:2;size:64"`
	Emoji           string `json:"emoji" gorm:"column:emoji;uniqueIndex:uk_reaction,priority:3;size:32"`
	UserDisplayName string `json:"user_display_name" gorm:"column:user_display_name"`
	CreatedAt       int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for MessageReaction
func (MessageReaction) TableName() string {
	return "message_reactions"
}

// GroupReactions folds individual reactions into per-emoji groups, keeping
// the order in which each emoji first appeared.
func GroupReactions(reactions []MessageReaction) []protocol.ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	index := make(map[string]int)
	groups := make([]protocol.ReactionGroup, 0)
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, protocol.ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].UserIds = append(groups[i].UserIds, r.UserId)
		groups[i].Count++
	}
	return groups
}

// ToWire converts Message to its protocol form
func (m *Message) ToWire() *protocol.MessageData {
	data := &protocol.MessageData{
		Id:                m.Id,
		ConversationId:    m.ConversationId,
		Seq:               m.Seq,
		SenderId:          m.SenderId,
		SenderDisplayName: m.SenderDisplayName,
		Content:           m.Content,
		FileIds:           m.FileIds,
		ReplyToId:         m.ReplyToId,
		Reactions:         GroupReactions(m.Reactions),
		IsEdited:          m.IsEdited,
		IsDeleted:         m.IsDeleted,
		CreatedAt:         m.CreatedAt,
		EditedAt:          m.EditedAt,
		TempId:            m.ClientMsgId,
	}
	if m.IsDeleted {
		data.Content = ""
		data.FileIds = nil
	}
	return data
}

// ReadReceipt records that a user has read a message
type ReadReceipt struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UserId         string `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_receipt,priority:1;size:64"`
	MessageId      string `json:"message_id" gorm:"column:message_id;uniqueIndex:uk_receipt,priority:2;size:32"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id"`
	ReadAt         int64  `json:"read_at" gorm:"column:read_at"`
}

// TableName returns the table name for ReadReceipt
func (ReadReceipt) TableName() string {
	return "read_receipts"
}

// ToWire converts ReadReceipt to its protocol form
func (r *ReadReceipt) ToWire() *protocol.ReadReceipt {
	return &protocol.ReadReceipt{
		UserId:         r.UserId,
		MessageId:      r.MessageId,
		ConversationId: r.ConversationId,
		ReadAt:         r.ReadAt,
	}
}
