package entity

import "github.com/CyberTechArmor/NEON-sub002/pkg/protocol"

// Notification is a user-facing notice delivered over the notification event
type Notification struct {
	Id        string                 `json:"id" gorm:"column:id;primaryKey;size:32"`
	UserId    string                 `json:"user_id" gorm:"column:user_id;index;size:64"`
	Type      string                 `json:"type" gorm:"column:type;size:32"`
	Title     string                 `json:"title" gorm:"column:title"`
	Body      string                 `json:"body" gorm:"column:body;type:text"`
	Data      map[string]interface{} `json:"data" gorm:"column:data;serializer:json"`
	IsRead    bool                   `json:"is_read" gorm:"column:is_read"`
	CreatedAt int64                  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// ToWire converts Notification to its protocol form
func (n *Notification) ToWire() *protocol.Notification {
	return &protocol.Notification{
		Id:        n.Id,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}
}
