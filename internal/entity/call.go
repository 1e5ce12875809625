package entity

// CallRecord is the persisted history row of a call
type CallRecord struct {
	Id             string `json:"id" gorm:"column:id;primaryKey;size:32"`
	InitiatorId    string `json:"initiator_id" gorm:"column:initiator_id;index;size:64"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;index"`
	IsVideo        bool   `json:"is_video" gorm:"column:is_video"`
	RoomName       string `json:"room_name" gorm:"column:room_name"`
	Status         string `json:"status" gorm:"column:status;size:16"`
	EndReason      string `json:"end_reason" gorm:"column:end_reason;size:16"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at"`
	ConnectedAt    int64  `json:"connected_at" gorm:"column:connected_at"`
	EndedAt        int64  `json:"ended_at" gorm:"column:ended_at"`

	Participants []CallParticipantRecord `json:"participants" gorm:"foreignKey:CallId;references:Id"`
}

// TableName returns the table name for CallRecord
func (CallRecord) TableName() string {
	return "calls"
}

// CallParticipantRecord is one participant row of a call
type CallParticipantRecord struct {
	Id          int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	CallId      string `json:"call_id" gorm:"column:call_id;uniqueIndex:uk_call_user,priority:1;size:32"`
	UserId      string `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_call_user,priority:2;size:64"`
	DisplayName string `json:"display_name" gorm:"column:display_name"`
	Status      string `json:"status" gorm:"column:status;size:16"`
	JoinedAt    int64  `json:"joined_at" gorm:"column:joined_at"`
	LeftAt      int64  `json:"left_at" gorm:"column:left_at"`
}

// TableName returns the table name for CallParticipantRecord
func (CallParticipantRecord) TableName() string {
	return "call_participants"
}
