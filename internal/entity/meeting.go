package entity

import "github.com/CyberTechArmor/NEON-sub002/pkg/protocol"

// MeetingStatus is the lifecycle state of a scheduled meeting
type MeetingStatus string

const (
	MeetingScheduled  MeetingStatus = "scheduled"
	MeetingInProgress MeetingStatus = "in_progress"
	MeetingEnded      MeetingStatus = "ended"
	MeetingCancelled  MeetingStatus = "cancelled"
)

// MeetingResponse is an invitee's answer to a meeting invite
type MeetingResponse string

const (
	ResponsePending   MeetingResponse = "pending"
	ResponseAccepted  MeetingResponse = "accepted"
	ResponseDeclined  MeetingResponse = "declined"
	ResponseTentative MeetingResponse = "tentative"
)

// Valid reports whether r is an answer an invitee may give
func (r MeetingResponse) Valid() bool {
	return r == ResponseAccepted || r == ResponseDeclined || r == ResponseTentative
}

// Meeting represents a scheduled meeting
type Meeting struct {
	Id           string        `json:"id" gorm:"column:id;primaryKey;size:32"`
	Title        string        `json:"title" gorm:"column:title"`
	Description  string        `json:"description" gorm:"column:description;type:text"`
	OrganizerId  string        `json:"organizer_id" gorm:"column:organizer_id;index"`
	RoomName     string        `json:"room_name" gorm:"column:room_name"`
	StartAt      int64         `json:"start_at" gorm:"column:start_at;index"`
	EndAt        int64         `json:"end_at" gorm:"column:end_at"`
	Recurrence   string        `json:"recurrence" gorm:"column:recurrence"` // cron expression, empty for one-off
	Status       MeetingStatus `json:"status" gorm:"column:status;index;size:16"`
	ReminderSent bool          `json:"reminder_sent" gorm:"column:reminder_sent"`
	StartingSent bool          `json:"starting_sent" gorm:"column:starting_sent"`
	CreatedAt    int64         `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt    int64         `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`

	Participants []MeetingParticipant `json:"participants" gorm:"foreignKey:MeetingId;references:Id"`
}

// TableName returns the table name for Meeting
func (Meeting) TableName() string {
	return "meetings"
}

// MeetingParticipant is one invitee and their response
type MeetingParticipant struct {
	Id        int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MeetingId string          `json:"meeting_id" gorm:"column:meeting_id;uniqueIndex:uk_meeting_user,priority:1;size:32"`
	UserId    string          `json:"user_id" gorm:"column:user_id;uniqueIndex:uk_meeting_user,priority:2;size:64"`
	Response  MeetingResponse `json:"response" gorm:"column:response;size:16"`
}

// TableName returns the table name for MeetingParticipant
func (MeetingParticipant) TableName() string {
	return "meeting_participants"
}

// UserIds returns organizer and invitees, organizer first
func (m *Meeting) UserIds() []string {
	ids := []string{m.OrganizerId}
	for _, p := range m.Participants {
		if p.UserId != m.OrganizerId {
			ids = append(ids, p.UserId)
		}
	}
	return ids
}

// ToWire converts Meeting to its protocol form
func (m *Meeting) ToWire() protocol.MeetingData {
	data := protocol.MeetingData{
		Id:           m.Id,
		Title:        m.Title,
		Description:  m.Description,
		OrganizerId:  m.OrganizerId,
		RoomName:     m.RoomName,
		StartAt:      m.StartAt,
		EndAt:        m.EndAt,
		Recurrence:   m.Recurrence,
		Status:       string(m.Status),
		Participants: make([]protocol.MeetingParticipant, 0, len(m.Participants)),
	}
	for _, p := range m.Participants {
		data.Participants = append(data.Participants, protocol.MeetingParticipant{
			UserId:   p.UserId,
			Response: string(p.Response),
		})
	}
	return data
}
