package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// MeetingRepo stores scheduled meetings
type MeetingRepo struct {
	db *gorm.DB
}

// NewMeetingRepo creates a new MeetingRepo
func NewMeetingRepo(db *gorm.DB) *MeetingRepo {
	return &MeetingRepo{db: db}
}

// Create stores a meeting and its participants
func (r *MeetingRepo) Create(ctx context.Context, m *entity.Meeting) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get returns a meeting with its participants
func (r *MeetingRepo) Get(ctx context.Context, id string) (*entity.Meeting, error) {
	var m entity.Meeting
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Update stores the schedule, status and notice flags of a meeting
func (r *MeetingRepo) Update(ctx context.Context, m *entity.Meeting) error {
	return r.db.WithContext(ctx).
		Model(&entity.Meeting{}).
		Where("id = ?", m.Id).
		Updates(map[string]interface{}{
			"start_at":      m.StartAt,
			"end_at":        m.EndAt,
			"status":        m.Status,
			"reminder_sent": m.ReminderSent,
			"starting_sent": m.StartingSent,
		}).Error
}

// SetResponse records an invitee's answer
func (r *MeetingRepo) SetResponse(ctx context.Context, meetingId, userId string, resp entity.MeetingResponse) error {
	p := &entity.MeetingParticipant{MeetingId: meetingId, UserId: userId, Response: resp}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meeting_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"response"}),
	}).Create(p).Error
}

// ListActive returns scheduled and running meetings that start before the
// given time, for the scheduler tick
func (r *MeetingRepo) ListActive(ctx context.Context, startBefore int64) ([]*entity.Meeting, error) {
	var ms []*entity.Meeting
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("status IN ? AND start_at <= ?", []entity.MeetingStatus{entity.MeetingScheduled, entity.MeetingInProgress}, startBefore).
		Order("start_at ASC").
		Find(&ms).Error
	return ms, err
}
