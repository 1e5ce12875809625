package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// CallRepo stores call history
type CallRepo struct {
	db *gorm.DB
}

// NewCallRepo creates a new CallRepo
func NewCallRepo(db *gorm.DB) *CallRepo {
	return &CallRepo{db: db}
}

// Save upserts the call row and its participants
func (r *CallRepo) Save(ctx context.Context, rec *entity.CallRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error; err != nil {
			return err
		}
		for i := range rec.Participants {
			p := &rec.Participants[i]
			p.CallId = rec.Id
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "call_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"display_name", "status", "joined_at", "left_at"}),
			}).Create(p).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a call with its participants
func (r *CallRepo) Get(ctx context.Context, id string) (*entity.CallRecord, error) {
	var rec entity.CallRecord
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns the latest calls a user took part in
func (r *CallRepo) ListByUser(ctx context.Context, userId string, limit int) ([]*entity.CallRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []*entity.CallRecord
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", r.db.Model(&entity.CallParticipantRecord{}).Select("call_id").Where("user_id = ?", userId)).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
