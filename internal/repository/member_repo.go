package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

// MemberRepo is the repository for conversation membership
type MemberRepo struct {
	db *gorm.DB
}

// NewMemberRepo creates a new MemberRepo
func NewMemberRepo(db *gorm.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

// Members lists the user ids of a conversation in join order
func (r *MemberRepo) Members(ctx context.Context, conversationId string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.ConversationMember{}).
		Where("conversation_id = ?", conversationId).
		Order("id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// AddMembers inserts the users, skipping those already present
func (r *MemberRepo) AddMembers(ctx context.Context, conversationId, inviterId string, userIds []string) error {
	if len(userIds) == 0 {
		return nil
	}
	now := entity.NowUnixMilli()
	rows := make([]*entity.ConversationMember, 0, len(userIds))
	for _, id := range userIds {
		rows = append(rows, &entity.ConversationMember{
			ConversationId: conversationId,
			UserId:         id,
			InviterUserId:  inviterId,
			JoinedAt:       now,
		})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}
