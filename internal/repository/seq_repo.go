package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
)

// SeqRepo allocates per-conversation sequence numbers. Seq gives messages a
// total order within one conversation only.
type SeqRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewSeqRepo creates a new SeqRepo
func NewSeqRepo(db *gorm.DB, rdb *redis.Client) *SeqRepo {
	return &SeqRepo{db: db, rdb: rdb}
}

func seqKey(conversationId string) string {
	return fmt.Sprintf(constant.RedisKeySeqConversation(), conversationId)
}

// AllocSeq allocates a new sequence number for a conversation using Redis INCR.
// A missing counter is restored from the highest stored seq first.
func (r *SeqRepo) AllocSeq(ctx context.Context, conversationId string) (int64, error) {
	key := seqKey(conversationId)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		maxSeq, err := r.maxStoredSeq(ctx, conversationId)
		if err != nil {
			return 0, err
		}
		// SETNX so a concurrent allocator that got there first is not rewound
		if err := r.rdb.SetNX(ctx, key, maxSeq, 0).Err(); err != nil {
			return 0, err
		}
	}
	return r.rdb.Incr(ctx, key).Result()
}

// GetMaxSeq gets the current max sequence for a conversation
func (r *SeqRepo) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	seq, err := r.rdb.Get(ctx, seqKey(conversationId)).Int64()
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return r.maxStoredSeq(ctx, conversationId)
}

func (r *SeqRepo) maxStoredSeq(ctx context.Context, conversationId string) (int64, error) {
	var maxSeq int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ?", conversationId).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	return maxSeq, err
}
