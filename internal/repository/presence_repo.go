package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
)

// PresenceRepo keeps each user's last presence in a Redis hash so other
// gateway nodes and restarts see it
type PresenceRepo struct {
	rdb *redis.Client
}

// NewPresenceRepo creates a new PresenceRepo
func NewPresenceRepo(rdb *redis.Client) *PresenceRepo {
	return &PresenceRepo{rdb: rdb}
}

func presenceKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyPresence(), userId)
}

// Set stores a presence state
func (r *PresenceRepo) Set(ctx context.Context, s entity.PresenceState) error {
	return r.rdb.HSet(ctx, presenceKey(s.UserId),
		"status", string(s.Status),
		"message", s.Message,
		"last_active_at", s.LastActiveAt,
	).Err()
}

// Get loads a presence state; ok is false when none is stored
func (r *PresenceRepo) Get(ctx context.Context, userId string) (entity.PresenceState, bool, error) {
	vals, err := r.rdb.HGetAll(ctx, presenceKey(userId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.PresenceState{}, false, nil
		}
		return entity.PresenceState{}, false, err
	}
	if len(vals) == 0 {
		return entity.PresenceState{}, false, nil
	}
	lastActive, _ := strconv.ParseInt(vals["last_active_at"], 10, 64)
	return entity.PresenceState{
		UserId:       userId,
		Status:       entity.PresenceStatus(vals["status"]),
		Message:      vals["message"],
		LastActiveAt: lastActive,
	}, true, nil
}
