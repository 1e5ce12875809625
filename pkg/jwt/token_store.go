package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
)

// Token status constants
const (
	TokenStatusNormal  = 1 // Token is valid
	TokenStatusKicked  = 2 // Token was kicked by an operator
	TokenStatusExpired = 3 // Token expired
	TokenStatusLogout  = 4 // Token was logged out
)

// TokenStore tracks revoked tokens in Redis. Tokens are issued elsewhere, so
// an unknown token is treated as valid and only explicit revocations count.
type TokenStore struct {
	rdb          *redis.Client
	accessExpire time.Duration
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(rdb *redis.Client, expireHours int) *TokenStore {
	return &TokenStore{
		rdb:          rdb,
		accessExpire: time.Duration(expireHours) * time.Hour,
	}
}

// tokenKey generates Redis key for user's tokens on a platform
func (s *TokenStore) tokenKey(userId string, platformId int) string {
	return fmt.Sprintf(constant.RedisKeyToken(), userId, platformId)
}

// Revoke marks a token as logged out
func (s *TokenStore) Revoke(ctx context.Context, userId string, platformId int, token string, status int) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	key := s.tokenKey(userId, platformId)

	if err := s.rdb.HSet(ctx, key, token, status).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if err := s.rdb.Expire(ctx, key, s.accessExpire).Err(); err != nil {
		return fmt.Errorf("failed to set token expiration: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token was kicked or logged out
func (s *TokenStore) IsRevoked(ctx context.Context, userId string, platformId int, token string) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, nil
	}
	statusStr, err := s.rdb.HGet(ctx, s.tokenKey(userId, platformId), token).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get token status: %w", err)
	}

	status, err := strconv.Atoi(statusStr)
	if err != nil {
		return false, fmt.Errorf("invalid token status value: %w", err)
	}
	return status != TokenStatusNormal, nil
}
