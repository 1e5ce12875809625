package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
)

// TokenRevoker records revoked tokens
type TokenRevoker interface {
	Revoke(ctx context.Context, userId string, platformId int, token string, status int) error
}

// Kicker closes live connections of a user. A negative platformId means all platforms.
type Kicker interface {
	Kick(ctx context.Context, userId string, platformId int) int
}

// AuthService ends sessions. Tokens are issued by the identity provider;
// this service only revokes them and drops the connections they opened.
type AuthService struct {
	tokens TokenRevoker
	kicker Kicker
}

// NewAuthService creates a new AuthService
func NewAuthService(tokens TokenRevoker) *AuthService {
	return &AuthService{tokens: tokens}
}

// SetKicker sets the connection kicker
func (s *AuthService) SetKicker(k Kicker) {
	s.kicker = k
}

// Logout invalidates a user's token and closes that platform's connections
func (s *AuthService) Logout(ctx context.Context, userId string, platformId int, token string) error {
	if userId == "" || token == "" {
		return errcode.ErrInvalidParam
	}
	if err := s.tokens.Revoke(ctx, userId, platformId, token, jwt.TokenStatusLogout); err != nil {
		log.CtxError(ctx, "invalidate token failed: %v", err)
		return errcode.ErrInternalServer
	}

	kicked := 0
	if s.kicker != nil {
		kicked = s.kicker.Kick(ctx, userId, platformId)
	}
	log.CtxInfo(ctx, "user logged out: user_id=%s, platform_id=%d, conns=%d", userId, platformId, kicked)
	return nil
}
