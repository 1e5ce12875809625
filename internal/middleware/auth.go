package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/response"
)

const (
	// AuthorizationHeader is the header key for authorization
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer token
	BearerPrefix = "Bearer "
	// UserIdKey is the context key for user Id
	UserIdKey = "user_id"
	// PlatformIdKey is the context key for platform Id
	PlatformIdKey = "platform_id"
	// DisplayNameKey is the context key for the display name
	DisplayNameKey = "display_name"
	// TokenKey is the context key for the raw token
	TokenKey = "token"
)

// JWTAuth is the JWT authentication middleware. Tokens revoked in the
// store are refused like invalid ones.
func JWTAuth(secret string, tokens *jwt.TokenStore) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		authHeader := string(c.GetHeader(AuthorizationHeader))
		if authHeader == "" {
			response.Unauthorized(ctx, c, errcode.ErrTokenMissing)
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		claims, err := jwt.ParseToken(tokenString, secret)
		if err != nil {
			if errors.Is(err, errcode.ErrTokenExpired) {
				response.Unauthorized(ctx, c, errcode.ErrTokenExpired)
			} else {
				response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			}
			c.Abort()
			return
		}

		revoked, err := tokens.IsRevoked(ctx, claims.UserId, claims.PlatformId, tokenString)
		if err != nil {
			log.CtxError(ctx, "token status check failed: user_id=%s, error=%v", claims.UserId, err)
			response.ErrorWithCode(ctx, c, errcode.ErrInternalServer)
			c.Abort()
			return
		}
		if revoked {
			response.Unauthorized(ctx, c, errcode.ErrTokenInvalid)
			c.Abort()
			return
		}

		// Store user info in context
		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)
		c.Set(DisplayNameKey, claims.DisplayName)
		c.Set(TokenKey, tokenString)

		c.Next(ctx)
	}
}

// GetUserId gets user Id from context
func GetUserId(c *app.RequestContext) string {
	if v, ok := c.Get(UserIdKey); ok {
		return v.(string)
	}
	return ""
}

// GetPlatformId gets platform Id from context
func GetPlatformId(c *app.RequestContext) int {
	if v, ok := c.Get(PlatformIdKey); ok {
		return v.(int)
	}
	return 0
}

// GetToken gets the raw bearer token from context
func GetToken(c *app.RequestContext) string {
	if v, ok := c.Get(TokenKey); ok {
		return v.(string)
	}
	return ""
}

// GetActor builds the service actor of an authenticated request
func GetActor(c *app.RequestContext) service.Actor {
	actor := service.Actor{UserId: GetUserId(c)}
	if v, ok := c.Get(DisplayNameKey); ok {
		actor.DisplayName, _ = v.(string)
	}
	if actor.DisplayName == "" {
		actor.DisplayName = actor.UserId
	}
	return actor
}
