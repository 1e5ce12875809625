package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
)

const issuer = "neon-realtime"

// Claims represents JWT claims
type Claims struct {
	UserId      string `json:"user_id"`
	PlatformId  int    `json:"platform_id"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// RoomClaims is carried by call join tokens
type RoomClaims struct {
	UserId      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Room        string `json:"room"`
	Moderator   bool   `json:"moderator"`
	jwt.RegisteredClaims
}

// GenerateToken generates a new JWT token
func GenerateToken(userId string, platformId int, displayName, secret string, expireHours int) (string, error) {
	claims := Claims{
		UserId:      userId,
		PlatformId:  platformId,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken parses and validates a JWT token.
// Expired tokens yield ErrTokenExpired so callers can tell a refresh apart
// from a forged token.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errcode.ErrTokenExpired
		}
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.UserId == "" {
			return nil, errcode.ErrTokenInvalid
		}
		return claims, nil
	}

	return nil, errcode.ErrTokenInvalid
}

// GenerateRoomToken signs a short-lived token granting access to a call room
func GenerateRoomToken(userId, displayName, room string, moderator bool, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RoomClaims{
		UserId:      userId,
		DisplayName: displayName,
		Room:        room,
		Moderator:   moderator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   room,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseRoomToken validates a call join token
func ParseRoomToken(tokenString, secret string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}
	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}
