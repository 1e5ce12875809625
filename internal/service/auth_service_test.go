package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
)

type revoked struct {
	userId     string
	platformId int
	token      string
	status     int
}

type fakeRevoker struct {
	got []revoked
	err error
}

func (f *fakeRevoker) Revoke(_ context.Context, userId string, platformId int, token string, status int) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, revoked{userId, platformId, token, status})
	return nil
}

type fakeKicker struct{ kicked []string }

func (f *fakeKicker) Kick(_ context.Context, userId string, platformId int) int {
	f.kicked = append(f.kicked, userId)
	return 1
}

func TestLogoutRevokesAndKicks(t *testing.T) {
	tokens := &fakeRevoker{}
	kicker := &fakeKicker{}
	svc := NewAuthService(tokens)
	svc.SetKicker(kicker)

	require.NoError(t, svc.Logout(context.Background(), "alice", 5, "tok"))
	assert.Equal(t, []revoked{{"alice", 5, "tok", jwt.TokenStatusLogout}}, tokens.got)
	assert.Equal(t, []string{"alice"}, kicker.kicked)
}

func TestLogoutFailures(t *testing.T) {
	svc := NewAuthService(&fakeRevoker{err: errors.New("redis down")})
	assert.ErrorIs(t, svc.Logout(context.Background(), "alice", 5, "tok"), errcode.ErrInternalServer)
	assert.ErrorIs(t, svc.Logout(context.Background(), "", 5, "tok"), errcode.ErrInvalidParam)
}
