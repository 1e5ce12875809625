package sdk

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	var cfg IntegrationConfig
	err := decodeResponse([]byte(`{"code":0,"msg":"success","data":{"enabled":true,"base_url":"https://meet.test","auto_join":true,"default_quality":"720p"}}`), &cfg)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Configured())
	assert.Equal(t, "720p", cfg.DefaultQuality)

	require.NoError(t, decodeResponse([]byte(`{"code":0,"msg":"success","data":null}`), &cfg))
	require.NoError(t, decodeResponse([]byte(`{"code":0,"msg":"success"}`), nil))
}

func TestDecodeResponseErrors(t *testing.T) {
	err := decodeResponse([]byte(`{"code":2002,"msg":"token expired"}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, CodeTokenExpired, CodeOf(err))
	assert.Equal(t, CodeTokenExpired, CodeOf(fmt.Errorf("logout: %w", err)))

	err = decodeResponse([]byte(`<html>bad gateway</html>`), nil)
	require.Error(t, err)
	assert.Equal(t, -1, CodeOf(err))

	var out []UserPresence
	err = decodeResponse([]byte(`{"code":0,"data":{"not":"a list"}}`), &out)
	assert.Error(t, err)
}

func TestErrorMatching(t *testing.T) {
	assert.True(t, errors.Is(NewError(CodeMeetingNotFound, "gone"), ErrMeetingNotFound))
	assert.False(t, errors.Is(NewError(CodeMeetingNotFound, "gone"), ErrMessageNotFound))
	assert.True(t, NewError(CodeSuccess, "").IsSuccess())
}

func TestGetOnlineNeedsUsers(t *testing.T) {
	c := MustNewClient("http://localhost:0", WithToken("t"))
	assert.Equal(t, "t", c.GetToken())

	_, err := c.GetOnline(context.Background())
	assert.ErrorIs(t, err, ErrInvalidParam)
}
