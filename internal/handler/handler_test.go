package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalconfig "github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/middleware"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
)

type fakeReader struct {
	online map[string]bool
	states map[string]entity.PresenceState
}

func (r *fakeReader) IsOnline(_ context.Context, userId string) bool { return r.online[userId] }

func (r *fakeReader) Presence(userId string) (entity.PresenceState, bool) {
	st, ok := r.states[userId]
	return st, ok
}

type envelope[T any] struct {
	Code int `json:"code"`
	Data T   `json:"data"`
}

func get[T any](t *testing.T, e *route.Engine, url string) envelope[T] {
	t.Helper()
	w := ut.PerformRequest(e, http.MethodGet, url, nil)
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var out envelope[T]
	require.NoError(t, json.Unmarshal(resp.Body(), &out))
	return out
}

func TestGetOnline(t *testing.T) {
	h := NewPresenceHandler(&fakeReader{
		online: map[string]bool{"a": true, "b": true},
		states: map[string]entity.PresenceState{
			"b": {Status: entity.PresenceDND, Message: "focus", LastActiveAt: 42},
			"c": {Status: entity.PresenceOffline, LastActiveAt: 7},
		},
	})
	e := route.NewEngine(config.NewOptions(nil))
	e.GET("/presence/online", h.GetOnline)

	out := get[[]UserPresence](t, e, "/presence/online?user_ids=a,b,%20,c,d")
	require.Equal(t, 0, out.Code)
	assert.Equal(t, []UserPresence{
		{UserId: "a", Online: true, Status: "online"},
		{UserId: "b", Online: true, Status: "dnd", Message: "focus", LastActiveAt: 42},
		{UserId: "c", Status: "offline", LastActiveAt: 7},
		{UserId: "d", Status: "offline"},
	}, out.Data)
}

func TestGetOnlineValidation(t *testing.T) {
	e := route.NewEngine(config.NewOptions(nil))
	e.GET("/presence/online", NewPresenceHandler(&fakeReader{}).GetOnline)

	out := get[json.RawMessage](t, e, "/presence/online")
	assert.Equal(t, errcode.ErrInvalidParam.Code, out.Code)

	ids := make([]string, maxPresenceQuery+1)
	for i := range ids {
		ids[i] = "u"
	}
	out = get[json.RawMessage](t, e, "/presence/online?user_ids="+strings.Join(ids, ","))
	assert.Equal(t, errcode.ErrInvalidParam.Code, out.Code)
}

func TestIntegrationConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     internalconfig.IntegrationConfig
		enabled bool
	}{
		{"enabled", internalconfig.IntegrationConfig{Enabled: true, BaseURL: "https://meet.test", DefaultQuality: "720p"}, true},
		{"no endpoint", internalconfig.IntegrationConfig{Enabled: true}, false},
		{"switched off", internalconfig.IntegrationConfig{BaseURL: "https://meet.test"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := route.NewEngine(config.NewOptions(nil))
			e.GET("/integration/config", NewIntegrationHandler(tc.cfg).GetConfig)

			out := get[IntegrationConfigResp](t, e, "/integration/config")
			require.Equal(t, 0, out.Code)
			assert.Equal(t, tc.enabled, out.Data.Enabled)
			assert.Equal(t, tc.cfg.BaseURL, out.Data.BaseURL)
		})
	}
}

type memberList map[string][]string

func (m memberList) Members(_ context.Context, conversationId string) ([]string, error) {
	return m[conversationId], nil
}

func (m memberList) AddMembers(_ context.Context, conversationId, _ string, userIds []string) error {
	m[conversationId] = append(m[conversationId], userIds...)
	return nil
}

func postAs[T any](t *testing.T, e *route.Engine, userId, url, body string) envelope[T] {
	t.Helper()
	w := ut.PerformRequest(e, http.MethodPost, url, &ut.Body{Body: strings.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
		ut.Header{Key: "X-User", Value: userId})
	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var out envelope[T]
	require.NoError(t, json.Unmarshal(resp.Body(), &out))
	return out
}

func TestAddMembers(t *testing.T) {
	h := NewConversationHandler(service.NewConversationService(memberList{}))
	e := route.NewEngine(config.NewOptions(nil))
	e.POST("/conversation/members/add", func(ctx context.Context, c *app.RequestContext) {
		c.Set(middleware.UserIdKey, string(c.GetHeader("X-User")))
		c.Next(ctx)
	}, h.AddMembers)

	url := "/conversation/members/add"
	out := postAs[AddMembersResponse](t, e, "alice", url, `{"conversation_id":"c1","user_ids":["bob"]}`)
	require.Equal(t, 0, out.Code)
	assert.Equal(t, []string{"alice", "bob"}, out.Data.UserIds)

	out = postAs[AddMembersResponse](t, e, "carol", url, `{"conversation_id":"c1","user_ids":["carol"]}`)
	assert.Equal(t, errcode.ErrNoPermission.Code, out.Code)

	out = postAs[AddMembersResponse](t, e, "alice", url, `{"conversation_id":"c1"}`)
	assert.Equal(t, errcode.ErrInvalidParam.Code, out.Code)
}
