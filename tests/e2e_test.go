// Package tests drives a running server end to end through the SDK. The
// suite is skipped unless TEST_BASE_URL points at a server; TEST_JWT_SECRET
// must match the server's jwt.secret.
package tests

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/callsignal"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
	"github.com/CyberTechArmor/NEON-sub002/sdk"
	"github.com/CyberTechArmor/NEON-sub002/sdk/realtime"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

type testConfig struct {
	BaseURL string
	Secret  string
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func loadConfig(t *testing.T) testConfig {
	t.Helper()
	base := os.Getenv("TEST_BASE_URL")
	if base == "" {
		t.Skip("TEST_BASE_URL not set")
	}
	return testConfig{BaseURL: strings.TrimRight(base, "/"), Secret: getEnvOrDefault("TEST_JWT_SECRET", "change-me")}
}

func (c testConfig) wsURL() string {
	return "ws" + strings.TrimPrefix(c.BaseURL, "http") + "/ws"
}

// user is one signed-in client: REST plus a live session
type user struct {
	id       string
	token    string
	api      *sdk.Client
	session  *realtime.Session
	pipeline *realtime.Pipeline
	calls    *realtime.Calls
}

func newUser(t *testing.T, cfg testConfig, name string) *user {
	t.Helper()
	id := name + "-" + uuid.NewString()[:8]
	token, err := jwt.GenerateToken(id, 1, name, cfg.Secret, 1)
	require.NoError(t, err)

	api, err := sdk.NewClient(cfg.BaseURL, sdk.WithToken(token))
	require.NoError(t, err)

	s := realtime.NewSession(realtime.Options{URL: cfg.wsURL()})
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Connect(ctx, token))
	require.Equal(t, id, s.UserId())

	return &user{
		id:       id,
		token:    token,
		api:      api,
		session:  s,
		pipeline: realtime.NewPipeline(s),
		calls:    realtime.NewCalls(s),
	}
}

func TestRejectsForgedToken(t *testing.T) {
	cfg := loadConfig(t)
	token, err := jwt.GenerateToken("mallory", 1, "Mallory", "not-the-secret", 1)
	require.NoError(t, err)

	s := realtime.NewSession(realtime.Options{URL: cfg.wsURL()})
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	err = s.Connect(ctx, token)
	require.Error(t, err)
	assert.True(t, realtime.IsAuthError(err))
}

func TestMessageRoundTrip(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")
	bob := newUser(t, cfg, "bob")
	conv := "e2e-" + uuid.NewString()

	require.NoError(t, alice.session.Join(conv))
	require.NoError(t, bob.session.Join(conv))

	tempId, err := alice.pipeline.Send(realtime.SendRequest{ConversationId: conv, Content: "hello bob"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(alice.pipeline.Pending(conv)) == 0 }, waitFor, tick)
	_, stillPending := alice.pipeline.Outgoing(tempId)
	assert.False(t, stillPending)

	require.Eventually(t, func() bool { return len(bob.pipeline.Messages(conv)) == 1 }, waitFor, tick)
	msg := bob.pipeline.Messages(conv)[0]
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, alice.id, msg.SenderId)

	ctx := context.Background()
	require.NoError(t, bob.api.AddReaction(ctx, msg.Id, "👍"))
	require.Eventually(t, func() bool {
		m, ok := alice.pipeline.Message(conv, msg.Id)
		return ok && len(m.Reactions) == 1 && m.Reactions[0].Count == 1
	}, waitFor, tick)

	_, err = alice.api.EditMessage(ctx, msg.Id, "hello bob!")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		m, _ := bob.pipeline.Message(conv, msg.Id)
		return m.Content == "hello bob!" && m.IsEdited
	}, waitFor, tick)
}

func TestMembersOnlyConversation(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")
	bob := newUser(t, cfg, "bob")
	mallory := newUser(t, cfg, "mallory")
	conv := "e2e-" + uuid.NewString()

	members, err := alice.api.AddMembers(context.Background(), conv, bob.id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{alice.id, bob.id}, members)

	tempId, err := mallory.pipeline.Send(realtime.SendRequest{ConversationId: conv, Content: "let me in"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		out, ok := mallory.pipeline.Outgoing(tempId)
		return ok && out.Status == realtime.SendFailed
	}, waitFor, tick)
}

func TestPresenceAndTyping(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")
	bob := newUser(t, cfg, "bob")
	conv := "e2e-" + uuid.NewString()
	require.NoError(t, alice.session.Join(conv))
	require.NoError(t, bob.session.Join(conv))

	require.NoError(t, bob.session.SetPresence(entity.PresenceDND, "focus"))
	require.Eventually(t, func() bool {
		return alice.session.Presence(bob.id).State.Status == entity.PresenceDND
	}, waitFor, tick)

	online, err := alice.api.GetOnline(context.Background(), bob.id)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.True(t, online[0].Online)
	assert.Equal(t, "dnd", online[0].Status)

	tracker := realtime.NewTracker(bob.session, 0)
	defer tracker.Close()
	typing := realtime.NewTypingEmitter(alice.session, 0)
	typing.Keystroke(conv)
	require.Eventually(t, func() bool { return tracker.IsTyping(alice.id, conv) }, waitFor, tick)
	typing.Stop(conv)
	require.Eventually(t, func() bool { return !tracker.IsTyping(alice.id, conv) }, waitFor, tick)
}

func TestDeclinedCall(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")
	bob := newUser(t, cfg, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	ack, err := alice.calls.Initiate(ctx, &protocol.CallInitiateReq{ParticipantIds: []string{bob.id}, IsVideo: true})
	require.NoError(t, err)
	require.NotNil(t, ack.Call)
	assert.NotEmpty(t, ack.RoomName)
	callId := ack.Call.Id

	require.Eventually(t, func() bool {
		_, ok := bob.calls.Get(callId)
		return ok
	}, waitFor, tick)
	require.NoError(t, bob.calls.Decline(callId))

	require.Eventually(t, func() bool {
		call, _ := alice.calls.Get(callId)
		return call.Status == string(callsignal.StatusEnded)
	}, waitFor, tick)
	call, _ := alice.calls.Get(callId)
	assert.Equal(t, string(callsignal.ReasonDeclined), call.EndReason)
}

func TestIntegrationConfig(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")

	ic, err := alice.api.FetchIntegrationConfig(context.Background())
	require.NoError(t, err)
	if ic.Enabled {
		assert.True(t, ic.Configured())
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	cfg := loadConfig(t)
	alice := newUser(t, cfg, "alice")
	ctx := context.Background()

	require.NoError(t, alice.api.Logout(ctx))
	alice.api.SetToken(alice.token)
	_, err := alice.api.FetchIntegrationConfig(ctx)
	if err == nil {
		t.Skip("server runs without a token store")
	}
	assert.Equal(t, sdk.CodeTokenInvalid, sdk.CodeOf(err))
}
