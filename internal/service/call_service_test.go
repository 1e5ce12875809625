package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

type callFixture struct {
	svc      *CallService
	clock    clockwork.FakeClock
	pusher   *fakePusher
	notifier *fakeNotifier
	store    *fakeCalls
}

func newCallFixture(online ...string) *callFixture {
	on := fakeOnline{}
	for _, uid := range online {
		on[uid] = true
	}
	f := &callFixture{
		clock:    clockwork.NewFakeClock(),
		pusher:   &fakePusher{},
		notifier: &fakeNotifier{},
		store:    &fakeCalls{},
	}
	cfg := config.CallConfig{
		RingTimeout:     45 * time.Second,
		MaxParticipants: 4,
		JoinBaseURL:     "https://meet.test/",
		RoomSecret:      "room-secret",
		TokenTTL:        time.Hour,
		DeniedUsers:     []string{"guest"},
	}
	f.svc = NewCallService(cfg, f.clock, &seqIds{}, f.store, on, f.notifier, nil)
	f.svc.SetPusher(f.pusher)
	return f
}

func (f *callFixture) initiate(t *testing.T, from string, to ...string) *protocol.CallAck {
	t.Helper()
	ack, err := f.svc.Initiate(context.Background(), Actor{UserId: from}, &protocol.CallInitiateReq{ParticipantIds: to})
	require.NoError(t, err)
	return ack
}

func endedReasons(p *fakePusher) []string {
	var out []string
	for _, x := range p.byEvent(protocol.EventCallEnded) {
		out = append(out, x.payload.(*protocol.CallEnded).Reason)
	}
	return out
}

func TestInitiateUnreachableCreatesNothing(t *testing.T) {
	f := newCallFixture("alice", "bob")
	_, err := f.svc.Initiate(context.Background(), Actor{UserId: "alice"}, &protocol.CallInitiateReq{ParticipantIds: []string{"bob", "carol"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrParticipantOffline)
	assert.Equal(t, "unreachable", err.(*errcode.Error).Msg)

	assert.Empty(t, f.pusher.byEvent(protocol.EventCallIncoming))
	assert.Empty(t, f.store.recs)
	_, inCall := f.svc.ActiveCall("alice")
	assert.False(t, inCall)
}

func TestInitiateValidation(t *testing.T) {
	f := newCallFixture("alice", "b", "c", "d", "e")
	ctx := context.Background()
	_, err := f.svc.Initiate(ctx, Actor{UserId: "alice"}, &protocol.CallInitiateReq{ParticipantIds: []string{"alice"}})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
	_, err = f.svc.Initiate(ctx, Actor{UserId: "alice"}, &protocol.CallInitiateReq{ParticipantIds: []string{"b", "c", "d", "e"}})
	assert.ErrorIs(t, err, errcode.ErrCallCapacity)
	_, err = f.svc.Initiate(ctx, Actor{UserId: "guest"}, &protocol.CallInitiateReq{ParticipantIds: []string{"b"}})
	assert.ErrorIs(t, err, errcode.ErrCallPermission)
	assert.Empty(t, f.pusher.byEvent(protocol.EventCallIncoming))
}

func TestCallHappyPath(t *testing.T) {
	f := newCallFixture("alice", "bob")
	ctx := context.Background()

	ack := f.initiate(t, "alice", "bob")
	assert.True(t, ack.Success)
	require.NotNil(t, ack.Call)
	assert.Equal(t, "ringing", ack.Call.Status)
	assert.True(t, strings.HasPrefix(ack.JoinUrl, "https://meet.test/neon-"))
	claims, err := jwt.ParseRoomToken(ack.Token, "room-secret")
	require.NoError(t, err)
	assert.Equal(t, ack.RoomName, claims.Room)
	assert.True(t, claims.Moderator)

	incoming := f.pusher.byEvent(protocol.EventCallIncoming)
	require.Len(t, incoming, 1)
	assert.Equal(t, []string{"bob"}, incoming[0].users)

	answer, err := f.svc.Answer(ctx, Actor{UserId: "bob"}, ack.Call.Id)
	require.NoError(t, err)
	assert.Equal(t, "connected", answer.Call.Status)
	assert.Equal(t, ack.RoomName, answer.RoomName)
	assert.NotEmpty(t, f.pusher.byEvent(protocol.EventCallParticipantJoined))

	require.NoError(t, f.svc.End(ctx, Actor{UserId: "alice"}, ack.Call.Id))
	assert.Equal(t, []string{"completed"}, endedReasons(f.pusher))

	// late events for the ended call are dropped silently
	assert.NoError(t, f.svc.End(ctx, Actor{UserId: "bob"}, ack.Call.Id))
	assert.NoError(t, f.svc.Decline(ctx, Actor{UserId: "bob"}, ack.Call.Id))
	assert.Len(t, endedReasons(f.pusher), 1)

	rec, ok := f.store.get(ack.Call.Id)
	require.True(t, ok)
	assert.Equal(t, "ended", rec.Status)
	assert.Equal(t, "completed", rec.EndReason)

	_, inCall := f.svc.ActiveCall("bob")
	assert.False(t, inCall)
}

func TestRingTimeoutMissesCall(t *testing.T) {
	f := newCallFixture("alice", "bob")
	ack := f.initiate(t, "alice", "bob")

	f.clock.Advance(45 * time.Second)

	require.Eventually(t, func() bool { return len(endedReasons(f.pusher)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"missed"}, endedReasons(f.pusher))

	missed := f.notifier.ofType(constant.NotificationMissedCall)
	require.Len(t, missed, 1)
	assert.Equal(t, []string{"bob"}, missed[0].users)
	assert.Equal(t, ack.Call.Id, missed[0].notice.Data["callId"])
}

func TestDeclineEndsDirectCall(t *testing.T) {
	f := newCallFixture("alice", "bob")
	ack := f.initiate(t, "alice", "bob")
	require.NoError(t, f.svc.Decline(context.Background(), Actor{UserId: "bob"}, ack.Call.Id))
	assert.Equal(t, []string{"declined"}, endedReasons(f.pusher))
	assert.Empty(t, f.notifier.ofType(constant.NotificationMissedCall))
}

func TestCancelOnlyByInitiator(t *testing.T) {
	f := newCallFixture("alice", "bob")
	ack := f.initiate(t, "alice", "bob")
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Cancel(ctx, Actor{UserId: "bob"}, ack.Call.Id), errcode.ErrCallPermission)
	require.NoError(t, f.svc.Cancel(ctx, Actor{UserId: "alice"}, ack.Call.Id))
	assert.Equal(t, []string{"missed"}, endedReasons(f.pusher))
}

func TestCalleeInAnotherCallIsBusy(t *testing.T) {
	f := newCallFixture("alice", "bob", "carol")
	ctx := context.Background()
	ack := f.initiate(t, "alice", "bob")
	_, err := f.svc.Answer(ctx, Actor{UserId: "bob"}, ack.Call.Id)
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, Actor{UserId: "carol"}, &protocol.CallInitiateReq{ParticipantIds: []string{"bob"}})
	require.Error(t, err)
	assert.Equal(t, "busy", err.(*errcode.Error).Msg)
	assert.Len(t, f.pusher.byEvent(protocol.EventCallIncoming), 1)
}

func TestAnsweringElsewhereEndsOtherRingBusy(t *testing.T) {
	f := newCallFixture("alice", "bob", "carol")
	ctx := context.Background()
	fromAlice := f.initiate(t, "alice", "carol")
	fromBob := f.initiate(t, "bob", "carol")

	_, err := f.svc.Answer(ctx, Actor{UserId: "carol"}, fromBob.Call.Id)
	require.NoError(t, err)

	ended := f.pusher.byEvent(protocol.EventCallEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, &protocol.CallEnded{CallId: fromAlice.Call.Id, Reason: "busy"}, ended[0].payload)
}

func TestGroupCallLeaveAndDisconnect(t *testing.T) {
	f := newCallFixture("alice", "bob", "carol")
	ctx := context.Background()
	ack := f.initiate(t, "alice", "bob", "carol")
	for _, uid := range []string{"bob", "carol"} {
		_, err := f.svc.Answer(ctx, Actor{UserId: uid}, ack.Call.Id)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.End(ctx, Actor{UserId: "carol"}, ack.Call.Id))
	assert.Empty(t, endedReasons(f.pusher))
	left := f.pusher.byEvent(protocol.EventCallParticipantLeft)
	require.Len(t, left, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, left[0].users)

	f.svc.UserGone(ctx, "bob")
	assert.Equal(t, []string{"completed"}, endedReasons(f.pusher))
}

func TestInitiateWithoutRoomSecretCreatesNothing(t *testing.T) {
	f := newCallFixture("alice", "bob")
	f.svc.cfg.RoomSecret = ""

	_, err := f.svc.Initiate(context.Background(), Actor{UserId: "alice"}, &protocol.CallInitiateReq{ParticipantIds: []string{"bob"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrConfigNotEnabled)

	assert.Empty(t, f.pusher.byEvent(protocol.EventCallIncoming))
	assert.Empty(t, f.store.recs)
	_, inCall := f.svc.ActiveCall("alice")
	assert.False(t, inCall)
}

func TestAnswerWithoutRoomSecretLeavesCallRinging(t *testing.T) {
	f := newCallFixture("alice", "bob")
	ack := f.initiate(t, "alice", "bob")
	f.svc.cfg.RoomSecret = ""

	_, err := f.svc.Answer(context.Background(), Actor{UserId: "bob"}, ack.Call.Id)
	assert.ErrorIs(t, err, errcode.ErrConfigNotEnabled)
	assert.Empty(t, f.pusher.byEvent(protocol.EventCallParticipantJoined))
	_, inCall := f.svc.ActiveCall("bob")
	assert.False(t, inCall)
}
