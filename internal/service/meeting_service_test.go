package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

type meetingFixture struct {
	svc      *MeetingService
	clock    clockwork.FakeClock
	store    *fakeMeetings
	pusher   *fakePusher
	notifier *fakeNotifier
}

func newMeetingFixture() *meetingFixture {
	f := &meetingFixture{
		clock:    clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		store:    newFakeMeetings(),
		pusher:   &fakePusher{},
		notifier: &fakeNotifier{},
	}
	cfg := config.MeetingConfig{ReminderLead: 10 * time.Minute, StartingLead: time.Minute, TickInterval: 15 * time.Second}
	f.svc = NewMeetingService(cfg, f.clock, f.store, &seqIds{}, f.notifier, nil)
	f.svc.SetPusher(f.pusher)
	return f
}

func (f *meetingFixture) create(t *testing.T, startIn, length time.Duration, recurrence string) *entity.Meeting {
	t.Helper()
	start := f.clock.Now().Add(startIn)
	m, err := f.svc.Create(context.Background(), Actor{UserId: "olga", DisplayName: "Olga"}, &CreateMeetingRequest{
		Title:          "Standup",
		StartAt:        start.UnixMilli(),
		EndAt:          start.Add(length).UnixMilli(),
		Recurrence:     recurrence,
		ParticipantIds: []string{"pat", "olga", "quinn"},
	})
	require.NoError(t, err)
	return m
}

func (f *meetingFixture) tickAt(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	require.NoError(t, f.svc.Tick(context.Background()))
}

func TestCreateInvites(t *testing.T) {
	f := newMeetingFixture()
	m := f.create(t, time.Hour, 30*time.Minute, "")

	assert.Equal(t, entity.MeetingScheduled, m.Status)
	require.Len(t, m.Participants, 3)
	assert.Equal(t, entity.ResponseAccepted, m.Participants[0].Response)

	invites := f.pusher.byEvent(protocol.EventMeetingInvite)
	require.Len(t, invites, 1)
	assert.Equal(t, []string{"pat", "quinn"}, invites[0].users)
	assert.Equal(t, "olga", invites[0].payload.(*protocol.MeetingEvent).InvitedBy)
	assert.Len(t, f.notifier.ofType(constant.NotificationMeetingInvite), 1)
}

func TestCreateValidation(t *testing.T) {
	f := newMeetingFixture()
	ctx := context.Background()
	now := f.clock.Now().UnixMilli()
	actor := Actor{UserId: "olga"}

	_, err := f.svc.Create(ctx, actor, &CreateMeetingRequest{Title: "x", StartAt: now + 10, EndAt: now + 5})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
	_, err = f.svc.Create(ctx, actor, &CreateMeetingRequest{Title: "x", StartAt: now - 10, EndAt: now + 5})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
	_, err = f.svc.Create(ctx, actor, &CreateMeetingRequest{Title: "x", StartAt: now + 10, EndAt: now + 20, Recurrence: "every day"})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
}

func TestSchedulerLifecycle(t *testing.T) {
	f := newMeetingFixture()
	m := f.create(t, 30*time.Minute, 15*time.Minute, "")

	f.tickAt(t, 19*time.Minute)
	assert.Empty(t, f.pusher.byEvent(protocol.EventMeetingReminder))

	f.tickAt(t, time.Minute) // 10 minutes before start
	reminders := f.pusher.byEvent(protocol.EventMeetingReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, 10, reminders[0].payload.(*protocol.MeetingEvent).MinutesUntil)
	assert.Len(t, f.notifier.ofType(constant.NotificationMeetingReminder), 1)

	f.tickAt(t, time.Minute)
	assert.Len(t, f.pusher.byEvent(protocol.EventMeetingReminder), 1, "reminder is sent once")

	f.tickAt(t, 8*time.Minute) // 1 minute before start
	assert.Len(t, f.pusher.byEvent(protocol.EventMeetingStarting), 1)

	f.tickAt(t, time.Minute)
	assert.Len(t, f.pusher.byEvent(protocol.EventMeetingStarted), 1)
	stored, _ := f.store.Get(context.Background(), m.Id)
	assert.Equal(t, entity.MeetingInProgress, stored.Status)

	f.tickAt(t, 15*time.Minute)
	ended := f.pusher.byEvent(protocol.EventMeetingEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, string(entity.MeetingEnded), ended[0].payload.(*protocol.MeetingEvent).Meeting.Status)
	stored, _ = f.store.Get(context.Background(), m.Id)
	assert.Equal(t, entity.MeetingEnded, stored.Status)

	f.tickAt(t, time.Hour)
	assert.Len(t, f.pusher.byEvent(protocol.EventMeetingEnded), 1)
}

func TestLateTickSkipsToStarted(t *testing.T) {
	f := newMeetingFixture()
	f.create(t, 5*time.Minute, 30*time.Minute, "")

	f.tickAt(t, 6*time.Minute)
	assert.Empty(t, f.pusher.byEvent(protocol.EventMeetingReminder))
	assert.Empty(t, f.pusher.byEvent(protocol.EventMeetingStarting))
	assert.Len(t, f.pusher.byEvent(protocol.EventMeetingStarted), 1)
}

func TestRecurringMeetingRollsOver(t *testing.T) {
	f := newMeetingFixture()
	// daily at 09:00 UTC; clock starts at 08:00
	m := f.create(t, time.Hour, 15*time.Minute, "0 9 * * *")

	f.tickAt(t, time.Hour)
	f.tickAt(t, 15*time.Minute)
	ended := f.pusher.byEvent(protocol.EventMeetingEnded)
	require.Len(t, ended, 1)
	endedMeeting := ended[0].payload.(*protocol.MeetingEvent).Meeting
	assert.Equal(t, string(entity.MeetingEnded), endedMeeting.Status)
	assert.Equal(t, m.StartAt, endedMeeting.StartAt, "the ended notice describes the occurrence that ended")

	stored, _ := f.store.Get(context.Background(), m.Id)
	assert.Equal(t, entity.MeetingScheduled, stored.Status)
	next := time.UnixMilli(stored.StartAt).UTC()
	assert.Equal(t, time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, 15*time.Minute, time.Duration(stored.EndAt-stored.StartAt)*time.Millisecond)
	assert.False(t, stored.ReminderSent)
}

func TestCancelAndRespond(t *testing.T) {
	f := newMeetingFixture()
	ctx := context.Background()
	m := f.create(t, time.Hour, 30*time.Minute, "")

	require.NoError(t, f.svc.Respond(ctx, Actor{UserId: "pat"}, m.Id, entity.ResponseDeclined))
	assert.ErrorIs(t, f.svc.Respond(ctx, Actor{UserId: "zed"}, m.Id, entity.ResponseAccepted), errcode.ErrNoPermission)
	assert.ErrorIs(t, f.svc.Respond(ctx, Actor{UserId: "pat"}, m.Id, "maybe"), errcode.ErrInvalidParam)

	assert.ErrorIs(t, f.svc.Cancel(ctx, Actor{UserId: "pat"}, m.Id), errcode.ErrNoPermission)
	require.NoError(t, f.svc.Cancel(ctx, Actor{UserId: "olga"}, m.Id))
	cancelled := f.notifier.ofType(constant.NotificationMeetingCanceled)
	require.Len(t, cancelled, 1)
	assert.ElementsMatch(t, []string{"pat", "quinn"}, cancelled[0].users)

	assert.ErrorIs(t, f.svc.Cancel(ctx, Actor{UserId: "olga"}, m.Id), errcode.ErrMeetingNotPending)
	assert.ErrorIs(t, f.svc.Cancel(ctx, Actor{UserId: "olga"}, "nope"), errcode.ErrMeetingNotFound)

	f.tickAt(t, 2*time.Hour)
	assert.Empty(t, f.pusher.byEvent(protocol.EventMeetingStarted))
}
