package callsignal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func newDirect() *Call {
	return New("c1", "alice", []string{"bob"}, Options{RoomName: "room-1"}, t0)
}

func mustApply(t *testing.T, c *Call, in Input) Outcome {
	t.Helper()
	out, err := c.Apply(in)
	require.NoError(t, err)
	return out
}

func TestNewCallRinging(t *testing.T) {
	c := New("c1", "alice", []string{"bob", "alice", "", "bob", "carol"}, Options{}, t0)
	assert.Equal(t, StatusRinging, c.Status)

	ps := c.Participants()
	require.Len(t, ps, 3)
	assert.Equal(t, "alice", ps[0].UserId)
	assert.Equal(t, ParticipantJoining, ps[0].Status)
	assert.Equal(t, ParticipantInvited, ps[1].Status)
	assert.Equal(t, []string{"bob", "carol"}, c.Invitees())
}

func TestAnswerConnectEnd(t *testing.T) {
	c := newDirect()

	out := mustApply(t, c, Input{Event: EventAnswer, UserId: "bob", At: at(3)})
	assert.Equal(t, StatusRinging, out.From)
	assert.Equal(t, StatusConnecting, out.To)

	mustApply(t, c, Input{Event: EventConnect, UserId: "alice", At: at(4)})
	assert.Equal(t, StatusConnecting, c.Status)
	out = mustApply(t, c, Input{Event: EventConnect, UserId: "bob", At: at(4)})
	assert.Equal(t, StatusConnected, out.To)
	assert.Equal(t, at(4), c.ConnectedAt)

	out = mustApply(t, c, Input{Event: EventEnd, UserId: "bob", At: at(60)})
	assert.True(t, out.Ended())
	assert.Equal(t, ReasonCompleted, out.Reason)
	assert.Equal(t, ReasonCompleted, c.EndReason)
	for _, p := range c.Participants() {
		assert.Equal(t, ParticipantLeft, p.Status)
	}
}

func TestStatusesNeverGoBackward(t *testing.T) {
	c := newDirect()
	seen := []Status{c.Status}
	inputs := []Input{
		{Event: EventAnswer, UserId: "bob"},
		{Event: EventConnect, UserId: "bob"},
		{Event: EventConnect, UserId: "alice"},
		{Event: EventAnswer, UserId: "bob"},
		{Event: EventCancel, UserId: "alice"},
		{Event: EventEnd, UserId: "alice"},
		{Event: EventAnswer, UserId: "bob"},
		{Event: EventTimeout},
	}
	for _, in := range inputs {
		_, _ = c.Apply(in)
		seen = append(seen, c.Status)
	}
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].rank(), seen[i-1].rank(), "step %d", i)
	}
	assert.Equal(t, StatusEnded, seen[len(seen)-1])
}

func TestEventsAfterEndAreStale(t *testing.T) {
	c := newDirect()
	mustApply(t, c, Input{Event: EventDecline, UserId: "bob", At: at(2)})
	require.Equal(t, StatusEnded, c.Status)
	assert.Equal(t, ReasonDeclined, c.EndReason)

	for _, ev := range []Event{EventAnswer, EventConnect, EventEnd, EventCancel, EventTimeout, EventBusy, EventFail} {
		out, err := c.Apply(Input{Event: ev, UserId: "bob", At: at(5)})
		assert.True(t, errors.Is(err, ErrStaleTransition), ev)
		assert.False(t, out.Ended())
	}
	_, err := c.Terminate(ReasonFailed, at(6))
	assert.ErrorIs(t, err, ErrStaleTransition)
	assert.Equal(t, ReasonDeclined, c.EndReason)
}

func TestCancelWhileRingingIsMissed(t *testing.T) {
	c := newDirect()
	out := mustApply(t, c, Input{Event: EventCancel, UserId: "alice", At: at(1)})
	assert.Equal(t, ReasonMissed, out.Reason)
	assert.Equal(t, []string{"bob"}, out.Missed)
}

func TestCancelRules(t *testing.T) {
	c := newDirect()
	_, err := c.Apply(Input{Event: EventCancel, UserId: "bob"})
	assert.ErrorIs(t, err, errcode.ErrCallPermission)

	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	_, err = c.Apply(Input{Event: EventCancel, UserId: "alice"})
	assert.ErrorIs(t, err, errcode.ErrIllegalTransition)
	assert.Equal(t, StatusConnecting, c.Status)
}

func TestEndWithoutConnectIsMissed(t *testing.T) {
	c := newDirect()
	out := mustApply(t, c, Input{Event: EventEnd, UserId: "alice", At: at(10)})
	assert.Equal(t, ReasonMissed, out.Reason)

	c = newDirect()
	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	out = mustApply(t, c, Input{Event: EventEnd, UserId: "alice"})
	assert.Equal(t, ReasonMissed, out.Reason)
}

func TestInviteeEndWhileRingingDeclines(t *testing.T) {
	c := newDirect()
	out := mustApply(t, c, Input{Event: EventEnd, UserId: "bob"})
	assert.Equal(t, ReasonDeclined, out.Reason)
}

func TestRingTimeout(t *testing.T) {
	c := newDirect()
	out := mustApply(t, c, Input{Event: EventTimeout, At: at(45)})
	assert.Equal(t, ReasonMissed, out.Reason)
	assert.Equal(t, []string{"bob"}, out.Missed)
	assert.Equal(t, at(45), c.EndedAt)
}

func TestRingTimeoutInGroupOnlyDropsPending(t *testing.T) {
	c := New("g1", "alice", []string{"bob", "carol"}, Options{}, t0)
	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	mustApply(t, c, Input{Event: EventConnect, UserId: "bob"})
	mustApply(t, c, Input{Event: EventConnect, UserId: "alice"})

	out := mustApply(t, c, Input{Event: EventTimeout, At: at(45)})
	assert.False(t, out.Ended())
	assert.Equal(t, []string{"carol"}, out.Missed)
	assert.Equal(t, StatusConnected, c.Status)
	p, ok := c.Participant("carol")
	require.True(t, ok)
	assert.Equal(t, ParticipantLeft, p.Status)
}

func TestGroupDeclineNeedsEveryone(t *testing.T) {
	c := New("g1", "alice", []string{"bob", "carol"}, Options{}, t0)
	out := mustApply(t, c, Input{Event: EventDecline, UserId: "bob"})
	assert.False(t, out.Ended())
	out = mustApply(t, c, Input{Event: EventDecline, UserId: "carol"})
	assert.True(t, out.Ended())
	assert.Equal(t, ReasonDeclined, out.Reason)
}

func TestGroupLeaveKeepsCallUntilOneRemains(t *testing.T) {
	c := New("g1", "alice", []string{"bob", "carol"}, Options{}, t0)
	for _, uid := range []string{"bob", "carol"} {
		mustApply(t, c, Input{Event: EventAnswer, UserId: uid})
		mustApply(t, c, Input{Event: EventConnect, UserId: uid})
	}
	mustApply(t, c, Input{Event: EventConnect, UserId: "alice"})

	out := mustApply(t, c, Input{Event: EventEnd, UserId: "alice"})
	assert.False(t, out.Ended())
	require.Len(t, out.Changed, 1)
	assert.Equal(t, ParticipantLeft, out.Changed[0].Status)

	out = mustApply(t, c, Input{Event: EventEnd, UserId: "bob"})
	assert.True(t, out.Ended())
	assert.Equal(t, ReasonCompleted, out.Reason)
}

func TestBusyOnlyWhileRinging(t *testing.T) {
	c := newDirect()
	out := mustApply(t, c, Input{Event: EventBusy})
	assert.Equal(t, ReasonBusy, out.Reason)

	c = newDirect()
	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	_, err := c.Apply(Input{Event: EventBusy})
	assert.ErrorIs(t, err, errcode.ErrIllegalTransition)
}

func TestParticipantErrors(t *testing.T) {
	c := newDirect()
	_, err := c.Apply(Input{Event: EventAnswer, UserId: "mallory"})
	assert.ErrorIs(t, err, errcode.ErrNotCallParticipant)

	_, err = c.Apply(Input{Event: EventConnect, UserId: "bob"})
	assert.ErrorIs(t, err, errcode.ErrIllegalTransition)

	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	_, err = c.Apply(Input{Event: EventAnswer, UserId: "bob"})
	assert.ErrorIs(t, err, errcode.ErrIllegalTransition)

	_, err = c.Apply(Input{Event: "teleport"})
	assert.ErrorIs(t, err, errcode.ErrIllegalTransition)
}

func TestSnapshotRestore(t *testing.T) {
	c := newDirect()
	mustApply(t, c, Input{Event: EventAnswer, UserId: "bob"})
	mustApply(t, c, Input{Event: EventConnect, UserId: "bob"})
	mustApply(t, c, Input{Event: EventConnect, UserId: "alice"})

	r := Restore(c.Snapshot())
	assert.Equal(t, StatusConnected, r.Status)
	assert.True(t, r.EverConnected())

	out, err := r.Terminate(ReasonCompleted, at(90))
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, out.Reason)
	assert.Equal(t, StatusConnected, c.Status, "restore must not alias the source")
}
