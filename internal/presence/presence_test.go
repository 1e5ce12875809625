package presence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

func TestBookLastWriteWins(t *testing.T) {
	b := NewBook()
	assert.True(t, b.Apply(entity.PresenceState{UserId: "u1", Status: entity.PresenceOnline, LastActiveAt: 100}))
	assert.True(t, b.Apply(entity.PresenceState{UserId: "u1", Status: entity.PresenceAway, LastActiveAt: 100}))
	assert.False(t, b.Apply(entity.PresenceState{UserId: "u1", Status: entity.PresenceOnline, LastActiveAt: 50}), "older state dropped")
	assert.False(t, b.Apply(entity.PresenceState{UserId: "u1", Status: "sleeping", LastActiveAt: 200}))

	v := b.Get("u1")
	assert.True(t, v.Known)
	assert.Equal(t, entity.PresenceAway, v.State.Status)

	assert.False(t, b.Get("u2").Known)
}

func TestBookStaleKeepsStatuses(t *testing.T) {
	b := NewBook()
	b.Apply(entity.PresenceState{UserId: "u1", Status: entity.PresenceOnline, LastActiveAt: 1})
	b.MarkStale(true)

	v := b.Get("u1")
	assert.True(t, v.Stale)
	assert.Equal(t, entity.PresenceOnline, v.State.Status)

	b.MarkStale(false)
	assert.False(t, b.Get("u1").Stale)
	assert.Len(t, b.Snapshot(), 1)
}

func TestTypingExpiresWithoutStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	board := NewTypingBoard(clock, 5*time.Second)

	assert.True(t, board.Start("u1", "Ann", "c1"))
	assert.False(t, board.Start("u1", "Ann", "c1"), "renewal is not a new start")
	require.Len(t, board.Typing("c1"), 1)

	clock.Advance(4 * time.Second)
	assert.True(t, board.IsTyping("u1", "c1"))
	assert.Empty(t, board.Sweep())

	clock.Advance(time.Second)
	assert.False(t, board.IsTyping("u1", "c1"))
	assert.Empty(t, board.Typing("c1"))

	expired := board.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, "u1", expired[0].UserId)
	assert.Equal(t, "c1", expired[0].ConversationId)
	assert.False(t, expired[0].IsTyping)
	assert.Empty(t, board.Sweep())
}

func TestTypingRenewalExtends(t *testing.T) {
	clock := clockwork.NewFakeClock()
	board := NewTypingBoard(clock, 5*time.Second)

	board.Start("u1", "Ann", "c1")
	clock.Advance(3 * time.Second)
	board.Start("u1", "Ann", "c1")
	clock.Advance(3 * time.Second)
	assert.True(t, board.IsTyping("u1", "c1"))

	clock.Advance(2 * time.Second)
	assert.False(t, board.IsTyping("u1", "c1"))
	assert.True(t, board.Start("u1", "Ann", "c1"), "start after lapse is a new start")
}

func TestTypingAnnounceThrottlesRenewals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	board := NewTypingBoard(clock, 5*time.Second)

	assert.True(t, board.Announce("u1", "Ann", "c1"))
	clock.Advance(time.Second)
	assert.False(t, board.Announce("u1", "Ann", "c1"))
	clock.Advance(1500 * time.Millisecond)
	assert.True(t, board.Announce("u1", "Ann", "c1"), "renewal half a ttl after the last announcement")
	clock.Advance(2 * time.Second)
	assert.False(t, board.Announce("u1", "Ann", "c1"))
	assert.True(t, board.IsTyping("u1", "c1"))

	clock.Advance(6 * time.Second)
	assert.True(t, board.Announce("u1", "Ann", "c1"), "start after lapse")
}

func TestTypingStopAndDropUser(t *testing.T) {
	clock := clockwork.NewFakeClock()
	board := NewTypingBoard(clock, 5*time.Second)

	board.Start("u1", "Ann", "c1")
	board.Start("u1", "Ann", "c2")
	board.Start("u2", "Bo", "c1")

	assert.True(t, board.Stop("u2", "c1"))
	assert.False(t, board.Stop("u2", "c1"))

	stops := board.DropUser("u1")
	assert.Len(t, stops, 2)
	assert.Empty(t, board.Typing("c1"))
	assert.Empty(t, board.Typing("c2"))
}

func TestReceiptsAppendOnlyAnyOrder(t *testing.T) {
	l := NewReceiptLedger()

	later := entity.ReadReceipt{UserId: "u1", MessageId: "m2", ConversationId: "c1", ReadAt: 200}
	earlier := entity.ReadReceipt{UserId: "u1", MessageId: "m1", ConversationId: "c1", ReadAt: 300}

	assert.True(t, l.Record(later))
	assert.True(t, l.Record(earlier), "receipt for an earlier message after a later one is valid")

	got, ok := l.Get("u1", "m2")
	require.True(t, ok)
	assert.Equal(t, int64(200), got.ReadAt)

	assert.False(t, l.Record(entity.ReadReceipt{UserId: "u1", MessageId: "m2", ReadAt: 999}))
	got, _ = l.Get("u1", "m2")
	assert.Equal(t, int64(200), got.ReadAt, "first receipt is kept")

	assert.Len(t, l.ReadIn("u1", "c1"), 2)
	assert.False(t, l.Record(entity.ReadReceipt{UserId: "", MessageId: "m3"}))
}

func TestReceiptReadersOrdered(t *testing.T) {
	l := NewReceiptLedger()
	l.Record(entity.ReadReceipt{UserId: "b", MessageId: "m1", ReadAt: 20})
	l.Record(entity.ReadReceipt{UserId: "a", MessageId: "m1", ReadAt: 10})
	l.Record(entity.ReadReceipt{UserId: "c", MessageId: "m2", ReadAt: 5})

	readers := l.Readers("m1")
	require.Len(t, readers, 2)
	assert.Equal(t, "a", readers[0].UserId)
	assert.Equal(t, "b", readers[1].UserId)
}
