package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

type typingKey struct {
	userId         string
	conversationId string
}

type typingEntry struct {
	displayName string
	expiresAt   time.Time
	announcedAt time.Time
}

// TypingBoard tracks who is typing where. An indicator lapses after ttl
// without renewal, whether or not a stop ever arrives.
type TypingBoard struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[typingKey]typingEntry
}

// NewTypingBoard creates a TypingBoard
func NewTypingBoard(clock clockwork.Clock, ttl time.Duration) *TypingBoard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TypingBoard{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[typingKey]typingEntry),
	}
}

// Start marks the user typing or renews the indicator. It reports whether the
// user was not already typing in the conversation.
func (b *TypingBoard) Start(userId, displayName, conversationId string) bool {
	live, _ := b.start(userId, displayName, conversationId)
	return !live
}

// Announce starts or renews the indicator like Start. It reports whether the
// indicator is due for a broadcast: it was not live, or it was last announced
// at least half a ttl ago, so receivers see renewals before their copy lapses.
func (b *TypingBoard) Announce(userId, displayName, conversationId string) bool {
	_, due := b.start(userId, displayName, conversationId)
	return due
}

func (b *TypingBoard) start(userId, displayName, conversationId string) (live, due bool) {
	now := b.clock.Now()
	k := typingKey{userId, conversationId}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.entries[k]
	live = ok && now.Before(cur.expiresAt)
	due = !live || now.Sub(cur.announcedAt) >= b.ttl/2
	e := typingEntry{displayName: displayName, expiresAt: now.Add(b.ttl), announcedAt: cur.announcedAt}
	if due {
		e.announcedAt = now
	}
	b.entries[k] = e
	return live, due
}

// Stop clears the indicator. It reports whether one was live.
func (b *TypingBoard) Stop(userId, conversationId string) bool {
	now := b.clock.Now()
	k := typingKey{userId, conversationId}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.entries[k]
	delete(b.entries, k)
	return ok && now.Before(cur.expiresAt)
}

// IsTyping reports whether the indicator is live
func (b *TypingBoard) IsTyping(userId, conversationId string) bool {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.entries[typingKey{userId, conversationId}]
	return ok && now.Before(cur.expiresAt)
}

// Typing lists live indicators in a conversation ordered by user id
func (b *TypingBoard) Typing(conversationId string) []protocol.TypingIndicator {
	now := b.clock.Now()
	b.mu.Lock()
	var out []protocol.TypingIndicator
	for k, e := range b.entries {
		if k.conversationId == conversationId && now.Before(e.expiresAt) {
			out = append(out, indicator(k, e, true))
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserId < out[j].UserId })
	return out
}

// DropUser clears every indicator of a user and returns them as stops
func (b *TypingBoard) DropUser(userId string) []protocol.TypingIndicator {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.TypingIndicator
	for k, e := range b.entries {
		if k.userId != userId {
			continue
		}
		delete(b.entries, k)
		if now.Before(e.expiresAt) {
			out = append(out, indicator(k, e, false))
		}
	}
	return out
}

// Sweep removes lapsed indicators and returns them as stops
func (b *TypingBoard) Sweep() []protocol.TypingIndicator {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []protocol.TypingIndicator
	for k, e := range b.entries {
		if !now.Before(e.expiresAt) {
			delete(b.entries, k)
			out = append(out, indicator(k, e, false))
		}
	}
	return out
}

func indicator(k typingKey, e typingEntry, typing bool) protocol.TypingIndicator {
	return protocol.TypingIndicator{
		UserId:         k.userId,
		DisplayName:    e.displayName,
		ConversationId: k.conversationId,
		IsTyping:       typing,
	}
}
