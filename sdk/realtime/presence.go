package realtime

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/presence"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultTypingTimeout = 5 * time.Second
)

// IdleMonitor moves the user's own presence from online to away after
// timeout without activity, and back on the next activity. An explicit dnd
// or away is left alone.
type IdleMonitor struct {
	s       *Session
	timeout time.Duration
	idle    atomic.Bool

	// owned by the dispatcher
	last    time.Time
	timer   clockwork.Timer
	stopped bool
}

// NewIdleMonitor starts watching for inactivity
func NewIdleMonitor(s *Session, timeout time.Duration) *IdleMonitor {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	m := &IdleMonitor{s: s, timeout: timeout, last: s.clock.Now()}
	m.timer = s.clock.AfterFunc(timeout, func() { s.Do(m.check) })
	return m
}

// Activity records user input
func (m *IdleMonitor) Activity() {
	m.s.Do(m.activity)
}

// Idle reports whether the monitor set the user away
func (m *IdleMonitor) Idle() bool {
	return m.idle.Load()
}

// Stop ends monitoring
func (m *IdleMonitor) Stop() {
	m.s.Do(func() {
		m.stopped = true
		m.timer.Stop()
	})
}

func (m *IdleMonitor) activity() {
	if m.stopped {
		return
	}
	m.last = m.s.clock.Now()
	m.timer.Reset(m.timeout)
	if !m.idle.Swap(false) {
		return
	}
	status, msg, _ := m.s.OwnPresence()
	if status == entity.PresenceAway {
		if err := m.s.SetPresence(entity.PresenceOnline, msg); err != nil {
			log.Debug("idle monitor: restore online failed: %v", err)
		}
	}
}

func (m *IdleMonitor) check() {
	if m.stopped || m.idle.Load() {
		return
	}
	elapsed := m.s.clock.Since(m.last)
	if elapsed < m.timeout {
		m.timer.Reset(m.timeout - elapsed)
		return
	}
	status, msg, _ := m.s.OwnPresence()
	if status != entity.PresenceOnline {
		return
	}
	m.idle.Store(true)
	if err := m.s.SetPresence(entity.PresenceAway, msg); err != nil {
		log.Debug("idle monitor: set away failed: %v", err)
	}
}

type typingState struct {
	lastSent time.Time
	lastKey  time.Time
	timer    clockwork.Timer
}

// TypingEmitter turns keystrokes into typing:start/stop. A start is sent on
// the first keystroke and renewed every ttl/2 of continued typing; a stop is
// sent after ttl without a keystroke.
type TypingEmitter struct {
	s   *Session
	ttl time.Duration

	// owned by the dispatcher
	convs map[string]*typingState
}

// NewTypingEmitter creates a TypingEmitter
func NewTypingEmitter(s *Session, ttl time.Duration) *TypingEmitter {
	if ttl <= 0 {
		ttl = DefaultTypingTimeout
	}
	return &TypingEmitter{s: s, ttl: ttl, convs: make(map[string]*typingState)}
}

// Keystroke records input in a conversation
func (e *TypingEmitter) Keystroke(conversationId string) {
	e.s.Do(func() { e.keystroke(conversationId) })
}

// Stop ends typing in a conversation now, for instance after a send
func (e *TypingEmitter) Stop(conversationId string) {
	e.s.Do(func() {
		st, ok := e.convs[conversationId]
		if !ok {
			return
		}
		st.timer.Stop()
		delete(e.convs, conversationId)
		e.emit(protocol.EventTypingStop, conversationId)
	})
}

func (e *TypingEmitter) keystroke(conv string) {
	now := e.s.clock.Now()
	st, ok := e.convs[conv]
	if !ok {
		st = &typingState{lastSent: now}
		st.timer = e.s.clock.AfterFunc(e.ttl, func() { e.s.Do(func() { e.lapse(conv, st) }) })
		e.convs[conv] = st
		e.emit(protocol.EventTypingStart, conv)
	} else if now.Sub(st.lastSent) >= e.ttl/2 {
		st.lastSent = now
		e.emit(protocol.EventTypingStart, conv)
	}
	st.lastKey = now
	st.timer.Reset(e.ttl)
}

func (e *TypingEmitter) lapse(conv string, st *typingState) {
	if e.convs[conv] != st {
		return
	}
	if idle := e.s.clock.Since(st.lastKey); idle < e.ttl {
		st.timer.Reset(e.ttl - idle)
		return
	}
	delete(e.convs, conv)
	e.emit(protocol.EventTypingStop, conv)
}

func (e *TypingEmitter) emit(event, conv string) {
	// best effort: typing has no failure channel
	if err := e.s.Emit(event, conv); err != nil {
		log.Debug("typing emit dropped: event=%s, conversation_id=%s, error=%v", event, conv, err)
	}
}

// Tracker mirrors other users' typing indicators and read receipts from the
// event stream. Indicators lapse locally after ttl even if no stop arrives.
type Tracker struct {
	s        *Session
	typing   *presence.TypingBoard
	receipts *presence.ReceiptLedger
	unsub    []func()
	done     chan struct{}
	onTyping []func(protocol.TypingIndicator)
}

// NewTracker subscribes to typing and receipt events
func NewTracker(s *Session, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTimeout
	}
	t := &Tracker{
		s:        s,
		typing:   presence.NewTypingBoard(s.clock, ttl),
		receipts: presence.NewReceiptLedger(),
		done:     make(chan struct{}),
	}
	t.unsub = append(t.unsub,
		On(s, protocol.EventTypingIndicator, t.onIndicator),
		On(s, protocol.EventReadReceipt, t.onReceipt),
	)
	go t.sweepLoop(ttl / 2)
	return t
}

// OnTyping registers fn, called on the dispatcher when an indicator starts,
// stops or lapses
func (t *Tracker) OnTyping(fn func(protocol.TypingIndicator)) {
	t.s.Do(func() { t.onTyping = append(t.onTyping, fn) })
}

// Typing returns who is typing in a conversation
func (t *Tracker) Typing(conversationId string) []protocol.TypingIndicator {
	return t.typing.Typing(conversationId)
}

// IsTyping reports whether a user is typing in a conversation
func (t *Tracker) IsTyping(userId, conversationId string) bool {
	return t.typing.IsTyping(userId, conversationId)
}

// Readers returns the receipts recorded for a message
func (t *Tracker) Readers(messageId string) []entity.ReadReceipt {
	return t.receipts.Readers(messageId)
}

// HasRead reports whether a user's receipt for a message has arrived
func (t *Tracker) HasRead(userId, messageId string) bool {
	_, ok := t.receipts.Get(userId, messageId)
	return ok
}

// ReadIn returns a user's receipts in a conversation, oldest first
func (t *Tracker) ReadIn(userId, conversationId string) []entity.ReadReceipt {
	return t.receipts.ReadIn(userId, conversationId)
}

// Close stops the tracker
func (t *Tracker) Close() {
	for _, fn := range t.unsub {
		fn()
	}
	close(t.done)
}

func (t *Tracker) onIndicator(ind *protocol.TypingIndicator) {
	if ind.UserId == "" || ind.UserId == t.s.UserId() {
		return
	}
	var changed bool
	if ind.IsTyping {
		changed = t.typing.Start(ind.UserId, ind.DisplayName, ind.ConversationId)
	} else {
		changed = t.typing.Stop(ind.UserId, ind.ConversationId)
	}
	if changed {
		t.notify(*ind)
	}
}

func (t *Tracker) onReceipt(r *protocol.ReadReceipt) {
	t.receipts.Record(entity.ReadReceipt{
		UserId:         r.UserId,
		MessageId:      r.MessageId,
		ConversationId: r.ConversationId,
		ReadAt:         r.ReadAt,
	})
}

func (t *Tracker) sweepLoop(interval time.Duration) {
	ticker := t.s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-t.s.ctx.Done():
			return
		case <-ticker.Chan():
			t.s.Do(t.sweep)
		}
	}
}

func (t *Tracker) sweep() {
	for _, ind := range t.typing.Sweep() {
		t.notify(ind)
	}
}

func (t *Tracker) notify(ind protocol.TypingIndicator) {
	for _, fn := range t.onTyping {
		fn(ind)
	}
}
