package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/presence"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// State of the logical connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives one inbound event on the dispatcher
type Handler func(env *protocol.Envelope)

type subscription struct {
	id int
	h  Handler
}

// Session is the single logical connection of a client process. Inbound
// events, ack replies, ack timeouts and component timers all run on one
// dispatcher goroutine, so handlers never run concurrently.
//
// Connect, Call and Flush block until the dispatcher answers and must not be
// called from a handler.
type Session struct {
	opts  Options
	clock clockwork.Clock
	disp  *dispatcher
	acks  *ackTable
	book  *presence.Book

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	conn         Conn
	token        string
	userId       string
	rooms        map[string]struct{}
	own          *protocol.PresenceUpdate
	subs         map[string][]subscription
	subSeq       int
	onDisconnect []func(error)
	onReconnect  []func()
	onAuthError  []func(error)
}

// NewSession creates a disconnected session
func NewSession(opts Options) *Session {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:   opts,
		clock:  opts.Clock,
		disp:   newDispatcher(),
		acks:   newAckTable(opts.Clock),
		book:   presence.NewBook(),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]struct{}),
		subs:   make(map[string][]subscription),
	}
}

// State returns the current connection state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserId returns the user the server authenticated
func (s *Session) UserId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userId
}

// Clock returns the session clock
func (s *Session) Clock() clockwork.Clock {
	return s.clock
}

// Presence returns what the session knows about a user. While the session
// is disconnected the view is flagged stale and keeps the last status.
func (s *Session) Presence(userId string) presence.View {
	return s.book.Get(userId)
}

// OnDisconnect registers a hook fired on the dispatcher when the connection drops
func (s *Session) OnDisconnect(fn func(err error)) {
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

// OnReconnect registers a hook fired on the dispatcher after a reconnect has
// replayed subscriptions
func (s *Session) OnReconnect(fn func()) {
	s.mu.Lock()
	s.onReconnect = append(s.onReconnect, fn)
	s.mu.Unlock()
}

// OnAuthError registers a hook fired when a reconnect is refused. It runs on
// its own goroutine, so it may call Connect with a fresh token.
func (s *Session) OnAuthError(fn func(err error)) {
	s.mu.Lock()
	s.onAuthError = append(s.onAuthError, fn)
	s.mu.Unlock()
}

// Connect dials, authenticates and replays subscriptions. It returns an
// error satisfying IsAuthError when the token is refused.
func (s *Session) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected, StateReconnecting:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.token = token
	s.mu.Unlock()

	conn, done, userId, err := s.handshake(ctx, token)
	if err == nil {
		err = s.runWait(ctx, func() error { return s.attach(conn, done, userId, false) })
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return err
	}
	log.CtxInfo(ctx, "realtime connected: user_id=%s", userId)
	return nil
}

// handshake dials and waits for the auth ack
func (s *Session) handshake(ctx context.Context, token string) (Conn, chan struct{}, string, error) {
	conn, err := s.opts.Dialer.Dial(ctx, s.opts.URL)
	if err != nil {
		return nil, nil, "", fmt.Errorf("dial: %w", err)
	}
	done := make(chan struct{})
	go s.readLoop(conn, done)

	type authResult struct {
		userId string
		err    error
	}
	result := make(chan authResult, 1)
	_, err = s.requestOn(conn, protocol.EventAuth, &protocol.AuthReq{Token: token}, s.opts.AuthTimeout,
		func(reply json.RawMessage, err error) {
			if err != nil {
				result <- authResult{err: fmt.Errorf("auth: %w", err)}
				return
			}
			var ack protocol.AuthAck
			if err := json.Unmarshal(reply, &ack); err != nil {
				result <- authResult{err: fmt.Errorf("auth reply: %w", err)}
				return
			}
			if !ack.Success {
				result <- authResult{err: refusal(&ack)}
				return
			}
			result <- authResult{userId: ack.UserId}
		})
	if err != nil {
		conn.Close()
		return nil, nil, "", err
	}

	select {
	case r := <-result:
		if r.err != nil {
			conn.Close()
			return nil, nil, "", r.err
		}
		return conn, done, r.userId, nil
	case <-ctx.Done():
		conn.Close()
		return nil, nil, "", ctx.Err()
	}
}

// attach makes conn current and replays subscription state ahead of any
// other traffic. It runs on the dispatcher.
func (s *Session) attach(conn Conn, done chan struct{}, userId string, reconnect bool) error {
	select {
	case <-done:
		// lost between the auth ack and now
		if reconnect {
			go s.reconnect()
		}
		return errcode.ErrDisconnected
	default:
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.userId = userId
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	own := s.own
	s.mu.Unlock()

	sort.Strings(rooms)
	for _, room := range rooms {
		s.writeOn(conn, protocol.EventConversationJoin, room)
	}
	if own != nil {
		s.writeOn(conn, protocol.EventPresenceUpdate, own)
	}

	s.mu.Lock()
	s.state = StateConnected
	hooks := append([]func(){}, s.onReconnect...)
	s.mu.Unlock()

	s.book.MarkStale(false)
	go s.heartbeat(conn, done)

	if reconnect {
		log.Info("realtime reconnected: user_id=%s, rooms=%d", userId, len(rooms))
		for _, h := range hooks {
			h()
		}
	}
	return nil
}

// readLoop closes done before reporting the loss, so attach can tell a
// connection that died while its handshake result was in flight.
func (s *Session) readLoop(conn Conn, done chan struct{}) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			close(done)
			s.disp.post(func() { s.connLost(conn, err) })
			return
		}
		s.disp.post(func() { s.handleFrame(data) })
	}
}

func (s *Session) heartbeat(conn Conn, done chan struct{}) {
	ticker := s.clock.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			if err := conn.Ping(); err != nil {
				log.Debug("realtime ping failed: %v", err)
			}
		}
	}
}

// connLost runs on the dispatcher when a connection's read side fails
func (s *Session) connLost(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closed := s.state == StateClosed
	if !closed {
		s.state = StateReconnecting
	}
	hooks := append([]func(error){}, s.onDisconnect...)
	s.mu.Unlock()

	conn.Close()
	s.failAcks(errcode.ErrDisconnected)
	s.book.MarkStale(true)
	if closed {
		return
	}

	log.Warn("realtime connection lost: %v", err)
	for _, h := range hooks {
		h(err)
	}
	go s.reconnect()
}

func (s *Session) failAcks(err error) {
	for _, p := range s.acks.drain() {
		p.cb(nil, err)
	}
}

// reconnect retries the handshake with exponential backoff until it
// succeeds, the token is refused, or the session is closed
func (s *Session) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff
	b.Multiplier = s.opts.BackoffMultiplier
	b.RandomizationFactor = s.opts.BackoffJitter
	b.MaxElapsedTime = 0
	b.Clock = s.clock

	var (
		conn   Conn
		done   chan struct{}
		userId string
	)
	op := func() error {
		token, err := s.nextToken(s.ctx)
		if err != nil {
			return err
		}
		conn, done, userId, err = s.handshake(s.ctx, token)
		if IsAuthError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("realtime reconnect failed: error=%v, retry_in=%s", err, wait)
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, s.ctx), notify, &clockTimer{clock: s.clock})
	if err != nil {
		s.mu.Lock()
		if s.state != StateClosed {
			s.state = StateDisconnected
		}
		hooks := append([]func(error){}, s.onAuthError...)
		s.mu.Unlock()
		if IsAuthError(err) {
			log.Warn("realtime reconnect refused: %v", err)
			for _, h := range hooks {
				h(err)
			}
		}
		return
	}
	if !s.disp.post(func() { _ = s.attach(conn, done, userId, true) }) {
		conn.Close()
	}
}

func (s *Session) nextToken(ctx context.Context) (string, error) {
	if s.opts.Tokens != nil {
		token, err := s.opts.Tokens(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Close ends the session. Outstanding requests fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		conn.Close()
	}
	s.disp.post(func() { s.failAcks(ErrClosed) })
	s.disp.close()
	return nil
}

// handleFrame decodes one inbound frame and routes it. It runs on the dispatcher.
func (s *Session) handleFrame(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		log.Debug("realtime dropped malformed frame: %v", err)
		return
	}
	if env.IsAck() {
		p := s.acks.take(env.AckId)
		if p == nil {
			log.Debug("realtime late or duplicate ack: ack_id=%s", env.AckId)
			return
		}
		p.cb(env.Data, nil)
		return
	}
	if !protocol.Accepts(env.Event, protocol.ServerToClient) {
		log.Debug("realtime dropped event: event=%s", env.Event)
		return
	}

	if env.Event == protocol.EventPresenceUpdate {
		var p protocol.PresenceBroadcast
		if err := env.Bind(&p); err == nil {
			s.book.Apply(entity.PresenceState{
				UserId:       p.UserId,
				Status:       entity.PresenceStatus(p.Status),
				Message:      p.Message,
				LastActiveAt: p.LastActiveAt,
			})
		}
	}

	s.mu.Lock()
	subs := append([]subscription{}, s.subs[env.Event]...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.h(env)
	}
}

// Subscribe registers h for event. The returned func removes it.
func (s *Session) Subscribe(event string, h Handler) func() {
	s.mu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[event] = append(s.subs[event], subscription{id: id, h: h})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[event]
		for i, sub := range list {
			if sub.id == id {
				s.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// On subscribes fn to event with the payload decoded into T. Payloads that
// do not decode are dropped.
func On[T any](s *Session, event string, fn func(*T)) func() {
	return s.Subscribe(event, func(env *protocol.Envelope) {
		var v T
		if err := env.Bind(&v); err != nil {
			log.Debug("realtime undecodable payload: event=%s, error=%v", env.Event, err)
			return
		}
		fn(&v)
	})
}

// Do schedules fn on the dispatcher
func (s *Session) Do(fn func()) bool {
	return s.disp.post(fn)
}

// Flush waits until every job queued before it has run
func (s *Session) Flush(ctx context.Context) error {
	return s.runWait(ctx, func() error { return nil })
}

func (s *Session) runWait(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !s.disp.post(func() { result <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) current() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateClosed:
		return nil, ErrClosed
	case s.state != StateConnected || s.conn == nil:
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// Emit sends a fire-and-forget event
func (s *Session) Emit(event string, payload interface{}) error {
	if !protocol.Accepts(event, protocol.ClientToServer) || protocol.RequiresAck(event) {
		return ErrNotClientEvent
	}
	conn, err := s.current()
	if err != nil {
		return err
	}
	return s.writeOn(conn, event, payload)
}

// Request sends an ack-bearing event. cb runs on the dispatcher with the
// reply, or with the error that evicted the request after AckTimeout or a
// disconnect. cb is never called when Request returns an error.
func (s *Session) Request(event string, payload interface{}, cb AckFunc) (string, error) {
	if !protocol.RequiresAck(event) || event == protocol.EventAuth {
		return "", ErrNotClientEvent
	}
	conn, err := s.current()
	if err != nil {
		return "", err
	}
	return s.requestOn(conn, event, payload, s.opts.AckTimeout, cb)
}

// Call is the blocking form of Request. The reply is decoded into reply.
func (s *Session) Call(ctx context.Context, event string, payload interface{}, reply interface{}) error {
	result := make(chan error, 1)
	_, err := s.Request(event, payload, func(data json.RawMessage, err error) {
		if err == nil && reply != nil {
			err = json.Unmarshal(data, reply)
		}
		result <- err
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) requestOn(conn Conn, event string, payload interface{}, timeout time.Duration, cb AckFunc) (string, error) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return "", err
	}
	env.AckId = uuid.NewString()
	data, err := protocol.Encode(env)
	if err != nil {
		return "", err
	}

	s.acks.add(env.AckId, event, timeout, cb, s.ackExpired)
	if err := conn.WriteMessage(data); err != nil {
		s.acks.take(env.AckId)
		return "", err
	}
	return env.AckId, nil
}

func (s *Session) ackExpired(id string) {
	s.disp.post(func() {
		if p := s.acks.take(id); p != nil {
			log.Debug("realtime ack timed out: event=%s, ack_id=%s", p.event, id)
			p.cb(nil, errcode.ErrAckTimeout)
		}
	})
}

func (s *Session) writeOn(conn Conn, event string, payload interface{}) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// Join subscribes to a conversation room. The subscription is replayed on
// every reconnect until Leave.
func (s *Session) Join(conversationId string) error {
	s.mu.Lock()
	s.rooms[conversationId] = struct{}{}
	s.mu.Unlock()
	return s.emitBestEffort(protocol.EventConversationJoin, conversationId)
}

// Leave drops a conversation room subscription
func (s *Session) Leave(conversationId string) error {
	s.mu.Lock()
	delete(s.rooms, conversationId)
	s.mu.Unlock()
	return s.emitBestEffort(protocol.EventConversationLeave, conversationId)
}

// Rooms returns the joined conversations
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// SetPresence publishes the user's own status. It is remembered and
// replayed on reconnect.
func (s *Session) SetPresence(status entity.PresenceStatus, message string) error {
	if !status.Valid() || status == entity.PresenceOffline {
		return errcode.ErrInvalidParam
	}
	update := &protocol.PresenceUpdate{Status: string(status), Message: message}
	s.mu.Lock()
	s.own = update
	s.mu.Unlock()
	return s.emitBestEffort(protocol.EventPresenceUpdate, update)
}

// OwnPresence returns the status last set with SetPresence
func (s *Session) OwnPresence() (entity.PresenceStatus, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own == nil {
		return entity.PresenceOnline, "", false
	}
	return entity.PresenceStatus(s.own.Status), s.own.Message, true
}

// emitBestEffort sends now when connected; otherwise the replay covers it
func (s *Session) emitBestEffort(event string, payload interface{}) error {
	err := s.Emit(event, payload)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// clockTimer adapts a clockwork timer to backoff.Timer
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
