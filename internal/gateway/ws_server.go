package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/metrics"
	"github.com/CyberTechArmor/NEON-sub002/internal/presence"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// MessageHandler is the message side of the services the gateway drives
type MessageHandler interface {
	Send(ctx context.Context, actor service.Actor, req *protocol.MessageSendReq) (*entity.Message, error)
	MarkRead(ctx context.Context, actor service.Actor, req *protocol.MessageRead) error
}

// CallHandler is the call signaling side of the services the gateway drives
type CallHandler interface {
	Initiate(ctx context.Context, actor service.Actor, req *protocol.CallInitiateReq) (*protocol.CallAck, error)
	Answer(ctx context.Context, actor service.Actor, callId string) (*protocol.CallAck, error)
	Decline(ctx context.Context, actor service.Actor, callId string) error
	Cancel(ctx context.Context, actor service.Actor, callId string) error
	End(ctx context.Context, actor service.Actor, callId string) error
	UserGone(ctx context.Context, userId string)
}

// Deps are the collaborators of a WsServer. Redis, Tokens and Presence may be nil.
type Deps struct {
	Messages MessageHandler
	Calls    CallHandler
	Access   service.AccessChecker
	Presence service.PresenceStore
	Tokens   *jwt.TokenStore
	Redis    *redis.Client
	Clock    clockwork.Clock
}

// WsServer is the WebSocket server
type WsServer struct {
	cfg           *config.Config
	clock         clockwork.Clock
	userMap       *UserMap
	rooms         *RoomMap
	alive         *liveness
	book          *presence.Book
	typing        *presence.TypingBoard
	store         service.PresenceStore
	tokens        *jwt.TokenStore
	messages      MessageHandler
	access        service.AccessChecker
	calls         CallHandler
	onlineUserNum atomic.Int64
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.Config, deps Deps) *WsServer {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WsServer{
		cfg:        cfg,
		clock:      clock,
		userMap:    NewUserMap(deps.Redis, cfg.Presence.OfflineTimeout),
		rooms:      NewRoomMap(),
		alive:      newLiveness(),
		book:       presence.NewBook(),
		typing:     presence.NewTypingBoard(clock, cfg.Presence.TypingTimeout),
		store:      deps.Presence,
		tokens:     deps.Tokens,
		messages:   deps.Messages,
		access:     deps.Access,
		calls:      deps.Calls,
		maxConnNum: cfg.WebSocket.MaxConnNum,
	}
}

// SetCalls sets the call handler. Call signaling needs the gateway as its
// online checker, so it is wired after construction.
func (s *WsServer) SetCalls(calls CallHandler) {
	s.calls = calls
}

// Run starts the liveness and typing sweeper. It returns when ctx is done.
func (s *WsServer) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.Presence.SweepInterval)
	defer ticker.Stop()
	log.Info("gateway sweeper started: interval=%s, offline_timeout=%s", s.cfg.Presence.SweepInterval, s.cfg.Presence.OfflineTimeout)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep expires lapsed typing indicators and declares silent users offline
func (s *WsServer) Sweep(ctx context.Context) {
	for _, ind := range s.typing.Sweep() {
		s.PushToRoom(ctx, entity.ConversationRoom(ind.ConversationId), protocol.EventTypingIndicator, ind, "")
	}

	cutoff := s.clock.Now().Add(-s.cfg.Presence.OfflineTimeout)
	for userId, lastSeen := range s.alive.expired(cutoff) {
		// Connections still registered here are half-open
		if clients, ok := s.userMap.GetAll(userId); ok {
			log.CtxInfo(ctx, "closing silent connections: user_id=%s, conns=%d", userId, len(clients))
			for _, c := range clients {
				c.Close()
			}
		}
		s.markOffline(ctx, userId, lastSeen)
	}

	for _, userId := range s.userMap.GetAllOnlineUserIds() {
		s.userMap.RefreshOnlineStatus(ctx, userId)
	}
}

// touch records a sign of life for the client's user
func (s *WsServer) touch(c *Client) {
	s.alive.touch(c.UserId, s.clock.Now())
}

// Attach wraps an accepted connection in a client. The caller runs its read loop.
func (s *WsServer) Attach(conn ClientConn) *Client {
	return NewClient(conn, uuid.New().String(), s)
}

// handleAuth runs the handshake. A failed handshake is acked and then ends the connection.
func (s *WsServer) handleAuth(ctx context.Context, c *Client, env *protocol.Envelope) error {
	var req protocol.AuthReq
	if err := env.Bind(&req); err != nil || req.Token == "" {
		c.refuse(env, errcode.ErrTokenMissing)
		return ErrAuthFailed
	}

	claims, err := jwt.ParseToken(req.Token, s.cfg.JWT.Secret)
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: conn_id=%s, error=%v", c.ConnId, err)
		c.refuse(env, err)
		return ErrAuthFailed
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.UserId, claims.PlatformId, req.Token)
	if err != nil {
		log.CtxError(ctx, "token status check failed: user_id=%s, error=%v", claims.UserId, err)
		c.refuse(env, errcode.ErrInternalServer)
		return ErrAuthFailed
	}
	if revoked {
		c.refuse(env, errcode.ErrTokenInvalid.WithMsg("token revoked"))
		return ErrAuthFailed
	}

	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.refuse(env, errcode.ErrTooManyRequests.WithMsg("connection limit exceeded"))
		return ErrAuthFailed
	}

	c.authenticate(claims, req.Token)
	c.ack(env, &protocol.AuthAck{Success: true, UserId: c.UserId})
	s.registerClient(ctx, c)
	return nil
}

// registerClient registers an authenticated client and brings its user online
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	first := s.userMap.Register(ctx, client)
	client.registered.Store(true)
	s.onlineConnNum.Add(1)
	metrics.Connections.Inc()
	if first {
		s.onlineUserNum.Add(1)
		metrics.OnlineUsers.Inc()
	}
	s.touch(client)

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, first_conn=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, first, s.onlineUserNum.Load(), s.onlineConnNum.Load())

	s.comeOnline(ctx, client.UserId)
	s.sendPresenceSnapshot(ctx, client)
}

// unregisterClient drops a closed client from every registry. Presence goes
// offline later, from the sweeper, so a quick reconnect does not flicker.
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.rooms.LeaveAll(client)
	if !client.registered.CompareAndSwap(true, false) {
		return
	}

	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)
	metrics.Connections.Dec()

	if isUserOffline {
		s.onlineUserNum.Add(-1)
		metrics.OnlineUsers.Dec()
		for _, ind := range s.typing.DropUser(client.UserId) {
			s.PushToRoom(ctx, entity.ConversationRoom(ind.ConversationId), protocol.EventTypingIndicator, ind, "")
		}
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, reason=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, isUserOffline, client.closedErr, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// IsOnline implements service.OnlineChecker
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.userMap.IsOnline(ctx, userId)
}

// Kick closes every connection of a user on a platform, or on all platforms
// when platformId is negative. It returns the number of closed connections.
func (s *WsServer) Kick(ctx context.Context, userId string, platformId int) int {
	var clients []*Client
	if platformId < 0 {
		clients, _ = s.userMap.GetAll(userId)
	} else {
		clients, _ = s.userMap.GetByPlatform(userId, platformId)
	}
	for _, c := range clients {
		c.Kick()
	}
	log.CtxInfo(ctx, "kicked user: user_id=%s, platform_id=%d, conns=%d", userId, platformId, len(clients))
	return len(clients)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// Presence returns the server's view of a user's presence
func (s *WsServer) Presence(userId string) (entity.PresenceState, bool) {
	v := s.book.Get(userId)
	return v.State, v.Known
}

// ========== Event Handlers ==========

// dispatch routes an authenticated client event
func (s *WsServer) dispatch(ctx context.Context, c *Client, env *protocol.Envelope) {
	var err error
	switch env.Event {
	case protocol.EventPresenceUpdate:
		err = s.handlePresenceUpdate(ctx, c, env)
	case protocol.EventConversationJoin:
		err = s.handleConversationJoin(ctx, c, env)
	case protocol.EventConversationLeave:
		err = s.handleConversationLeave(ctx, c, env)
	case protocol.EventMessageSend:
		s.handleMessageSend(ctx, c, env)
	case protocol.EventTypingStart, protocol.EventTypingStop:
		err = s.handleTyping(ctx, c, env)
	case protocol.EventMessageRead:
		err = s.handleMessageRead(ctx, c, env)
	case protocol.EventCallInitiate:
		s.handleCallInitiate(ctx, c, env)
	case protocol.EventCallAnswer:
		s.handleCallAnswer(ctx, c, env)
	case protocol.EventCallDecline, protocol.EventCallCancel, protocol.EventCallEnd:
		err = s.handleCallSignal(ctx, c, env)
	default:
		err = ErrInvalidProtocol
	}

	if err != nil {
		log.CtxDebug(ctx, "event not applied: event=%s, user_id=%s, error=%v", env.Event, c.UserId, err)
	}
}

// bindId decodes a bare string payload
func bindId(env *protocol.Envelope) (string, error) {
	var id string
	if err := env.Bind(&id); err != nil {
		return "", errcode.ErrInvalidParam.Wrap(err)
	}
	if id == "" {
		return "", errcode.ErrInvalidParam
	}
	return id, nil
}

func (s *WsServer) handlePresenceUpdate(ctx context.Context, c *Client, env *protocol.Envelope) error {
	var req protocol.PresenceUpdate
	if err := env.Bind(&req); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	status := entity.PresenceStatus(req.Status)
	if !status.Valid() {
		return errcode.ErrInvalidParam.WithMsg("unknown presence status")
	}
	s.setPresence(ctx, entity.PresenceState{
		UserId:       c.UserId,
		Status:       status,
		Message:      req.Message,
		LastActiveAt: s.clock.Now().UnixMilli(),
	})
	return nil
}

func (s *WsServer) handleConversationJoin(ctx context.Context, c *Client, env *protocol.Envelope) error {
	convId, err := bindId(env)
	if err != nil {
		return err
	}
	if s.access != nil {
		ok, err := s.access.CanAccess(ctx, c.UserId, convId)
		if err != nil {
			return err
		}
		if !ok {
			log.CtxWarn(ctx, "join refused, not a member: user_id=%s, conversation_id=%s", c.UserId, convId)
			return nil
		}
	}
	if !s.rooms.Join(entity.ConversationRoom(convId), c) {
		return nil
	}
	// Catch the newcomer up on who is already typing
	for _, ind := range s.typing.Typing(convId) {
		if ind.UserId == c.UserId {
			continue
		}
		s.pushToClient(ctx, c, protocol.EventTypingIndicator, ind)
	}
	return nil
}

func (s *WsServer) handleConversationLeave(_ context.Context, c *Client, env *protocol.Envelope) error {
	convId, err := bindId(env)
	if err != nil {
		return err
	}
	s.rooms.Leave(entity.ConversationRoom(convId), c)
	return nil
}

func (s *WsServer) handleMessageSend(ctx context.Context, c *Client, env *protocol.Envelope) {
	var req protocol.MessageSendReq
	if err := env.Bind(&req); err != nil {
		c.refuse(env, errcode.ErrInvalidParam.Wrap(err))
		return
	}

	msg, err := s.messages.Send(ctx, c.Actor(), &req)
	if err != nil {
		log.CtxWarn(ctx, "send message failed: user_id=%s, temp_id=%s, error=%v", c.UserId, req.TempId, err)
		c.refuse(env, err)
		return
	}

	data := msg.ToWire()
	data.TempId = req.TempId
	c.ack(env, &protocol.MessageSendAck{Success: true, Message: data, TempId: req.TempId})
}

func (s *WsServer) handleTyping(ctx context.Context, c *Client, env *protocol.Envelope) error {
	convId, err := bindId(env)
	if err != nil {
		return err
	}

	var changed bool
	if env.Event == protocol.EventTypingStart {
		changed = s.typing.Announce(c.UserId, c.DisplayName, convId)
	} else {
		changed = s.typing.Stop(c.UserId, convId)
	}
	if !changed {
		return nil
	}

	s.PushToRoom(ctx, entity.ConversationRoom(convId), protocol.EventTypingIndicator, &protocol.TypingIndicator{
		UserId:         c.UserId,
		DisplayName:    c.DisplayName,
		ConversationId: convId,
		IsTyping:       env.Event == protocol.EventTypingStart,
	}, c.ConnId)
	return nil
}

func (s *WsServer) handleMessageRead(ctx context.Context, c *Client, env *protocol.Envelope) error {
	var req protocol.MessageRead
	if err := env.Bind(&req); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	return s.messages.MarkRead(ctx, c.Actor(), &req)
}

func (s *WsServer) handleCallInitiate(ctx context.Context, c *Client, env *protocol.Envelope) {
	if s.calls == nil {
		c.refuse(env, errcode.ErrInternalServer)
		return
	}
	var req protocol.CallInitiateReq
	if err := env.Bind(&req); err != nil {
		c.refuse(env, errcode.ErrInvalidParam.Wrap(err))
		return
	}
	resp, err := s.calls.Initiate(ctx, c.Actor(), &req)
	if err != nil {
		log.CtxInfo(ctx, "call initiate refused: user_id=%s, error=%v", c.UserId, err)
		c.refuse(env, err)
		return
	}
	c.ack(env, resp)
}

func (s *WsServer) handleCallAnswer(ctx context.Context, c *Client, env *protocol.Envelope) {
	if s.calls == nil {
		c.refuse(env, errcode.ErrInternalServer)
		return
	}
	callId, err := bindId(env)
	if err != nil {
		c.refuse(env, err)
		return
	}
	resp, err := s.calls.Answer(ctx, c.Actor(), callId)
	if err != nil {
		log.CtxInfo(ctx, "call answer refused: user_id=%s, call_id=%s, error=%v", c.UserId, callId, err)
		c.refuse(env, err)
		return
	}
	c.ack(env, resp)
}

func (s *WsServer) handleCallSignal(ctx context.Context, c *Client, env *protocol.Envelope) error {
	if s.calls == nil {
		return errcode.ErrInternalServer
	}
	callId, err := bindId(env)
	if err != nil {
		return err
	}
	switch env.Event {
	case protocol.EventCallDecline:
		err = s.calls.Decline(ctx, c.Actor(), callId)
	case protocol.EventCallCancel:
		err = s.calls.Cancel(ctx, c.Actor(), callId)
	default:
		err = s.calls.End(ctx, c.Actor(), callId)
	}
	if errors.Is(err, errcode.ErrStaleTransition) {
		return nil
	}
	return err
}

// ========== Presence ==========

// setPresence records a state and broadcasts it when it changed anything
func (s *WsServer) setPresence(ctx context.Context, st entity.PresenceState) {
	if !s.book.Apply(st) {
		return
	}
	if s.store != nil {
		if err := s.store.Set(ctx, st); err != nil {
			log.CtxWarn(ctx, "persist presence failed: user_id=%s, error=%v", st.UserId, err)
		}
	}
	s.broadcast(ctx, protocol.EventPresenceUpdate, st.ToWire(), "")
}

// comeOnline moves a user that is offline or unknown to online. An explicit
// away or do-not-disturb survives reconnects.
func (s *WsServer) comeOnline(ctx context.Context, userId string) {
	view := s.book.Get(userId)
	if !view.Known && s.store != nil {
		stored, ok, err := s.store.Get(ctx, userId)
		if err != nil {
			log.CtxWarn(ctx, "load presence failed: user_id=%s, error=%v", userId, err)
		} else if ok {
			s.book.Apply(stored)
			view = s.book.Get(userId)
		}
	}

	if view.Known && view.State.Status != entity.PresenceOffline {
		return
	}
	s.setPresence(ctx, entity.PresenceState{
		UserId:       userId,
		Status:       entity.PresenceOnline,
		LastActiveAt: s.clock.Now().UnixMilli(),
	})
}

// markOffline broadcasts a user as offline and drops their call participation
func (s *WsServer) markOffline(ctx context.Context, userId string, lastSeen time.Time) {
	at := lastSeen.UnixMilli()
	if cur := s.book.Get(userId); cur.Known && cur.State.LastActiveAt > at {
		at = cur.State.LastActiveAt
	}
	s.setPresence(ctx, entity.PresenceState{
		UserId:       userId,
		Status:       entity.PresenceOffline,
		LastActiveAt: at,
	})
	for _, ind := range s.typing.DropUser(userId) {
		s.PushToRoom(ctx, entity.ConversationRoom(ind.ConversationId), protocol.EventTypingIndicator, ind, "")
	}
	if s.calls != nil {
		s.calls.UserGone(ctx, userId)
	}
}

// sendPresenceSnapshot tells a fresh connection who else is around
func (s *WsServer) sendPresenceSnapshot(ctx context.Context, c *Client) {
	for _, st := range s.book.Snapshot() {
		if st.UserId == c.UserId || st.Status == entity.PresenceOffline {
			continue
		}
		s.pushToClient(ctx, c, protocol.EventPresenceUpdate, st.ToWire())
	}
}
