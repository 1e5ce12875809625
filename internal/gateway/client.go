package gateway

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"
	"golang.org/x/time/rate"

	"github.com/CyberTechArmor/NEON-sub002/internal/metrics"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Client represents a connected WebSocket client. Identity fields are set
// once by the auth handshake and read-only afterwards.
type Client struct {
	conn        ClientConn
	UserId      string
	DisplayName string
	PlatformId  int
	Token       string
	ConnId      string
	server      *WsServer
	limiter     *rate.Limiter
	authTimer   clockwork.Timer
	authed      atomic.Bool
	registered  atomic.Bool
	closed      atomic.Bool
	closedErr   error
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewClient creates a new, not yet authenticated client
func NewClient(conn ClientConn, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	ws := server.cfg.WebSocket
	c := &Client{
		conn:    conn,
		ConnId:  connId,
		server:  server,
		limiter: rate.NewLimiter(rate.Limit(ws.EventRate), ws.EventBurst),
		ctx:     ctx,
		cancel:  cancel,
	}
	// Unauthenticated connections are dropped after the auth timeout
	c.authTimer = server.clock.AfterFunc(ws.AuthTimeout, func() {
		if !c.authed.Load() {
			log.CtxDebug(ctx, "auth timeout: conn_id=%s", c.ConnId)
			c.Close()
		}
	})
	return c
}

// Actor returns the authenticated identity for service calls
func (c *Client) Actor() service.Actor {
	return service.Actor{UserId: c.UserId, DisplayName: c.DisplayName, ConnId: c.ConnId}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			if c.closed.Load() && !c.authed.Load() {
				c.closedErr = ErrAuthTimeout
			}
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: conn_id=%s, user_id=%s, error=%v", c.ConnId, c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming frame. Only an auth failure ends
// the connection; anything else is answered or dropped.
func (c *Client) handleMessage(message []byte) error {
	env, err := protocol.Decode(message)
	if err != nil {
		log.CtxDebug(c.ctx, "drop malformed frame: conn_id=%s, error=%v", c.ConnId, err)
		return nil
	}

	label := env.Event
	if !protocol.Known(label) {
		label = unknownEvent
	}
	metrics.EventsReceived.WithLabelValues(label).Inc()

	if !c.authed.Load() {
		if env.Event != protocol.EventAuth {
			c.refuse(env, errcode.ErrUnauthorized)
			return nil
		}
		return c.server.handleAuth(c.ctx, c, env)
	}

	if env.Event == protocol.EventAuth || !protocol.Accepts(env.Event, protocol.ClientToServer) {
		log.CtxDebug(c.ctx, "drop event: event=%s, user_id=%s", env.Event, c.UserId)
		c.refuse(env, errcode.ErrInvalidParam.Wrap(ErrInvalidProtocol))
		return nil
	}

	if !c.limiter.Allow() {
		metrics.EventsDropped.Inc()
		c.refuse(env, errcode.ErrTooManyRequests)
		return nil
	}

	c.server.touch(c)
	c.server.dispatch(c.ctx, c, env)
	return nil
}

// authenticate binds the connection to the token's identity
func (c *Client) authenticate(claims *jwt.Claims, token string) {
	c.UserId = claims.UserId
	c.PlatformId = claims.PlatformId
	c.DisplayName = claims.DisplayName
	if c.DisplayName == "" {
		c.DisplayName = claims.UserId
	}
	c.Token = token
	c.authed.Store(true)
	c.authTimer.Stop()
}

// ack replies to an ack-bearing request. Requests without an ack id get nothing.
func (c *Client) ack(env *protocol.Envelope, reply interface{}) {
	if env.AckId == "" {
		return
	}
	resp, err := protocol.NewAck(env.AckId, reply)
	if err != nil {
		log.CtxError(c.ctx, "build ack failed: event=%s, error=%v", env.Event, err)
		return
	}
	data, err := protocol.Encode(resp)
	if err != nil {
		log.CtxError(c.ctx, "encode ack failed: event=%s, error=%v", env.Event, err)
		return
	}
	if err := c.write(data); err != nil {
		log.CtxDebug(c.ctx, "write ack failed: conn_id=%s, error=%v", c.ConnId, err)
	}
}

// refuse answers an ack-bearing request with a failure reply
func (c *Client) refuse(env *protocol.Envelope, err error) {
	if !protocol.RequiresAck(env.Event) {
		return
	}
	metrics.AcksFailed.WithLabelValues(env.Event).Inc()
	c.ack(env, failureReply(env, err))
}

// write queues an encoded frame
func (c *Client) write(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.conn.WriteMessage(data)
}

// touch refreshes liveness from transport-level pings
func (c *Client) touch() {
	if c.authed.Load() {
		c.server.touch(c)
	}
}

// Kick closes the connection after flushing queued frames
func (c *Client) Kick() error {
	log.CtxInfo(c.ctx, "kick connection: user_id=%s, conn_id=%s", c.UserId, c.ConnId)
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.authTimer.Stop()
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when the read loop ends
func (c *Client) close() {
	c.Close()
	c.server.unregisterClient(context.Background(), c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// failureReply builds the success:false reply matching the request's ack shape
func failureReply(env *protocol.Envelope, err error) interface{} {
	msg := errMessage(err)
	switch env.Event {
	case protocol.EventAuth:
		return &protocol.AuthAck{Success: false, Code: errcode.CodeOf(err), Error: msg}
	case protocol.EventMessageSend:
		var req protocol.MessageSendReq
		_ = env.Bind(&req)
		return &protocol.MessageSendAck{Success: false, TempId: req.TempId, Error: msg}
	default:
		return &protocol.CallAck{Success: false, Error: msg}
	}
}

// errMessage is the client-facing text of an error
func errMessage(err error) string {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return errcode.ErrInternalServer.Msg
}
