package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// HandleHertzConnection upgrades a request and serves the connection until it
// closes. The token travels in the first event, not in the URL.
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(consts.StatusServiceUnavailable, "connection limit exceeded")
		return
	}

	ws := s.cfg.WebSocket
	err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
		var client *Client
		wsConn := NewHertzWebSocketClientConn(conn, ws.MaxMessageSize, ws.PongWait, ws.PingPeriod, ws.WriteWait,
			ws.WriteChannelSize, func() {
				if client != nil {
					client.touch()
				}
			})
		client = s.Attach(wsConn)

		// Blocking - handles message loop
		client.readLoop()
	})

	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}
}
