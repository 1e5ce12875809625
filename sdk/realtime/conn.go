package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 512 * 1024
	defaultQueueSize      = 256
)

var (
	errConnClosed       = errors.New("connection closed")
	errWriteChannelFull = errors.New("write channel full")
)

// Conn is one websocket connection as seen by the session. Implementations
// must allow WriteMessage and Ping from any goroutine.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Dialer opens connections
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebSocketDialer dials with gorilla/websocket
type WebSocketDialer struct {
	Dialer         *websocket.Dialer
	Header         http.Header
	WriteWait      time.Duration
	MaxMessageSize int64
	QueueSize      int
}

// Dial opens a websocket connection to url
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}

	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	maxSize := d.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	queue := d.QueueSize
	if queue <= 0 {
		queue = defaultQueueSize
	}
	return newWebsocketConn(ws, maxSize, writeWait, queue), nil
}

type outbound struct {
	ping bool
	data []byte
}

// websocketConn implements Conn over gorilla/websocket with a single writer
type websocketConn struct {
	conn      *websocket.Conn
	writeChan chan outbound
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	writeWait time.Duration
}

func newWebsocketConn(conn *websocket.Conn, maxMsgSize int64, writeWait time.Duration, queueSize int) *websocketConn {
	c := &websocketConn{
		conn:      conn,
		writeChan: make(chan outbound, queueSize),
		writeWait: writeWait,
	}

	conn.SetReadLimit(maxMsgSize)

	// Start write loop
	go c.writeLoop()

	return c
}

// writeLoop handles all writes to the connection (single writer pattern)
func (c *websocketConn) writeLoop() {
	defer c.conn.Close()

	for msg := range c.writeChan {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		var err error
		if msg.ping {
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		} else {
			err = c.conn.WriteMessage(websocket.TextMessage, msg.data)
		}
		if err != nil {
			log.Warn("realtime write error: %v", err)
			c.markClosed()
			return
		}
	}

	// Channel closed, send close message
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ReadMessage reads a message from the connection
func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message to be written
func (c *websocketConn) WriteMessage(data []byte) error {
	return c.enqueue(outbound{data: data})
}

// Ping queues a ping frame
func (c *websocketConn) Ping() error {
	return c.enqueue(outbound{ping: true})
}

func (c *websocketConn) enqueue(msg outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return errConnClosed
	}

	select {
	case c.writeChan <- msg:
		return nil
	default:
		return errWriteChannelFull
	}
}

func (c *websocketConn) markClosed() {
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
}

// Close flushes queued frames and closes the connection
func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()
	})
	return nil
}
