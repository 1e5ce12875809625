package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

const waitFor = 2 * time.Second

// fakeConn is the client end of an in-memory connection. The test plays
// the server: push feeds frames to the client, next reads what it wrote.
type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
	pings  atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.out <- data
	return nil
}

func (c *fakeConn) Ping() error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.pings.Add(1)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) next(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case data := <-c.out:
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		return env
	case <-time.After(waitFor):
		t.Fatal("no frame written")
		return nil
	}
}

// nextEvent skips frames until one carries event
func (c *fakeConn) nextEvent(t *testing.T, event string) *protocol.Envelope {
	t.Helper()
	for {
		env := c.next(t)
		if env.Event == event {
			return env
		}
	}
}

func (c *fakeConn) expectNone(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.out:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *fakeConn) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) ack(t *testing.T, ackId string, reply interface{}) {
	t.Helper()
	env, err := protocol.NewAck(ackId, reply)
	require.NoError(t, err)
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	c.in <- data
}

// serveAuth answers the handshake on c
func (c *fakeConn) serveAuth(t *testing.T, wantToken, userId string) {
	t.Helper()
	env := c.next(t)
	require.Equal(t, protocol.EventAuth, env.Event)
	var req protocol.AuthReq
	require.NoError(t, env.Bind(&req))
	require.Equal(t, wantToken, req.Token)
	c.ack(t, env.AckId, &protocol.AuthAck{Success: true, UserId: userId})
}

type fakeDialer struct {
	conns chan *fakeConn
	fail  atomic.Int32
	dials atomic.Int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() > 0 {
		d.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("no dial")
		return nil
	}
}

type fixture struct {
	s      *Session
	dialer *fakeDialer
	clock  clockwork.FakeClock
	syncs  atomic.Int32
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{dialer: newFakeDialer(), clock: clockwork.NewFakeClock()}
	opts := Options{URL: "ws://neon.test/ws", Dialer: f.dialer, Clock: f.clock}
	for _, fn := range mutate {
		fn(&opts)
	}
	f.s = NewSession(opts)
	t.Cleanup(func() { f.s.Close() })
	return f
}

// connect completes a handshake for user u1 and returns the server end
func (f *fixture) connect(t *testing.T) *fakeConn {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- f.s.Connect(context.Background(), "tok") }()
	conn := f.dialer.next(t)
	conn.serveAuth(t, "tok", "u1")
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("connect did not return")
	}
	return conn
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, f.s.Flush(ctx))
}

// sync waits until every frame pushed on conn before it has been handled
func (f *fixture) sync(t *testing.T, conn *fakeConn) {
	t.Helper()
	done := make(chan struct{})
	id := fmt.Sprintf("sync-%d", f.syncs.Add(1))
	f.s.acks.add(id, "sync", time.Hour, func(json.RawMessage, error) { close(done) }, func(string) {})
	conn.ack(t, id, nil)
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("frames not handled")
	}
}

func bind[T any](t *testing.T, env *protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, env.Bind(&v))
	return v
}
