package gateway

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/service"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []*protocol.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.closed:
		return ErrConnClosed
	default:
	}
	f.out = append(f.out, env)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) send(t *testing.T, event string, payload interface{}, ackId string) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	env.AckId = ackId
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	f.in <- data
}

func (f *fakeConn) sendRaw(data string) {
	f.in <- []byte(data)
}

func (f *fakeConn) events(event string) []*protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*protocol.Envelope
	for _, env := range f.out {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeConn) ack(ackId string) *protocol.Envelope {
	for _, env := range f.events(protocol.EventAck) {
		if env.AckId == ackId {
			return env
		}
	}
	return nil
}

func (f *fakeConn) waitAck(t *testing.T, ackId string) *protocol.Envelope {
	t.Helper()
	require.Eventually(t, func() bool { return f.ack(ackId) != nil }, waitFor, tick, "no ack %s", ackId)
	return f.ack(ackId)
}

func (f *fakeConn) waitEvent(t *testing.T, event string, n int) []*protocol.Envelope {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.events(event)) >= n }, waitFor, tick, "want %d %s", n, event)
	return f.events(event)
}

func bind(t *testing.T, env *protocol.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

type fakeMessages struct {
	mu     sync.Mutex
	sent   []*protocol.MessageSendReq
	reads  []*protocol.MessageRead
	err    error
	access service.AccessChecker
}

func (f *fakeMessages) Send(ctx context.Context, actor service.Actor, req *protocol.MessageSendReq) (*entity.Message, error) {
	if ok, _ := f.access.CanAccess(ctx, actor.UserId, req.ConversationId); !ok {
		return nil, errcode.ErrNoPermission
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &entity.Message{
		Id:             "m1",
		ConversationId: req.ConversationId,
		Seq:            int64(len(f.sent)),
		SenderId:       actor.UserId,
		Content:        req.Content,
		ClientMsgId:    req.TempId,
		CreatedAt:      1000,
	}, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, _ service.Actor, req *protocol.MessageRead) error {
	f.mu.Lock()
	f.reads = append(f.reads, req)
	f.mu.Unlock()
	return nil
}

type memMembers struct {
	mu      sync.Mutex
	members map[string][]string
}

func newMemMembers() *memMembers {
	return &memMembers{members: make(map[string][]string)}
}

func (m *memMembers) Members(_ context.Context, conversationId string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.members[conversationId]...), nil
}

func (m *memMembers) AddMembers(_ context.Context, conversationId, _ string, userIds []string) error {
	m.mu.Lock()
	m.members[conversationId] = append(m.members[conversationId], userIds...)
	m.mu.Unlock()
	return nil
}

type fakeCalls struct {
	mu      sync.Mutex
	err     error
	signals []string
	gone    []string
}

func (f *fakeCalls) Initiate(_ context.Context, _ service.Actor, req *protocol.CallInitiateReq) (*protocol.CallAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.CallAck{Success: true, RoomName: "room-1", Call: &protocol.CallData{Id: "c1"}}, nil
}

func (f *fakeCalls) Answer(_ context.Context, _ service.Actor, callId string) (*protocol.CallAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.CallAck{Success: true, Call: &protocol.CallData{Id: callId}}, nil
}

func (f *fakeCalls) record(kind, callId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, kind+":"+callId)
	return f.err
}

func (f *fakeCalls) Decline(_ context.Context, _ service.Actor, callId string) error {
	return f.record("decline", callId)
}

func (f *fakeCalls) Cancel(_ context.Context, _ service.Actor, callId string) error {
	return f.record("cancel", callId)
}

func (f *fakeCalls) End(_ context.Context, _ service.Actor, callId string) error {
	return f.record("end", callId)
}

func (f *fakeCalls) UserGone(_ context.Context, userId string) {
	f.mu.Lock()
	f.gone = append(f.gone, userId)
	f.mu.Unlock()
}

func (f *fakeCalls) goneUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gone...)
}

func (f *fakeCalls) signalLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

type memPresence struct {
	mu     sync.Mutex
	states map[string]entity.PresenceState
}

func newMemPresence() *memPresence {
	return &memPresence{states: make(map[string]entity.PresenceState)}
}

func (m *memPresence) Set(_ context.Context, s entity.PresenceState) error {
	m.mu.Lock()
	m.states[s.UserId] = s
	m.mu.Unlock()
	return nil
}

func (m *memPresence) Get(_ context.Context, userId string) (entity.PresenceState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[userId]
	return s, ok, nil
}
