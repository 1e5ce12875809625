package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
)

type push struct {
	users   []string
	room    string
	event   string
	payload interface{}
	exclude string
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
}

func (p *fakePusher) PushToUsers(_ context.Context, userIds []string, event string, payload interface{}, exclude string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{users: append([]string(nil), userIds...), event: event, payload: payload, exclude: exclude})
}

func (p *fakePusher) PushToRoom(_ context.Context, room, event string, payload interface{}, exclude string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{room: room, event: event, payload: payload, exclude: exclude})
}

func (p *fakePusher) byEvent(event string) []push {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []push
	for _, x := range p.pushes {
		if x.event == event {
			out = append(out, x)
		}
	}
	return out
}

type seqIds struct {
	mu sync.Mutex
	n  int
}

func (g *seqIds) NextID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id%d", g.n), nil
}

type fakeSeq struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func (s *fakeSeq) AllocSeq(_ context.Context, conversationId string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqs == nil {
		s.seqs = make(map[string]int64)
	}
	s.seqs[conversationId]++
	return s.seqs[conversationId], nil
}

type fakeMessages struct {
	mu        sync.Mutex
	byId      map[string]*entity.Message
	reactions map[string]entity.MessageReaction
	receipts  map[string]bool
	creates   int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byId:      make(map[string]*entity.Message),
		reactions: make(map[string]entity.MessageReaction),
		receipts:  make(map[string]bool),
	}
}

func (f *fakeMessages) Create(_ context.Context, msg *entity.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	cp := *msg
	f.byId[msg.Id] = &cp
	return nil
}

func (f *fakeMessages) GetByClientMsgId(_ context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.byId {
		if m.SenderId == senderId && m.ClientMsgId == clientMsgId {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessages) GetById(_ context.Context, id string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byId[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) UpdateContent(_ context.Context, id, content string, editedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.byId[id]
	m.Content, m.IsEdited, m.EditedAt = content, true, editedAt
	return nil
}

func (f *fakeMessages) MarkDeleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byId[id].IsDeleted = true
	return nil
}

func reactionKey(messageId, userId, emoji string) string {
	return messageId + "|" + userId + "|" + emoji
}

func (f *fakeMessages) AddReaction(_ context.Context, r *entity.MessageReaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := reactionKey(r.MessageId, r.UserId, r.Emoji)
	if _, ok := f.reactions[k]; ok {
		return false, nil
	}
	f.reactions[k] = *r
	return true, nil
}

func (f *fakeMessages) RemoveReaction(_ context.Context, messageId, userId, emoji string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := reactionKey(messageId, userId, emoji)
	if _, ok := f.reactions[k]; !ok {
		return false, nil
	}
	delete(f.reactions, k)
	return true, nil
}

func (f *fakeMessages) SaveReceipt(_ context.Context, r *entity.ReadReceipt) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := r.UserId + "|" + r.MessageId
	if f.receipts[k] {
		return false, nil
	}
	f.receipts[k] = true
	return true, nil
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[string][]string
	err     error
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{members: make(map[string][]string)}
}

func (f *fakeMembers) Members(_ context.Context, conversationId string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.members[conversationId]...), nil
}

func (f *fakeMembers) AddMembers(_ context.Context, conversationId, _ string, userIds []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[conversationId] = append(f.members[conversationId], userIds...)
	return nil
}

type fakeOnline map[string]bool

func (f fakeOnline) IsOnline(_ context.Context, userId string) bool { return f[userId] }

type notified struct {
	users  []string
	notice Notice
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notified
}

func (n *fakeNotifier) Notify(_ context.Context, userIds []string, notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notified{users: append([]string(nil), userIds...), notice: notice})
}

func (n *fakeNotifier) ofType(t string) []notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notified
	for _, x := range n.sent {
		if x.notice.Type == t {
			out = append(out, x)
		}
	}
	return out
}

type fakeCalls struct {
	mu   sync.Mutex
	recs map[string]entity.CallRecord
}

func (f *fakeCalls) Save(_ context.Context, rec *entity.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recs == nil {
		f.recs = make(map[string]entity.CallRecord)
	}
	f.recs[rec.Id] = *rec
	return nil
}

func (f *fakeCalls) get(id string) (entity.CallRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	return r, ok
}

type fakeMeetings struct {
	mu sync.Mutex
	ms map[string]*entity.Meeting
}

func newFakeMeetings() *fakeMeetings { return &fakeMeetings{ms: make(map[string]*entity.Meeting)} }

func (f *fakeMeetings) Create(_ context.Context, m *entity.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	cp.Participants = append([]entity.MeetingParticipant(nil), m.Participants...)
	f.ms[m.Id] = &cp
	return nil
}

func (f *fakeMeetings) Get(_ context.Context, id string) (*entity.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.ms[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	cp.Participants = append([]entity.MeetingParticipant(nil), m.Participants...)
	return &cp, nil
}

func (f *fakeMeetings) Update(_ context.Context, m *entity.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.ms[m.Id]
	cur.StartAt, cur.EndAt, cur.Status = m.StartAt, m.EndAt, m.Status
	cur.ReminderSent, cur.StartingSent = m.ReminderSent, m.StartingSent
	return nil
}

func (f *fakeMeetings) SetResponse(_ context.Context, meetingId, userId string, resp entity.MeetingResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.ms[meetingId]
	for i := range m.Participants {
		if m.Participants[i].UserId == userId {
			m.Participants[i].Response = resp
		}
	}
	return nil
}

func (f *fakeMeetings) ListActive(_ context.Context, startBefore int64) ([]*entity.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Meeting
	for _, m := range f.ms {
		if (m.Status == entity.MeetingScheduled || m.Status == entity.MeetingInProgress) && m.StartAt <= startBefore {
			cp := *m
			cp.Participants = append([]entity.MeetingParticipant(nil), m.Participants...)
			out = append(out, &cp)
		}
	}
	return out, nil
}
