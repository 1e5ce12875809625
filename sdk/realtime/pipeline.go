package realtime

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// SendStatus is the local state of an unconfirmed message
type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendFailed  SendStatus = "failed"
)

// SendRequest is a message to send
type SendRequest struct {
	ConversationId string
	Content        string
	FileIds        []string
	ReplyToId      string
}

// OutgoingMessage is a message sent from this session that the server has
// not confirmed yet
type OutgoingMessage struct {
	TempId         string
	ConversationId string
	Content        string
	FileIds        []string
	ReplyToId      string
	Status         SendStatus
	Error          string
	CreatedAt      time.Time

	inFlight bool
}

// Pipeline renders sends optimistically and reconciles them with the
// server's copy. A temp id is consumed by at most one successful ack; a
// failed or timed out send is never retried automatically.
type Pipeline struct {
	s *Session

	mu        sync.RWMutex
	outgoing  map[string]*OutgoingMessage
	timelines map[string]map[string]*protocol.MessageData
	onChange  []func(conversationId string)
	unsub     []func()
}

// NewPipeline creates a pipeline fed by s
func NewPipeline(s *Session) *Pipeline {
	p := &Pipeline{
		s:         s,
		outgoing:  make(map[string]*OutgoingMessage),
		timelines: make(map[string]map[string]*protocol.MessageData),
	}
	p.unsub = append(p.unsub,
		On(s, protocol.EventMessageReceived, p.onReceived),
		On(s, protocol.EventMessageEdited, p.onEdited),
		On(s, protocol.EventMessageDeleted, p.onDeleted),
		On(s, protocol.EventReactionAdded, func(r *protocol.Reaction) { p.onReaction(r, true) }),
		On(s, protocol.EventReactionRemoved, func(r *protocol.Reaction) { p.onReaction(r, false) }),
	)
	return p
}

// Close detaches the pipeline from its session
func (p *Pipeline) Close() {
	for _, fn := range p.unsub {
		fn()
	}
	p.unsub = nil
}

// OnChange registers fn, called on the dispatcher whenever a conversation's
// outgoing or confirmed messages change
func (p *Pipeline) OnChange(fn func(conversationId string)) {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
}

// Send records a pending message and emits it. The returned temp id keys
// the pending copy until the ack arrives.
func (p *Pipeline) Send(req SendRequest) (string, error) {
	if req.ConversationId == "" {
		return "", errcode.ErrInvalidParam
	}
	if strings.TrimSpace(req.Content) == "" && len(req.FileIds) == 0 {
		return "", errcode.ErrEmptyMessage
	}

	m := &OutgoingMessage{
		TempId:         uuid.NewString(),
		ConversationId: req.ConversationId,
		Content:        req.Content,
		FileIds:        req.FileIds,
		ReplyToId:      req.ReplyToId,
		Status:         SendPending,
		CreatedAt:      p.s.clock.Now(),
		inFlight:       true,
	}
	p.mu.Lock()
	p.outgoing[m.TempId] = m
	p.mu.Unlock()

	tempId := m.TempId
	_, err := p.s.Request(protocol.EventMessageSend, &protocol.MessageSendReq{
		ConversationId: m.ConversationId,
		Content:        m.Content,
		FileIds:        m.FileIds,
		ReplyToId:      m.ReplyToId,
		TempId:         tempId,
	}, func(reply json.RawMessage, err error) {
		p.resolve(tempId, reply, err)
	})
	if err != nil {
		if !p.s.Do(func() { p.fail(tempId, err) }) {
			p.fail(tempId, err)
		}
	}
	return tempId, nil
}

// resolve applies the outcome of a send. It runs on the dispatcher.
func (p *Pipeline) resolve(tempId string, reply json.RawMessage, err error) {
	if errors.Is(err, errcode.ErrDisconnected) || errors.Is(err, ErrClosed) {
		// no verdict: the message stays pending until the user retries
		p.mu.Lock()
		if m, ok := p.outgoing[tempId]; ok {
			m.inFlight = false
		}
		p.mu.Unlock()
		log.Debug("message left pending: temp_id=%s, error=%v", tempId, err)
		return
	}
	if err != nil {
		p.fail(tempId, err)
		return
	}

	var ack protocol.MessageSendAck
	if err := json.Unmarshal(reply, &ack); err != nil {
		p.fail(tempId, err)
		return
	}
	if !ack.Success || ack.Message == nil {
		msg := ack.Error
		if msg == "" {
			msg = errcode.ErrSendFailed.Msg
		}
		p.fail(tempId, errcode.ErrSendFailed.WithMsg(msg))
		return
	}

	p.mu.Lock()
	if _, ok := p.outgoing[tempId]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.outgoing, tempId)
	p.upsertLocked(ack.Message)
	p.mu.Unlock()
	p.changed(ack.Message.ConversationId)
}

func (p *Pipeline) fail(tempId string, err error) {
	p.mu.Lock()
	m, ok := p.outgoing[tempId]
	if !ok {
		p.mu.Unlock()
		return
	}
	m.inFlight = false
	m.Status = SendFailed
	m.Error = errMessage(err)
	conv := m.ConversationId
	p.mu.Unlock()

	log.Warn("message send failed: temp_id=%s, error=%v", tempId, err)
	p.changed(conv)
}

func errMessage(err error) string {
	var e *errcode.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}

// Retry re-sends a failed message, or one left pending by a dropped
// connection, under a new temp id. The old entry is discarded.
func (p *Pipeline) Retry(tempId string) (string, error) {
	p.mu.Lock()
	m, ok := p.outgoing[tempId]
	if !ok {
		p.mu.Unlock()
		return "", ErrUnknownTempId
	}
	if m.inFlight {
		p.mu.Unlock()
		return "", ErrNotRetryable
	}
	delete(p.outgoing, tempId)
	p.mu.Unlock()

	return p.Send(SendRequest{
		ConversationId: m.ConversationId,
		Content:        m.Content,
		FileIds:        m.FileIds,
		ReplyToId:      m.ReplyToId,
	})
}

// Discard drops the local copy of an unconfirmed message. A late ack for it
// is ignored.
func (p *Pipeline) Discard(tempId string) bool {
	p.mu.Lock()
	m, ok := p.outgoing[tempId]
	if ok {
		delete(p.outgoing, tempId)
	}
	p.mu.Unlock()
	if ok {
		p.s.Do(func() { p.changed(m.ConversationId) })
	}
	return ok
}

// Outgoing returns one unconfirmed message
func (p *Pipeline) Outgoing(tempId string) (OutgoingMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.outgoing[tempId]
	if !ok {
		return OutgoingMessage{}, false
	}
	return *m, true
}

// Pending returns the unconfirmed messages of a conversation, oldest first
func (p *Pipeline) Pending(conversationId string) []OutgoingMessage {
	p.mu.RLock()
	out := make([]OutgoingMessage, 0)
	for _, m := range p.outgoing {
		if m.ConversationId == conversationId {
			out = append(out, *m)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Messages returns the confirmed timeline of a conversation in seq order
func (p *Pipeline) Messages(conversationId string) []protocol.MessageData {
	p.mu.RLock()
	tl := p.timelines[conversationId]
	out := make([]protocol.MessageData, 0, len(tl))
	for _, m := range tl {
		out = append(out, cloneMessage(m))
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// Message returns one confirmed message
func (p *Pipeline) Message(conversationId, messageId string) (protocol.MessageData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.timelines[conversationId][messageId]
	if !ok {
		return protocol.MessageData{}, false
	}
	return cloneMessage(m), true
}

// cloneMessage copies m so callers never share slices with the timeline
func cloneMessage(m *protocol.MessageData) protocol.MessageData {
	cp := *m
	cp.FileIds = append([]string(nil), m.FileIds...)
	cp.Reactions = nil
	for _, g := range m.Reactions {
		g.UserIds = append([]string(nil), g.UserIds...)
		cp.Reactions = append(cp.Reactions, g)
	}
	return cp
}

func (p *Pipeline) upsertLocked(m *protocol.MessageData) {
	tl, ok := p.timelines[m.ConversationId]
	if !ok {
		tl = make(map[string]*protocol.MessageData)
		p.timelines[m.ConversationId] = tl
	}
	cp := *m
	if prev, ok := tl[m.Id]; ok && len(cp.Reactions) == 0 {
		cp.Reactions = prev.Reactions
	}
	tl[m.Id] = &cp
}

func (p *Pipeline) onReceived(m *protocol.MessageData) {
	if m.Id == "" || m.ConversationId == "" {
		return
	}
	p.mu.Lock()
	p.upsertLocked(m)
	p.mu.Unlock()
	p.changed(m.ConversationId)
}

func (p *Pipeline) onEdited(m *protocol.MessageData) {
	p.onReceived(m)
}

func (p *Pipeline) onDeleted(d *protocol.MessageDeleted) {
	p.mu.Lock()
	m, ok := p.timelines[d.ConversationId][d.MessageId]
	if ok {
		m.IsDeleted = true
		m.Content = ""
		m.FileIds = nil
	}
	p.mu.Unlock()
	if ok {
		p.changed(d.ConversationId)
	}
}

func (p *Pipeline) onReaction(r *protocol.Reaction, added bool) {
	p.mu.Lock()
	m, ok := p.timelines[r.ConversationId][r.MessageId]
	if ok {
		if added {
			m.Reactions = addReaction(m.Reactions, r.UserId, r.Emoji)
		} else {
			m.Reactions = removeReaction(m.Reactions, r.UserId, r.Emoji)
		}
	}
	p.mu.Unlock()
	if ok {
		p.changed(r.ConversationId)
	}
}

func (p *Pipeline) changed(conversationId string) {
	p.mu.RLock()
	hooks := append([]func(string){}, p.onChange...)
	p.mu.RUnlock()
	for _, fn := range hooks {
		fn(conversationId)
	}
}

// addReaction folds one user's emoji into the groups. Groups keep the order
// in which their emoji first appeared.
func addReaction(groups []protocol.ReactionGroup, userId, emoji string) []protocol.ReactionGroup {
	for i := range groups {
		if groups[i].Emoji != emoji {
			continue
		}
		for _, uid := range groups[i].UserIds {
			if uid == userId {
				return groups
			}
		}
		groups[i].UserIds = append(groups[i].UserIds, userId)
		groups[i].Count = len(groups[i].UserIds)
		return groups
	}
	return append(groups, protocol.ReactionGroup{Emoji: emoji, Count: 1, UserIds: []string{userId}})
}

func removeReaction(groups []protocol.ReactionGroup, userId, emoji string) []protocol.ReactionGroup {
	for i := range groups {
		if groups[i].Emoji != emoji {
			continue
		}
		users := groups[i].UserIds[:0:0]
		for _, uid := range groups[i].UserIds {
			if uid != userId {
				users = append(users, uid)
			}
		}
		if len(users) == 0 {
			return append(groups[:i:i], groups[i+1:]...)
		}
		groups[i].UserIds = users
		groups[i].Count = len(users)
		return groups
	}
	return groups
}
