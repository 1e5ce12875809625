package realtime

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/callsignal"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Calls tracks the calls this user takes part in. Statuses only move
// forward; anything that arrives for an ended call is dropped.
type Calls struct {
	s *Session

	mu       sync.RWMutex
	calls    map[string]*protocol.CallData
	onChange []func(protocol.CallData)
	unsub    []func()
}

// NewCalls subscribes to call events on s
func NewCalls(s *Session) *Calls {
	c := &Calls{s: s, calls: make(map[string]*protocol.CallData)}
	c.unsub = append(c.unsub,
		On(s, protocol.EventCallIncoming, c.track),
		On(s, protocol.EventCallEnded, c.onEnded),
		On(s, protocol.EventCallParticipantJoined, c.onParticipant),
		On(s, protocol.EventCallParticipantLeft, c.onParticipant),
	)
	return c
}

// Close detaches the tracker from its session
func (c *Calls) Close() {
	for _, fn := range c.unsub {
		fn()
	}
	c.unsub = nil
}

// OnChange registers fn, called on the dispatcher with the new state of a
// call after every accepted update
func (c *Calls) OnChange(fn func(protocol.CallData)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Initiate starts a call. A refusal comes back as errcode.ErrSignaling
// carrying the server's reason, and no call is tracked.
func (c *Calls) Initiate(ctx context.Context, req *protocol.CallInitiateReq) (*protocol.CallAck, error) {
	return c.request(ctx, protocol.EventCallInitiate, req)
}

// Answer accepts an incoming call and returns its join credentials
func (c *Calls) Answer(ctx context.Context, callId string) (*protocol.CallAck, error) {
	return c.request(ctx, protocol.EventCallAnswer, callId)
}

func (c *Calls) request(ctx context.Context, event string, payload interface{}) (*protocol.CallAck, error) {
	var ack protocol.CallAck
	if err := c.s.Call(ctx, event, payload, &ack); err != nil {
		return nil, err
	}
	if !ack.Success {
		msg := ack.Error
		if msg == "" {
			msg = errcode.ErrSignaling.Msg
		}
		return nil, errcode.ErrSignaling.WithMsg(msg)
	}
	if ack.Call != nil {
		call := *ack.Call
		c.s.Do(func() { c.track(&call) })
	}
	return &ack, nil
}

// Decline refuses a ringing call
func (c *Calls) Decline(callId string) error {
	return c.s.Emit(protocol.EventCallDecline, callId)
}

// Cancel withdraws a call this user started
func (c *Calls) Cancel(callId string) error {
	return c.s.Emit(protocol.EventCallCancel, callId)
}

// End hangs up
func (c *Calls) End(callId string) error {
	return c.s.Emit(protocol.EventCallEnd, callId)
}

// Get returns one tracked call
func (c *Calls) Get(callId string) (protocol.CallData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	call, ok := c.calls[callId]
	if !ok {
		return protocol.CallData{}, false
	}
	return cloneCall(call), true
}

// Active returns the calls that have not ended
func (c *Calls) Active() []protocol.CallData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.CallData, 0)
	for _, call := range c.calls {
		if !callsignal.Status(call.Status).Terminal() {
			out = append(out, cloneCall(call))
		}
	}
	return out
}

// Forget drops an ended call from the tracker
func (c *Calls) Forget(callId string) {
	c.mu.Lock()
	if call, ok := c.calls[callId]; ok && callsignal.Status(call.Status).Terminal() {
		delete(c.calls, callId)
	}
	c.mu.Unlock()
}

func cloneCall(call *protocol.CallData) protocol.CallData {
	cp := *call
	cp.Participants = append([]protocol.CallParticipant(nil), call.Participants...)
	return cp
}

// track records a call snapshot. It runs on the dispatcher.
func (c *Calls) track(call *protocol.CallData) {
	if call.Id == "" {
		return
	}
	c.mu.Lock()
	cur, ok := c.calls[call.Id]
	switch {
	case !ok:
		cp := cloneCall(call)
		c.calls[call.Id] = &cp
		cur = &cp
	case callsignal.Status(cur.Status).Terminal():
		c.mu.Unlock()
		log.Debug("call update dropped: call_id=%s, error=%v", call.Id, callsignal.ErrStaleTransition)
		return
	default:
		status := cur.Status
		*cur = cloneCall(call)
		if !callsignal.Status(status).Advances(callsignal.Status(call.Status)) {
			cur.Status = status
		}
	}
	snapshot := cloneCall(cur)
	c.mu.Unlock()
	c.changed(snapshot)
}

func (c *Calls) onEnded(e *protocol.CallEnded) {
	c.mu.Lock()
	cur, ok := c.calls[e.CallId]
	if !ok || callsignal.Status(cur.Status).Terminal() {
		c.mu.Unlock()
		return
	}
	cur.Status = string(callsignal.StatusEnded)
	cur.EndReason = e.Reason
	cur.EndedAt = c.s.clock.Now().UnixMilli()
	snapshot := cloneCall(cur)
	c.mu.Unlock()
	c.changed(snapshot)
}

func (c *Calls) onParticipant(e *protocol.CallParticipantEvent) {
	c.mu.Lock()
	cur, ok := c.calls[e.CallId]
	if !ok || callsignal.Status(cur.Status).Terminal() {
		c.mu.Unlock()
		return
	}
	found := false
	for i := range cur.Participants {
		if cur.Participants[i].UserId == e.Participant.UserId {
			cur.Participants[i] = e.Participant
			found = true
			break
		}
	}
	if !found {
		cur.Participants = append(cur.Participants, e.Participant)
	}
	if e.Participant.Status == string(callsignal.ParticipantConnected) &&
		callsignal.Status(cur.Status).Advances(callsignal.StatusConnected) {
		cur.Status = string(callsignal.StatusConnected)
	}
	snapshot := cloneCall(cur)
	c.mu.Unlock()
	c.changed(snapshot)
}

func (c *Calls) changed(call protocol.CallData) {
	c.mu.RLock()
	hooks := append([]func(protocol.CallData){}, c.onChange...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn(call)
	}
}
