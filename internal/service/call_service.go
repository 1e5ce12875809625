package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/callsignal"
	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/events"
	"github.com/CyberTechArmor/NEON-sub002/internal/metrics"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/idgen"
	"github.com/CyberTechArmor/NEON-sub002/pkg/jwt"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// endedRetention keeps ended calls around so late events are recognised as
// stale instead of unknown
const endedRetention = 2 * time.Minute

type liveCall struct {
	call  *callsignal.Call
	timer clockwork.Timer
}

// CallService is the server authority for call signaling
type CallService struct {
	mu     sync.Mutex
	calls  map[string]*liveCall
	active map[string]string // user id -> call id while joining or connected

	cfg       config.CallConfig
	clock     clockwork.Clock
	ids       idgen.IDGenerator
	store     CallStore
	online    OnlineChecker
	notifier  Notifier
	publisher events.Publisher
	pusher    Pusher
}

// NewCallService creates a new CallService
func NewCallService(cfg config.CallConfig, clock clockwork.Clock, ids idgen.IDGenerator, store CallStore,
	online OnlineChecker, notifier Notifier, publisher events.Publisher) *CallService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CallService{
		calls:     make(map[string]*liveCall),
		active:    make(map[string]string),
		cfg:       cfg,
		clock:     clock,
		ids:       ids,
		store:     store,
		online:    online,
		notifier:  notifier,
		publisher: publisher,
	}
}

// SetPusher sets the event pusher
func (s *CallService) SetPusher(pusher Pusher) {
	s.pusher = pusher
}

// effects run after the lock is released
type effects []func(ctx context.Context)

func (e *effects) add(f func(ctx context.Context)) { *e = append(*e, f) }

func (e effects) run(ctx context.Context) {
	for _, f := range e {
		f(ctx)
	}
}

// Initiate creates a ringing call. A rejected initiation creates nothing and
// notifies nobody.
func (s *CallService) Initiate(ctx context.Context, actor Actor, req *protocol.CallInitiateReq) (*protocol.CallAck, error) {
	if slices.Contains(s.cfg.DeniedUsers, actor.UserId) {
		return nil, errcode.ErrCallPermission
	}
	invitees := dedupe(req.ParticipantIds, actor.UserId)
	if len(invitees) == 0 {
		return nil, errcode.ErrInvalidParam.WithMsg("no participants")
	}
	if s.cfg.MaxParticipants > 0 && len(invitees)+1 > s.cfg.MaxParticipants {
		return nil, errcode.ErrCallCapacity
	}
	for _, uid := range invitees {
		if s.online != nil && !s.online.IsOnline(ctx, uid) {
			return nil, errcode.ErrParticipantOffline
		}
	}

	id, err := s.ids.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	room := idgen.RoomName("neon")
	token, err := s.roomToken(actor, room, true)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, busy := s.active[actor.UserId]; busy {
		s.mu.Unlock()
		return nil, errcode.ErrCallBusy
	}
	free := make([]string, 0, len(invitees))
	for _, uid := range invitees {
		if _, busy := s.active[uid]; !busy {
			free = append(free, uid)
		}
	}
	if len(free) == 0 {
		s.mu.Unlock()
		return nil, errcode.ErrCallBusy
	}

	call := callsignal.New(id, actor.UserId, free, callsignal.Options{
		ConversationId: req.ConversationId,
		IsVideo:        req.IsVideo,
		RoomName:       room,
		Names:          map[string]string{actor.UserId: actor.DisplayName},
	}, s.clock.Now())
	lc := &liveCall{call: call}
	lc.timer = s.clock.AfterFunc(s.cfg.RingTimeout, func() { s.ringTimeout(id) })
	s.calls[id] = lc
	s.active[actor.UserId] = id
	wire := callWire(call)
	rec := callRecord(call)
	s.mu.Unlock()

	metrics.ActiveCalls.Inc()
	s.save(ctx, rec)
	if s.pusher != nil {
		s.pusher.PushToUsers(ctx, free, protocol.EventCallIncoming, wire, "")
	}

	log.CtxInfo(ctx, "call initiated: call_id=%s, initiator=%s, invitees=%v", id, actor.UserId, free)
	return s.callAck(wire, token), nil
}

// Answer joins the actor to a call. The media path is confirmed by the room
// service, so the answer is connected straight away.
func (s *CallService) Answer(ctx context.Context, actor Actor, callId string) (*protocol.CallAck, error) {
	var fx effects

	s.mu.Lock()
	lc, ok := s.calls[callId]
	if !ok {
		s.mu.Unlock()
		return nil, errcode.ErrCallNotFound
	}
	if other, busy := s.active[actor.UserId]; busy && other != callId {
		s.mu.Unlock()
		return nil, errcode.ErrCallBusy
	}
	token, err := s.roomToken(actor, lc.call.RoomName, false)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.clock.Now()
	out, err := lc.call.Apply(callsignal.Input{Event: callsignal.EventAnswer, UserId: actor.UserId, At: now})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.absorb(lc, out, &fx)
	for _, uid := range []string{actor.UserId, lc.call.InitiatorId} {
		if p, ok := lc.call.Participant(uid); ok && p.Status == callsignal.ParticipantJoining {
			out, err = lc.call.Apply(callsignal.Input{Event: callsignal.EventConnect, UserId: uid, At: now})
			if err == nil {
				s.absorb(lc, out, &fx)
			}
		}
	}
	s.releaseOtherRings(actor.UserId, callId, now, &fx)
	wire := callWire(lc.call)
	s.mu.Unlock()

	fx.run(ctx)
	log.CtxInfo(ctx, "call answered: call_id=%s, user_id=%s, status=%s", callId, actor.UserId, wire.Status)
	return s.callAck(wire, token), nil
}

// releaseOtherRings takes userId off every other call still ringing them.
// A call whose only pending invitee was userId ends busy.
func (s *CallService) releaseOtherRings(userId, answeredId string, now time.Time, fx *effects) {
	for id, lc := range s.calls {
		if id == answeredId || lc.call.Status.Terminal() {
			continue
		}
		p, ok := lc.call.Participant(userId)
		if !ok || p.Status != callsignal.ParticipantInvited {
			continue
		}
		in := callsignal.Input{Event: callsignal.EventDecline, UserId: userId, At: now}
		if lc.call.Status == callsignal.StatusRinging && pendingInvitees(lc.call) == 1 {
			in = callsignal.Input{Event: callsignal.EventBusy, At: now}
		}
		if out, err := lc.call.Apply(in); err == nil {
			s.absorb(lc, out, fx)
		}
	}
}

// Decline rejects a ringing call on behalf of the actor
func (s *CallService) Decline(ctx context.Context, actor Actor, callId string) error {
	return s.apply(ctx, callId, callsignal.Input{Event: callsignal.EventDecline, UserId: actor.UserId})
}

// Cancel withdraws a ringing call; only its initiator may cancel
func (s *CallService) Cancel(ctx context.Context, actor Actor, callId string) error {
	return s.apply(ctx, callId, callsignal.Input{Event: callsignal.EventCancel, UserId: actor.UserId})
}

// End leaves or ends a call
func (s *CallService) End(ctx context.Context, actor Actor, callId string) error {
	return s.apply(ctx, callId, callsignal.Input{Event: callsignal.EventEnd, UserId: actor.UserId})
}

// UserGone is called when the last connection of a user drops. A user still
// in a call leaves it.
func (s *CallService) UserGone(ctx context.Context, userId string) {
	s.mu.Lock()
	callId, ok := s.active[userId]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.End(ctx, Actor{UserId: userId}, callId); err != nil {
		log.CtxDebug(ctx, "leave call on disconnect: call_id=%s, user_id=%s, error=%v", callId, userId, err)
	}
}

// Get returns the wire form of a known call
func (s *CallService) Get(callId string) (*protocol.CallData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lc, ok := s.calls[callId]
	if !ok {
		return nil, false
	}
	return callWire(lc.call), true
}

// ActiveCall returns the call a user is joining or connected to
func (s *CallService) ActiveCall(userId string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.active[userId]
	return id, ok
}

func (s *CallService) apply(ctx context.Context, callId string, in callsignal.Input) error {
	var fx effects

	s.mu.Lock()
	lc, ok := s.calls[callId]
	if !ok {
		s.mu.Unlock()
		return errcode.ErrCallNotFound
	}
	in.At = s.clock.Now()
	out, err := lc.call.Apply(in)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, callsignal.ErrStaleTransition) {
			log.CtxDebug(ctx, "stale call event ignored: call_id=%s, event=%s", callId, in.Event)
			return nil
		}
		return err
	}
	s.absorb(lc, out, &fx)
	s.mu.Unlock()

	fx.run(ctx)
	return nil
}

func (s *CallService) ringTimeout(callId string) {
	ctx := context.Background()
	var fx effects

	s.mu.Lock()
	lc, ok := s.calls[callId]
	if !ok {
		s.mu.Unlock()
		return
	}
	out, err := lc.call.Apply(callsignal.Input{Event: callsignal.EventTimeout, At: s.clock.Now()})
	if err == nil {
		s.absorb(lc, out, &fx)
	}
	s.mu.Unlock()

	fx.run(ctx)
	if err == nil && out.Ended() {
		log.CtxInfo(ctx, "call rang out: call_id=%s", callId)
	}
}

// absorb updates indexes for an outcome and queues its broadcasts. Caller
// holds s.mu.
func (s *CallService) absorb(lc *liveCall, out callsignal.Outcome, fx *effects) {
	call := lc.call
	callId := call.Id
	roster := rosterIds(call)

	for _, p := range out.Changed {
		switch {
		case p.Status.Active():
			s.active[p.UserId] = callId
		case s.active[p.UserId] == callId:
			delete(s.active, p.UserId)
		}
	}

	if !out.Ended() {
		for _, p := range out.Changed {
			var event string
			switch p.Status {
			case callsignal.ParticipantConnected:
				event = protocol.EventCallParticipantJoined
			case callsignal.ParticipantLeft:
				event = protocol.EventCallParticipantLeft
			default:
				continue
			}
			payload := &protocol.CallParticipantEvent{CallId: callId, Participant: participantWire(p)}
			others := without(roster, p.UserId)
			fx.add(func(ctx context.Context) {
				if s.pusher != nil {
					s.pusher.PushToUsers(ctx, others, event, payload, "")
				}
			})
		}
	}

	missed := append([]string(nil), out.Missed...)
	if len(missed) > 0 && s.notifier != nil {
		initiator := call.InitiatorId
		fx.add(func(ctx context.Context) {
			s.notifier.Notify(ctx, missed, Notice{
				Type:  constant.NotificationMissedCall,
				Title: "Missed call",
				Body:  fmt.Sprintf("You missed a call from %s", initiator),
				Data:  map[string]interface{}{"callId": callId, "initiatorId": initiator},
			})
		})
	}

	rec := callRecord(call)
	fx.add(func(ctx context.Context) { s.save(ctx, rec) })

	if !out.Ended() {
		if call.Status != callsignal.StatusRinging && pendingInvitees(call) == 0 && lc.timer != nil {
			lc.timer.Stop()
		}
		return
	}

	if lc.timer != nil {
		lc.timer.Stop()
	}
	for uid, id := range s.active {
		if id == callId {
			delete(s.active, uid)
		}
	}
	ended := &protocol.CallEnded{CallId: callId, Reason: string(out.Reason)}
	reason := string(out.Reason)
	fx.add(func(ctx context.Context) {
		metrics.ActiveCalls.Dec()
		metrics.CallsEnded.WithLabelValues(reason).Inc()
		if s.pusher != nil {
			s.pusher.PushToUsers(ctx, roster, protocol.EventCallEnded, ended, "")
		}
		_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeCallEnded, Key: callId, Payload: rec})
		log.CtxInfo(ctx, "call ended: call_id=%s, reason=%s", callId, reason)
	})
	s.clock.AfterFunc(endedRetention, func() {
		s.mu.Lock()
		delete(s.calls, callId)
		s.mu.Unlock()
	})
}

// roomToken mints the actor's join token. It runs before any state changes so
// a failure leaves no call behind.
func (s *CallService) roomToken(actor Actor, room string, moderator bool) (string, error) {
	if s.cfg.RoomSecret == "" {
		return "", errcode.ErrConfigNotEnabled.WithMsg("room secret not configured")
	}
	token, err := jwt.GenerateRoomToken(actor.UserId, actor.DisplayName, room, moderator, s.cfg.RoomSecret, s.cfg.TokenTTL)
	if err != nil {
		return "", errcode.ErrInternalServer.Wrap(err)
	}
	return token, nil
}

func (s *CallService) callAck(call *protocol.CallData, token string) *protocol.CallAck {
	return &protocol.CallAck{
		Success:  true,
		Call:     call,
		JoinUrl:  joinURL(s.cfg.JoinBaseURL, call.RoomName),
		Token:    token,
		RoomName: call.RoomName,
	}
}

func (s *CallService) save(ctx context.Context, rec *entity.CallRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, rec); err != nil {
		log.CtxWarn(ctx, "save call record failed: call_id=%s, error=%v", rec.Id, err)
	}
}

func joinURL(base, room string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + room
}

func dedupe(ids []string, exclude string) []string {
	seen := map[string]bool{exclude: true}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func rosterIds(c *callsignal.Call) []string {
	ps := c.Participants()
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserId)
	}
	return ids
}

func pendingInvitees(c *callsignal.Call) int {
	n := 0
	for _, p := range c.Participants() {
		if p.Status == callsignal.ParticipantInvited {
			n++
		}
	}
	return n
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func participantWire(p callsignal.Participant) protocol.CallParticipant {
	return protocol.CallParticipant{UserId: p.UserId, DisplayName: p.DisplayName, Status: string(p.Status)}
}

func callWire(c *callsignal.Call) *protocol.CallData {
	data := &protocol.CallData{
		Id:             c.Id,
		InitiatorId:    c.InitiatorId,
		ConversationId: c.ConversationId,
		IsVideo:        c.IsVideo,
		RoomName:       c.RoomName,
		Status:         string(c.Status),
		EndReason:      string(c.EndReason),
		CreatedAt:      millis(c.CreatedAt),
		ConnectedAt:    millis(c.ConnectedAt),
		EndedAt:        millis(c.EndedAt),
	}
	for _, p := range c.Participants() {
		data.Participants = append(data.Participants, participantWire(p))
	}
	return data
}

func callRecord(c *callsignal.Call) *entity.CallRecord {
	rec := &entity.CallRecord{
		Id:             c.Id,
		InitiatorId:    c.InitiatorId,
		ConversationId: c.ConversationId,
		IsVideo:        c.IsVideo,
		RoomName:       c.RoomName,
		Status:         string(c.Status),
		EndReason:      string(c.EndReason),
		CreatedAt:      millis(c.CreatedAt),
		ConnectedAt:    millis(c.ConnectedAt),
		EndedAt:        millis(c.EndedAt),
	}
	for _, p := range c.Participants() {
		rec.Participants = append(rec.Participants, entity.CallParticipantRecord{
			CallId:      c.Id,
			UserId:      p.UserId,
			DisplayName: p.DisplayName,
			Status:      string(p.Status),
			JoinedAt:    millis(p.JoinedAt),
			LeftAt:      millis(p.LeftAt),
		})
	}
	return rec
}
