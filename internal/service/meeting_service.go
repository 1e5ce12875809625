package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/jonboulle/clockwork"
	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/internal/events"
	"github.com/CyberTechArmor/NEON-sub002/pkg/constant"
	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/idgen"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// CreateMeetingRequest represents create meeting request
type CreateMeetingRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	StartAt        int64    `json:"start_at"` // unix millis
	EndAt          int64    `json:"end_at"`
	Recurrence     string   `json:"recurrence,omitempty"` // cron expression
	ParticipantIds []string `json:"participant_ids"`
}

// MeetingService schedules meetings and drives their lifecycle notices
type MeetingService struct {
	cfg       config.MeetingConfig
	clock     clockwork.Clock
	store     MeetingStore
	ids       idgen.IDGenerator
	notifier  Notifier
	publisher events.Publisher
	pusher    Pusher
}

// NewMeetingService creates a new MeetingService
func NewMeetingService(cfg config.MeetingConfig, clock clockwork.Clock, store MeetingStore, ids idgen.IDGenerator,
	notifier Notifier, publisher events.Publisher) *MeetingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &MeetingService{cfg: cfg, clock: clock, store: store, ids: ids, notifier: notifier, publisher: publisher}
}

// SetPusher sets the event pusher
func (s *MeetingService) SetPusher(pusher Pusher) {
	s.pusher = pusher
}

// Create schedules a meeting and invites its participants
func (s *MeetingService) Create(ctx context.Context, actor Actor, req *CreateMeetingRequest) (*entity.Meeting, error) {
	if strings.TrimSpace(req.Title) == "" || req.EndAt <= req.StartAt {
		return nil, errcode.ErrInvalidParam
	}
	if req.StartAt <= s.clock.Now().UnixMilli() {
		return nil, errcode.ErrInvalidParam.WithMsg("meeting must start in the future")
	}
	if req.Recurrence != "" && !gronx.IsValid(req.Recurrence) {
		return nil, errcode.ErrInvalidParam.WithMsg("invalid recurrence expression")
	}

	id, err := s.ids.NextID()
	if err != nil {
		return nil, errcode.ErrInternalServer.Wrap(err)
	}
	m := &entity.Meeting{
		Id:          id,
		Title:       req.Title,
		Description: req.Description,
		OrganizerId: actor.UserId,
		RoomName:    idgen.RoomName("neon-meet"),
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Recurrence:  req.Recurrence,
		Status:      entity.MeetingScheduled,
	}
	m.Participants = append(m.Participants, entity.MeetingParticipant{MeetingId: id, UserId: actor.UserId, Response: entity.ResponseAccepted})
	invitees := dedupe(req.ParticipantIds, actor.UserId)
	for _, uid := range invitees {
		m.Participants = append(m.Participants, entity.MeetingParticipant{MeetingId: id, UserId: uid, Response: entity.ResponsePending})
	}

	if err := s.store.Create(ctx, m); err != nil {
		log.CtxError(ctx, "create meeting failed: %v", err)
		return nil, errcode.ErrInternalServer
	}

	if len(invitees) > 0 {
		if s.pusher != nil {
			s.pusher.PushToUsers(ctx, invitees, protocol.EventMeetingInvite,
				&protocol.MeetingEvent{Meeting: m.ToWire(), InvitedBy: actor.UserId}, "")
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, invitees, Notice{
				Type:  constant.NotificationMeetingInvite,
				Title: "Meeting invite",
				Body:  fmt.Sprintf("%s invited you to %s", displayOr(actor), m.Title),
				Data:  map[string]interface{}{"meetingId": m.Id},
			})
		}
	}
	_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMeetingCreated, Key: m.Id, Payload: m.ToWire()})

	log.CtxInfo(ctx, "meeting created: meeting_id=%s, organizer=%s, invitees=%d", m.Id, actor.UserId, len(invitees))
	return m, nil
}

func displayOr(a Actor) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.UserId
}

func (s *MeetingService) load(ctx context.Context, id string) (*entity.Meeting, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		log.CtxError(ctx, "get meeting failed: meeting_id=%s, error=%v", id, err)
		return nil, errcode.ErrInternalServer
	}
	if m == nil {
		return nil, errcode.ErrMeetingNotFound
	}
	return m, nil
}

// Respond records an invitee's answer
func (s *MeetingService) Respond(ctx context.Context, actor Actor, meetingId string, resp entity.MeetingResponse) error {
	if !resp.Valid() {
		return errcode.ErrInvalidParam
	}
	m, err := s.load(ctx, meetingId)
	if err != nil {
		return err
	}
	invited := false
	for _, p := range m.Participants {
		if p.UserId == actor.UserId {
			invited = true
			break
		}
	}
	if !invited {
		return errcode.ErrNoPermission
	}
	if m.Status == entity.MeetingCancelled || m.Status == entity.MeetingEnded {
		return errcode.ErrMeetingNotPending
	}
	if err := s.store.SetResponse(ctx, m.Id, actor.UserId, resp); err != nil {
		log.CtxError(ctx, "set meeting response failed: %v", err)
		return errcode.ErrInternalServer
	}
	return nil
}

// Cancel cancels a scheduled meeting; only the organizer may cancel
func (s *MeetingService) Cancel(ctx context.Context, actor Actor, meetingId string) error {
	m, err := s.load(ctx, meetingId)
	if err != nil {
		return err
	}
	if m.OrganizerId != actor.UserId {
		return errcode.ErrNoPermission
	}
	if m.Status != entity.MeetingScheduled {
		return errcode.ErrMeetingNotPending
	}
	m.Status = entity.MeetingCancelled
	if err := s.store.Update(ctx, m); err != nil {
		log.CtxError(ctx, "cancel meeting failed: %v", err)
		return errcode.ErrInternalServer
	}

	others := without(m.UserIds(), actor.UserId)
	if len(others) > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, others, Notice{
			Type:  constant.NotificationMeetingCanceled,
			Title: "Meeting cancelled",
			Body:  fmt.Sprintf("%s was cancelled", m.Title),
			Data:  map[string]interface{}{"meetingId": m.Id},
		})
	}
	_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMeetingCancelled, Key: m.Id, Payload: m.ToWire()})
	return nil
}

// Run ticks the scheduler until ctx is done
func (s *MeetingService) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := s.Tick(ctx); err != nil {
				log.CtxWarn(ctx, "meeting tick failed: %v", err)
			}
		}
	}
}

// Tick emits the notices that became due and advances meeting states
func (s *MeetingService) Tick(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.store.ListActive(ctx, now.Add(s.cfg.ReminderLead).UnixMilli())
	if err != nil {
		return err
	}
	for _, m := range due {
		if s.advance(ctx, m, now) {
			if err := s.store.Update(ctx, m); err != nil {
				log.CtxWarn(ctx, "update meeting failed: meeting_id=%s, error=%v", m.Id, err)
			}
		}
	}
	return nil
}

// advance applies at most one schedule step and one end step to m. A late
// tick goes straight to started without replaying earlier notices.
func (s *MeetingService) advance(ctx context.Context, m *entity.Meeting, now time.Time) bool {
	start := time.UnixMilli(m.StartAt)
	end := time.UnixMilli(m.EndAt)
	changed := false

	if m.Status == entity.MeetingScheduled {
		switch {
		case !now.Before(start):
			m.Status = entity.MeetingInProgress
			m.ReminderSent, m.StartingSent = true, true
			s.announce(ctx, m, protocol.EventMeetingStarted, 0)
			_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMeetingStarted, Key: m.Id, Payload: m.ToWire()})
			changed = true
		case !m.StartingSent && !now.Before(start.Add(-s.cfg.StartingLead)):
			m.ReminderSent, m.StartingSent = true, true
			s.announce(ctx, m, protocol.EventMeetingStarting, minutesUntil(now, start))
			changed = true
		case !m.ReminderSent && !now.Before(start.Add(-s.cfg.ReminderLead)):
			m.ReminderSent = true
			mins := minutesUntil(now, start)
			s.announce(ctx, m, protocol.EventMeetingReminder, mins)
			if s.notifier != nil {
				s.notifier.Notify(ctx, m.UserIds(), Notice{
					Type:  constant.NotificationMeetingReminder,
					Title: "Upcoming meeting",
					Body:  fmt.Sprintf("%s starts in %d minutes", m.Title, mins),
					Data:  map[string]interface{}{"meetingId": m.Id},
				})
			}
			changed = true
		}
	}

	if m.Status == entity.MeetingInProgress && !now.Before(end) {
		m.Status = entity.MeetingEnded
		s.announce(ctx, m, protocol.EventMeetingEnded, 0)
		_ = s.publisher.Publish(ctx, events.Event{Type: events.TypeMeetingEnded, Key: m.Id, Payload: m.ToWire()})
		s.roll(ctx, m, now)
		changed = true
	}
	return changed
}

// roll moves an ended recurring meeting to its next occurrence
func (s *MeetingService) roll(ctx context.Context, m *entity.Meeting, now time.Time) {
	if m.Recurrence == "" {
		return
	}
	// recurrence expressions are evaluated in UTC
	ref := time.UnixMilli(m.EndAt).UTC()
	if now.After(ref) {
		ref = now.UTC()
	}
	next, err := gronx.NextTickAfter(m.Recurrence, ref, false)
	if err != nil {
		log.CtxWarn(ctx, "next occurrence failed: meeting_id=%s, recurrence=%q, error=%v", m.Id, m.Recurrence, err)
		return
	}
	length := m.EndAt - m.StartAt
	m.StartAt = next.UnixMilli()
	m.EndAt = m.StartAt + length
	m.Status = entity.MeetingScheduled
	m.ReminderSent, m.StartingSent = false, false
}

func (s *MeetingService) announce(ctx context.Context, m *entity.Meeting, event string, minutes int) {
	if s.pusher == nil {
		return
	}
	s.pusher.PushToUsers(ctx, m.UserIds(), event, &protocol.MeetingEvent{Meeting: m.ToWire(), MinutesUntil: minutes}, "")
}

func minutesUntil(now, start time.Time) int {
	d := start.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
