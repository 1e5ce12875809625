package callsignal

import (
	"time"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
)

// ErrStaleTransition is returned for any event on an ended call. Callers drop
// it silently: it races legitimately with a graceful end.
var ErrStaleTransition = errcode.ErrStaleTransition

// Participant is one member of a call
type Participant struct {
	UserId      string
	DisplayName string
	Status      ParticipantStatus
	JoinedAt    time.Time
	LeftAt      time.Time
}

// Input is one event applied to a call. UserId is the acting participant;
// it is ignored for timeout, busy and fail.
type Input struct {
	Event  Event
	UserId string
	At     time.Time
}

// Outcome describes what an applied input changed
type Outcome struct {
	From    Status
	To      Status
	Reason  EndReason     // set when the call ended with this input
	Changed []Participant // participants whose sub-state moved, in roster order
	Missed  []string      // invitees that never answered before the ring ended
}

// Ended reports whether this input ended the call
func (o Outcome) Ended() bool { return o.To == StatusEnded && o.From != StatusEnded }

// Call is the state of one call. It is not safe for concurrent use; the owner
// serializes access.
type Call struct {
	Id             string
	InitiatorId    string
	ConversationId string
	IsVideo        bool
	RoomName       string
	Status         Status
	EndReason      EndReason
	CreatedAt      time.Time
	ConnectedAt    time.Time
	EndedAt        time.Time

	participants []*Participant
	connected    bool // ever reached connected
}

// Options carries the optional attributes of a new call
type Options struct {
	ConversationId string
	IsVideo        bool
	RoomName       string
	Names          map[string]string // display names by user id
}

// New creates a call in ringing. The initiator is joining; every distinct
// invitee other than the initiator is invited.
func New(id, initiatorId string, invitees []string, opts Options, at time.Time) *Call {
	c := &Call{
		Id:             id,
		InitiatorId:    initiatorId,
		ConversationId: opts.ConversationId,
		IsVideo:        opts.IsVideo,
		RoomName:       opts.RoomName,
		Status:         StatusRinging,
		CreatedAt:      at,
	}
	c.participants = append(c.participants, &Participant{
		UserId:      initiatorId,
		DisplayName: opts.Names[initiatorId],
		Status:      ParticipantJoining,
		JoinedAt:    at,
	})
	seen := map[string]bool{initiatorId: true}
	for _, uid := range invitees {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		c.participants = append(c.participants, &Participant{
			UserId:      uid,
			DisplayName: opts.Names[uid],
			Status:      ParticipantInvited,
		})
	}
	return c
}

// Participants returns a copy of the roster, initiator first
func (c *Call) Participants() []Participant {
	out := make([]Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, *p)
	}
	return out
}

// Participant returns the participant with userId
func (c *Call) Participant(userId string) (Participant, bool) {
	if p := c.find(userId); p != nil {
		return *p, true
	}
	return Participant{}, false
}

// Invitees returns the ids of every participant except the initiator
func (c *Call) Invitees() []string {
	var ids []string
	for _, p := range c.participants {
		if p.UserId != c.InitiatorId {
			ids = append(ids, p.UserId)
		}
	}
	return ids
}

// EverConnected reports whether the call ever reached connected
func (c *Call) EverConnected() bool { return c.connected }

func (c *Call) find(userId string) *Participant {
	for _, p := range c.participants {
		if p.UserId == userId {
			return p
		}
	}
	return nil
}

func (c *Call) count(match func(ParticipantStatus) bool) int {
	n := 0
	for _, p := range c.participants {
		if match(p.Status) {
			n++
		}
	}
	return n
}

// Apply runs one input through the machine
func (c *Call) Apply(in Input) (Outcome, error) {
	out := Outcome{From: c.Status, To: c.Status}
	if c.Status.Terminal() {
		return out, ErrStaleTransition
	}

	var err error
	switch in.Event {
	case EventAnswer:
		err = c.answer(in, &out)
	case EventConnect:
		err = c.connect(in, &out)
	case EventDecline:
		err = c.decline(in, &out)
	case EventCancel:
		err = c.cancel(in, &out)
	case EventEnd:
		err = c.end(in, &out)
	case EventTimeout:
		c.timeout(in, &out)
	case EventBusy:
		if c.Status != StatusRinging {
			err = errcode.ErrIllegalTransition.WithMsg("busy outside ringing")
			break
		}
		c.finish(ReasonBusy, in.At, &out)
	case EventFail:
		c.finish(ReasonFailed, in.At, &out)
	default:
		err = errcode.ErrIllegalTransition.WithMsg("unknown call event " + string(in.Event))
	}
	if err != nil {
		return Outcome{From: out.From, To: c.Status}, err
	}
	out.To = c.Status
	return out, nil
}

func (c *Call) participant(userId string) (*Participant, error) {
	p := c.find(userId)
	if p == nil {
		return nil, errcode.ErrNotCallParticipant
	}
	return p, nil
}

func (c *Call) answer(in Input, out *Outcome) error {
	p, err := c.participant(in.UserId)
	if err != nil {
		return err
	}
	if p.Status != ParticipantInvited {
		return errcode.ErrIllegalTransition.WithMsg("participant is " + string(p.Status))
	}
	c.move(p, ParticipantJoining, in.At, out)
	if c.Status == StatusRinging {
		c.advance(StatusConnecting)
	}
	return nil
}

func (c *Call) connect(in Input, out *Outcome) error {
	p, err := c.participant(in.UserId)
	if err != nil {
		return err
	}
	if p.Status != ParticipantJoining {
		return errcode.ErrIllegalTransition.WithMsg("participant is " + string(p.Status))
	}
	if c.Status == StatusRinging && p.UserId != c.InitiatorId {
		return errcode.ErrIllegalTransition.WithMsg("connect before answer")
	}
	c.move(p, ParticipantConnected, in.At, out)
	if c.Status != StatusConnected && c.count(isConnected) >= 2 {
		c.advance(StatusConnected)
		c.connected = true
		c.ConnectedAt = in.At
	}
	return nil
}

func (c *Call) decline(in Input, out *Outcome) error {
	p, err := c.participant(in.UserId)
	if err != nil {
		return err
	}
	if p.Status != ParticipantInvited {
		return errcode.ErrIllegalTransition.WithMsg("participant is " + string(p.Status))
	}
	c.move(p, ParticipantLeft, in.At, out)

	if c.count(isInvited) > 0 {
		return nil
	}
	switch {
	case c.Status == StatusRinging:
		c.finish(ReasonDeclined, in.At, out)
	case c.count(ParticipantStatus.Active) < 2:
		c.finish(c.closingReason(), in.At, out)
	}
	return nil
}

func (c *Call) cancel(in Input, out *Outcome) error {
	if in.UserId != c.InitiatorId {
		return errcode.ErrCallPermission.WithMsg("only the initiator can cancel")
	}
	if c.Status != StatusRinging {
		return errcode.ErrIllegalTransition.WithMsg("cancel after answer")
	}
	c.finish(ReasonMissed, in.At, out)
	return nil
}

func (c *Call) end(in Input, out *Outcome) error {
	p, err := c.participant(in.UserId)
	if err != nil {
		return err
	}
	if p.Status == ParticipantLeft {
		return nil
	}
	if p.Status == ParticipantInvited {
		return c.decline(in, out)
	}
	if c.Status == StatusRinging {
		// only the initiator is active while ringing
		c.finish(ReasonMissed, in.At, out)
		return nil
	}
	c.move(p, ParticipantLeft, in.At, out)
	if c.count(ParticipantStatus.Active) < 2 {
		c.finish(c.closingReason(), in.At, out)
	}
	return nil
}

func (c *Call) timeout(in Input, out *Outcome) {
	if c.Status == StatusRinging {
		c.finish(ReasonMissed, in.At, out)
		return
	}
	c.missInvited(in.At, out)
}

func (c *Call) closingReason() EndReason {
	if c.connected {
		return ReasonCompleted
	}
	return ReasonMissed
}

func (c *Call) missInvited(at time.Time, out *Outcome) {
	for _, p := range c.participants {
		if p.Status == ParticipantInvited {
			out.Missed = append(out.Missed, p.UserId)
			c.move(p, ParticipantLeft, at, out)
		}
	}
}

// finish ends the call; invitees still ringing count as missed
func (c *Call) finish(reason EndReason, at time.Time, out *Outcome) {
	c.missInvited(at, out)
	for _, p := range c.participants {
		if p.Status != ParticipantLeft {
			c.move(p, ParticipantLeft, at, out)
		}
	}
	c.advance(StatusEnded)
	c.EndReason = reason
	c.EndedAt = at
	out.Reason = reason
}

func (c *Call) advance(to Status) {
	if to.rank() < c.Status.rank() {
		panic("callsignal: backward transition " + string(c.Status) + " -> " + string(to))
	}
	c.Status = to
}

func (c *Call) move(p *Participant, to ParticipantStatus, at time.Time, out *Outcome) {
	p.Status = to
	switch to {
	case ParticipantJoining:
		p.JoinedAt = at
	case ParticipantLeft:
		p.LeftAt = at
	}
	out.Changed = append(out.Changed, *p)
}

func isConnected(s ParticipantStatus) bool { return s == ParticipantConnected }
func isInvited(s ParticipantStatus) bool   { return s == ParticipantInvited }

// Snapshot is the full, copyable state of a call
type Snapshot struct {
	Id             string
	InitiatorId    string
	ConversationId string
	IsVideo        bool
	RoomName       string
	Status         Status
	EndReason      EndReason
	CreatedAt      time.Time
	ConnectedAt    time.Time
	EndedAt        time.Time
	EverConnected  bool
	Participants   []Participant
}

// Snapshot copies the call state
func (c *Call) Snapshot() Snapshot {
	return Snapshot{
		Id:             c.Id,
		InitiatorId:    c.InitiatorId,
		ConversationId: c.ConversationId,
		IsVideo:        c.IsVideo,
		RoomName:       c.RoomName,
		Status:         c.Status,
		EndReason:      c.EndReason,
		CreatedAt:      c.CreatedAt,
		ConnectedAt:    c.ConnectedAt,
		EndedAt:        c.EndedAt,
		EverConnected:  c.connected || c.Status == StatusConnected,
		Participants:   c.Participants(),
	}
}

// Restore rebuilds a call from a snapshot, e.g. one received from the server
func Restore(s Snapshot) *Call {
	c := &Call{
		Id:             s.Id,
		InitiatorId:    s.InitiatorId,
		ConversationId: s.ConversationId,
		IsVideo:        s.IsVideo,
		RoomName:       s.RoomName,
		Status:         s.Status,
		EndReason:      s.EndReason,
		CreatedAt:      s.CreatedAt,
		ConnectedAt:    s.ConnectedAt,
		EndedAt:        s.EndedAt,
		connected:      s.EverConnected || s.Status == StatusConnected,
	}
	if c.Status.rank() == 0 {
		c.Status = StatusRinging
	}
	for i := range s.Participants {
		p := s.Participants[i]
		c.participants = append(c.participants, &p)
	}
	return c
}

// Terminate ends the call with a reason decided elsewhere, such as a
// call:ended broadcast received by a client.
func (c *Call) Terminate(reason EndReason, at time.Time) (Outcome, error) {
	out := Outcome{From: c.Status, To: c.Status}
	if c.Status.Terminal() {
		return out, ErrStaleTransition
	}
	if !reason.Valid() {
		reason = ReasonFailed
	}
	c.finish(reason, at, &out)
	out.To = c.Status
	return out, nil
}
