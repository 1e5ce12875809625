package callsignal

// Status is the aggregate lifecycle state of a call
type Status string

const (
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
)

func (s Status) rank() int {
	switch s {
	case StatusRinging:
		return 1
	case StatusConnecting:
		return 2
	case StatusConnected:
		return 3
	case StatusEnded:
		return 4
	}
	return 0
}

// Advances reports whether next lies strictly after s in the lifecycle
func (s Status) Advances(next Status) bool { return next.rank() > s.rank() }

// Terminal reports whether no further transition is accepted
func (s Status) Terminal() bool { return s == StatusEnded }

// EndReason tells observers how a call ended
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonMissed    EndReason = "missed"
	ReasonDeclined  EndReason = "declined"
	ReasonFailed    EndReason = "failed"
	ReasonBusy      EndReason = "busy"
)

// Valid reports whether r is a known end reason
func (r EndReason) Valid() bool {
	switch r {
	case ReasonCompleted, ReasonMissed, ReasonDeclined, ReasonFailed, ReasonBusy:
		return true
	}
	return false
}

// ParticipantStatus is one participant's bookkeeping state, independent of
// the aggregate call status.
type ParticipantStatus string

const (
	ParticipantInvited   ParticipantStatus = "invited"
	ParticipantJoining   ParticipantStatus = "joining"
	ParticipantConnected ParticipantStatus = "connected"
	ParticipantLeft      ParticipantStatus = "left"
)

// Active reports whether the participant is in or entering the media room
func (s ParticipantStatus) Active() bool {
	return s == ParticipantJoining || s == ParticipantConnected
}

// Event drives the machine
type Event string

const (
	EventAnswer  Event = "answer"
	EventConnect Event = "connect"
	EventDecline Event = "decline"
	EventCancel  Event = "cancel"
	EventEnd     Event = "end"
	EventTimeout Event = "timeout"
	EventBusy    Event = "busy"
	EventFail    Event = "fail"
)
