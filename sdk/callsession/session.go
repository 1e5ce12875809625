package callsession

import (
	"time"

	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// ActiveCallSession is the one call this client is part of
type ActiveCallSession struct {
	CallId         string // empty after a restore
	ConversationId string
	RoomName       string
	JoinURL        string
	Token          string // media token, never persisted
	DisplayName    string
	StartedAt      time.Time
	ViewMode       ViewMode
	IsHost         bool
	Participants   []protocol.CallParticipant

	// Restored is set when the session came from a snapshot. The caller
	// should confirm the call is still live before resuming media.
	Restored bool
}

func (a *ActiveCallSession) clone() *ActiveCallSession {
	cp := *a
	cp.Participants = append([]protocol.CallParticipant(nil), a.Participants...)
	return &cp
}

// Snapshot returns the persisted subset of the session
func (a *ActiveCallSession) Snapshot() *Snapshot {
	return &Snapshot{
		RoomName:     a.RoomName,
		JoinURL:      a.JoinURL,
		DisplayName:  a.DisplayName,
		StartedAt:    a.StartedAt.UnixMilli(),
		ViewMode:     a.ViewMode,
		IsHost:       a.IsHost,
		Participants: append([]protocol.CallParticipant(nil), a.Participants...),
	}
}

// Snapshot is everything that survives a restart of the client. Config,
// tokens and loading state are rebuilt on next use.
type Snapshot struct {
	RoomName     string                     `json:"roomName"`
	JoinURL      string                     `json:"joinUrl"`
	DisplayName  string                     `json:"displayName"`
	StartedAt    int64                      `json:"startedAt"`
	ViewMode     ViewMode                   `json:"viewMode"`
	IsHost       bool                       `json:"isHost"`
	Participants []protocol.CallParticipant `json:"participants"`
}

// Session rebuilds the session a snapshot was taken from
func (s *Snapshot) Session() *ActiveCallSession {
	return &ActiveCallSession{
		RoomName:     s.RoomName,
		JoinURL:      s.JoinURL,
		DisplayName:  s.DisplayName,
		StartedAt:    time.UnixMilli(s.StartedAt),
		ViewMode:     s.ViewMode,
		IsHost:       s.IsHost,
		Participants: append([]protocol.CallParticipant(nil), s.Participants...),
		Restored:     true,
	}
}
