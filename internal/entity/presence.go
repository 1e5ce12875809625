package entity

import "github.com/CyberTechArmor/NEON-sub002/pkg/protocol"

// PresenceStatus is a user's availability
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceDND     PresenceStatus = "dnd"
	PresenceOffline PresenceStatus = "offline"
)

// Valid reports whether s is one of the four known statuses
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceDND, PresenceOffline:
		return true
	}
	return false
}

// PresenceState is the last known presence of a user
type PresenceState struct {
	UserId       string         `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	Message      string         `json:"message,omitempty"`
	LastActiveAt int64          `json:"last_active_at"`
}

// ToWire converts PresenceState to its protocol form
func (p *PresenceState) ToWire() *protocol.PresenceBroadcast {
	return &protocol.PresenceBroadcast{
		UserId:       p.UserId,
		Status:       string(p.Status),
		Message:      p.Message,
		LastActiveAt: p.LastActiveAt,
	}
}
