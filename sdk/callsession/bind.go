package callsession

import (
	"context"

	"github.com/CyberTechArmor/NEON-sub002/internal/callsignal"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// CallFeed reports call state changes. *realtime.Calls is one.
type CallFeed interface {
	OnChange(fn func(protocol.CallData))
}

// Bind follows the active session's call on feed: the roster is kept
// current and the session is cleared when the call ends. Calls are matched
// by room name because a restored session has no call id.
func (s *Store) Bind(feed CallFeed) {
	feed.OnChange(s.onCall)
}

func (s *Store) onCall(call protocol.CallData) {
	ctx := context.Background()

	s.mu.Lock()
	if s.closed || s.session == nil || s.session.RoomName != call.RoomName {
		s.mu.Unlock()
		return
	}
	if s.session.CallId == "" {
		s.session.CallId = call.Id
	}
	s.mu.Unlock()

	if callsignal.Status(call.Status).Terminal() {
		s.clear(ctx)
		return
	}
	_ = s.UpdateParticipants(ctx, call.Participants)
}
