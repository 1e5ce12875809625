package gateway

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Pushes are fanned out on the caller's goroutine. Each connection's write
// queue keeps per-connection order, and a full queue drops the frame for
// that connection only.

// PushToUsers implements service.Pusher
func (s *WsServer) PushToUsers(ctx context.Context, userIds []string, event string, payload interface{}, excludeConnId string) {
	data, ok := encodeEvent(ctx, event, payload)
	if !ok {
		return
	}

	seen := make(map[string]struct{}, len(userIds))
	for _, userId := range userIds {
		if _, dup := seen[userId]; dup {
			continue
		}
		seen[userId] = struct{}{}

		clients, ok := s.userMap.GetAll(userId)
		if !ok {
			continue
		}
		s.deliver(ctx, clients, event, data, excludeConnId)
	}
}

// PushToRoom implements service.Pusher
func (s *WsServer) PushToRoom(ctx context.Context, room string, event string, payload interface{}, excludeConnId string) {
	members := s.rooms.Members(room)
	if len(members) == 0 {
		return
	}
	data, ok := encodeEvent(ctx, event, payload)
	if !ok {
		return
	}
	s.deliver(ctx, members, event, data, excludeConnId)
}

// broadcast pushes to every user connected to this node
func (s *WsServer) broadcast(ctx context.Context, event string, payload interface{}, excludeConnId string) {
	s.PushToUsers(ctx, s.userMap.GetAllOnlineUserIds(), event, payload, excludeConnId)
}

// pushToClient pushes to one connection
func (s *WsServer) pushToClient(ctx context.Context, c *Client, event string, payload interface{}) {
	data, ok := encodeEvent(ctx, event, payload)
	if !ok {
		return
	}
	s.deliver(ctx, []*Client{c}, event, data, "")
}

func (s *WsServer) deliver(ctx context.Context, clients []*Client, event string, data []byte, excludeConnId string) {
	for _, client := range clients {
		if excludeConnId != "" && client.ConnId == excludeConnId {
			continue
		}
		if err := client.write(data); err != nil {
			log.CtxDebug(ctx, "push to client failed: event=%s, user_id=%s, conn_id=%s, error=%v",
				event, client.UserId, client.ConnId, err)
		}
	}
}

func encodeEvent(ctx context.Context, event string, payload interface{}) ([]byte, bool) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		log.CtxError(ctx, "build push envelope failed: event=%s, error=%v", event, err)
		return nil, false
	}
	data, err := protocol.Encode(env)
	if err != nil {
		log.CtxError(ctx, "encode push envelope failed: event=%s, error=%v", event, err)
		return nil, false
	}
	return data, true
}
