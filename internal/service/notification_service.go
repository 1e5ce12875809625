package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/CyberTechArmor/NEON-sub002/internal/entity"
	"github.com/CyberTechArmor/NEON-sub002/pkg/idgen"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

// Notice is the content of a notification before it is addressed
type Notice struct {
	Type  string
	Title string
	Body  string
	Data  map[string]interface{}
}

// Notifier delivers notices to users
type Notifier interface {
	Notify(ctx context.Context, userIds []string, n Notice)
}

// NotificationService stores notifications and pushes them live
type NotificationService struct {
	store  NotificationStore
	ids    idgen.IDGenerator
	pusher Pusher
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(store NotificationStore, ids idgen.IDGenerator) *NotificationService {
	return &NotificationService{store: store, ids: ids}
}

// SetPusher sets the event pusher
func (s *NotificationService) SetPusher(pusher Pusher) {
	s.pusher = pusher
}

// Notify stores one notification per user and pushes it to their
// connections. Failures are logged; delivery is best-effort.
func (s *NotificationService) Notify(ctx context.Context, userIds []string, n Notice) {
	now := entity.NowUnixMilli()
	for _, uid := range userIds {
		id, err := s.ids.NextID()
		if err != nil {
			log.CtxError(ctx, "notification id failed: %v", err)
			continue
		}
		rec := &entity.Notification{
			Id:        id,
			UserId:    uid,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			CreatedAt: now,
		}
		if s.store != nil {
			if err := s.store.Create(ctx, rec); err != nil {
				log.CtxWarn(ctx, "store notification failed: user_id=%s, type=%s, error=%v", uid, n.Type, err)
			}
		}
		if s.pusher != nil {
			s.pusher.PushToUsers(ctx, []string{uid}, protocol.EventNotification, rec.ToWire(), "")
		}
	}
}
