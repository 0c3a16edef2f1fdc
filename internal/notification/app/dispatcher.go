package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	chatdomain "family_messaging_service/internal/chat/domain"
	chatrepo "family_messaging_service/internal/chat/repository"
	directorydomain "family_messaging_service/internal/directory/domain"
	directoryrepo "family_messaging_service/internal/directory/repository"
	"family_messaging_service/internal/notification/domain"
	"family_messaging_service/internal/notification/repository"
	"family_messaging_service/pkg/logger"
)

// EventPublisher pushes events onto a user's personal channel. Satisfied
// by the chat broadcaster.
type EventPublisher interface {
	PublishToUser(userID string, evtType chatdomain.EventType, payload interface{})
}

// Dispatcher evaluates committed messages for notification triggers and
// delivers at most one notification per dedup tuple. It runs strictly
// after the message commit; its failures are logged, never propagated
// into the message write path.
type Dispatcher struct {
	notifications repository.NotificationRepository
	chats         chatrepo.ChatRepository
	msgs          chatrepo.MessageRepository
	users         directoryrepo.UserRepository
	publisher     EventPublisher
}

// NewDispatcher create Dispatcher
func NewDispatcher(
	notifications repository.NotificationRepository,
	chats chatrepo.ChatRepository,
	msgs chatrepo.MessageRepository,
	users directoryrepo.UserRepository,
	publisher EventPublisher,
) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		chats:         chats,
		msgs:          msgs,
		users:         users,
		publisher:     publisher,
	}
}

// DispatchMessage run the mention and thread-reply triggers for a
// committed message.
func (d *Dispatcher) DispatchMessage(ctx context.Context, msg *chatdomain.Message, mentioned []directorydomain.User) {
	for _, user := range mentioned {
		d.dispatch(ctx, msg, user.ID, domain.NotificationMention)
	}

	if msg.ParentMessageID == nil {
		return
	}
	parent, err := d.msgs.FindByID(ctx, *msg.ParentMessageID)
	if err != nil {
		logger.Log.Warn("thread reply parent lookup err :", zap.String("parent_id", *msg.ParentMessageID))
		return
	}
	// no reply notification for a tombstoned parent
	if parent.IsDeleted() {
		return
	}
	d.dispatch(ctx, msg, parent.UserID, domain.NotificationThreadReply)
}

// dispatch create one notification unless a skip rule applies, then push
// it on the recipient's personal channel with the fresh unread count.
func (d *Dispatcher) dispatch(ctx context.Context, msg *chatdomain.Message, recipientID string, notificationType domain.NotificationType) {
	if recipientID == msg.UserID {
		return
	}
	membership, err := d.chats.FindMembership(ctx, msg.ChatID, recipientID)
	if err != nil || !membership.NotificationsEnabled {
		return
	}

	n := &domain.Notification{
		UserID:           recipientID,
		ActorID:          msg.UserID,
		NotifiableType:   domain.NotifiableMessage,
		NotifiableID:     msg.ID,
		NotificationType: notificationType,
	}
	created, err := d.notifications.Create(ctx, n)
	if err != nil {
		logger.Log.Error("notification create err :", zap.String("user_id", recipientID), zap.Error(err))
		return
	}
	if !created {
		return
	}

	unread, err := d.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		logger.Log.Warn("notification unread count err :", zap.String("user_id", recipientID))
	}

	actorFirst := ""
	if actor, err := d.users.FindByID(ctx, msg.UserID); err == nil {
		actorFirst = actor.FirstName
	}

	d.publisher.PublishToUser(recipientID, chatdomain.EventNewNotification, map[string]interface{}{
		"notification": NotificationView(n, actorFirst, msg.ChatID, time.Now()),
		"unread_count": unread,
	})
}

// NotificationView build the client JSON for one notification.
func NotificationView(n *domain.Notification, actorFirstName, chatID string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"id":          n.ID,
		"type":        n.NotificationType,
		"description": n.Description(actorFirstName),
		"actor_id":    n.ActorID,
		"chat_id":     chatID,
		"message_id":  n.NotifiableID,
		"read":        n.IsRead(),
		"time_ago":    n.TimeAgo(now),
		"created_at":  n.CreatedAt,
	}
}
