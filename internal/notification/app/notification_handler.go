package app

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	chatdomain "family_messaging_service/internal/chat/domain"
	chatrepo "family_messaging_service/internal/chat/repository"
	directoryrepo "family_messaging_service/internal/directory/repository"
	"family_messaging_service/internal/notification/repository"
	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
	"family_messaging_service/pkg/middlewares"
)

const recentNotificationLimit = 50

// NotificationHTTPHandler serves the request-style notification surface
// for clients without a live connection.
type NotificationHTTPHandler struct {
	notifications repository.NotificationRepository
	msgs          chatrepo.MessageRepository
	users         directoryrepo.UserRepository
	publisher     EventPublisher
}

// NewNotificationHTTPHandler create NotificationHTTPHandler
func NewNotificationHTTPHandler(
	notifications repository.NotificationRepository,
	msgs chatrepo.MessageRepository,
	users directoryrepo.UserRepository,
	publisher EventPublisher,
) *NotificationHTTPHandler {
	return &NotificationHTTPHandler{
		notifications: notifications,
		msgs:          msgs,
		users:         users,
		publisher:     publisher,
	}
}

// List recent notifications
// @Summary List notifications
// @Description The 50 most recent notifications plus the current unread count
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{} "notifications"
// @Router /notifications [get]
func (h *NotificationHTTPHandler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)

	notifications, err := h.notifications.FindRecentByUser(c.Context(), userID, recentNotificationLimit)
	if err != nil {
		logger.Log.Error("notification list err :", zap.String("user_id", userID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "list failed"})
	}
	unread, err := h.notifications.CountUnread(c.Context(), userID)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "list failed"})
	}

	now := time.Now()
	views := make([]map[string]interface{}, 0, len(notifications))
	for i := range notifications {
		n := &notifications[i]
		actorFirst := ""
		if actor, err := h.users.FindByID(c.Context(), n.ActorID); err == nil {
			actorFirst = actor.FirstName
		}
		chatID := ""
		if msg, err := h.msgs.FindByID(c.Context(), n.NotifiableID); err == nil {
			chatID = msg.ChatID
		}
		views = append(views, NotificationView(n, actorFirst, chatID, now))
	}

	return c.JSON(fiber.Map{
		"notifications": views,
		"unread_count":  unread,
	})
}

// MarkRead mark one notification read
// @Summary Mark notification read
// @Description Stamp one notification read and return the new unread count
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]interface{} "unread_count"
// @Failure 404 {object} string "unknown notification"
// @Router /notifications/{id}/read [patch]
func (h *NotificationHTTPHandler) MarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	id := c.Params("id")

	changed, err := h.notifications.MarkRead(c.Context(), id, userID, time.Now())
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "mark read failed"})
	}
	unread, err := h.notifications.CountUnread(c.Context(), userID)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "mark read failed"})
	}

	if changed {
		h.publisher.PublishToUser(userID, chatdomain.EventNotificationRead, map[string]interface{}{
			"notification_id": id,
			"unread_count":    unread,
		})
	}
	return c.JSON(fiber.Map{"unread_count": unread})
}

// ReadAll mark every notification read
// @Summary Mark all notifications read
// @Description Stamp every unread notification of the requester
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{} "unread_count"
// @Router /notifications/read_all [post]
func (h *NotificationHTTPHandler) ReadAll(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)

	ids, err := h.notifications.MarkAllRead(c.Context(), userID, time.Now())
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "mark all read failed"})
	}

	if len(ids) > 0 {
		h.publisher.PublishToUser(userID, chatdomain.EventNotificationsRead, map[string]interface{}{
			"notification_ids": ids,
			"unread_count":     0,
		})
	}
	return c.JSON(fiber.Map{"unread_count": 0})
}
