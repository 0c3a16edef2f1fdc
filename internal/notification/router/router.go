package router

import (
	"github.com/gofiber/fiber/v2"

	"family_messaging_service/internal/notification/app"
)

// RegisterRoutes mount the notification REST endpoints.
// The caller installs the JWT middleware before any router registration.
func RegisterRoutes(r *fiber.App, notifications *app.NotificationHTTPHandler) {
	r.Get("/notifications", notifications.List)
	r.Patch("/notifications/:id/read", notifications.MarkRead)
	r.Post("/notifications/read_all", notifications.ReadAll)
}
