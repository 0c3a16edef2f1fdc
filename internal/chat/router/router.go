package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"family_messaging_service/internal/chat/app"
)

// RegisterRoutes mount the realtime gateway and chat REST endpoints.
// The caller installs the JWT middleware before any router registration.
func RegisterRoutes(
	r *fiber.App,
	chatWebsocket *app.ChatWebsocketHandler,
	chats *app.ChatHTTPHandler,
	messages *app.MessageHTTPHandler,
	mentions *app.MentionHTTPHandler,
) {
	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))

	r.Post("/chats", chats.Create)
	r.Get("/chats", chats.List)
	r.Post("/chats/direct", chats.StartDirect)
	r.Patch("/chats/:chat_id/name", chats.Rename)
	r.Post("/chats/:chat_id/members", chats.AddMember)
	r.Delete("/chats/:chat_id/members/:user_id", chats.RemoveMember)
	r.Delete("/chats/:chat_id/membership", chats.Leave)
	r.Delete("/chats/:chat_id", chats.Destroy)
	r.Get("/chats/:chat_id/members", chats.ListMembers)
	r.Post("/chats/:chat_id/read", chats.MarkRead)
	r.Patch("/chats/:chat_id/notifications", chats.SetNotifications)

	r.Get("/chats/:chat_id/messages", messages.List)
	r.Post("/chats/:chat_id/messages", messages.Post)
	r.Get("/chats/:chat_id/typing", messages.TypingNames)
	r.Patch("/messages/:message_id", messages.Edit)
	r.Delete("/messages/:message_id", messages.Delete)
	r.Post("/messages/:message_id/reactions", messages.ToggleReaction)
	r.Post("/messages/:message_id/read_receipt", messages.ReadReceipt)
	r.Get("/messages/:message_id/read_receipts", messages.ListReaders)
	r.Get("/messages/:message_id/thread", messages.ListThread)

	r.Get("/chats/:chat_id/mentions", mentions.Autocomplete)
}
