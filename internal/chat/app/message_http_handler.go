package app

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
)

// MessageHTTPHandler serves the request-style message surface. Realtime
// delivery still happens over the gateway; these endpoints cover history
// paging and clients without a live connection.
type MessageHTTPHandler struct {
	messageUC *MessageUseCase
}

// NewMessageHTTPHandler create MessageHTTPHandler
func NewMessageHTTPHandler(messageUC *MessageUseCase) *MessageHTTPHandler {
	return &MessageHTTPHandler{messageUC: messageUC}
}

// List a chat's messages rendered for the actor
// @Summary List messages
// @Description Oldest first, paged backwards with before; limit defaults to 50, max 100
// @Tags Messages
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Param before query string false "RFC3339 upper bound"
// @Param limit query int false "page size"
// @Success 200 {object} map[string]interface{} "messages"
// @Failure 403 {object} string "not a member"
// @Router /chats/{chat_id}/messages [get]
func (h *MessageHTTPHandler) List(c *fiber.Ctx) error {
	actor := requestActor(c)
	chatID := c.Params("chat_id")

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "before must be RFC3339"})
		}
		before = parsed
	}

	messages, err := h.messageUC.ListMessages(c.Context(), actor, chatID, before, c.QueryInt("limit"))
	if err != nil {
		logger.Log.Error("list messages err :", zap.String("chat_id", chatID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// Post append a message to a chat
// @Summary Post message
// @Tags Messages
// @Accept json
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Param request body PostMessageInput true "message"
// @Success 201 {object} map[string]interface{} "message"
// @Failure 422 {object} string "validation"
// @Router /chats/{chat_id}/messages [post]
func (h *MessageHTTPHandler) Post(c *fiber.Ctx) error {
	actor := requestActor(c)
	chatID := c.Params("chat_id")
	var input PostMessageInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	msg, err := h.messageUC.Post(c.Context(), actor, chatID, input)
	if err != nil {
		logger.Log.Error("post message err :", zap.String("chat_id", chatID), zap.String("user_id", actor.ID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         msg.ID,
		"chat_id":    msg.ChatID,
		"created_at": msg.CreatedAt,
	})
}

// EditReq edit request body
type EditReq struct {
	Content string `json:"content"`
}

// Edit replace a message's content
// @Summary Edit message
// @Tags Messages
// @Accept json
// @Param message_id path string true "Message ID"
// @Param request body EditReq true "content"
// @Success 204
// @Failure 403 {object} string "not the author"
// @Router /messages/{message_id} [patch]
func (h *MessageHTTPHandler) Edit(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req EditReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	if _, err := h.messageUC.Edit(c.Context(), actor, c.Params("message_id"), req.Content); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Delete tombstone a message
// @Summary Delete message
// @Tags Messages
// @Param message_id path string true "Message ID"
// @Success 204
// @Failure 403 {object} string "not the author or an admin"
// @Router /messages/{message_id} [delete]
func (h *MessageHTTPHandler) Delete(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.messageUC.Delete(c.Context(), actor, c.Params("message_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReactionReq reaction toggle request body
type ReactionReq struct {
	Emoji string `json:"emoji"`
}

// ToggleReaction add or remove the actor's reaction
// @Summary Toggle reaction
// @Tags Messages
// @Accept json
// @Produce json
// @Param message_id path string true "Message ID"
// @Param request body ReactionReq true "emoji"
// @Success 200 {object} map[string]interface{} "added"
// @Failure 422 {object} string "emoji outside the quick set"
// @Router /messages/{message_id}/reactions [post]
func (h *MessageHTTPHandler) ToggleReaction(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req ReactionReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	added, err := h.messageUC.ToggleReaction(c.Context(), actor, c.Params("message_id"), req.Emoji)
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"added": added})
}

// ListThread list a message's replies rendered for the actor
// @Summary List thread replies
// @Tags Messages
// @Produce json
// @Param message_id path string true "Message ID"
// @Success 200 {array} RenderedMessage
// @Failure 403 {object} string "not a member"
// @Router /messages/{message_id}/thread [get]
func (h *MessageHTTPHandler) ListThread(c *fiber.Ctx) error {
	actor := requestActor(c)
	replies, err := h.messageUC.ListThread(c.Context(), actor, c.Params("message_id"))
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(replies)
}

// ListReaders list who has seen a message
// @Summary List message readers
// @Tags Messages
// @Produce json
// @Param message_id path string true "Message ID"
// @Success 200 {array} MessageReader
// @Failure 403 {object} string "not a member"
// @Router /messages/{message_id}/read_receipts [get]
func (h *MessageHTTPHandler) ListReaders(c *fiber.Ctx) error {
	actor := requestActor(c)
	readers, err := h.messageUC.ListReaders(c.Context(), actor, c.Params("message_id"))
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(readers)
}

// TypingNames list who is typing in a chat
// @Summary List typing members
// @Tags Messages
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Success 200 {array} string
// @Failure 403 {object} string "not a member"
// @Router /chats/{chat_id}/typing [get]
func (h *MessageHTTPHandler) TypingNames(c *fiber.Ctx) error {
	actor := requestActor(c)
	names, err := h.messageUC.TypingNames(c.Context(), actor, c.Params("chat_id"))
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(names)
}

// ReadReceipt record that the actor saw a message
// @Summary Mark message seen
// @Tags Messages
// @Param message_id path string true "Message ID"
// @Success 204
// @Router /messages/{message_id}/read_receipt [post]
func (h *MessageHTTPHandler) ReadReceipt(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.messageUC.MarkReadReceipt(c.Context(), actor, c.Params("message_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
