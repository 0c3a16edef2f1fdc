package app

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"family_messaging_service/internal/chat/domain"
	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
	"family_messaging_service/pkg/middlewares"
)

// ChatHTTPHandler serves the request-style chat lifecycle surface.
type ChatHTTPHandler struct {
	chatUC *ChatUseCase
}

// NewChatHTTPHandler create ChatHTTPHandler
func NewChatHTTPHandler(chatUC *ChatUseCase) *ChatHTTPHandler {
	return &ChatHTTPHandler{chatUC: chatUC}
}

func requestActor(c *fiber.Ctx) domain.Actor {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	role, _ := c.Locals(middlewares.TokenRole).(string)
	return domain.Actor{ID: userID, Role: role}
}

// CreateChatReq create chat request body
type CreateChatReq struct {
	ChatType  string   `json:"chat_type"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// Create a group or public chat
// @Summary Create chat
// @Tags Chats
// @Accept json
// @Produce json
// @Param request body CreateChatReq true "chat"
// @Success 201 {object} map[string]interface{} "chat"
// @Failure 422 {object} string "validation"
// @Router /chats [post]
func (h *ChatHTTPHandler) Create(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req CreateChatReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	chat, err := h.chatUC.CreateChat(c.Context(), actor, domain.ChatType(req.ChatType), req.Name, req.MemberIDs)
	if err != nil {
		logger.Log.Error("create chat err :", zap.String("user_id", actor.ID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"chat": chat})
}

// StartDirectReq start direct chat request body
type StartDirectReq struct {
	UserID string `json:"user_id"`
}

// StartDirect find or create the direct chat with another member
// @Summary Start direct chat
// @Tags Chats
// @Accept json
// @Produce json
// @Param request body StartDirectReq true "other member"
// @Success 200 {object} map[string]interface{} "chat"
// @Router /chats/direct [post]
func (h *ChatHTTPHandler) StartDirect(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req StartDirectReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	chat, err := h.chatUC.StartDirect(c.Context(), actor, req.UserID)
	if err != nil {
		logger.Log.Error("start direct err :", zap.String("user_id", actor.ID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"chat": chat})
}

// List the actor's chats
// @Summary List chats
// @Description Chats with display name and unread count, most recently active first
// @Tags Chats
// @Produce json
// @Success 200 {object} map[string]interface{} "chats"
// @Router /chats [get]
func (h *ChatHTTPHandler) List(c *fiber.Ctx) error {
	actor := requestActor(c)
	summaries, err := h.chatUC.ListChats(c.Context(), actor)
	if err != nil {
		logger.Log.Error("list chats err :", zap.String("user_id", actor.ID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "list failed"})
	}
	return c.JSON(fiber.Map{"chats": summaries})
}

// RenameReq rename request body
type RenameReq struct {
	Name string `json:"name"`
}

// Rename a group or public chat
// @Summary Rename chat
// @Tags Chats
// @Accept json
// @Param chat_id path string true "Chat ID"
// @Param request body RenameReq true "new name"
// @Success 204
// @Router /chats/{chat_id}/name [patch]
func (h *ChatHTTPHandler) Rename(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req RenameReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	if err := h.chatUC.Rename(c.Context(), actor, c.Params("chat_id"), req.Name); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddMemberReq add member request body
type AddMemberReq struct {
	UserID string `json:"user_id"`
}

// AddMember add a member to a chat
// @Summary Add member
// @Tags Chats
// @Accept json
// @Param chat_id path string true "Chat ID"
// @Param request body AddMemberReq true "member"
// @Success 204
// @Router /chats/{chat_id}/members [post]
func (h *ChatHTTPHandler) AddMember(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req AddMemberReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	if err := h.chatUC.AddMember(c.Context(), actor, c.Params("chat_id"), req.UserID); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveMember remove a member from a chat
// @Summary Remove member
// @Tags Chats
// @Param chat_id path string true "Chat ID"
// @Param user_id path string true "User ID"
// @Success 204
// @Failure 403 {object} string "creator or non-admin"
// @Router /chats/{chat_id}/members/{user_id} [delete]
func (h *ChatHTTPHandler) RemoveMember(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.chatUC.RemoveMember(c.Context(), actor, c.Params("chat_id"), c.Params("user_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Leave a chat
// @Summary Leave chat
// @Tags Chats
// @Param chat_id path string true "Chat ID"
// @Success 204
// @Failure 422 {object} string "direct chats cannot be left"
// @Router /chats/{chat_id}/membership [delete]
func (h *ChatHTTPHandler) Leave(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.chatUC.Leave(c.Context(), actor, c.Params("chat_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Destroy delete a chat and everything in it
// @Summary Delete chat
// @Tags Chats
// @Param chat_id path string true "Chat ID"
// @Success 204
// @Failure 403 {object} string "not authorized to delete this chat"
// @Router /chats/{chat_id} [delete]
func (h *ChatHTTPHandler) Destroy(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.chatUC.Destroy(c.Context(), actor, c.Params("chat_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMembers list a chat's members
// @Summary List chat members
// @Tags Chats
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Success 200 {array} domain.User
// @Failure 403 {object} string "not a member"
// @Router /chats/{chat_id}/members [get]
func (h *ChatHTTPHandler) ListMembers(c *fiber.Ctx) error {
	actor := requestActor(c)
	members, err := h.chatUC.ListMembers(c.Context(), actor, c.Params("chat_id"))
	if err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(members)
}

// MarkRead move the actor's read cursor to now
// @Summary Mark chat read
// @Tags Chats
// @Param chat_id path string true "Chat ID"
// @Success 204
// @Router /chats/{chat_id}/read [post]
func (h *ChatHTTPHandler) MarkRead(c *fiber.Ctx) error {
	actor := requestActor(c)
	if err := h.chatUC.MarkRead(c.Context(), actor, c.Params("chat_id")); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// NotificationsReq mute toggle request body
type NotificationsReq struct {
	Enabled bool `json:"enabled"`
}

// SetNotifications mute or unmute a chat for the actor
// @Summary Toggle chat notifications
// @Tags Chats
// @Accept json
// @Param chat_id path string true "Chat ID"
// @Param request body NotificationsReq true "enabled"
// @Success 204
// @Router /chats/{chat_id}/notifications [patch]
func (h *ChatHTTPHandler) SetNotifications(c *fiber.Ctx) error {
	actor := requestActor(c)
	var req NotificationsReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid body"})
	}

	if err := h.chatUC.SetNotificationsEnabled(c.Context(), actor, c.Params("chat_id"), req.Enabled); err != nil {
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
