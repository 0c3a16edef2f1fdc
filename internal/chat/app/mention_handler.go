package app

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"family_messaging_service/internal/chat/repository"
	directoryrepo "family_messaging_service/internal/directory/repository"
	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
	"family_messaging_service/pkg/middlewares"
)

// MentionHTTPHandler serves mention autocomplete for clients composing a
// message.
type MentionHTTPHandler struct {
	users directoryrepo.UserRepository
	chats repository.ChatRepository
}

// NewMentionHTTPHandler create MentionHTTPHandler
func NewMentionHTTPHandler(users directoryrepo.UserRepository, chats repository.ChatRepository) *MentionHTTPHandler {
	return &MentionHTTPHandler{users: users, chats: chats}
}

// Autocomplete list mention candidates
// @Summary Mention autocomplete
// @Description Up to 5 chat members whose first name starts with the query, requester excluded
// @Tags Chats
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Param query query string false "First-name prefix"
// @Success 200 {object} map[string]interface{} "candidates"
// @Failure 403 {object} string "not a member"
// @Router /chats/{chat_id}/mentions [get]
func (h *MentionHTTPHandler) Autocomplete(c *fiber.Ctx) error {
	userID, _ := c.Locals(middlewares.TokenUserID).(string)
	chatID := c.Params("chat_id")
	query := c.Query("query")

	if _, err := h.chats.FindMembership(c.Context(), chatID, userID); err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a member of this chat"})
	}

	candidates, err := h.users.AutocompleteMentionCandidates(c.Context(), chatID, query, userID, 5)
	if err != nil {
		logger.Log.Error("mention autocomplete err :", zap.String("chatID", chatID), zap.Error(err))
		return c.Status(errprocess.HTTPStatus(err)).JSON(fiber.Map{"error": "autocomplete failed"})
	}

	users := make([]fiber.Map, 0, len(candidates))
	for _, u := range candidates {
		users = append(users, fiber.Map{
			"id":         u.ID,
			"name":       u.FullName(),
			"first_name": u.FirstName,
			"initials":   u.Initials(),
		})
	}
	return c.JSON(fiber.Map{"users": users})
}
