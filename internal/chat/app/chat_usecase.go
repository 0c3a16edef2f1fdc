package app

import (
	"context"
	"strings"
	"time"

	"family_messaging_service/internal/chat/domain"
	"family_messaging_service/internal/chat/repository"
	directorydomain "family_messaging_service/internal/directory/domain"
	directoryrepo "family_messaging_service/internal/directory/repository"
	errprocess "family_messaging_service/pkg/err"
)

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Chat        domain.Chat `json:"chat"`
	DisplayName string      `json:"display_name"`
	UnreadCount int64       `json:"unread_count"`
}

// ChatUseCase handles chat lifecycle and membership.
type ChatUseCase struct {
	chats repository.ChatRepository
	users directoryrepo.UserRepository
}

// NewChatUseCase create ChatUseCase
func NewChatUseCase(chats repository.ChatRepository, users directoryrepo.UserRepository) *ChatUseCase {
	return &ChatUseCase{chats: chats, users: users}
}

// CreateChat create a group or public chat with the actor as creator and
// member. Direct chats go through StartDirect instead.
func (uc *ChatUseCase) CreateChat(ctx context.Context, actor domain.Actor, chatType domain.ChatType, name string, memberIDs []string) (*domain.Chat, error) {
	if chatType != domain.ChatTypeGroup && chatType != domain.ChatTypePublic {
		return nil, errprocess.Validation("chat_type must be group or public")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errprocess.Validation("name is required for %s chats", chatType)
	}
	if len([]rune(name)) > domain.MaxChatNameLength {
		return nil, errprocess.Validation("name exceeds %d characters", domain.MaxChatNameLength)
	}

	members := []string{actor.ID}
	for _, id := range memberIDs {
		if id == actor.ID {
			continue
		}
		user, err := uc.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !user.IsActive() {
			return nil, errprocess.Validation("user %s is not active", id)
		}
		members = append(members, id)
	}

	chat := &domain.Chat{ChatType: chatType, Name: name, CreatedByID: &actor.ID}
	if err := uc.chats.Create(ctx, chat, members); err != nil {
		return nil, err
	}
	return chat, nil
}

// StartDirect return the direct chat between the actor and another user,
// creating it on first use. Calling it twice yields the same chat.
func (uc *ChatUseCase) StartDirect(ctx context.Context, actor domain.Actor, otherUserID string) (*domain.Chat, error) {
	if otherUserID == actor.ID {
		return nil, errprocess.Validation("cannot start a direct chat with yourself")
	}
	other, err := uc.users.FindByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}
	if !other.IsActive() {
		return nil, errprocess.Validation("user %s is not active", otherUserID)
	}
	chat, _, err := uc.chats.FindOrCreateDirect(ctx, actor.ID, otherUserID)
	return chat, err
}

// ListChats list the actor's chats with display names and unread counts,
// most recently active first.
func (uc *ChatUseCase) ListChats(ctx context.Context, actor domain.Actor) ([]ChatSummary, error) {
	chats, err := uc.chats.ListForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		otherName := ""
		if chat.IsDirect() {
			memberIDs, err := uc.chats.MemberIDs(ctx, chat.ID)
			if err != nil {
				return nil, err
			}
			for _, id := range memberIDs {
				if id == actor.ID {
					continue
				}
				if other, err := uc.users.FindByID(ctx, id); err == nil {
					otherName = other.FullName()
				}
			}
		}
		unread, err := uc.chats.UnreadCount(ctx, chat.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ChatSummary{
			Chat:        chat,
			DisplayName: chat.DisplayName(otherName),
			UnreadCount: unread,
		})
	}
	return summaries, nil
}

// Rename rename a group or public chat
func (uc *ChatUseCase) Rename(ctx context.Context, actor domain.Actor, chatID, name string) error {
	chat, err := uc.requireMemberChat(ctx, actor, chatID)
	if err != nil {
		return err
	}
	if chat.IsDirect() {
		return errprocess.Validation("direct chats cannot be renamed")
	}
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > domain.MaxChatNameLength {
		return errprocess.Validation("name must be 1-%d characters", domain.MaxChatNameLength)
	}
	return uc.chats.UpdateName(ctx, chatID, name)
}

// AddMember add a user to a group or public chat. Adding an existing
// member is a no-op.
func (uc *ChatUseCase) AddMember(ctx context.Context, actor domain.Actor, chatID, userID string) error {
	chat, err := uc.requireMemberChat(ctx, actor, chatID)
	if err != nil {
		return err
	}
	if chat.IsDirect() {
		return errprocess.Validation("direct chats have a fixed member pair")
	}
	user, err := uc.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return errprocess.Validation("user %s is not active", userID)
	}
	return uc.chats.AddMember(ctx, chatID, userID)
}

// RemoveMember remove a user from a group or public chat. The creator can
// only be removed by an admin.
func (uc *ChatUseCase) RemoveMember(ctx context.Context, actor domain.Actor, chatID, userID string) error {
	chat, err := uc.requireMemberChat(ctx, actor, chatID)
	if err != nil {
		return err
	}
	if chat.IsDirect() {
		return errprocess.Validation("cannot leave a direct chat")
	}
	if chat.CreatedByID != nil && *chat.CreatedByID == userID && !actor.IsAdmin() {
		return errprocess.AccessDenied("only an admin can remove the chat creator")
	}
	return uc.chats.RemoveMember(ctx, chatID, userID)
}

// Leave remove the actor from a group or public chat
func (uc *ChatUseCase) Leave(ctx context.Context, actor domain.Actor, chatID string) error {
	return uc.RemoveMember(ctx, actor, chatID, actor.ID)
}

// Destroy delete a chat with its messages, reactions, receipts and
// memberships. Group and public chats fall to their creator or an admin;
// a direct chat cannot be left, so either member may destroy it.
func (uc *ChatUseCase) Destroy(ctx context.Context, actor domain.Actor, chatID string) error {
	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.IsDirect() {
		if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
			return errprocess.AccessDenied("not a member of this chat")
		}
		return uc.chats.Delete(ctx, chatID)
	}
	if !actor.IsAdmin() && (chat.CreatedByID == nil || *chat.CreatedByID != actor.ID) {
		return errprocess.AccessDenied("only the creator or an admin can delete a chat")
	}
	return uc.chats.Delete(ctx, chatID)
}

// ListMembers list a chat's members from the directory. Members only.
func (uc *ChatUseCase) ListMembers(ctx context.Context, actor domain.Actor, chatID string) ([]directorydomain.User, error) {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}
	return uc.users.FindChatMembers(ctx, chatID)
}

// MarkRead advance the actor's read cursor in a chat to now
func (uc *ChatUseCase) MarkRead(ctx context.Context, actor domain.Actor, chatID string) error {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return errprocess.AccessDenied("not a member of this chat")
	}
	return uc.chats.MarkRead(ctx, chatID, actor.ID, time.Now())
}

// SetNotificationsEnabled toggle the actor's notification preference for a
// chat
func (uc *ChatUseCase) SetNotificationsEnabled(ctx context.Context, actor domain.Actor, chatID string, enabled bool) error {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return errprocess.AccessDenied("not a member of this chat")
	}
	return uc.chats.SetNotificationsEnabled(ctx, chatID, actor.ID, enabled)
}

func (uc *ChatUseCase) requireMemberChat(ctx context.Context, actor domain.Actor, chatID string) (*domain.Chat, error) {
	chat, err := uc.chats.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}
	return chat, nil
}
