package app

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"family_messaging_service/internal/chat/domain"
	directorydomain "family_messaging_service/internal/directory/domain"
)

type mockChatRepo struct {
	mock.Mock
}

func (m *mockChatRepo) Create(ctx context.Context, chat *domain.Chat, memberIDs []string) error {
	args := m.Called(ctx, chat, memberIDs)
	return args.Error(0)
}

func (m *mockChatRepo) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chat), args.Error(1)
}

func (m *mockChatRepo) FindOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Chat, bool, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Chat), args.Bool(1), args.Error(2)
}

func (m *mockChatRepo) ListForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Chat), args.Error(1)
}

func (m *mockChatRepo) Delete(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *mockChatRepo) UpdateName(ctx context.Context, chatID, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *mockChatRepo) AddMember(ctx context.Context, chatID, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *mockChatRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *mockChatRepo) FindMembership(ctx context.Context, chatID, userID string) (*domain.ChatMembership, error) {
	args := m.Called(ctx, chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatMembership), args.Error(1)
}

func (m *mockChatRepo) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockChatRepo) MarkRead(ctx context.Context, chatID, userID string, at time.Time) error {
	args := m.Called(ctx, chatID, userID, at)
	return args.Error(0)
}

func (m *mockChatRepo) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockChatRepo) SetNotificationsEnabled(ctx context.Context, chatID, userID string, enabled bool) error {
	args := m.Called(ctx, chatID, userID, enabled)
	return args.Error(0)
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) UpdateContent(ctx context.Context, id, sealedContent string, mentionedUserIDs []string) error {
	args := m.Called(ctx, id, sealedContent, mentionedUserIDs)
	return args.Error(0)
}

func (m *mockMessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockMessageRepo) ListByChat(ctx context.Context, chatID string, before time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, chatID, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *mockMessageRepo) ListThread(ctx context.Context, parentID string) ([]domain.Message, error) {
	args := m.Called(ctx, parentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *mockMessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *mockMessageRepo) ReactionCounts(ctx context.Context, messageID string) ([]domain.ReactionCount, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReactionCount), args.Error(1)
}

func (m *mockMessageRepo) CreateReadReceipt(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *mockMessageRepo) ListReadReceipts(ctx context.Context, messageID string) ([]domain.MessageReadReceipt, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MessageReadReceipt), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, userID string) (*directorydomain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directorydomain.User), args.Error(1)
}

func (m *mockUserRepo) FindByIDs(ctx context.Context, userIDs []string) ([]directorydomain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directorydomain.User), args.Error(1)
}

func (m *mockUserRepo) FindChatMembers(ctx context.Context, chatID string) ([]directorydomain.User, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directorydomain.User), args.Error(1)
}

func (m *mockUserRepo) FindChatMembersByFirstNames(ctx context.Context, chatID string, firstNames []string) ([]directorydomain.User, error) {
	args := m.Called(ctx, chatID, firstNames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directorydomain.User), args.Error(1)
}

func (m *mockUserRepo) AutocompleteMentionCandidates(ctx context.Context, chatID, query, excludeUserID string, limit int) ([]directorydomain.User, error) {
	args := m.Called(ctx, chatID, query, excludeUserID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directorydomain.User), args.Error(1)
}

// mockPublisher records published events in order.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(channel string, message interface{}) error {
	args := m.Called(channel, message)
	return args.Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchMessage(ctx context.Context, msg *domain.Message, mentioned []directorydomain.User) {
	m.Called(ctx, msg, mentioned)
}
