package bdd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	chatdomain "family_messaging_service/internal/chat/domain"
	directorydomain "family_messaging_service/internal/directory/domain"
	notificationdomain "family_messaging_service/internal/notification/domain"
	errprocess "family_messaging_service/pkg/err"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for every repository, good enough to
// drive the usecases end to end without containers.
type memStore struct {
	mu sync.Mutex

	users         map[string]directorydomain.User
	chats         map[string]*chatdomain.Chat
	memberships   map[string]*chatdomain.ChatMembership
	messages      map[string]*chatdomain.Message
	messageOrder  []string
	reactions     map[string]chatdomain.MessageReaction
	receipts      map[string]chatdomain.MessageReadReceipt
	notifications map[string]*notificationdomain.Notification
	dedup         map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]directorydomain.User{},
		chats:         map[string]*chatdomain.Chat{},
		memberships:   map[string]*chatdomain.ChatMembership{},
		messages:      map[string]*chatdomain.Message{},
		reactions:     map[string]chatdomain.MessageReaction{},
		receipts:      map[string]chatdomain.MessageReadReceipt{},
		notifications: map[string]*notificationdomain.Notification{},
		dedup:         map[string]bool{},
	}
}

func (s *memStore) addUser(first, last string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.users[id] = directorydomain.User{
		ID: id, FirstName: first, LastName: last,
		Status: directorydomain.UserStatusActive, Role: "member",
	}
	return id
}

func membershipKey(chatID, userID string) string { return chatID + "|" + userID }

// --- ChatRepository ---

func (s *memStore) CreateChat(ctx context.Context, chat *chatdomain.Chat, memberIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	chat.CreatedAt = time.Now()
	s.chats[chat.ID] = chat
	for _, id := range memberIDs {
		s.memberships[membershipKey(chat.ID, id)] = &chatdomain.ChatMembership{
			ID: uuid.New().String(), ChatID: chat.ID, UserID: id, NotificationsEnabled: true,
		}
	}
	return nil
}

func (s *memStore) FindChatByID(ctx context.Context, chatID string) (*chatdomain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, errprocess.NotFound("chat")
	}
	return chat, nil
}

func (s *memStore) FindOrCreateDirect(ctx context.Context, userA, userB string) (*chatdomain.Chat, bool, error) {
	s.mu.Lock()
	for _, chat := range s.chats {
		if chat.ChatType != chatdomain.ChatTypeDirect {
			continue
		}
		if s.memberships[membershipKey(chat.ID, userA)] != nil && s.memberships[membershipKey(chat.ID, userB)] != nil {
			s.mu.Unlock()
			return chat, false, nil
		}
	}
	s.mu.Unlock()

	chat := &chatdomain.Chat{ChatType: chatdomain.ChatTypeDirect, CreatedByID: &userA}
	if err := s.CreateChat(ctx, chat, []string{userA, userB}); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

func (s *memStore) ListForUser(ctx context.Context, userID string) ([]chatdomain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chats []chatdomain.Chat
	for _, chat := range s.chats {
		if s.memberships[membershipKey(chat.ID, userID)] != nil {
			chats = append(chats, *chat)
		}
	}
	return chats, nil
}

func (s *memStore) UpdateName(ctx context.Context, chatID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Name = name
	}
	return nil
}

func (s *memStore) DeleteChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, msg := range s.messages {
		if msg.ChatID != chatID {
			continue
		}
		for key, r := range s.reactions {
			if r.MessageID == id {
				delete(s.reactions, key)
			}
		}
		for key, r := range s.receipts {
			if r.MessageID == id {
				delete(s.receipts, key)
			}
		}
		delete(s.messages, id)
	}
	kept := s.messageOrder[:0]
	for _, id := range s.messageOrder {
		if _, ok := s.messages[id]; ok {
			kept = append(kept, id)
		}
	}
	s.messageOrder = kept
	for key, m := range s.memberships {
		if m.ChatID == chatID {
			delete(s.memberships, key)
		}
	}
	delete(s.chats, chatID)
	return nil
}

func (s *memStore) AddMember(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(chatID, userID)
	if s.memberships[key] == nil {
		s.memberships[key] = &chatdomain.ChatMembership{
			ID: uuid.New().String(), ChatID: chatID, UserID: userID, NotificationsEnabled: true,
		}
	}
	return nil
}

func (s *memStore) RemoveMember(ctx context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, membershipKey(chatID, userID))
	return nil
}

func (s *memStore) FindMembership(ctx context.Context, chatID, userID string) (*chatdomain.ChatMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipKey(chatID, userID)]
	if !ok {
		return nil, errprocess.NotFound("membership")
	}
	return m, nil
}

func (s *memStore) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.memberships {
		if m.ChatID == chatID {
			ids = append(ids, m.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) MarkChatRead(ctx context.Context, chatID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipKey(chatID, userID)]
	if ok && (m.LastReadAt == nil || m.LastReadAt.Before(at)) {
		m.LastReadAt = &at
	}
	return nil
}

func (s *memStore) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipKey(chatID, userID)]
	if !ok {
		return 0, errprocess.NotFound("membership")
	}
	var count int64
	for _, msg := range s.messages {
		if msg.ChatID != chatID || msg.UserID == userID {
			continue
		}
		if m.LastReadAt == nil || msg.CreatedAt.After(*m.LastReadAt) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) SetNotificationsEnabled(ctx context.Context, chatID, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memberships[membershipKey(chatID, userID)]; ok {
		m.NotificationsEnabled = enabled
	}
	return nil
}

// --- MessageRepository ---

func (s *memStore) CreateMessage(ctx context.Context, msg *chatdomain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()
	s.messages[msg.ID] = msg
	s.messageOrder = append(s.messageOrder, msg.ID)
	return nil
}

func (s *memStore) FindMessageByID(ctx context.Context, id string) (*chatdomain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, errprocess.NotFound("message")
	}
	return msg, nil
}

func (s *memStore) UpdateContent(ctx context.Context, id, sealedContent string, mentionedUserIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		msg.SealedContent = sealedContent
		msg.MentionedUserIDs = mentionedUserIDs
		msg.Edited = true
	}
	return nil
}

func (s *memStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok && msg.DeletedAt == nil {
		msg.DeletedAt = &at
	}
	return nil
}

func (s *memStore) ListByChat(ctx context.Context, chatID string, before time.Time, limit int) ([]chatdomain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []chatdomain.Message
	for _, id := range s.messageOrder {
		msg := s.messages[id]
		if msg.ChatID == chatID && msg.CreatedAt.Before(before) {
			msgs = append(msgs, *msg)
		}
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *memStore) ListThread(ctx context.Context, parentID string) ([]chatdomain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []chatdomain.Message
	for _, id := range s.messageOrder {
		msg := s.messages[id]
		if msg.ParentMessageID != nil && *msg.ParentMessageID == parentID {
			msgs = append(msgs, *msg)
		}
	}
	return msgs, nil
}

func reactionKey(messageID, userID, emoji string) string {
	return messageID + "|" + userID + "|" + emoji
}

func (s *memStore) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey(messageID, userID, emoji)
	if _, ok := s.reactions[key]; ok {
		delete(s.reactions, key)
		return false, nil
	}
	s.reactions[key] = chatdomain.MessageReaction{
		ID: uuid.New().String(), MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: time.Now(),
	}
	return true, nil
}

func (s *memStore) ReactionCounts(ctx context.Context, messageID string) ([]chatdomain.ReactionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byEmoji := map[string]*chatdomain.ReactionCount{}
	for _, r := range s.reactions {
		if r.MessageID != messageID {
			continue
		}
		rc, ok := byEmoji[r.Emoji]
		if !ok {
			rc = &chatdomain.ReactionCount{Emoji: r.Emoji}
			byEmoji[r.Emoji] = rc
		}
		rc.Count++
		rc.UserIDs = append(rc.UserIDs, r.UserID)
	}
	var counts []chatdomain.ReactionCount
	for _, rc := range byEmoji {
		counts = append(counts, *rc)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts, nil
}

func (s *memStore) CreateReadReceipt(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := messageID + "|" + userID
	if _, ok := s.receipts[key]; !ok {
		s.receipts[key] = chatdomain.MessageReadReceipt{
			ID: uuid.New().String(), MessageID: messageID, UserID: userID, CreatedAt: time.Now(),
		}
	}
	return nil
}

func (s *memStore) ListReadReceipts(ctx context.Context, messageID string) ([]chatdomain.MessageReadReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var receipts []chatdomain.MessageReadReceipt
	for _, r := range s.receipts {
		if r.MessageID == messageID {
			receipts = append(receipts, r)
		}
	}
	return receipts, nil
}

// --- NotificationRepository ---

func (s *memStore) CreateNotification(ctx context.Context, n *notificationdomain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s|%s|%s", n.UserID, n.ActorID, n.NotifiableType, n.NotifiableID, n.NotificationType)
	if s.dedup[key] {
		return false, nil
	}
	s.dedup[key] = true
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now()
	s.notifications[n.ID] = n
	return true, nil
}

func (s *memStore) FindNotificationByID(ctx context.Context, id string) (*notificationdomain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, errprocess.NotFound("notification")
	}
	return n, nil
}

func (s *memStore) FindRecentByUser(ctx context.Context, userID string, limit int) ([]notificationdomain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notificationdomain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, n := range s.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *memStore) MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID || n.ReadAt != nil {
		return false, nil
	}
	n.ReadAt = &at
	return true, nil
}

func (s *memStore) MarkAllRead(ctx context.Context, userID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, n := range s.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}

// --- UserRepository ---

func (s *memStore) FindUserByID(ctx context.Context, userID string) (*directorydomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, errprocess.NotFound("user")
	}
	return &u, nil
}

func (s *memStore) FindByIDs(ctx context.Context, userIDs []string) ([]directorydomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directorydomain.User
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) FindChatMembers(ctx context.Context, chatID string) ([]directorydomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directorydomain.User
	for _, m := range s.memberships {
		if m.ChatID == chatID {
			if u, ok := s.users[m.UserID]; ok {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *memStore) FindChatMembersByFirstNames(ctx context.Context, chatID string, firstNames []string) ([]directorydomain.User, error) {
	members, err := s.FindChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var out []directorydomain.User
	for _, u := range members {
		for _, name := range firstNames {
			if u.FirstName == name {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *memStore) AutocompleteMentionCandidates(ctx context.Context, chatID, query, excludeUserID string, limit int) ([]directorydomain.User, error) {
	members, err := s.FindChatMembers(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var out []directorydomain.User
	for _, u := range members {
		if u.ID == excludeUserID {
			continue
		}
		if query == "" || strings.HasPrefix(strings.ToLower(u.FirstName), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstName < out[j].FirstName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memPublisher records published events per channel, in publish order.
type memPublisher struct {
	mu     sync.Mutex
	events map[string][]chatdomain.Event
}

func newMemPublisher() *memPublisher {
	return &memPublisher{events: map[string][]chatdomain.Event{}}
}

func (p *memPublisher) Publish(channel string, message interface{}) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	var evt chatdomain.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[channel] = append(p.events[channel], evt)
	return nil
}

func (p *memPublisher) forUser(userID string) []chatdomain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chatdomain.Event(nil), p.events["chat:user:"+userID]...)
}

// Thin adapters so one store can back every repository interface despite the
// overlapping method names.

type memChatRepo struct{ s *memStore }

func (r memChatRepo) Create(ctx context.Context, chat *chatdomain.Chat, memberIDs []string) error {
	return r.s.CreateChat(ctx, chat, memberIDs)
}
func (r memChatRepo) FindByID(ctx context.Context, chatID string) (*chatdomain.Chat, error) {
	return r.s.FindChatByID(ctx, chatID)
}
func (r memChatRepo) FindOrCreateDirect(ctx context.Context, userA, userB string) (*chatdomain.Chat, bool, error) {
	return r.s.FindOrCreateDirect(ctx, userA, userB)
}
func (r memChatRepo) ListForUser(ctx context.Context, userID string) ([]chatdomain.Chat, error) {
	return r.s.ListForUser(ctx, userID)
}
func (r memChatRepo) UpdateName(ctx context.Context, chatID, name string) error {
	return r.s.UpdateName(ctx, chatID, name)
}
func (r memChatRepo) Delete(ctx context.Context, chatID string) error {
	return r.s.DeleteChat(ctx, chatID)
}
func (r memChatRepo) AddMember(ctx context.Context, chatID, userID string) error {
	return r.s.AddMember(ctx, chatID, userID)
}
func (r memChatRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	return r.s.RemoveMember(ctx, chatID, userID)
}
func (r memChatRepo) FindMembership(ctx context.Context, chatID, userID string) (*chatdomain.ChatMembership, error) {
	return r.s.FindMembership(ctx, chatID, userID)
}
func (r memChatRepo) MemberIDs(ctx context.Context, chatID string) ([]string, error) {
	return r.s.MemberIDs(ctx, chatID)
}
func (r memChatRepo) MarkRead(ctx context.Context, chatID, userID string, at time.Time) error {
	return r.s.MarkChatRead(ctx, chatID, userID, at)
}
func (r memChatRepo) UnreadCount(ctx context.Context, chatID, userID string) (int64, error) {
	return r.s.UnreadCount(ctx, chatID, userID)
}
func (r memChatRepo) SetNotificationsEnabled(ctx context.Context, chatID, userID string, enabled bool) error {
	return r.s.SetNotificationsEnabled(ctx, chatID, userID, enabled)
}

type memMessageRepo struct{ s *memStore }

func (r memMessageRepo) Create(ctx context.Context, msg *chatdomain.Message) error {
	return r.s.CreateMessage(ctx, msg)
}
func (r memMessageRepo) FindByID(ctx context.Context, id string) (*chatdomain.Message, error) {
	return r.s.FindMessageByID(ctx, id)
}
func (r memMessageRepo) UpdateContent(ctx context.Context, id, sealedContent string, mentionedUserIDs []string) error {
	return r.s.UpdateContent(ctx, id, sealedContent, mentionedUserIDs)
}
func (r memMessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.s.SoftDelete(ctx, id, at)
}
func (r memMessageRepo) ListByChat(ctx context.Context, chatID string, before time.Time, limit int) ([]chatdomain.Message, error) {
	return r.s.ListByChat(ctx, chatID, before, limit)
}
func (r memMessageRepo) ListThread(ctx context.Context, parentID string) ([]chatdomain.Message, error) {
	return r.s.ListThread(ctx, parentID)
}
func (r memMessageRepo) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	return r.s.ToggleReaction(ctx, messageID, userID, emoji)
}
func (r memMessageRepo) ReactionCounts(ctx context.Context, messageID string) ([]chatdomain.ReactionCount, error) {
	return r.s.ReactionCounts(ctx, messageID)
}
func (r memMessageRepo) CreateReadReceipt(ctx context.Context, messageID, userID string) error {
	return r.s.CreateReadReceipt(ctx, messageID, userID)
}
func (r memMessageRepo) ListReadReceipts(ctx context.Context, messageID string) ([]chatdomain.MessageReadReceipt, error) {
	return r.s.ListReadReceipts(ctx, messageID)
}

type memNotificationRepo struct{ s *memStore }

func (r memNotificationRepo) Create(ctx context.Context, n *notificationdomain.Notification) (bool, error) {
	return r.s.CreateNotification(ctx, n)
}
func (r memNotificationRepo) FindByID(ctx context.Context, id string) (*notificationdomain.Notification, error) {
	return r.s.FindNotificationByID(ctx, id)
}
func (r memNotificationRepo) FindRecentByUser(ctx context.Context, userID string, limit int) ([]notificationdomain.Notification, error) {
	return r.s.FindRecentByUser(ctx, userID, limit)
}
func (r memNotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	return r.s.CountUnread(ctx, userID)
}
func (r memNotificationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	return r.s.MarkNotificationRead(ctx, id, userID, at)
}
func (r memNotificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) ([]string, error) {
	return r.s.MarkAllRead(ctx, userID, at)
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) FindByID(ctx context.Context, userID string) (*directorydomain.User, error) {
	return r.s.FindUserByID(ctx, userID)
}
func (r memUserRepo) FindByIDs(ctx context.Context, userIDs []string) ([]directorydomain.User, error) {
	return r.s.FindByIDs(ctx, userIDs)
}
func (r memUserRepo) FindChatMembers(ctx context.Context, chatID string) ([]directorydomain.User, error) {
	return r.s.FindChatMembers(ctx, chatID)
}
func (r memUserRepo) FindChatMembersByFirstNames(ctx context.Context, chatID string, firstNames []string) ([]directorydomain.User, error) {
	return r.s.FindChatMembersByFirstNames(ctx, chatID, firstNames)
}
func (r memUserRepo) AutocompleteMentionCandidates(ctx context.Context, chatID, query, excludeUserID string, limit int) ([]directorydomain.User, error) {
	return r.s.AutocompleteMentionCandidates(ctx, chatID, query, excludeUserID, limit)
}
