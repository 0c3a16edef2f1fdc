package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"family_messaging_service/internal/chat/domain"
	"family_messaging_service/internal/chat/repository"
	directorydomain "family_messaging_service/internal/directory/domain"
	directoryrepo "family_messaging_service/internal/directory/repository"
	"family_messaging_service/pkg/logger"
)

// Publisher is the broker surface the broadcaster needs.
type Publisher interface {
	Publish(channel string, message interface{}) error
}

// Broadcaster fans events out to chat audiences. Every event goes to the
// recipients' personal channels; rendering happens per viewer before
// publish. Callers serialize a chat's store write together with its
// publishes through Sequenced so subscribers observe store order.
type Broadcaster struct {
	pub      Publisher
	chats    repository.ChatRepository
	users    directoryrepo.UserRepository
	renderer *Renderer

	mu        sync.Mutex
	chatLocks map[string]*sync.Mutex
}

// NewBroadcaster create Broadcaster
func NewBroadcaster(pub Publisher, chats repository.ChatRepository, users directoryrepo.UserRepository, renderer *Renderer) *Broadcaster {
	return &Broadcaster{
		pub:       pub,
		chats:     chats,
		users:     users,
		renderer:  renderer,
		chatLocks: map[string]*sync.Mutex{},
	}
}

func (b *Broadcaster) chatLock(chatID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		b.chatLocks[chatID] = l
	}
	return l
}

// Sequenced run fn while holding the chat's publish lock. A store write
// and the broadcasts that announce it run inside one Sequenced call, so
// two writers to the same chat cannot interleave commit and publish and
// subscribers see events in commit order.
func (b *Broadcaster) Sequenced(chatID string, fn func() error) error {
	l := b.chatLock(chatID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// BroadcastMessage publish a message event to every chat member, rendered
// for each viewer. Used for new_message, message_updated, message_deleted.
// Call inside Sequenced together with the store write.
func (b *Broadcaster) BroadcastMessage(ctx context.Context, evtType domain.EventType, msg *domain.Message, mentioned []directorydomain.User, reactions []domain.ReactionCount) {
	memberIDs, err := b.chats.MemberIDs(ctx, msg.ChatID)
	if err != nil {
		logger.Log.Error("broadcast audience err :", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return
	}
	sender, err := b.users.FindByID(ctx, msg.UserID)
	if err != nil {
		logger.Log.Warn("broadcast sender lookup err :", zap.String("user_id", msg.UserID))
	}

	bodyHTML, err := b.renderer.MessageHTML(msg, mentioned)
	if err != nil {
		logger.Log.Error("broadcast render err :", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}

	for _, memberID := range memberIDs {
		payload := b.renderer.Render(msg, sender, memberID, bodyHTML, reactions)
		b.publishToUser(memberID, evtType, msg.ChatID, payload)
	}
}

// BroadcastPreview publish the chat-list preview to every member, the
// sender included, with each recipient's own unread count.
func (b *Broadcaster) BroadcastPreview(ctx context.Context, msg *domain.Message, plaintext string) {
	memberIDs, err := b.chats.MemberIDs(ctx, msg.ChatID)
	if err != nil {
		logger.Log.Error("preview audience err :", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return
	}

	senderName := "Unknown User"
	if sender, err := b.users.FindByID(ctx, msg.UserID); err == nil {
		senderName = sender.FullName()
	}
	preview := PreviewText(plaintext, len(msg.Attachments) > 0)

	for _, memberID := range memberIDs {
		unread, err := b.chats.UnreadCount(ctx, msg.ChatID, memberID)
		if err != nil {
			logger.Log.Warn("preview unread err :", zap.String("user_id", memberID))
		}
		b.publishToUser(memberID, domain.EventMessagePreview, msg.ChatID, domain.PreviewPayload{
			ChatID:      msg.ChatID,
			SenderID:    msg.UserID,
			SenderName:  senderName,
			Preview:     preview,
			Timestamp:   msg.CreatedAt,
			UnreadCount: unread,
		})
	}
}

// BroadcastTyping publish a typing transition to every member except the
// typist.
func (b *Broadcaster) BroadcastTyping(ctx context.Context, chatID, userID, name string, isTyping bool) {
	memberIDs, err := b.chats.MemberIDs(ctx, chatID)
	if err != nil {
		logger.Log.Error("typing audience err :", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	payload := domain.TypingPayload{ChatID: chatID, UserID: userID, UserName: name, IsTyping: isTyping}
	for _, memberID := range memberIDs {
		if memberID == userID {
			continue
		}
		b.publishToUser(memberID, domain.EventTyping, chatID, payload)
	}
}

// BroadcastReaction publish the message's new reaction summary to every
// member, styled per viewer. Call inside Sequenced together with the
// reaction write.
func (b *Broadcaster) BroadcastReaction(ctx context.Context, msg *domain.Message, reactions []domain.ReactionCount) {
	memberIDs, err := b.chats.MemberIDs(ctx, msg.ChatID)
	if err != nil {
		logger.Log.Error("reaction audience err :", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return
	}
	for _, memberID := range memberIDs {
		b.publishToUser(memberID, domain.EventReactionChanged, msg.ChatID, map[string]interface{}{
			"chat_id":        msg.ChatID,
			"message_id":     msg.ID,
			"reactions":      reactions,
			"reactions_html": ReactionsHTML(reactions, memberID),
		})
	}
}

// PublishToUser publish one event on a user's personal channel.
func (b *Broadcaster) PublishToUser(userID string, evtType domain.EventType, payload interface{}) {
	b.publishToUser(userID, evtType, "", payload)
}

func (b *Broadcaster) publishToUser(userID string, evtType domain.EventType, chatID string, payload interface{}) {
	evt, err := domain.NewEvent(evtType, chatID, payload)
	if err != nil {
		logger.Log.Error("event encode err :", zap.String("type", string(evtType)), zap.Error(err))
		return
	}
	if err := b.pub.Publish(repository.UserChannel(userID), evt); err != nil {
		logger.Log.Error("event publish err :", zap.String("user_id", userID), zap.Error(err))
	}
}
