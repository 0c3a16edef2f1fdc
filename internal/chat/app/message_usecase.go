package app

import (
	"context"
	"strings"
	"time"

	"family_messaging_service/internal/chat/domain"
	"family_messaging_service/internal/chat/repository"
	directorydomain "family_messaging_service/internal/directory/domain"
	directoryrepo "family_messaging_service/internal/directory/repository"
	"family_messaging_service/pkg"
	"family_messaging_service/pkg/encrypt"
	errprocess "family_messaging_service/pkg/err"
)

// NotificationDispatcher receives committed messages for notification
// evaluation. Implemented by the notification app package.
type NotificationDispatcher interface {
	DispatchMessage(ctx context.Context, msg *domain.Message, mentioned []directorydomain.User)
}

// AttachmentInput is the opaque attachment reference handed over by the
// upload collaborator, validated here before being linked to a message.
type AttachmentInput struct {
	BlobRef     string `json:"blob_ref"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	ByteSize    int64  `json:"byte_size"`
}

// PostMessageInput carries everything needed to append a message.
type PostMessageInput struct {
	Content         string            `json:"content"`
	ParentMessageID *string           `json:"parent_message_id,omitempty"`
	Attachments     []AttachmentInput `json:"attachments,omitempty"`
}

// MessageUseCase handles the message write path and per-viewer reads.
// Events are emitted strictly after the store commit; a failed write
// emits nothing.
type MessageUseCase struct {
	msgs        repository.MessageRepository
	chats       repository.ChatRepository
	users       directoryrepo.UserRepository
	cipher      *encrypt.ContentCipher
	mentions    *MentionService
	renderer    *Renderer
	broadcaster *Broadcaster
	dispatcher  NotificationDispatcher
	tracker     *PresenceTracker
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(
	msgs repository.MessageRepository,
	chats repository.ChatRepository,
	users directoryrepo.UserRepository,
	cipher *encrypt.ContentCipher,
	mentions *MentionService,
	renderer *Renderer,
	broadcaster *Broadcaster,
	dispatcher NotificationDispatcher,
	tracker *PresenceTracker,
) *MessageUseCase {
	return &MessageUseCase{
		msgs:        msgs,
		chats:       chats,
		users:       users,
		cipher:      cipher,
		mentions:    mentions,
		renderer:    renderer,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		tracker:     tracker,
	}
}

// Post append a message to a chat. Content is validated, mentions derived,
// content sealed, and only after commit do fan-out and notification
// dispatch run. Replying to a reply attaches to the top-level parent so
// threads stay one level deep.
func (uc *MessageUseCase) Post(ctx context.Context, actor domain.Actor, chatID string, input PostMessageInput) (*domain.Message, error) {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}

	content := strings.TrimSpace(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return nil, errprocess.Validation("message must have content or attachments")
	}
	if len([]rune(content)) > domain.MaxContentLength {
		return nil, errprocess.Validation("message exceeds %d characters", domain.MaxContentLength)
	}
	attachments, err := validateAttachments(input.Attachments)
	if err != nil {
		return nil, err
	}

	parentID := input.ParentMessageID
	if parentID != nil {
		parent, err := uc.msgs.FindByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.ChatID != chatID {
			return nil, errprocess.Validation("parent message belongs to another chat")
		}
		if parent.IsReply() {
			parentID = parent.ParentMessageID
		}
	}

	mentioned, err := uc.mentions.ResolveMentions(ctx, chatID, content)
	if err != nil {
		return nil, err
	}

	sealed := ""
	if content != "" {
		if sealed, err = uc.cipher.Seal(content); err != nil {
			return nil, err
		}
	}

	msg := &domain.Message{
		ChatID:           chatID,
		UserID:           actor.ID,
		ParentMessageID:  parentID,
		SealedContent:    sealed,
		MentionedUserIDs: mentionedIDs(mentioned),
		Attachments:      attachments,
	}
	uc.tracker.Stop(chatID, actor.ID)

	// commit and fan-out run under the chat's publish lock so a racing
	// post cannot slot its events between ours
	err = uc.broadcaster.Sequenced(chatID, func() error {
		if err := uc.msgs.Create(ctx, msg); err != nil {
			return err
		}
		uc.broadcaster.BroadcastMessage(ctx, domain.EventNewMessage, msg, mentioned, nil)
		uc.broadcaster.BroadcastPreview(ctx, msg, content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.dispatcher.DispatchMessage(ctx, msg, mentioned)
	return msg, nil
}

// Edit replace a message's content. Author only; mentions are re-derived
// from the new content and newly mentioned members get notified.
func (uc *MessageUseCase) Edit(ctx context.Context, actor domain.Actor, messageID, content string) (*domain.Message, error) {
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, errprocess.NotFound("message")
	}
	if msg.UserID != actor.ID {
		return nil, errprocess.AccessDenied("only the author can edit a message")
	}

	content = strings.TrimSpace(content)
	if content == "" && len(msg.Attachments) == 0 {
		return nil, errprocess.Validation("message must have content or attachments")
	}
	if len([]rune(content)) > domain.MaxContentLength {
		return nil, errprocess.Validation("message exceeds %d characters", domain.MaxContentLength)
	}

	mentioned, err := uc.mentions.ResolveMentions(ctx, msg.ChatID, content)
	if err != nil {
		return nil, err
	}
	sealed := ""
	if content != "" {
		if sealed, err = uc.cipher.Seal(content); err != nil {
			return nil, err
		}
	}
	err = uc.broadcaster.Sequenced(msg.ChatID, func() error {
		if err := uc.msgs.UpdateContent(ctx, messageID, sealed, mentionedIDs(mentioned)); err != nil {
			return err
		}
		msg.SealedContent = sealed
		msg.MentionedUserIDs = mentionedIDs(mentioned)
		msg.Edited = true

		reactions, _ := uc.msgs.ReactionCounts(ctx, messageID)
		uc.broadcaster.BroadcastMessage(ctx, domain.EventMessageUpdated, msg, mentioned, reactions)
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.dispatcher.DispatchMessage(ctx, msg, mentioned)
	return msg, nil
}

// Delete soft-delete a message. Author or admin; the row stays and renders
// as a tombstone. Deleting twice is a no-op.
func (uc *MessageUseCase) Delete(ctx context.Context, actor domain.Actor, messageID string) error {
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted() {
		return nil
	}
	if msg.UserID != actor.ID && !actor.IsAdmin() {
		return errprocess.AccessDenied("only the author or an admin can delete a message")
	}

	now := time.Now()
	return uc.broadcaster.Sequenced(msg.ChatID, func() error {
		if err := uc.msgs.SoftDelete(ctx, messageID, now); err != nil {
			return err
		}
		msg.DeletedAt = &now
		uc.broadcaster.BroadcastMessage(ctx, domain.EventMessageDeleted, msg, nil, nil)
		return nil
	})
}

// ToggleReaction flip the actor's reaction on a message and broadcast the
// new summary. Two racing toggles of the same emoji settle as one add.
func (uc *MessageUseCase) ToggleReaction(ctx context.Context, actor domain.Actor, messageID, emoji string) (bool, error) {
	if !pkg.Contains(domain.QuickEmojis, emoji) {
		return false, errprocess.Validation("unsupported reaction emoji")
	}
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.IsDeleted() {
		return false, errprocess.NotFound("message")
	}
	if _, err := uc.chats.FindMembership(ctx, msg.ChatID, actor.ID); err != nil {
		return false, errprocess.AccessDenied("not a member of this chat")
	}

	var added bool
	err = uc.broadcaster.Sequenced(msg.ChatID, func() error {
		var err error
		if added, err = uc.msgs.ToggleReaction(ctx, messageID, actor.ID, emoji); err != nil {
			return err
		}
		reactions, err := uc.msgs.ReactionCounts(ctx, messageID)
		if err != nil {
			return err
		}
		uc.broadcaster.BroadcastReaction(ctx, msg, reactions)
		return nil
	})
	return added, err
}

// MarkReadReceipt record that the actor has seen a message. Repeats are
// no-ops.
func (uc *MessageUseCase) MarkReadReceipt(ctx context.Context, actor domain.Actor, messageID string) error {
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := uc.chats.FindMembership(ctx, msg.ChatID, actor.ID); err != nil {
		return errprocess.AccessDenied("not a member of this chat")
	}
	return uc.msgs.CreateReadReceipt(ctx, messageID, actor.ID)
}

// ListMessages page a chat's messages rendered for the actor, oldest
// first. before zero means now.
func (uc *MessageUseCase) ListMessages(ctx context.Context, actor domain.Actor, chatID string, before time.Time, limit int) ([]RenderedMessage, error) {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}
	if before.IsZero() {
		before = time.Now()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := uc.msgs.ListByChat(ctx, chatID, before, limit)
	if err != nil {
		return nil, err
	}
	return uc.renderForViewer(ctx, actor.ID, msgs)
}

// ListThread page a message's replies rendered for the actor, oldest
// first. The parent must live in a chat the actor belongs to.
func (uc *MessageUseCase) ListThread(ctx context.Context, actor domain.Actor, messageID string) ([]RenderedMessage, error) {
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.chats.FindMembership(ctx, msg.ChatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}

	replies, err := uc.msgs.ListThread(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return uc.renderForViewer(ctx, actor.ID, replies)
}

func (uc *MessageUseCase) renderForViewer(ctx context.Context, viewerID string, msgs []domain.Message) ([]RenderedMessage, error) {
	rendered := make([]RenderedMessage, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		var mentioned []directorydomain.User
		if len(msg.MentionedUserIDs) > 0 {
			mentioned, _ = uc.users.FindByIDs(ctx, msg.MentionedUserIDs)
		}
		bodyHTML, err := uc.renderer.MessageHTML(msg, mentioned)
		if err != nil {
			return nil, err
		}
		sender, _ := uc.users.FindByID(ctx, msg.UserID)
		reactions, _ := uc.msgs.ReactionCounts(ctx, msg.ID)
		rendered = append(rendered, uc.renderer.Render(msg, sender, viewerID, bodyHTML, reactions))
	}
	return rendered, nil
}

// MessageReader is one member who has seen a message.
type MessageReader struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	ReadAt time.Time `json:"read_at"`
}

// ListReaders list who has seen a message, oldest receipt first. Members
// only; names resolve through the directory.
func (uc *MessageUseCase) ListReaders(ctx context.Context, actor domain.Actor, messageID string) ([]MessageReader, error) {
	msg, err := uc.msgs.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.chats.FindMembership(ctx, msg.ChatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}

	receipts, err := uc.msgs.ListReadReceipts(ctx, messageID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.UserID)
	}
	names := map[string]string{}
	if users, err := uc.users.FindByIDs(ctx, ids); err == nil {
		for _, u := range users {
			names[u.ID] = u.FullName()
		}
	}

	readers := make([]MessageReader, 0, len(receipts))
	for _, r := range receipts {
		readers = append(readers, MessageReader{UserID: r.UserID, Name: names[r.UserID], ReadAt: r.CreatedAt})
	}
	return readers, nil
}

// TypingNames list who is typing in a chat right now, the actor excluded.
func (uc *MessageUseCase) TypingNames(ctx context.Context, actor domain.Actor, chatID string) ([]string, error) {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return nil, errprocess.AccessDenied("not a member of this chat")
	}
	names := uc.tracker.TypingNames(chatID, actor.ID)
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Typing refresh or stop the actor's typing entry in a chat. Non-members
// are ignored.
func (uc *MessageUseCase) Typing(ctx context.Context, actor domain.Actor, chatID string, isTyping bool) error {
	if _, err := uc.chats.FindMembership(ctx, chatID, actor.ID); err != nil {
		return errprocess.AccessDenied("not a member of this chat")
	}
	if !isTyping {
		uc.tracker.Stop(chatID, actor.ID)
		return nil
	}
	user, err := uc.users.FindByID(ctx, actor.ID)
	if err != nil {
		return err
	}
	uc.tracker.Refresh(chatID, actor.ID, user.FullName())
	return nil
}

func validateAttachments(inputs []AttachmentInput) ([]domain.Attachment, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	attachments := make([]domain.Attachment, 0, len(inputs))
	for _, in := range inputs {
		if in.BlobRef == "" {
			return nil, errprocess.Validation("attachment reference is required")
		}
		if !domain.AllowedContentType(in.ContentType) {
			return nil, errprocess.Validation("attachment type %s is not allowed", in.ContentType)
		}
		if in.ByteSize <= 0 || in.ByteSize > domain.MaxAttachmentSize {
			return nil, errprocess.Validation("attachment exceeds the size limit")
		}
		attachments = append(attachments, domain.Attachment{
			BlobRef:     in.BlobRef,
			FileName:    in.FileName,
			ContentType: in.ContentType,
			ByteSize:    in.ByteSize,
		})
	}
	return attachments, nil
}

func mentionedIDs(users []directorydomain.User) []string {
	if len(users) == 0 {
		return nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
