package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"family_messaging_service/internal/chat/domain"
	directorydomain "family_messaging_service/internal/directory/domain"
	"family_messaging_service/pkg/encrypt"
	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
)

func init() {
	logger.SetNewNop()
}

// recordingPublisher keeps published events in publish order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	channel string
	event   domain.Event
}

func (p *recordingPublisher) Publish(channel string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel, message.(domain.Event)})
	return nil
}

func (p *recordingPublisher) byType(t domain.EventType) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type usecaseFixture struct {
	chats      *mockChatRepo
	msgs       *mockMessageRepo
	users      *mockUserRepo
	dispatcher *mockDispatcher
	publisher  *recordingPublisher
	tracker    *PresenceTracker
	uc         *MessageUseCase
	cipher     *encrypt.ContentCipher
}

func newUsecaseFixture(t *testing.T) *usecaseFixture {
	cipher, err := encrypt.NewContentCipher(testContentKey)
	assert.NoError(t, err)

	f := &usecaseFixture{
		chats:      new(mockChatRepo),
		msgs:       new(mockMessageRepo),
		users:      new(mockUserRepo),
		dispatcher: new(mockDispatcher),
		publisher:  &recordingPublisher{},
		cipher:     cipher,
	}
	renderer := NewRenderer(cipher)
	broadcaster := NewBroadcaster(f.publisher, f.chats, f.users, renderer)
	f.tracker = NewPresenceTracker(5*time.Second, nil)
	f.uc = NewMessageUseCase(f.msgs, f.chats, f.users, cipher, NewMentionService(f.users), renderer, broadcaster, f.dispatcher, f.tracker)
	return f
}

func membership(chatID, userID string) *domain.ChatMembership {
	return &domain.ChatMembership{ID: "mem-" + userID, ChatID: chatID, UserID: userID, NotificationsEnabled: true}
}

func TestPostRequiresMembership(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	f.chats.On("FindMembership", ctx, "chat-1", "outsider").Return(nil, errprocess.NotFound("membership"))

	_, err := f.uc.Post(ctx, domain.Actor{ID: "outsider"}, "chat-1", PostMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)
	assert.Empty(t, f.publisher.events)
	f.dispatcher.AssertNotCalled(t, "DispatchMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestPostValidation(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)

	_, err := f.uc.Post(ctx, actor, "chat-1", PostMessageInput{Content: "   "})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	_, err = f.uc.Post(ctx, actor, "chat-1", PostMessageInput{Content: strings.Repeat("x", domain.MaxContentLength+1)})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	_, err = f.uc.Post(ctx, actor, "chat-1", PostMessageInput{
		Content:     "look",
		Attachments: []AttachmentInput{{BlobRef: "b1", ContentType: "application/zip", ByteSize: 10}},
	})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	_, err = f.uc.Post(ctx, actor, "chat-1", PostMessageInput{
		Content:     "look",
		Attachments: []AttachmentInput{{BlobRef: "b1", ContentType: "image/png", ByteSize: domain.MaxAttachmentSize + 1}},
	})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	// nothing was written or emitted
	f.msgs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, f.publisher.events)
}

func TestPostFanOutAndDispatch(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}
	jane := &directorydomain.User{ID: "u1", FirstName: "Jane", LastName: "Smith", Status: directorydomain.UserStatusActive}
	john := directorydomain.User{ID: "u2", FirstName: "John", LastName: "Smith", Status: directorydomain.UserStatusActive}

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.users.On("FindChatMembersByFirstNames", ctx, "chat-1", []string{"John"}).
		Return([]directorydomain.User{john}, nil)
	f.msgs.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		msg := args.Get(1).(*domain.Message)
		msg.ID = "m1"
		msg.CreatedAt = time.Now()
	}).Return(nil)
	f.chats.On("MemberIDs", ctx, "chat-1").Return([]string{"u1", "u2"}, nil)
	f.users.On("FindByID", ctx, "u1").Return(jane, nil)
	f.chats.On("UnreadCount", ctx, "chat-1", "u1").Return(int64(0), nil)
	f.chats.On("UnreadCount", ctx, "chat-1", "u2").Return(int64(3), nil)

	f.dispatcher.On("DispatchMessage", ctx, mock.Anything, mock.Anything).Return()

	msg, err := f.uc.Post(ctx, actor, "chat-1", PostMessageInput{Content: "hi @John"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"u2"}, msg.MentionedUserIDs)
	assert.NotEqual(t, "hi @John", msg.SealedContent)

	// one rendered event per member, previews to everyone including the
	// sender so their own chat list updates too
	newMessages := f.publisher.byType(domain.EventNewMessage)
	assert.Len(t, newMessages, 2)
	previews := f.publisher.byType(domain.EventMessagePreview)
	assert.Len(t, previews, 2)
	assert.Equal(t, "chat:user:u1", previews[0].channel)
	assert.Equal(t, "chat:user:u2", previews[1].channel)

	f.dispatcher.AssertCalled(t, "DispatchMessage", ctx, mock.Anything, mock.Anything)
}

func TestPostReplyToReplyAttachesToTopLevel(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}

	top := "m-top"
	reply := &domain.Message{ID: "m-reply", ChatID: "chat-1", UserID: "u2", ParentMessageID: &top}

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("FindByID", ctx, "m-reply").Return(reply, nil)

	var created *domain.Message
	f.msgs.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.Message)
		created.ID = "m2"
	}).Return(nil)
	f.chats.On("MemberIDs", ctx, "chat-1").Return([]string{"u1"}, nil)
	f.users.On("FindByID", ctx, "u1").Return(&directorydomain.User{ID: "u1", FirstName: "Jane"}, nil)
	f.chats.On("UnreadCount", ctx, "chat-1", "u1").Return(int64(0), nil)
	f.dispatcher.On("DispatchMessage", ctx, mock.Anything, mock.Anything).Return()

	parentID := "m-reply"
	_, err := f.uc.Post(ctx, actor, "chat-1", PostMessageInput{Content: "me too", ParentMessageID: &parentID})
	assert.NoError(t, err)
	assert.Equal(t, "m-top", *created.ParentMessageID)
}

func TestPostFailedWriteEmitsNothing(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("Create", ctx, mock.Anything).Return(assert.AnError)

	_, err := f.uc.Post(ctx, domain.Actor{ID: "u1"}, "chat-1", PostMessageInput{Content: "hi"})
	assert.Error(t, err)
	assert.Empty(t, f.publisher.events)
	f.dispatcher.AssertNotCalled(t, "DispatchMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditAuthorOnly(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "author"}
	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)

	_, err := f.uc.Edit(ctx, domain.Actor{ID: "someone-else"}, "m1", "new text")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)

	// admins cannot edit someone else's words either
	_, err = f.uc.Edit(ctx, domain.Actor{ID: "admin", Role: "admin"}, "m1", "new text")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)
}

func TestEditDeletedMessage(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	deletedAt := time.Now()
	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "author", DeletedAt: &deletedAt}
	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)

	_, err := f.uc.Edit(ctx, domain.Actor{ID: "author"}, "m1", "new text")
	assert.ErrorIs(t, err, errprocess.ErrNotFound)
}

func TestEditReResolvesMentions(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()
	john := directorydomain.User{ID: "u2", FirstName: "John"}

	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "author"}
	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)
	f.users.On("FindChatMembersByFirstNames", ctx, "chat-1", []string{"John"}).
		Return([]directorydomain.User{john}, nil)
	f.msgs.On("UpdateContent", ctx, "m1", mock.Anything, []string{"u2"}).Return(nil)
	f.msgs.On("ReactionCounts", ctx, "m1").Return([]domain.ReactionCount(nil), nil)
	f.chats.On("MemberIDs", ctx, "chat-1").Return([]string{"author", "u2"}, nil)
	f.users.On("FindByID", ctx, "author").Return(&directorydomain.User{ID: "author", FirstName: "Jane"}, nil)
	f.dispatcher.On("DispatchMessage", ctx, mock.Anything, mock.Anything).Return()

	edited, err := f.uc.Edit(ctx, domain.Actor{ID: "author"}, "m1", "now pinging @John")
	assert.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, []string{"u2"}, edited.MentionedUserIDs)
	assert.Len(t, f.publisher.byType(domain.EventMessageUpdated), 2)
}

func TestDeleteAuthorOrAdmin(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "author"}
	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)

	err := f.uc.Delete(ctx, domain.Actor{ID: "other"}, "m1")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)

	f.msgs.On("SoftDelete", ctx, "m1", mock.Anything).Return(nil)
	f.chats.On("MemberIDs", ctx, "chat-1").Return([]string{"author"}, nil)
	f.users.On("FindByID", ctx, "author").Return(&directorydomain.User{ID: "author", FirstName: "Jane"}, nil)

	err = f.uc.Delete(ctx, domain.Actor{ID: "other", Role: "admin"}, "m1")
	assert.NoError(t, err)

	deletes := f.publisher.byType(domain.EventMessageDeleted)
	assert.Len(t, deletes, 1)

	// a second delete of the same message is a no-op
	err = f.uc.Delete(ctx, domain.Actor{ID: "author"}, "m1")
	assert.NoError(t, err)
	assert.Len(t, f.publisher.byType(domain.EventMessageDeleted), 1)
}

func TestToggleReaction(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()
	actor := domain.Actor{ID: "u1"}

	_, err := f.uc.ToggleReaction(ctx, actor, "m1", "not-an-emoji")
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "u2"}
	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)
	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("ToggleReaction", ctx, "m1", "u1", "👍").Return(true, nil).Once()
	f.msgs.On("ReactionCounts", ctx, "m1").
		Return([]domain.ReactionCount{{Emoji: "👍", Count: 1, UserIDs: []string{"u1"}}}, nil).Once()
	f.chats.On("MemberIDs", ctx, "chat-1").Return([]string{"u1", "u2"}, nil)

	added, err := f.uc.ToggleReaction(ctx, actor, "m1", "👍")
	assert.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, f.publisher.byType(domain.EventReactionChanged), 2)

	// the second toggle removes it again
	f.msgs.On("ToggleReaction", ctx, "m1", "u1", "👍").Return(false, nil).Once()
	f.msgs.On("ReactionCounts", ctx, "m1").Return([]domain.ReactionCount(nil), nil).Once()

	added, err = f.uc.ToggleReaction(ctx, actor, "m1", "👍")
	assert.NoError(t, err)
	assert.False(t, added)
}

// orderLogPublisher appends one log line per publish, keyed by the message
// text carried in the payload, so tests can compare publish order against
// commit order.
type orderLogPublisher struct {
	mu  *sync.Mutex
	log *[]string
}

func (p *orderLogPublisher) Publish(channel string, message interface{}) error {
	evt := message.(domain.Event)
	var text string
	switch evt.Type {
	case domain.EventNewMessage:
		var body struct {
			HTML string `json:"rendered_html"`
		}
		_ = json.Unmarshal(evt.Payload, &body)
		text = body.HTML
	case domain.EventMessagePreview:
		var body struct {
			Preview string `json:"preview"`
		}
		_ = json.Unmarshal(evt.Payload, &body)
		text = body.Preview
	}
	p.mu.Lock()
	*p.log = append(*p.log, string(evt.Type)+" "+text)
	p.mu.Unlock()
	return nil
}

func TestConcurrentPostsPublishInCommitOrder(t *testing.T) {
	cipher, err := encrypt.NewContentCipher(testContentKey)
	assert.NoError(t, err)

	chats := new(mockChatRepo)
	msgs := new(mockMessageRepo)
	users := new(mockUserRepo)
	dispatcher := new(mockDispatcher)

	var mu sync.Mutex
	var log []string

	renderer := NewRenderer(cipher)
	broadcaster := NewBroadcaster(&orderLogPublisher{mu: &mu, log: &log}, chats, users, renderer)
	tracker := NewPresenceTracker(5*time.Second, nil)
	uc := NewMessageUseCase(msgs, chats, users, cipher, NewMentionService(users), renderer, broadcaster, dispatcher, tracker)

	ctx := context.Background()
	chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	chats.On("MemberIDs", ctx, "chat-1").Return([]string{"u1"}, nil)
	chats.On("UnreadCount", ctx, "chat-1", "u1").Return(int64(0), nil)
	users.On("FindByID", ctx, "u1").Return(&directorydomain.User{ID: "u1", FirstName: "Jane"}, nil)
	msgs.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		m := args.Get(1).(*domain.Message)
		m.ID = uuid.New().String()
		plain, _ := cipher.Open(m.SealedContent)
		mu.Lock()
		log = append(log, "commit "+plain)
		mu.Unlock()
	}).Return(nil)
	dispatcher.On("DispatchMessage", ctx, mock.Anything, mock.Anything).Return()

	const posts = 25
	var wg sync.WaitGroup
	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.Post(ctx, domain.Actor{ID: "u1"}, "chat-1", PostMessageInput{Content: fmt.Sprintf("note %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// every commit is immediately followed by its own fan-out; a racing
	// post never slots its events between another post's commit and
	// publishes, so subscribers observe commit order
	assert.Len(t, log, posts*3)
	for i := 0; i < posts; i++ {
		chunk := log[i*3 : i*3+3]
		text := strings.TrimPrefix(chunk[0], "commit ")
		assert.Equal(t, []string{
			"commit " + text,
			string(domain.EventNewMessage) + " " + text,
			string(domain.EventMessagePreview) + " " + text,
		}, chunk)
	}
}

func TestListThreadRendersReplies(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	sealed, err := f.cipher.Seal("me too")
	assert.NoError(t, err)
	top := "m-top"
	parent := &domain.Message{ID: top, ChatID: "chat-1", UserID: "u1"}
	replies := []domain.Message{
		{ID: "m2", ChatID: "chat-1", UserID: "u2", ParentMessageID: &top, SealedContent: sealed},
	}

	f.msgs.On("FindByID", ctx, "m-top").Return(parent, nil)
	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("ListThread", ctx, "m-top").Return(replies, nil)
	f.users.On("FindByID", ctx, "u2").Return(&directorydomain.User{ID: "u2", FirstName: "John"}, nil)
	f.msgs.On("ReactionCounts", ctx, "m2").Return([]domain.ReactionCount(nil), nil)

	rendered, err := f.uc.ListThread(ctx, domain.Actor{ID: "u1"}, "m-top")
	assert.NoError(t, err)
	assert.Len(t, rendered, 1)
	assert.Equal(t, "me too", rendered[0].HTML)
	assert.Equal(t, "m-top", *rendered[0].ParentMessageID)

	// outsiders cannot read threads
	f.chats.On("FindMembership", ctx, "chat-1", "outsider").Return(nil, errprocess.NotFound("membership"))
	_, err = f.uc.ListThread(ctx, domain.Actor{ID: "outsider"}, "m-top")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)
}

func TestListReadersResolvesNames(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	msg := &domain.Message{ID: "m1", ChatID: "chat-1", UserID: "u1"}
	readAt := time.Now().Add(-time.Minute)
	receipts := []domain.MessageReadReceipt{
		{ID: "r1", MessageID: "m1", UserID: "u2", CreatedAt: readAt},
	}

	f.msgs.On("FindByID", ctx, "m1").Return(msg, nil)
	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("ListReadReceipts", ctx, "m1").Return(receipts, nil)
	f.users.On("FindByIDs", ctx, []string{"u2"}).
		Return([]directorydomain.User{{ID: "u2", FirstName: "John", LastName: "Smith"}}, nil)

	readers, err := f.uc.ListReaders(ctx, domain.Actor{ID: "u1"}, "m1")
	assert.NoError(t, err)
	assert.Len(t, readers, 1)
	assert.Equal(t, "u2", readers[0].UserID)
	assert.Equal(t, "John Smith", readers[0].Name)
	assert.Equal(t, readAt, readers[0].ReadAt)

	f.chats.On("FindMembership", ctx, "chat-1", "outsider").Return(nil, errprocess.NotFound("membership"))
	_, err = f.uc.ListReaders(ctx, domain.Actor{ID: "outsider"}, "m1")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)
}

func TestTypingNamesForMember(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	f.tracker.Refresh("chat-1", "u2", "John Smith")

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	names, err := f.uc.TypingNames(ctx, domain.Actor{ID: "u1"}, "chat-1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"John Smith"}, names)

	// a member's own entry never shows in their list
	f.chats.On("FindMembership", ctx, "chat-1", "u2").Return(membership("chat-1", "u2"), nil)
	names, err = f.uc.TypingNames(ctx, domain.Actor{ID: "u2"}, "chat-1")
	assert.NoError(t, err)
	assert.Empty(t, names)

	f.chats.On("FindMembership", ctx, "chat-1", "outsider").Return(nil, errprocess.NotFound("membership"))
	_, err = f.uc.TypingNames(ctx, domain.Actor{ID: "outsider"}, "chat-1")
	assert.ErrorIs(t, err, errprocess.ErrAccessDenied)
}

func TestListMessagesRendersForViewer(t *testing.T) {
	f := newUsecaseFixture(t)
	ctx := context.Background()

	sealed, err := f.cipher.Seal("hello")
	assert.NoError(t, err)
	deletedAt := time.Now()
	msgs := []domain.Message{
		{ID: "m1", ChatID: "chat-1", UserID: "u1", SealedContent: sealed},
		{ID: "m2", ChatID: "chat-1", UserID: "u2", SealedContent: sealed, DeletedAt: &deletedAt},
	}

	f.chats.On("FindMembership", ctx, "chat-1", "u1").Return(membership("chat-1", "u1"), nil)
	f.msgs.On("ListByChat", ctx, "chat-1", mock.Anything, 50).Return(msgs, nil)
	f.users.On("FindByID", ctx, "u1").Return(&directorydomain.User{ID: "u1", FirstName: "Jane"}, nil)
	f.users.On("FindByID", ctx, "u2").Return(&directorydomain.User{ID: "u2", FirstName: "John"}, nil)
	f.msgs.On("ReactionCounts", ctx, mock.Anything).Return([]domain.ReactionCount(nil), nil)

	rendered, err := f.uc.ListMessages(ctx, domain.Actor{ID: "u1"}, "chat-1", time.Time{}, 0)
	assert.NoError(t, err)
	assert.Len(t, rendered, 2)
	assert.True(t, rendered[0].Own)
	assert.Equal(t, "hello", rendered[0].HTML)
	assert.True(t, rendered[1].Deleted)
	assert.Contains(t, rendered[1].HTML, "[Message deleted]")
}
