package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type typingEvent struct {
	chatID   string
	userID   string
	name     string
	isTyping bool
}

type typingRecorder struct {
	mu     sync.Mutex
	events []typingEvent
}

func (r *typingRecorder) record(chatID, userID, name string, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, typingEvent{chatID, userID, name, isTyping})
}

func (r *typingRecorder) all() []typingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]typingEvent(nil), r.events...)
}

func newTestTracker(rec *typingRecorder) (*PresenceTracker, *time.Time) {
	now := time.Now()
	tracker := NewPresenceTracker(5*time.Second, rec.record)
	tracker.now = func() time.Time { return now }
	// expiry is driven manually through sweep in tests
	tracker.afterFunc = func(d time.Duration, f func()) *time.Timer { return nil }
	return tracker, &now
}

func TestPresenceRefreshEmitsStartOnce(t *testing.T) {
	rec := &typingRecorder{}
	tracker, _ := newTestTracker(rec)

	tracker.Refresh("chat-1", "u1", "Jane Smith")
	tracker.Refresh("chat-1", "u1", "Jane Smith")
	tracker.Refresh("chat-1", "u1", "Jane Smith")

	events := rec.all()
	assert.Len(t, events, 1)
	assert.Equal(t, typingEvent{"chat-1", "u1", "Jane Smith", true}, events[0])
	assert.Equal(t, []string{"Jane Smith"}, tracker.TypingNames("chat-1", "viewer"))
}

func TestPresenceStopEmits(t *testing.T) {
	rec := &typingRecorder{}
	tracker, _ := newTestTracker(rec)

	tracker.Refresh("chat-1", "u1", "Jane Smith")
	tracker.Stop("chat-1", "u1")
	// stopping again is silent
	tracker.Stop("chat-1", "u1")

	events := rec.all()
	assert.Len(t, events, 2)
	assert.False(t, events[1].isTyping)
	assert.Empty(t, tracker.TypingNames("chat-1", "viewer"))
}

func TestPresenceExpiry(t *testing.T) {
	rec := &typingRecorder{}
	tracker, now := newTestTracker(rec)

	tracker.Refresh("chat-1", "u1", "Jane Smith")

	// refresh keeps the entry alive past the original deadline
	*now = now.Add(4 * time.Second)
	tracker.Refresh("chat-1", "u1", "Jane Smith")
	*now = now.Add(4 * time.Second)
	tracker.sweep("chat-1")
	assert.Equal(t, []string{"Jane Smith"}, tracker.TypingNames("chat-1", "viewer"))

	// silence past the TTL expires it
	*now = now.Add(6 * time.Second)
	tracker.sweep("chat-1")

	events := rec.all()
	assert.Len(t, events, 2)
	assert.Equal(t, typingEvent{"chat-1", "u1", "Jane Smith", false}, events[1])
	assert.Empty(t, tracker.TypingNames("chat-1", "viewer"))
}

func TestPresenceChatsLockIndependently(t *testing.T) {
	rec := &typingRecorder{}
	tracker, _ := newTestTracker(rec)

	// holding one chat's lock must not stall updates in another chat
	busy := tracker.chatShard("chat-1")
	busy.mu.Lock()
	defer busy.mu.Unlock()

	done := make(chan struct{})
	go func() {
		tracker.Refresh("chat-2", "u1", "Jane Smith")
		tracker.Stop("chat-2", "u1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("typing update in chat-2 blocked behind chat-1's lock")
	}
	assert.Len(t, rec.all(), 2)
}

func TestPresenceTypingNamesExcludesViewer(t *testing.T) {
	rec := &typingRecorder{}
	tracker, _ := newTestTracker(rec)

	tracker.Refresh("chat-1", "u1", "Jane Smith")
	tracker.Refresh("chat-1", "u2", "Tom Smith")

	names := tracker.TypingNames("chat-1", "u1")
	assert.Equal(t, []string{"Tom Smith"}, names)
}
