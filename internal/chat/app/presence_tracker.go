package app

import (
	"sync"
	"time"

	"family_messaging_service/internal/chat/domain"
)

// TypingEventFunc receives typing transitions: a user started typing or
// their entry stopped (explicitly or by expiry).
type TypingEventFunc func(chatID, userID, name string, isTyping bool)

// chatPresence holds one chat's live typing entries behind its own lock,
// so updates in one chat never wait on another chat's.
type chatPresence struct {
	mu      sync.Mutex
	entries map[string]domain.TypingEntry
}

// PresenceTracker holds live typing state per chat. State is process-local
// and rebuilt from client signals; a refresh extends the deadline, silence
// past the TTL expires the entry and emits a stop transition. Each chat
// carries its own lock, the tracker-level lock only guards the shard map.
type PresenceTracker struct {
	mu      sync.Mutex
	chats   map[string]*chatPresence
	ttl     time.Duration
	onEvent TypingEventFunc

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewPresenceTracker create PresenceTracker with the given entry TTL
func NewPresenceTracker(ttl time.Duration, onEvent TypingEventFunc) *PresenceTracker {
	if ttl <= 0 {
		ttl = domain.TypingTTL
	}
	return &PresenceTracker{
		chats:     map[string]*chatPresence{},
		ttl:       ttl,
		onEvent:   onEvent,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// chatShard return the chat's presence shard, creating it on first use.
// Shards stay in the map once created, same lifecycle as publish locks.
func (t *PresenceTracker) chatShard(chatID string) *chatPresence {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.chats[chatID]
	if !ok {
		p = &chatPresence{entries: map[string]domain.TypingEntry{}}
		t.chats[chatID] = p
	}
	return p
}

// Refresh record or extend the user's typing entry. Emits a start
// transition only when the entry is new; a bare extension is silent.
func (t *PresenceTracker) Refresh(chatID, userID, name string) {
	p := t.chatShard(chatID)

	p.mu.Lock()
	_, existed := p.entries[userID]
	p.entries[userID] = domain.TypingEntry{
		UserID:    userID,
		Name:      name,
		ExpiresAt: t.now().Add(t.ttl),
	}
	p.mu.Unlock()

	t.afterFunc(t.ttl+50*time.Millisecond, func() { t.sweep(chatID) })

	if !existed && t.onEvent != nil {
		t.onEvent(chatID, userID, name, true)
	}
}

// Stop drop the user's typing entry and emit a stop transition when one
// was live.
func (t *PresenceTracker) Stop(chatID, userID string) {
	p := t.chatShard(chatID)

	p.mu.Lock()
	entry, existed := p.entries[userID]
	if existed {
		delete(p.entries, userID)
	}
	p.mu.Unlock()

	if existed && t.onEvent != nil {
		t.onEvent(chatID, entry.UserID, entry.Name, false)
	}
}

// TypingNames list names currently typing in a chat, excluding the viewer.
func (t *PresenceTracker) TypingNames(chatID, excludeUserID string) []string {
	now := t.now()
	p := t.chatShard(chatID)

	p.mu.Lock()
	defer p.mu.Unlock()

	var names []string
	for userID, entry := range p.entries {
		if userID == excludeUserID || entry.Expired(now) {
			continue
		}
		names = append(names, entry.Name)
	}
	return names
}

// sweep drop expired entries for a chat and emit their stop transitions.
func (t *PresenceTracker) sweep(chatID string) {
	now := t.now()
	p := t.chatShard(chatID)

	p.mu.Lock()
	var expired []domain.TypingEntry
	for userID, entry := range p.entries {
		if entry.Expired(now) {
			delete(p.entries, userID)
			expired = append(expired, entry)
		}
	}
	p.mu.Unlock()

	if t.onEvent == nil {
		return
	}
	for _, entry := range expired {
		t.onEvent(chatID, entry.UserID, entry.Name, false)
	}
}
