package domain

import "time"

// TypingTTL is how long a typing signal stays alive without a refresh.
const TypingTTL = 5 * time.Second

// TypingEntry is one user's live typing state inside a chat.
type TypingEntry struct {
	UserID    string
	Name      string
	ExpiresAt time.Time
}

// Expired check the entry has passed its deadline
func (e TypingEntry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }
