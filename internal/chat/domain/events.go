package domain

import (
	"encoding/json"
	"time"
)

// Actor is the authenticated identity every operation runs under. There is
// no ambient current user; handlers resolve it from the token and thread it
// down explicitly.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin check actor carries the admin role
func (a Actor) IsAdmin() bool { return a.Role == "admin" }

// EventType definition fan-out event type
type EventType string

const (
	// EventNewMessage a message was appended to a chat
	EventNewMessage EventType = "new_message"
	// EventMessageUpdated a message's content was edited
	EventMessageUpdated EventType = "message_updated"
	// EventMessageDeleted a message was soft-deleted
	EventMessageDeleted EventType = "message_deleted"
	// EventReactionChanged the reaction summary of a message changed
	EventReactionChanged EventType = "reaction_changed"
	// EventTyping a member started or stopped typing in a chat
	EventTyping EventType = "typing"
	// EventMessagePreview chat-list preview and unread badge update
	EventMessagePreview EventType = "message_preview"
	// EventNewNotification a notification row was created for the viewer
	EventNewNotification EventType = "new_notification"
	// EventNotificationRead one notification was marked read
	EventNotificationRead EventType = "notification_read"
	// EventNotificationsRead all notifications were marked read
	EventNotificationsRead EventType = "notifications_read"
)

// Event is the envelope published on per-user channels. ChatID is empty
// for personal notification events; the gateway forwards those regardless
// of the connection's subscribed chats.
type Event struct {
	Type    EventType       `json:"type"`
	ChatID  string          `json:"chat_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an Event envelope.
func NewEvent(t EventType, chatID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, ChatID: chatID, Payload: raw}, nil
}

// WSAction definition client to server websocket action
type WSAction string

const (
	// ActionSubscribe attach the connection to a chat's event stream
	ActionSubscribe WSAction = "subscribe"
	// ActionUnsubscribe detach the connection from a chat's event stream
	ActionUnsubscribe WSAction = "unsubscribe"
	// ActionTyping refresh the actor's typing state in a chat
	ActionTyping WSAction = "typing"
	// ActionMarkRead advance the actor's read cursor in a chat
	ActionMarkRead WSAction = "mark_read"
)

// WSRequest definition websocket request
type WSRequest struct {
	Action   WSAction `json:"action"`
	ChatID   string   `json:"chat_id"`
	IsTyping bool     `json:"is_typing"`
}

// WSResponse definition websocket response
type WSResponse struct {
	Action  WSAction    `json:"action"`
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TypingPayload reports one user's typing transition to chat subscribers.
// Expiry without a refresh produces the same payload with IsTyping false.
type TypingPayload struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// PreviewPayload updates a viewer's chat list entry.
type PreviewPayload struct {
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	Preview     string    `json:"preview"`
	Timestamp   time.Time `json:"timestamp"`
	UnreadCount int64     `json:"unread_count"`
}

// ReactionCount is one line of a message's reaction summary.
type ReactionCount struct {
	Emoji   string   `json:"emoji"`
	Count   int64    `json:"count"`
	UserIDs []string `json:"user_ids"`
}
