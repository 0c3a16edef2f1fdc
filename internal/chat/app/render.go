package app

import (
	"fmt"
	"html"
	"strings"
	"time"

	"family_messaging_service/internal/chat/domain"
	directorydomain "family_messaging_service/internal/directory/domain"
	"family_messaging_service/pkg"
	"family_messaging_service/pkg/encrypt"
)

// RenderedMessage is the per-viewer view of a message carried in fan-out
// events and list responses.
type RenderedMessage struct {
	ID              string                 `json:"message_id"`
	ChatID          string                 `json:"chat_id"`
	UserID          string                 `json:"user_id"`
	SenderName      string                 `json:"sender_name"`
	ParentMessageID *string                `json:"parent_message_id,omitempty"`
	HTML            string                 `json:"rendered_html"`
	ReactionsHTML   string                 `json:"reactions_html,omitempty"`
	Own             bool                   `json:"own"`
	Edited          bool                   `json:"edited"`
	Deleted         bool                   `json:"deleted"`
	Attachments     []domain.Attachment    `json:"attachments,omitempty"`
	Reactions       []domain.ReactionCount `json:"reactions,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Renderer turns stored messages into per-viewer render payloads. It is the
// only component besides the write path that touches the content cipher.
type Renderer struct {
	cipher *encrypt.ContentCipher
}

// NewRenderer create Renderer
func NewRenderer(cipher *encrypt.ContentCipher) *Renderer {
	return &Renderer{cipher: cipher}
}

// MessageHTML render the message body: tombstone for deleted messages,
// otherwise escaped plaintext with resolved mentions highlighted.
func (r *Renderer) MessageHTML(msg *domain.Message, mentioned []directorydomain.User) (string, error) {
	if msg.IsDeleted() {
		return `<span class="message-deleted">` + domain.TombstonePlaceholder + `</span>`, nil
	}
	if msg.SealedContent == "" {
		return "", nil
	}
	plaintext, err := r.cipher.Open(msg.SealedContent)
	if err != nil {
		return "", err
	}
	return RenderWithHighlights(plaintext, mentioned), nil
}

// Render build the viewer's payload for one message. Only Own differs
// between viewers; the body is rendered once by the caller and reused.
func (r *Renderer) Render(msg *domain.Message, sender *directorydomain.User, viewerID, bodyHTML string, reactions []domain.ReactionCount) RenderedMessage {
	senderName := "Unknown User"
	if sender != nil {
		senderName = sender.FullName()
	}
	return RenderedMessage{
		ID:              msg.ID,
		ChatID:          msg.ChatID,
		UserID:          msg.UserID,
		SenderName:      senderName,
		ParentMessageID: msg.ParentMessageID,
		HTML:            bodyHTML,
		ReactionsHTML:   ReactionsHTML(reactions, viewerID),
		Own:             msg.UserID == viewerID,
		Edited:          msg.Edited,
		Deleted:         msg.IsDeleted(),
		Attachments:     msg.Attachments,
		Reactions:       reactions,
		CreatedAt:       msg.CreatedAt,
	}
}

// ReactionsHTML render the grouped reaction summary. The viewer's own
// reactions get the reacted class so clients can style the toggle state.
func ReactionsHTML(reactions []domain.ReactionCount, viewerID string) string {
	if len(reactions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="reactions">`)
	for _, rc := range reactions {
		class := "reaction"
		for _, id := range rc.UserIDs {
			if id == viewerID {
				class = "reaction reacted"
				break
			}
		}
		fmt.Fprintf(&b, `<span class="%s">%s %d</span>`, class, html.EscapeString(rc.Emoji), rc.Count)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// PreviewText build the chat-list preview line: plaintext truncated to 40
// runes, attachment marker when there is no text.
func PreviewText(plaintext string, hasAttachments bool) string {
	if plaintext == "" {
		if hasAttachments {
			return "📎 Attachment"
		}
		return ""
	}
	return pkg.Truncate(plaintext, 40)
}
