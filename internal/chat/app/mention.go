package app

import (
	"context"
	"html"
	"regexp"
	"strings"

	directorydomain "family_messaging_service/internal/directory/domain"
	"family_messaging_service/internal/directory/repository"
	"family_messaging_service/pkg"
)

// mentionPattern matches "@First" or "@First Last" with capitalized name
// tokens. The pattern is intentionally narrow; anything fancier (emails,
// handles) is not a mention.
var mentionPattern = regexp.MustCompile(`@([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

// MentionService resolves @Name tokens in message content against the
// members of a chat and renders the highlight markup.
type MentionService struct {
	users repository.UserRepository
}

// NewMentionService create MentionService
func NewMentionService(users repository.UserRepository) *MentionService {
	return &MentionService{users: users}
}

// ExtractMentionNames pull candidate names out of raw content, in order of
// appearance, duplicates removed.
func ExtractMentionNames(content string) []string {
	var names []string
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if !pkg.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

// ResolveMentions map candidate names to chat members. Only the first token
// of a candidate is matched, case-sensitively, against member first names.
// "@Unknown Person" resolves to nobody and is not an error.
func (s *MentionService) ResolveMentions(ctx context.Context, chatID, content string) ([]directorydomain.User, error) {
	names := ExtractMentionNames(content)
	if len(names) == 0 {
		return nil, nil
	}

	firstNames := make([]string, 0, len(names))
	for _, name := range names {
		first := strings.Fields(name)[0]
		if !pkg.Contains(firstNames, first) {
			firstNames = append(firstNames, first)
		}
	}

	members, err := s.users.FindChatMembersByFirstNames(ctx, chatID, firstNames)
	if err != nil {
		return nil, err
	}

	var resolved []directorydomain.User
	seen := map[string]bool{}
	for _, first := range firstNames {
		for _, member := range members {
			if member.FirstName == first && !seen[member.ID] {
				seen[member.ID] = true
				resolved = append(resolved, member)
			}
		}
	}
	return resolved, nil
}

// RenderWithHighlights escape content then wrap resolved mentions in a
// highlight span. Escaping runs first so user content can never smuggle
// markup through; mention names are letter-only and survive escaping.
func RenderWithHighlights(content string, mentioned []directorydomain.User) string {
	escaped := html.EscapeString(content)
	if len(mentioned) == 0 {
		return escaped
	}

	firsts := map[string]bool{}
	for _, u := range mentioned {
		firsts[u.FirstName] = true
	}

	return mentionPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		name := strings.TrimPrefix(match, "@")
		if !firsts[strings.Fields(name)[0]] {
			return match
		}
		return `<span class="mention">` + match + `</span>`
	})
}
