package transcript

import (
	"strings"

	"github.com/lingora-app/lingora/internal/repository"
)

const titleMaxLen = 50

// FormatContext renders entries as "<Role>: <content>" lines in order, for
// priming the agent when resuming a conversation.
func FormatContext(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, roleLabel(e.Role)+": "+e.Text)
	}
	return strings.Join(lines, "\n")
}

func roleLabel(role repository.Role) string {
	if role == repository.RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// DeriveTitle builds a conversation title from the first user utterance,
// truncated to 50 characters with an ellipsis marker.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= titleMaxLen {
		return text
	}
	return string(runes[:titleMaxLen]) + "..."
}

// FromDurable converts persisted entries into display entries.
func FromDurable(entries []repository.TranscriptEntry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{
			ID:        e.ID,
			Role:      e.Role,
			Text:      e.Content,
			Timestamp: e.CreatedAt,
			IsFinal:   true,
		})
	}
	return out
}
