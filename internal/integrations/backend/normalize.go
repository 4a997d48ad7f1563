package backend

import (
	"time"

	"tutor-chatbot/internal/domain"
)

// Persisted records accumulated under several historical schemas: the
// assistant role was stored as "bot" for a while, and timestamps vary in
// precision. Normalization happens here, once, so the rest of the program
// never branches on naming variants.

func normalizeConversation(rec conversationRecord) domain.Conversation {
	conv := domain.Conversation{
		ID:        rec.ID,
		Title:     rec.Title,
		CreatedAt: parseTime(rec.CreatedAt),
		Messages:  make([]domain.Message, 0, len(rec.Messages)),
	}
	for _, m := range rec.Messages {
		conv.Messages = append(conv.Messages, domain.Message{
			ID:        m.ID,
			Role:      normalizeRole(m.Role),
			Content:   m.Content,
			CreatedAt: parseTime(m.CreatedAt),
		})
	}
	return conv
}

func normalizeRole(role string) string {
	switch role {
	case "bot", "assistant", "model":
		return domain.RoleAssistant
	default:
		return domain.RoleUser
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
