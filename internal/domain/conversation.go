package domain

import "time"

// Canonical role tags. Backend records written by older revisions of the
// system used "bot" for the assistant role; that variant is normalized away
// at the storage boundary and never appears in a Conversation held here.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	ID        string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Conversation is a titled, ordered sequence of messages. Messages are
// append-only during a session; slice order is chronological order.
type Conversation struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time
}

// User is the signed-in identity resolved from the backend session.
type User struct {
	Email string
	Role  string
}
