// Package chatlog holds the in-memory conversation log mutated by the
// streaming controller.
package chatlog

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tutor-chatbot/internal/domain"
)

// ErrNotFound is returned when a conversation id is unknown to the store.
var ErrNotFound = errors.New("chatlog: conversation not found")

// Store maps conversation ids to conversations and tracks the single active
// one. Every update copies only the affected conversation, so snapshots of
// untouched conversations stay stable across unrelated mutations.
type Store struct {
	mu       sync.Mutex
	order    []string // most recent first
	byID     map[string]*domain.Conversation
	activeID string
}

// New creates an empty Store.
func New() *Store {
	return &Store{byID: make(map[string]*domain.Conversation)}
}

// CreateConversation adds an empty, untitled conversation and makes it
// active.
func (s *Store) CreateConversation() domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &domain.Conversation{
		ID:        newID(),
		CreatedAt: now(),
	}
	s.byID[conv.ID] = conv
	s.order = append([]string{conv.ID}, s.order...)
	s.activeID = conv.ID
	return snapshot(conv)
}

// Hydrate replaces the store contents with conversations loaded from the
// backend, given most recent first. The most recent becomes active.
func (s *Store) Hydrate(convs []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*domain.Conversation, len(convs))
	s.order = s.order[:0]
	s.activeID = ""
	for i := range convs {
		c := convs[i]
		c.Messages = append([]domain.Message(nil), c.Messages...)
		s.byID[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
	if len(s.order) > 0 {
		s.activeID = s.order[0]
	}
}

// SelectConversation sets the active conversation and reports whether it has
// any messages. An unknown id is a silent no-op.
func (s *Store) SelectConversation(id string) (hasMessages bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return false
	}
	s.activeID = id
	return len(conv.Messages) > 0
}

// Active returns a snapshot of the active conversation, if any.
func (s *Store) Active() (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[s.activeID]
	if !ok {
		return domain.Conversation{}, false
	}
	return snapshot(conv), true
}

// ActiveID returns the active conversation id, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Conversation returns a snapshot of the conversation with the given id.
func (s *Store) Conversation(id string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return snapshot(conv), true
}

// Conversations returns snapshots of all conversations, most recent first.
func (s *Store) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, snapshot(s.byID[id]))
	}
	return out
}

// AppendMessage appends a new message to the conversation and reports
// whether it was the conversation's first user message, which is the trigger
// for title derivation.
func (s *Store) AppendMessage(conversationID, role, content string) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return domain.Message{}, false, ErrNotFound
	}

	msg := domain.Message{
		ID:        newID(),
		Role:      role,
		Content:   content,
		CreatedAt: now(),
	}
	first := len(conv.Messages) == 0 && role == domain.RoleUser

	next := snapshot(conv)
	next.Messages = append(next.Messages, msg)
	s.byID[conversationID] = &next
	return msg, first, nil
}

// UpdateMessageContent overwrites the content of one message in place. Only
// the streaming controller calls this, for the single in-flight assistant
// message.
func (s *Store) UpdateMessageContent(conversationID, messageID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[conversationID]
	if !ok {
		return false
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			next := snapshot(conv)
			next.Messages[i].Content = content
			s.byID[conversationID] = &next
			return true
		}
	}
	return false
}

// SetTitle sets a conversation's title without recording a pre-image. Used
// for derived titles; interactive renames go through RenameConversation.
func (s *Store) SetTitle(id, title string) bool {
	_, ok := s.rename(id, title)
	return ok
}

// RenameConversation applies the new title and returns the previous one so
// the caller can revert if the backend rejects the rename.
func (s *Store) RenameConversation(id, newTitle string) (previous string, ok bool) {
	return s.rename(id, newTitle)
}

func (s *Store) rename(id, title string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[id]
	if !ok {
		return "", false
	}
	prev := conv.Title
	next := snapshot(conv)
	next.Title = title
	s.byID[id] = &next
	return prev, true
}

// DeleteConversation removes the conversation. When the active conversation
// is deleted, the most recent remaining one becomes active; with none left
// the active id is cleared.
func (s *Store) DeleteConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
		if len(s.order) > 0 {
			s.activeID = s.order[0]
		}
	}
	return true
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// snapshot copies a conversation along with its message slice, so callers
// and later mutations cannot alias each other.
func snapshot(c *domain.Conversation) domain.Conversation {
	out := *c
	out.Messages = append([]domain.Message(nil), c.Messages...)
	return out
}

// seams for deterministic tests
var (
	newID = uuid.NewString
	now   = func() time.Time { return time.Now().UTC() }
)
