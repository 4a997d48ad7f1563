package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tutor-chatbot/internal/chatlog"
	"tutor-chatbot/internal/domain"
	"tutor-chatbot/internal/stream"
)

const (
	defaultMaxQuestion = 5000
	defaultIdleTimeout = 90 * time.Second
	defaultTemperature = 0.7

	// user-facing fallback texts written into the conversation on failure
	msgSomethingWrong = "Something went wrong."
	msgRateLimited    = "Too many requests, retry later."
)

// ChatBackend covers the backend operations the streaming controller drives.
type ChatBackend interface {
	StartStream(ctx context.Context, req domain.StreamRequest) (io.ReadCloser, error)
	SaveMessage(ctx context.Context, chatID, userEmail, role, content string) (string, error)
	UpdateChatTitle(ctx context.Context, chatID, title string) error
	ListChats(ctx context.Context, userEmail string) ([]domain.Conversation, error)
	DeleteChat(ctx context.Context, chatID, userEmail string) error
}

// Archiver mirrors completed exchanges into secondary storage.
type Archiver interface {
	SaveExchange(ctx context.Context, conversationID, title, question, answer string) error
}

// RenderFunc is called synchronously after every content update of the
// in-flight message, before the next chunk is read, so rendering tracks the
// stream instead of arriving in batched jumps.
type RenderFunc func(conversationID, messageID, content string)

// StatusFunc observes stream lifecycle transitions.
type StatusFunc func(conversationID string, status domain.StreamStatus)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// StreamService drives one question/answer exchange end-to-end and keeps the
// chat log consistent with stream progress. It is the only component that
// turns errors into visible messages or a login redirect; the decoder,
// accumulator, and store below it never do.
//
// A service runs at most one exchange at a time: the store-level invariant
// of a single in-flight message depends on it.
type StreamService struct {
	backend ChatBackend
	store   *chatlog.Store
	archive Archiver
	log     *slog.Logger

	render         RenderFunc
	onStatus       StatusFunc
	onAuthRequired func()

	maxQuestionLen int
	idleTimeout    time.Duration
	temperature    float64

	// conversation ids whose derived title reached the backend; guards the
	// once-per-conversation title persistence
	titleSaved map[string]bool
}

type Option func(*StreamService)

// WithRenderFunc installs the synchronous render hook.
func WithRenderFunc(fn RenderFunc) Option {
	return func(s *StreamService) { s.render = fn }
}

// WithStatusFunc installs a stream lifecycle observer.
func WithStatusFunc(fn StatusFunc) Option {
	return func(s *StreamService) { s.onStatus = fn }
}

// WithAuthRedirect installs the navigation hook invoked when the backend
// reports the session as unauthenticated.
func WithAuthRedirect(fn func()) Option {
	return func(s *StreamService) { s.onAuthRequired = fn }
}

// WithArchiver mirrors completed exchanges into the given archive.
func WithArchiver(a Archiver) Option {
	return func(s *StreamService) { s.archive = a }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *StreamService) { s.log = l }
}

// WithIdleTimeout bounds the wait for the next chunk; zero disables the
// watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *StreamService) { s.idleTimeout = d }
}

// WithMaxQuestionLength overrides the input length bound.
func WithMaxQuestionLength(n int) Option {
	return func(s *StreamService) {
		if n > 0 {
			s.maxQuestionLen = n
		}
	}
}

// WithTemperature sets the default sampling temperature for requests that do
// not carry their own.
func WithTemperature(t float64) Option {
	return func(s *StreamService) {
		if t > 0 {
			s.temperature = t
		}
	}
}

// NewStreamService creates the controller around a backend and a chat log
// store.
func NewStreamService(b ChatBackend, store *chatlog.Store, opts ...Option) (*StreamService, error) {
	if b == nil {
		return nil, errors.New("usecase: backend must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	s := &StreamService{
		backend:        b,
		store:          store,
		log:            slog.Default(),
		maxQuestionLen: defaultMaxQuestion,
		idleTimeout:    defaultIdleTimeout,
		temperature:    defaultTemperature,
		titleSaved:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type AskInput struct {
	ConversationID string
	Question       string
	UserEmail      string
	Temperature    float64 // 0 means the service default
}

type AskOutput struct {
	ConversationID string
	MessageID      string
	Answer         string
}

// Ask runs one exchange: validates the question, appends it to the
// conversation, opens the stream, feeds every decoded payload through the
// accumulator into the placeholder assistant message, and persists the
// finished exchange. Persistence failures never retract displayed content.
func (s *StreamService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := SanitizeQuestion(in.Question)
	if strings.TrimSpace(question) == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if len(question) > s.maxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}

	convID := in.ConversationID
	if _, ok := s.store.Conversation(convID); !ok {
		convID = s.store.CreateConversation().ID
	}
	s.setStatus(convID, domain.StreamPending)

	// Optimistic local append; the client-generated message id doubles as a
	// de-duplication key should the backend ever echo the message back.
	_, firstUserMessage, err := s.store.AppendMessage(convID, domain.RoleUser, question)
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "append_user_message", err)
	}

	if firstUserMessage {
		if conv, ok := s.store.Conversation(convID); ok && conv.Title == "" {
			if title := DeriveTitle(question); title != "" {
				s.store.SetTitle(convID, title)
			}
		}
	}

	if err := s.persistUserSide(ctx, convID, in.UserEmail, question); err != nil {
		return AskOutput{}, err
	}

	temperature := in.Temperature
	if temperature <= 0 {
		temperature = s.temperature
	}
	body, err := s.backend.StartStream(ctx, domain.StreamRequest{
		Question:       question,
		ConversationID: convID,
		Temperature:    temperature,
	})
	if err != nil {
		return AskOutput{}, s.failBeforeStreaming(convID, err)
	}
	defer func() { _ = body.Close() }()

	// Headers are in: from here on the placeholder is the single in-flight
	// message of the conversation, and any external busy indicator clears.
	placeholder, _, err := s.store.AppendMessage(convID, domain.RoleAssistant, "")
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "append_placeholder", err)
	}
	s.setStatus(convID, domain.StreamStreaming)
	s.flush(convID, placeholder.ID, "")

	var acc stream.Accumulator
	dec := stream.NewDecoder(body)
	watchdog := newIdleWatchdog(s.idleTimeout, func() { _ = body.Close() })
	defer watchdog.stop()

	for {
		payload, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return AskOutput{}, s.failMidStream(ctx, convID, placeholder.ID, acc.Text(), watchdog, err)
		}
		watchdog.reset()
		acc.Append(payload)
		text := acc.Text()
		s.store.UpdateMessageContent(convID, placeholder.ID, text)
		s.flush(convID, placeholder.ID, text)
	}
	if ctx.Err() != nil {
		// Abandoned right at stream end; do not persist a partial answer.
		s.setStatus(convID, domain.StreamFailed)
		return AskOutput{}, newError(ErrorCanceled, "stream_abandoned", ctx.Err())
	}

	answer := acc.Text()
	s.store.UpdateMessageContent(convID, placeholder.ID, answer)
	s.flush(convID, placeholder.ID, answer)
	s.setStatus(convID, domain.StreamCompleted)

	if _, err := s.backend.SaveMessage(ctx, convID, in.UserEmail, domain.RoleAssistant, answer); err != nil {
		s.log.Warn("failed to persist assistant message",
			"conversation_id", convID, "message_id", placeholder.ID, "err", err)
	}
	if s.archive != nil {
		conv, _ := s.store.Conversation(convID)
		if err := s.archive.SaveExchange(ctx, convID, conv.Title, question, answer); err != nil {
			s.log.Warn("failed to archive exchange", "conversation_id", convID, "err", err)
		}
	}

	return AskOutput{ConversationID: convID, MessageID: placeholder.ID, Answer: answer}, nil
}

// persistUserSide saves the user message and, when freshly derived, the
// conversation title. Both are best-effort except for an expired session,
// which aborts the whole exchange before any placeholder exists.
func (s *StreamService) persistUserSide(ctx context.Context, convID, userEmail, question string) error {
	if _, err := s.backend.SaveMessage(ctx, convID, userEmail, domain.RoleUser, question); err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return s.authAbort(err)
		}
		s.log.Warn("failed to persist user message", "conversation_id", convID, "err", err)
	}

	conv, ok := s.store.Conversation(convID)
	if !ok || conv.Title == "" || s.titleSaved[convID] {
		return nil
	}
	if err := s.backend.UpdateChatTitle(ctx, convID, conv.Title); err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return s.authAbort(err)
		}
		s.log.Warn("failed to persist conversation title", "conversation_id", convID, "err", err)
		return nil
	}
	s.titleSaved[convID] = true
	return nil
}

// failBeforeStreaming maps an initiation failure to its user-visible
// outcome. No placeholder exists yet: an expired session redirects with
// nothing appended; anything else becomes an assistant-role error message.
func (s *StreamService) failBeforeStreaming(convID string, err error) error {
	s.setStatus(convID, domain.StreamFailed)
	switch {
	case isStatus(err, http.StatusUnauthorized):
		return s.authAbort(err)
	case isStatus(err, http.StatusTooManyRequests):
		s.appendErrorMessage(convID, msgRateLimited)
		return newError(ErrorRateLimited, "stream_rate_limited", err)
	default:
		s.appendErrorMessage(convID, msgSomethingWrong)
		return newError(ErrorUpstream, "stream_request_failed", err)
	}
}

// failMidStream handles a read failure after the placeholder exists. A
// canceled context means the session was abandoned: whatever rendered stays,
// nothing is persisted, and no error message is appended. Otherwise the
// placeholder keeps any partial text already shown, or carries the error
// text when nothing arrived at all.
func (s *StreamService) failMidStream(ctx context.Context, convID, messageID, partial string, w *idleWatchdog, err error) error {
	s.setStatus(convID, domain.StreamFailed)

	if ctx.Err() != nil {
		return newError(ErrorCanceled, "stream_abandoned", ctx.Err())
	}
	if partial == "" {
		s.store.UpdateMessageContent(convID, messageID, msgSomethingWrong)
		s.flush(convID, messageID, msgSomethingWrong)
	}
	if w.expired() {
		return newError(ErrorTimeout, "stream_idle_timeout", err)
	}
	return newError(ErrorUpstream, "stream_read_failed", err)
}

func (s *StreamService) appendErrorMessage(convID, text string) {
	msg, _, err := s.store.AppendMessage(convID, domain.RoleAssistant, text)
	if err != nil {
		s.log.Warn("failed to append error message", "conversation_id", convID, "err", err)
		return
	}
	s.flush(convID, msg.ID, text)
}

func (s *StreamService) authAbort(err error) error {
	if s.onAuthRequired != nil {
		s.onAuthRequired()
	}
	return newError(ErrorAuthRequired, "session_expired", err)
}

func (s *StreamService) flush(convID, messageID, content string) {
	if s.render != nil {
		s.render(convID, messageID, content)
	}
}

func (s *StreamService) setStatus(convID string, status domain.StreamStatus) {
	if s.onStatus != nil {
		s.onStatus(convID, status)
	}
}

// HydrateChats loads the user's conversations into the store, most recent
// first.
func (s *StreamService) HydrateChats(ctx context.Context, userEmail string) error {
	convs, err := s.backend.ListChats(ctx, userEmail)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return s.authAbort(err)
		}
		return newError(ErrorUpstream, "load_chats", err)
	}
	s.store.Hydrate(convs)
	for _, conv := range convs {
		if conv.Title != "" {
			s.titleSaved[conv.ID] = true
		}
	}
	return nil
}

// RenameConversation applies the new title locally, then confirms with the
// backend, restoring the previous title if the backend rejects it.
func (s *StreamService) RenameConversation(ctx context.Context, id, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return newError(ErrorInvalidInput, "empty_title", nil)
	}
	prev, ok := s.store.RenameConversation(id, newTitle)
	if !ok {
		return newError(ErrorInvalidInput, "unknown_conversation", nil)
	}
	if err := s.backend.UpdateChatTitle(ctx, id, newTitle); err != nil {
		s.store.RenameConversation(id, prev)
		if isStatus(err, http.StatusUnauthorized) {
			return s.authAbort(err)
		}
		return newError(ErrorUpstream, "rename_rejected", err)
	}
	s.titleSaved[id] = true
	return nil
}

// DeleteConversation removes the conversation locally first; a backend
// failure is reported but does not resurrect the local entry.
func (s *StreamService) DeleteConversation(ctx context.Context, id, userEmail string) error {
	if !s.store.DeleteConversation(id) {
		return newError(ErrorInvalidInput, "unknown_conversation", nil)
	}
	delete(s.titleSaved, id)
	if err := s.backend.DeleteChat(ctx, id, userEmail); err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return s.authAbort(err)
		}
		s.log.Warn("failed to delete conversation on backend", "conversation_id", id, "err", err)
	}
	return nil
}

func isStatus(err error, status int) bool {
	var coder httpStatusCoder
	return errors.As(err, &coder) && coder.HTTPStatusCode() == status
}
