// Package backend implements the HTTP contract of the tutor chatbot API:
// the streaming answer endpoint plus conversation persistence and the
// session identity check.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"tutor-chatbot/internal/domain"
)

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is the HTTP client for the tutor chatbot backend. All requests
// carry the session cookie so the backend can associate them with the
// signed-in user.
type Client struct {
	baseURL string

	// jsonClient serves the short CRUD calls with a hard timeout. The
	// streaming call runs on streamClient, which has no client-level timeout
	// and is bounded by the request context instead.
	jsonClient   *http.Client
	streamClient *http.Client

	cookieHeader string
}

type Option func(*Client)

// WithHTTPClient replaces the client used for non-streaming calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.jsonClient = httpClient
	}
}

// WithStreamHTTPClient replaces the client used for the streaming call.
func WithStreamHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.streamClient = httpClient
	}
}

// WithSessionCookie sets a raw Cookie header value (e.g. "session=abc") sent
// on every request. Useful outside a browser, where no jar is pre-populated.
func WithSessionCookie(raw string) Option {
	return func(c *Client) {
		c.cookieHeader = strings.TrimSpace(raw)
	}
}

// NewClient creates a backend client rooted at baseURL. The two underlying
// HTTP clients share one cookie jar so a session cookie set by the backend
// sticks across calls.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL must not be empty")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("backend: create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:      baseURL,
		jsonClient:   &http.Client{Timeout: 10 * time.Second, Jar: jar},
		streamClient: &http.Client{Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type streamRequest struct {
	Question    string  `json:"question"`
	ChatID      string  `json:"chat_id"`
	Temperature float64 `json:"temperature"`
}

// StartStream opens the streaming answer request and returns the response
// body once headers are in. The caller owns the body and must close it; it
// carries `data: <token>` frames terminated by the [DONE] sentinel.
func (c *Client) StartStream(ctx context.Context, req domain.StreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(streamRequest{
		Question:    req.Question,
		ChatID:      req.ConversationID,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: marshal stream request: %w", err)
	}

	u := c.baseURL + "/api/chat/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	c.setCookie(httpReq)

	res, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: stream request failed: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	return res.Body, nil
}

type messageRecord struct {
	ID        string `json:"id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SaveMessage persists one finished message and returns the server-assigned
// id.
func (c *Client) SaveMessage(ctx context.Context, chatID, userEmail, role, content string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	u := fmt.Sprintf("%s/api/chats/%s/messages", c.baseURL, url.PathEscape(chatID))
	in := messageRecord{UserEmail: userEmail, Role: role, Content: content}
	if err := c.doJSON(ctx, http.MethodPost, u, in, &out); err != nil {
		return "", fmt.Errorf("backend: save message: %w", err)
	}
	return out.ID, nil
}

// UpdateChatTitle sets the conversation title on the backend.
func (c *Client) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	u := fmt.Sprintf("%s/api/chats/%s", c.baseURL, url.PathEscape(chatID))
	in := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPut, u, in, nil); err != nil {
		return fmt.Errorf("backend: update chat title: %w", err)
	}
	return nil
}

type conversationRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Messages  []messageRecord `json:"messages"`
	CreatedAt string          `json:"created_at"`
}

// ListChats returns the user's conversations with nested messages, most
// recent first, normalized to the canonical schema.
func (c *Client) ListChats(ctx context.Context, userEmail string) ([]domain.Conversation, error) {
	var records []conversationRecord
	u := fmt.Sprintf("%s/api/chats/%s", c.baseURL, url.PathEscape(userEmail))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &records); err != nil {
		return nil, fmt.Errorf("backend: list chats: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(records))
	for _, rec := range records {
		convs = append(convs, normalizeConversation(rec))
	}
	return convs, nil
}

// DeleteChat removes a conversation on the backend.
func (c *Client) DeleteChat(ctx context.Context, chatID, userEmail string) error {
	u := fmt.Sprintf("%s/api/chats/%s?user_email=%s", c.baseURL, url.PathEscape(chatID), url.QueryEscape(userEmail))
	if err := c.doJSON(ctx, http.MethodDelete, u, nil, nil); err != nil {
		return fmt.Errorf("backend: delete chat: %w", err)
	}
	return nil
}

type userRecord struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	UserRole string `json:"user_role"`
}

// Me resolves the current session identity. A 401 surfaces as an
// *HTTPStatusError, which callers treat as "not authenticated".
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var rec userRecord
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/api/me", nil, &rec); err != nil {
		return domain.User{}, fmt.Errorf("backend: identity check: %w", err)
	}
	role := rec.Role
	if role == "" {
		role = rec.UserRole
	}
	return domain.User{Email: rec.Email, Role: role}, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCookie(req)

	res, err := c.jsonClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
	}
	if out == nil {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setCookie(req *http.Request) {
	if c.cookieHeader != "" {
		req.Header.Set("Cookie", c.cookieHeader)
	}
}
