// Package apiclient talks to the HTTP API of the build service: session
// creation, session fetch and token issuance.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xiaoyuanzhu-com/buildchat/auth"
	"github.com/xiaoyuanzhu-com/buildchat/session"
)

var (
	// ErrPaymentRequired is returned when the account has no credits left
	ErrPaymentRequired = errors.New("payment required: not enough credits")

	// ErrNotFound is returned for unknown sessions
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the token is missing or rejected
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is an unexpected HTTP status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Chat is a session as the API returns it
type Chat struct {
	ID            session.MessageID `json:"id"`
	Name          string            `json:"name"`
	Messages      []session.Message `json:"messages"`
	FilePaths     []string          `json:"file_paths,omitempty"`
	SandboxStatus string            `json:"sandbox_status,omitempty"`
}

// CreateChatRequest is the body of POST /api/chats
type CreateChatRequest struct {
	Name       string   `json:"name"`
	SeedPrompt string   `json:"seed_prompt"`
	Images     []string `json:"images,omitempty"`
}

// TokenRequest is the body of POST /api/auth/token
type TokenRequest struct {
	Username string `json:"username"`
}

// TokenResponse is the result of POST /api/auth/token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is the build service API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTokens authenticates requests with a bearer token
func WithTokens(p auth.TokenProvider) ClientOption {
	return func(client *Client) {
		client.tokens = p
	}
}

// New creates a client for the API at baseURL
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession creates a session seeded with the first message and returns its id
func (c *Client) CreateSession(ctx context.Context, first session.OutboundMessage) (string, error) {
	var chat Chat
	req := CreateChatRequest{
		Name:       chatName(first.Content),
		SeedPrompt: first.Content,
		Images:     first.Images,
	}
	if err := c.do(ctx, http.MethodPost, "/api/chats", req, &chat); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if chat.ID == "" {
		return "", errors.New("create session: response without id")
	}
	return string(chat.ID), nil
}

// GetChat fetches a session with its transcript
func (c *Client) GetChat(ctx context.Context, id string) (*Chat, error) {
	var chat Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &chat, nil
}

// GetSession fetches a session as a seed for the local state
func (c *Client) GetSession(ctx context.Context, id string) (*session.Seed, error) {
	chat, err := c.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	seed := &session.Seed{
		Title:      chat.Name,
		Transcript: chat.Messages,
		FilePaths:  chat.FilePaths,
	}
	if chat.SandboxStatus != "" {
		if st, err := session.ParseStatus(chat.SandboxStatus); err == nil {
			seed.Status = st
		}
	}
	return seed, nil
}

// IssueToken asks the service for a session token for username
func (c *Client) IssueToken(ctx context.Context, username string) (*TokenResponse, error) {
	var tok TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/token", TokenRequest{Username: username}, &tok); err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &tok, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		switch {
		case errors.Is(err, auth.ErrNoToken):
		case err != nil:
			return fmt.Errorf("token: %w", err)
		default:
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusPaymentRequired:
			return ErrPaymentRequired
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(bodyBytes)))
		}
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// chatName is a provisional title; the service may rename the chat
func chatName(content string) string {
	name := strings.Join(strings.Fields(content), " ")
	const maxLen = 60
	if utf8.RuneCountInString(name) <= maxLen {
		return name
	}
	r := []rune(name)
	return string(r[:maxLen-3]) + "..."
}
