package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/user"
	"github.com/kgellert/hodatay-client/internal/lib/api/response"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to the backend's REST surface. It is read-only from the sync
// core's point of view: conversations, conversation detail, user profiles.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type getConversationsResponse struct {
	response.Response
	Conversations []conversation.Conversation `json:"conversations"`
}

type getConversationResponse struct {
	response.Response
	Conversation *conversation.Conversation `json:"conversation"`
}

type getUserResponse struct {
	response.Response
	User user.Profile `json:"user"`
}

func (c *Client) GetConversations(ctx context.Context) ([]conversation.Conversation, error) {
	const op = "api.GetConversations"

	var res getConversationsResponse
	if err := c.get(ctx, "/conversations", &res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return res.Conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	const op = "api.GetConversation"

	var res getConversationResponse
	if err := c.get(ctx, "/conversations/"+url.PathEscape(conversationID), &res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Conversation == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return res.Conversation, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (user.Profile, error) {
	const op = "api.GetUser"

	var res getUserResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(userID), &res); err != nil {
		return user.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return res.User, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
