// Package api is the REST client for the messaging collaborator endpoints:
// conversation list, paginated history, sends and read receipts.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wanderdesk/wanderdesk/internal/inbox"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultHistoryLimit = 50
)

// messageRecord is the wire shape of a server-side message. Direction and
// delivery state are client-side concerns resolved at ingestion, so they are
// absent here.
type messageRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	Time           time.Time `json:"timestamp"`
}

func (r messageRecord) toMessage() inbox.Message {
	return inbox.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Sender:         r.Sender,
		Body:           r.Body,
		Time:           r.Time,
	}
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client talks to the agency messaging REST endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Token),
		http:    httpClient,
	}, nil
}

// ListConversations fetches the full conversation set for an agency.
func (c *Client) ListConversations(ctx context.Context, agencyID string) ([]inbox.Conversation, error) {
	path := fmt.Sprintf("/agencies/%s/conversations", url.PathEscape(agencyID))
	var convs []inbox.Conversation
	if err := c.getJSON(ctx, path, &convs); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// GetMessages fetches one page of prior messages for a conversation.
// Returned messages carry no direction or delivery state; classification
// happens once at ingestion in the session.
func (c *Client) GetMessages(ctx context.Context, agencyID, conversationID string, limit int) ([]inbox.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	path := fmt.Sprintf("/agencies/%s/conversations/%s/messages?limit=%s",
		url.PathEscape(agencyID), url.PathEscape(conversationID), strconv.Itoa(limit))
	var records []messageRecord
	if err := c.getJSON(ctx, path, &records); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	messages := make([]inbox.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, record.toMessage())
	}
	return messages, nil
}

// SendMessage posts a new message and returns the authoritative record.
func (c *Client) SendMessage(ctx context.Context, agencyID, conversationID, body string) (inbox.Message, error) {
	path := fmt.Sprintf("/agencies/%s/conversations/%s/messages",
		url.PathEscape(agencyID), url.PathEscape(conversationID))
	payload := map[string]string{"body": body}
	var record messageRecord
	if err := c.postJSON(ctx, path, payload, &record); err != nil {
		return inbox.Message{}, fmt.Errorf("send message: %w", err)
	}
	return record.toMessage(), nil
}

// MarkConversationRead reports the conversation as read. The endpoint is
// idempotent and callers treat it as best-effort.
func (c *Client) MarkConversationRead(ctx context.Context, agencyID, conversationID string) error {
	path := fmt.Sprintf("/agencies/%s/conversations/%s/read",
		url.PathEscape(agencyID), url.PathEscape(conversationID))
	if err := c.postJSON(ctx, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
