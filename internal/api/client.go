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
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// routes holds the role-specific path patterns. Upload, mark-read and
// typing share one namespace for both roles.
type routes struct {
	list   string
	detail string
	send   string
}

var (
	sellerRoutes = routes{list: "/tickets", detail: "/tickets/%s", send: "/tickets/%s/message"}
	adminRoutes  = routes{list: "/admin/tickets", detail: "/admin/tickets/%s", send: "/admin/tickets/%s/reply"}
)

// Client talks to the support backend over REST with bearer auth.
type Client struct {
	baseURL string
	token   string
	role    domain.Role
	routes  routes
	http    *http.Client
	logger  *zap.Logger
}

// NewSeller builds a client bound to the seller routes.
func NewSeller(cfg config.APIConfig, logger *zap.Logger) *Client {
	return newClient(cfg, domain.RoleSeller, sellerRoutes, logger)
}

// NewAdmin builds a client bound to the admin routes.
func NewAdmin(cfg config.APIConfig, logger *zap.Logger) *Client {
	return newClient(cfg, domain.RoleAdmin, adminRoutes, logger)
}

// New picks the route set from the configured role.
func New(cfg config.APIConfig, logger *zap.Logger) (*Client, error) {
	switch domain.Role(cfg.Role) {
	case domain.RoleSeller:
		return NewSeller(cfg, logger), nil
	case domain.RoleAdmin:
		return NewAdmin(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown role %q", cfg.Role)
}

func newClient(cfg config.APIConfig, role domain.Role, r routes, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		role:    role,
		routes:  r,
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// Role returns which side of the conversation this client acts as.
func (c *Client) Role() domain.Role {
	return c.role
}

// ListTickets fetches the ticket list, filtered for admins.
func (c *Client) ListTickets(ctx context.Context, filter ListFilter) ([]domain.Ticket, error) {
	q := url.Values{}
	if c.role == domain.RoleAdmin {
		if filter.Status != "" {
			q.Set("status", string(filter.Status))
		}
		if filter.Priority != "" {
			q.Set("priority", string(filter.Priority))
		}
		if filter.Category != "" {
			q.Set("category", filter.Category)
		}
		if filter.Search != "" {
			q.Set("q", filter.Search)
		}
	}
	var tickets []domain.Ticket
	if err := c.doJSON(ctx, http.MethodGet, c.routes.list, q, nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// FetchMessages fetches one page of a ticket's history. Offset 0 is the
// most recent page; increasing offsets walk back in time.
func (c *Client) FetchMessages(ctx context.Context, ticketID string, limit, offset int) (*MessagePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if c.role == domain.RoleAdmin {
		q.Set("include_internal", "true")
	}
	var page MessagePage
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf(c.routes.detail, ticketID), q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateTicket opens a new ticket with its first message.
func (c *Client) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	body := map[string]any{
		"subject":     input.Subject,
		"category":    input.Category,
		"priority":    input.Priority,
		"message":     input.Text,
		"attachments": attachmentsOrEmpty(input.Attachments),
	}
	var ticket domain.Ticket
	if err := c.doJSON(ctx, http.MethodPost, "/tickets", nil, body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// SendMessage posts a message to a ticket and returns the canonical
// message created by the backend.
func (c *Client) SendMessage(ctx context.Context, ticketID string, input SendInput) (*domain.Message, error) {
	body := map[string]any{
		"message":     input.Text,
		"attachments": attachmentsOrEmpty(input.Attachments),
	}
	if c.role == domain.RoleAdmin {
		body["is_internal"] = input.Internal
	}
	var msg domain.Message
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf(c.routes.send, ticketID), nil, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks the other party's messages on a ticket as read. A nil
// messageIDs slice marks everything unread.
func (c *Client) MarkRead(ctx context.Context, ticketID string, messageIDs []string) error {
	body := map[string]any{}
	if len(messageIDs) > 0 {
		body["message_ids"] = messageIDs
	}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/tickets/%s/mark-read", ticketID), nil, body, nil)
}

// EmitTyping publishes the local typing flag for the other party to poll.
func (c *Client) EmitTyping(ctx context.Context, ticketID string, isTyping bool) error {
	body := map[string]any{"is_typing": isTyping}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/tickets/%s/typing", ticketID), nil, body, nil)
}

// FetchTyping polls the other party's typing flag.
func (c *Client) FetchTyping(ctx context.Context, ticketID string) (*domain.TypingState, error) {
	var state domain.TypingState
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/tickets/%s/typing", ticketID), nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetStatus updates a ticket's status (admin only).
func (c *Client) SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	var ticket domain.Ticket
	body := map[string]any{"status": status}
	if err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/admin/tickets/%s/status", ticketID), nil, body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// SetPriority updates a ticket's priority (admin only).
func (c *Client) SetPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	var ticket domain.Ticket
	body := map[string]any{"priority": priority}
	if err := c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/admin/tickets/%s/priority", ticketID), nil, body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func attachmentsOrEmpty(atts []domain.Attachment) []domain.Attachment {
	if atts == nil {
		return []domain.Attachment{}
	}
	return atts
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	var envelope dataEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apperrors.NewAPIError(resp.StatusCode, "malformed response body", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return apperrors.NewAPIError(resp.StatusCode, "malformed response payload", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewRateLimited()
	}

	var envelope errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		return apperrors.NewDomainError(envelope.Error.Code, envelope.Error.Message, resp.StatusCode, nil)
	}
	return apperrors.NewAPIError(resp.StatusCode, fmt.Sprintf("unexpected status %s", resp.Status), nil)
}

// Login exchanges credentials for a bearer token. The session layer is
// the backend's concern; this is only a convenience for the console
// surfaces and tests.
func Login(ctx context.Context, baseURL, email, password string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", apperrors.NewUnauthorized("login failed")
	}
	var envelope struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	return envelope.Data.Token, nil
}
