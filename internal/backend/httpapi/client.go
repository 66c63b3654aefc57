// Package httpapi is a backend.API client for the HTTP server.
package httpapi

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

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/pkg/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ backend.API = (*Client)(nil)

// New returns a client for the server at baseURL. A non-positive timeout
// uses the default.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// errorBody mirrors the server's error response.
type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &backend.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &backend.TransportError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &backend.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &backend.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 300 {
		return &backend.TransportError{Op: op, Err: statusError(resp.StatusCode, data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &backend.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusError(status int, data []byte) error {
	var eb errorBody
	fromServer := json.Unmarshal(data, &eb) == nil && eb.Error != ""
	if !fromServer {
		eb.Error = strings.TrimSpace(string(data))
	}
	switch {
	case status == http.StatusBadRequest:
		if eb.Field != "" {
			return &models.ValidationError{Field: eb.Field, Reason: eb.Reason}
		}
		return fmt.Errorf("status %d: %s", status, eb.Error)
	case status == http.StatusConflict:
		return backend.Conflict(errors.New(eb.Error))
	case status == http.StatusNotFound && fromServer:
		// A 404 without an error body is a wrong URL or route, not a
		// missing entity.
		return backend.Conflict(errors.New(eb.Error))
	default:
		return fmt.Errorf("status %d: %s", status, eb.Error)
	}
}

func esc(id string) string {
	return url.PathEscape(id)
}

func (c *Client) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	var members []*models.TeamMember
	if err := c.do(ctx, "list members", http.MethodGet, "/api/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := c.do(ctx, "list sessions", http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, "create session", http.MethodPost, "/api/sessions", map[string]string{"title": title}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, "get session", http.MethodGet, "/api/sessions/"+esc(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*models.Exchange, error) {
	var e models.Exchange
	path := "/api/sessions/" + esc(sessionID) + "/messages"
	if err := c.do(ctx, "send message", http.MethodPost, path, map[string]string{"text": text}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete session", http.MethodDelete, "/api/sessions/"+esc(id), nil, nil)
}

func (c *Client) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return c.do(ctx, "update session title", http.MethodPatch, "/api/sessions/"+esc(id), map[string]string{"title": title}, nil)
}

func (c *Client) CreateTask(ctx context.Context, goalID string, in models.TaskInput) (*models.Task, error) {
	var t models.Task
	if err := c.do(ctx, "create task", http.MethodPost, "/api/goals/"+esc(goalID)+"/tasks", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) (*models.Task, error) {
	var t models.Task
	if err := c.do(ctx, "update task", http.MethodPatch, "/api/tasks/"+esc(taskID), patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "/api/tasks/"+esc(taskID), nil, nil)
}

func (c *Client) AssignTask(ctx context.Context, taskID, memberID string) (*models.Task, error) {
	var t models.Task
	path := "/api/tasks/" + esc(taskID) + "/assignee"
	if err := c.do(ctx, "assign task", http.MethodPut, path, map[string]string{"member_id": memberID}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ApproveGoal(ctx context.Context, goalID string) (*models.Goal, error) {
	var g models.Goal
	if err := c.do(ctx, "approve goal", http.MethodPost, "/api/goals/"+esc(goalID)+"/approve", nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
