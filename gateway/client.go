// Package gateway is the HTTP client for the board API. Every call returns
// either the authoritative record or a *Error describing why it failed.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
	"kanban-sync/internal/consts"
)

const (
	DefaultTimeout = 15 * time.Second

	maxResponseSize = 4 << 20

	opLogin  = "login"
	opSignup = "signup"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Credentials are returned by Login and Signup.
type Credentials struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Client talks to the board API rooted at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *log.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each request unless the caller's context ends sooner.
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for baseURL, e.g. http://localhost:5000/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer credential attached to requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges email and password for a bearer credential and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	body := map[string]string{"email": email, "password": password}
	var creds Credentials
	if err := c.do(ctx, opLogin, http.MethodPost, "/auth/login", "/auth/login", body, &creds); err != nil {
		return Credentials{}, err
	}
	c.SetToken(creds.Token)
	return creds, nil
}

// Signup creates an account and stores the returned credential.
func (c *Client) Signup(ctx context.Context, name, email, password string) (Credentials, error) {
	if _, err := domain.ValidateName(name); err != nil {
		return Credentials{}, ValidationError(opSignup, err)
	}
	body := map[string]string{"name": name, "email": email, "password": password}
	var creds Credentials
	if err := c.do(ctx, opSignup, http.MethodPost, "/auth/signup", "/auth/signup", body, &creds); err != nil {
		return Credentials{}, err
	}
	c.SetToken(creds.Token)
	return creds, nil
}

func (c *Client) ListBoards(ctx context.Context) ([]domain.Board, error) {
	var boards []domain.Board
	if err := c.do(ctx, "list boards", http.MethodGet, "/boards", "/boards", nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

func (c *Client) CreateBoard(ctx context.Context, name, description string) (domain.Board, error) {
	name, err := domain.ValidateName(name)
	if err != nil {
		return domain.Board{}, ValidationError("create board", err)
	}
	body := map[string]string{"name": name, "description": description}
	var b domain.Board
	if err := c.do(ctx, "create board", http.MethodPost, "/boards", "/boards", body, &b); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

// GetBoard returns the full board with nested lists and tasks.
func (c *Client) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	var b domain.Board
	if err := c.do(ctx, "get board", http.MethodGet, "/boards/"+url.PathEscape(id), "/boards/{id}", nil, &b); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (c *Client) CreateList(ctx context.Context, name, boardID string) (domain.List, error) {
	name, err := domain.ValidateName(name)
	if err != nil {
		return domain.List{}, ValidationError("create list", err)
	}
	body := map[string]string{"name": name, "boardId": boardID}
	var l domain.List
	if err := c.do(ctx, "create list", http.MethodPost, "/lists", "/lists", body, &l); err != nil {
		return domain.List{}, err
	}
	return l, nil
}

func (c *Client) CreateTask(ctx context.Context, title, listID, status string) (domain.Task, error) {
	title, err := domain.ValidateTitle(title)
	if err != nil {
		return domain.Task{}, ValidationError("create task", err)
	}
	body := map[string]string{"title": title, "listId": listID, "status": status}
	var t domain.Task
	if err := c.do(ctx, "create task", http.MethodPost, "/tasks", "/tasks", body, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask sends the present fields of p and returns the updated record.
func (c *Client) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	if p.Title != nil {
		title, err := domain.ValidateTitle(*p.Title)
		if err != nil {
			return domain.Task{}, ValidationError("update task", err)
		}
		p.Title = &title
	}
	var t domain.Task
	if err := c.do(ctx, "update task", http.MethodPut, "/tasks/"+url.PathEscape(id), "/tasks/{id}", p, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// MoveTask persists a move by updating the task's listId.
func (c *Client) MoveTask(ctx context.Context, id, targetListID string) (domain.Task, error) {
	body := domain.TaskPatch{ListID: domain.String(targetListID)}
	var t domain.Task
	if err := c.do(ctx, "move task", http.MethodPut, "/tasks/"+url.PathEscape(id), "/tasks/{id}", body, &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, "delete task", http.MethodDelete, "/tasks/"+url.PathEscape(id), "/tasks/{id}", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path, route string, body, out any) (err error) {
	if c.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	metrics, ctx := newRequestMetrics(ctx, c.logger, method, route)
	status := 0
	defer func() {
		metrics.Log(status, err)
	}()

	var reader io.Reader
	if body != nil {
		payload, mErr := sonic.Marshal(body)
		if mErr != nil {
			return &Error{Kind: KindUnexpected, Op: op, Err: mErr}
		}
		reader = bytes.NewReader(payload)
	}
	req, rErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if rErr != nil {
		return &Error{Kind: KindUnexpected, Op: op, Err: rErr}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set(consts.HeaderIdempotencyKey, uuid.NewString())
		metrics.SetIdempotencyKey(true)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, dErr := c.http.Do(req)
	if dErr != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: dErr}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if readErr != nil {
		return &Error{Kind: KindNetwork, Status: status, Op: op, Err: readErr}
	}

	var env envelope
	decodeErr := errors.New("empty response")
	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = sonic.Unmarshal(raw, &env)
	}

	if status < 200 || status > 299 {
		e := &Error{Kind: kindForStatus(status), Status: status, Op: op}
		if decodeErr == nil {
			e.Message = env.Message
		}
		return e
	}
	if decodeErr != nil {
		if out == nil {
			return nil
		}
		return &Error{Kind: KindUnexpected, Status: status, Op: op, Err: decodeErr}
	}
	if !env.Success {
		return &Error{Kind: KindUnexpected, Status: status, Op: op, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if uErr := sonic.Unmarshal(env.Data, out); uErr != nil {
		return &Error{Kind: KindUnexpected, Status: status, Op: op, Err: uErr}
	}
	return nil
}
