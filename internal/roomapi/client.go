// Package roomapi is the HTTP client for the room server request/response API.
package roomapi

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

	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/internal/version"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIPrefix  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     pslog.Logger
	Metrics    *metrics.Metrics
}

// Client issues one-shot requests to the room server.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	log     pslog.Logger
	metrics *metrics.Metrics
}

// RequestError reports a failed request. Message carries the server's error
// text when one was returned.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: http status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("room api base url must include scheme and host: %q", cfg.BaseURL)
	}
	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = schema.DefaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = schema.DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Client{
		base:    base + strings.TrimRight(prefix, "/"),
		http:    httpClient,
		timeout: timeout,
		log:     logger,
		metrics: cfg.Metrics,
	}, nil
}

// Endpoint returns the absolute URL for an API path.
func (c *Client) Endpoint(path string) string {
	return c.base + path
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, req schema.CreateRoomRequest) (schema.CreateRoomResponse, error) {
	var resp schema.CreateRoomResponse
	if err := c.do(ctx, "create room", http.MethodPost, "/rooms", req, &resp); err != nil {
		return schema.CreateRoomResponse{}, err
	}
	if resp.Error != "" {
		return schema.CreateRoomResponse{}, serverError("create room", resp.Error)
	}
	if resp.ID == "" {
		return schema.CreateRoomResponse{}, &RequestError{Op: "create room", Err: schema.ErrInvalidRequest, Message: "missing room id"}
	}
	return resp, nil
}

// JoinRoom joins a room and returns its snapshot.
func (c *Client) JoinRoom(ctx context.Context, req schema.JoinRoomRequest) (schema.JoinRoomResponse, error) {
	var resp schema.JoinRoomResponse
	if err := c.do(ctx, "join room", http.MethodPost, "/rooms/join", req, &resp); err != nil {
		return schema.JoinRoomResponse{}, err
	}
	if resp.Error != "" {
		return schema.JoinRoomResponse{}, serverError("join room", resp.Error)
	}
	if resp.RoomID == "" {
		resp.RoomID = req.RoomID
	}
	return resp, nil
}

// UpdateCode pushes new room content.
func (c *Client) UpdateCode(ctx context.Context, req schema.UpdateCodeRequest) error {
	return c.ack(ctx, "update code", http.MethodPost, "/rooms/code", req)
}

// UpdateCursor pushes a cursor position.
func (c *Client) UpdateCursor(ctx context.Context, req schema.UpdateCursorRequest) error {
	return c.ack(ctx, "update cursor", http.MethodPost, "/rooms/cursor", req)
}

// SendChat posts a chat message.
func (c *Client) SendChat(ctx context.Context, req schema.SendChatRequest) (schema.SendChatResponse, error) {
	var resp schema.SendChatResponse
	if err := c.do(ctx, "send chat", http.MethodPost, "/send-chat-message", req, &resp); err != nil {
		return schema.SendChatResponse{}, err
	}
	if resp.Error != "" {
		return schema.SendChatResponse{}, serverError("send chat", resp.Error)
	}
	return resp, nil
}

// SaveRoom asks the server to persist the room content.
func (c *Client) SaveRoom(ctx context.Context, roomID schema.RoomID) error {
	return c.ack(ctx, "save room", http.MethodPost, "/rooms/"+url.PathEscape(string(roomID))+"/save", nil)
}

// DeleteRoom deletes a room.
func (c *Client) DeleteRoom(ctx context.Context, roomID schema.RoomID) error {
	return c.ack(ctx, "delete room", http.MethodDelete, "/rooms/"+url.PathEscape(string(roomID)), nil)
}

// LeaveRoom announces a graceful departure.
func (c *Client) LeaveRoom(ctx context.Context, req schema.LeaveRoomRequest) error {
	return c.ack(ctx, "leave room", http.MethodPost, "/leave-room", req)
}

func (c *Client) ack(ctx context.Context, op, method, path string, body any) error {
	var resp schema.Ack
	if err := c.do(ctx, op, method, path, body, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return serverError(op, resp.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) (err error) {
	started := time.Now()
	log := c.log.With("op", op)
	defer func() {
		c.metrics.Upstream(op, err, time.Since(started))
		if err != nil {
			log.Warn("roomapi request failed", "err", err, "elapsed", time.Since(started))
			return
		}
		log.Trace("roomapi request ok", "elapsed", time.Since(started))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusError(op string, status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	_ = json.Unmarshal(body, &payload)
	message := payload.Error
	if message == "" {
		message = payload.Message
	}
	if message == "" {
		message = payload.Detail
	}
	reqErr := &RequestError{Op: op, Status: status, Message: message}
	if status == http.StatusNotFound || message == schema.ErrRoomNotFound.Error() {
		reqErr.Err = schema.ErrRoomNotFound
	}
	return reqErr
}

func serverError(op, message string) error {
	reqErr := &RequestError{Op: op, Status: http.StatusOK, Message: message}
	switch message {
	case schema.ErrRoomNotFound.Error():
		reqErr.Err = schema.ErrRoomNotFound
	case schema.ErrEmptyMessage.Error():
		reqErr.Err = schema.ErrEmptyMessage
	case schema.ErrMessageTooLong.Error():
		reqErr.Err = schema.ErrMessageTooLong
	}
	return reqErr
}

// ServerMessage returns the server-provided error text, if any.
func ServerMessage(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return ""
}
