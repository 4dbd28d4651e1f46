package schema

import (
	"errors"
	"strings"
	"time"
)

// SessionConfig defines timings and endpoints for a collaboration session.
type SessionConfig struct {
	BaseURL        string
	APIPrefix      string
	Transport      string
	ReconnectDelay time.Duration
	IdleTimeout    time.Duration
	CodeDebounce   time.Duration
	RequestTimeout time.Duration
}

const (
	// DefaultReconnectDelay is the fixed wait before a reconnect attempt.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultIdleTimeout fails a push stream that stays silent for two
	// keep-alive periods.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultCodeDebounce is the quiet period before a code update is sent.
	DefaultCodeDebounce = 300 * time.Millisecond
	// DefaultRequestTimeout bounds each outbound request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultAPIPrefix is the path prefix of the room server API.
	DefaultAPIPrefix = "/api"
	// TransportSSE selects the server-sent events push channel.
	TransportSSE = "sse"
	// TransportWebSocket selects the WebSocket push channel.
	TransportWebSocket = "websocket"
)

// NormalizeSessionConfig applies defaults and validates the config.
func NormalizeSessionConfig(cfg SessionConfig) (SessionConfig, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return SessionConfig{}, errors.New("server base url is required")
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultAPIPrefix
	}
	if !strings.HasPrefix(cfg.APIPrefix, "/") {
		cfg.APIPrefix = "/" + cfg.APIPrefix
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportSSE:
		cfg.Transport = TransportSSE
	case TransportWebSocket, "ws":
		cfg.Transport = TransportWebSocket
	default:
		return SessionConfig{}, errors.New("transport must be sse or websocket")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	} else if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.CodeDebounce <= 0 {
		cfg.CodeDebounce = DefaultCodeDebounce
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return cfg, nil
}
