package channel

import (
	"context"
	"errors"

	"pkt.systems/codesync/schema"
)

const (
	// DefaultIdleTimeout is twice the room server's 30s keep-alive period. A
	// stream that delivers nothing for this long is treated as failed.
	DefaultIdleTimeout = schema.DefaultIdleTimeout
	// MaxFrameSize caps one SSE line, one SSE event, or one WebSocket message.
	MaxFrameSize = 1 << 20
)

// ErrIdleTimeout reports a stream that went silent past its idle timeout.
var ErrIdleTimeout = errors.New("channel idle timeout")

// Stream is an open push channel delivering raw frames.
type Stream interface {
	// Next blocks until the next frame arrives or the stream fails.
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens push channel streams for a participant.
type Transport interface {
	Open(ctx context.Context, id schema.ParticipantID) (Stream, error)
}
