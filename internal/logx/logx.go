package logx

import (
	"context"

	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	participantKey contextKey = iota
	roomKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithParticipant annotates the logger with the participant id if present.
func WithParticipant(ctx context.Context, id schema.ParticipantID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id != "" {
		if current, ok := ctx.Value(participantKey).(schema.ParticipantID); ok && current == id {
			return log
		}
		log = log.With("participant", id)
	}
	return log
}

// WithParticipantRoom annotates the logger with participant and room identifiers.
func WithParticipantRoom(ctx context.Context, id schema.ParticipantID, roomID schema.RoomID) pslog.Logger {
	log := WithParticipant(ctx, id)
	if roomID != "" {
		if current, ok := ctx.Value(roomKey).(schema.RoomID); ok && current == roomID {
			return log
		}
		log = log.With("room", roomID)
	}
	return log
}

// WithFile annotates the logger with a file id when available.
func WithFile(log pslog.Logger, fileID schema.FileID) pslog.Logger {
	if fileID != "" {
		log = log.With("file", fileID)
	}
	return log
}

// WithFrame annotates the logger with frame metadata.
func WithFrame(log pslog.Logger, frameType schema.FrameType, size int) pslog.Logger {
	if frameType != "" {
		log = log.With("frame", frameType)
	}
	if size > 0 {
		log = log.With("bytes", size)
	}
	return log
}

// ContextWithParticipant stores the participant marker on the context for log de-duplication.
func ContextWithParticipant(ctx context.Context, id schema.ParticipantID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, participantKey, id)
}

// ContextWithRoom stores the room marker on the context for log de-duplication.
func ContextWithRoom(ctx context.Context, roomID schema.RoomID) context.Context {
	if ctx == nil || roomID == "" {
		return ctx
	}
	return context.WithValue(ctx, roomKey, roomID)
}

// ContextWithParticipantLogger attaches the logger and participant marker to the context.
func ContextWithParticipantLogger(ctx context.Context, log pslog.Logger, id schema.ParticipantID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithParticipant(ctx, id)
}

// ContextWithParticipantRoomLogger attaches the logger and participant/room markers to the context.
func ContextWithParticipantRoomLogger(ctx context.Context, log pslog.Logger, id schema.ParticipantID, roomID schema.RoomID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithRoom(ContextWithParticipant(ctx, id), roomID)
}

// CopyContextFields copies participant/room markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if id, ok := src.Value(participantKey).(schema.ParticipantID); ok && id != "" {
		dst = ContextWithParticipant(dst, id)
	}
	if roomID, ok := src.Value(roomKey).(schema.RoomID); ok && roomID != "" {
		dst = ContextWithRoom(dst, roomID)
	}
	return dst
}
