// Package router applies inbound push frames to the session state.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/codesync/core"
	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Discard reasons reported to metrics.
const (
	ReasonNotInRoom = "not_in_room"
	ReasonMalformed = "malformed"
	ReasonUnknown   = "unknown_type"
	ReasonIgnored   = "ignored"
)

// Deps wires a Router.
type Deps struct {
	Logger  pslog.Logger
	Metrics *metrics.Metrics
}

// Router dispatches frames by type. It runs on the session loop and is not
// safe for concurrent use.
type Router struct {
	state   *core.State
	log     pslog.Logger
	metrics *metrics.Metrics
}

// New constructs a Router bound to the session state.
func New(state *core.State, deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Router{state: state, log: logger, metrics: deps.Metrics}
}

// Route applies one raw frame. Malformed frames are logged and dropped
// without affecting later frames.
func (r *Router) Route(raw []byte) {
	if !r.state.InRoom() {
		r.discard(ReasonNotInRoom, "", nil)
		return
	}
	frame, err := schema.DecodeFrame(raw)
	if err != nil {
		r.discard(ReasonMalformed, "", err)
		return
	}
	if err := r.apply(frame); err != nil {
		r.discard(ReasonMalformed, frame.Type, err)
		return
	}
}

func (r *Router) apply(frame schema.Frame) error {
	switch frame.Type {
	case schema.FramePing:
		r.log.Trace("router ping")
	case schema.FrameUserJoined, schema.FrameUserLeft:
		var payload schema.RosterPayload
		if err := decode(frame, &payload); err != nil {
			return err
		}
		r.state.ReplaceRoster(payload.Users)
		verb := "joined"
		if frame.Type == schema.FrameUserLeft {
			verb = "left"
		}
		r.state.SetStatus(fmt.Sprintf("%s %s the room", schema.SenderLabel(payload.UserName, payload.UserID), verb))
	case schema.FrameCodeUpdated:
		var payload schema.CodeUpdatedPayload
		if err := decode(frame, &payload); err != nil {
			return err
		}
		r.state.ApplyRemoteCode(payload)
	case schema.FrameCursorUpdated:
		var payload schema.CursorUpdatedPayload
		if err := decode(frame, &payload); err != nil {
			return err
		}
		if payload.UserID == "" {
			return fmt.Errorf("%w: cursor without user_id", schema.ErrMalformedFrame)
		}
		r.state.SetCursor(payload.UserID, payload.UserName, payload.Position)
	case schema.FrameChatMessage:
		var msg schema.ChatMessage
		if err := decode(frame, &msg); err != nil {
			return err
		}
		r.state.AppendChat(msg)
		r.state.SetStatus(fmt.Sprintf("New message from %s", schema.SenderLabel(msg.UserName, msg.UserID)))
	case schema.FrameTypingStatus:
		r.discard(ReasonIgnored, frame.Type, nil)
		return nil
	default:
		r.discard(ReasonUnknown, frame.Type, nil)
		return nil
	}
	r.metrics.FrameRouted(frame.Type)
	return nil
}

func decode(frame schema.Frame, out any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: %s without data", schema.ErrMalformedFrame, frame.Type)
	}
	if err := json.Unmarshal(frame.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", schema.ErrMalformedFrame, frame.Type, err)
	}
	return nil
}

func (r *Router) discard(reason string, frameType schema.FrameType, err error) {
	r.metrics.FrameDiscarded(reason)
	switch reason {
	case ReasonMalformed:
		r.log.Warn("router frame discarded", "reason", reason, "type", frameType, "err", err)
	case ReasonUnknown:
		r.log.Info("router frame discarded", "reason", reason, "type", frameType)
	default:
		r.log.Debug("router frame discarded", "reason", reason, "type", frameType)
	}
}
