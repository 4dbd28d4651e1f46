// Package dispatch turns local edits, cursor moves and chat sends into room
// API calls. Code edits are coalesced behind a single pending task; every
// other send goes out immediately. Sends never block the session loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/codesync/core"
	"pkt.systems/codesync/internal/logx"
	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/internal/roomapi"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Status texts published on send failures.
const (
	StatusCodeSyncFailed   = "Failed to sync code changes"
	StatusCursorSyncFailed = "Failed to sync cursor position"
	StatusChatFailed       = "Failed to send message"
)

// Upstream is the subset of the room API the dispatcher calls.
type Upstream interface {
	UpdateCode(ctx context.Context, req schema.UpdateCodeRequest) error
	UpdateCursor(ctx context.Context, req schema.UpdateCursorRequest) error
	SendChat(ctx context.Context, req schema.SendChatRequest) (schema.SendChatResponse, error)
}

// Deps wires a Dispatcher.
type Deps struct {
	Upstream Upstream
	// Post schedules fn on the session loop. It must not block.
	Post     func(fn func())
	Debounce time.Duration
	Context  context.Context
	Logger   pslog.Logger
	Metrics  *metrics.Metrics
}

// Dispatcher runs on the session loop and is not safe for concurrent use.
type Dispatcher struct {
	state    *core.State
	upstream Upstream
	post     func(fn func())
	debounce time.Duration
	ctx      context.Context
	log      pslog.Logger
	metrics  *metrics.Metrics

	pending    *time.Timer
	generation uint64
}

// New constructs a Dispatcher bound to the session state.
func New(state *core.State, deps Deps) (*Dispatcher, error) {
	if deps.Upstream == nil {
		return nil, errors.New("dispatch upstream is required")
	}
	if deps.Post == nil {
		return nil, errors.New("dispatch post func is required")
	}
	debounce := deps.Debounce
	if debounce <= 0 {
		debounce = schema.DefaultCodeDebounce
	}
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	return &Dispatcher{
		state:    state,
		upstream: deps.Upstream,
		post:     deps.Post,
		debounce: debounce,
		ctx:      ctx,
		log:      logger,
		metrics:  deps.Metrics,
	}, nil
}

// OnLocalEdit records the edit and schedules a coalesced code update.
// A pending update is replaced so only the last content is sent.
func (d *Dispatcher) OnLocalEdit(content string) {
	d.state.EditActive(content)
	if !d.state.InRoom() {
		return
	}
	if d.cancelPending() {
		d.metrics.CodeCoalesced()
	}
	req, ok := d.codeRequest(content)
	if !ok {
		return
	}
	gen := d.generation
	d.pending = time.AfterFunc(d.debounce, func() {
		d.post(func() {
			if d.generation != gen {
				return
			}
			d.pending = nil
			d.sendCode(req)
		})
	})
}

// FlushNow cancels any pending update and sends content immediately.
func (d *Dispatcher) FlushNow(content string) {
	d.cancelPending()
	req, ok := d.codeRequest(content)
	if !ok {
		return
	}
	d.sendCode(req)
}

// Pending reports whether a code update is waiting for its quiet period.
func (d *Dispatcher) Pending() bool { return d.pending != nil }

// Cancel drops any pending code update.
func (d *Dispatcher) Cancel() {
	if d.cancelPending() {
		d.log.Debug("dispatch pending code update cancelled")
	}
}

// OnLocalCursorMove sends the cursor position without debounce.
func (d *Dispatcher) OnLocalCursorMove(pos schema.Position) {
	room, ok := d.state.Room()
	if !ok {
		return
	}
	req := schema.UpdateCursorRequest{
		RoomID:   room.ID,
		UserID:   d.state.Self(),
		UserName: d.state.SelfName(),
		Position: pos,
	}
	go func() {
		if err := d.upstream.UpdateCursor(d.ctx, req); err != nil {
			d.log.Warn("dispatch cursor send failed", "err", err)
			d.post(func() { d.state.SetStatus(StatusCursorSyncFailed) })
		}
	}()
}

// SendChat validates body and sends it. Validation failures and concurrent
// sends are rejected before any request is made. The in-flight flag is
// cleared on the session loop once the server answers.
func (d *Dispatcher) SendChat(body string) error {
	room, ok := d.state.Room()
	if !ok {
		return schema.ErrNotInRoom
	}
	if d.state.IsSendingMessage() {
		return schema.ErrChatInFlight
	}
	message, err := schema.NormalizeChatBody(body)
	if err != nil {
		return err
	}
	req := schema.SendChatRequest{
		RoomID:   room.ID,
		UserID:   d.state.Self(),
		UserName: d.state.SelfName(),
		Message:  message,
	}
	d.state.SetSending(true)
	go func() {
		resp, err := d.upstream.SendChat(d.ctx, req)
		d.post(func() {
			d.state.SetSending(false)
			if err != nil {
				d.log.Warn("dispatch chat send failed", "err", err)
				if msg := roomapi.ServerMessage(err); msg != "" {
					d.state.SetStatus(fmt.Sprintf("Chat error: %s", msg))
					return
				}
				d.state.SetStatus(StatusChatFailed)
				return
			}
			d.log.Debug("dispatch chat sent", "message_id", resp.MessageID)
		})
	}()
	return nil
}

func (d *Dispatcher) codeRequest(content string) (schema.UpdateCodeRequest, bool) {
	room, ok := d.state.Room()
	if !ok {
		return schema.UpdateCodeRequest{}, false
	}
	return schema.UpdateCodeRequest{
		RoomID:   room.ID,
		Code:     content,
		UserID:   d.state.Self(),
		UserName: d.state.SelfName(),
		FileID:   d.state.ActiveFile().ID,
	}, true
}

func (d *Dispatcher) sendCode(req schema.UpdateCodeRequest) {
	log := logx.WithFile(d.log, req.FileID)
	go func() {
		if err := d.upstream.UpdateCode(d.ctx, req); err != nil {
			log.Warn("dispatch code send failed", "err", err)
			d.post(func() { d.state.SetStatus(StatusCodeSyncFailed) })
			return
		}
		log.Trace("dispatch code sent", "bytes", len(req.Code))
	}()
}

// cancelPending bumps the generation so an already-fired timer is ignored.
func (d *Dispatcher) cancelPending() bool {
	d.generation++
	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	return true
}
