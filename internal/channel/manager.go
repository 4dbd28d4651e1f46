// Package channel owns the push channel between a participant and the room
// server: connecting, detecting failure, and reconnecting after a fixed delay.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

const (
	// StatusConnected is published when a channel opens.
	StatusConnected = "Connected to real-time server"
	// StatusReconnecting is published when a channel fails.
	StatusReconnecting = "Connection error - attempting to reconnect..."
)

// Sink receives frames and state transitions. Implementations must not block;
// calls arrive from reader and timer goroutines.
type Sink interface {
	OnFrame(raw []byte)
	OnState(state schema.ChannelState, status string)
}

// Config configures a Manager.
type Config struct {
	Transport      Transport
	Sink           Sink
	ReconnectDelay time.Duration
	Logger         pslog.Logger
	Metrics        *metrics.Metrics
}

// Manager maintains at most one live channel handle per participant.
type Manager struct {
	transport Transport
	sink      Sink
	policy    backoff.BackOff
	log       pslog.Logger
	metrics   *metrics.Metrics

	mu          sync.Mutex
	state       schema.ChannelState
	participant schema.ParticipantID
	base        context.Context
	current     *Handle
	timer       *time.Timer
	wanted      bool
	nextID      uint64
}

// Handle is one connection attempt and, once open, its stream.
type Handle struct {
	id          uint64
	participant schema.ParticipantID
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// ID returns the handle sequence number.
func (h *Handle) ID() uint64 { return h.id }

// Done is closed once the handle's stream is confirmed closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// NewManager constructs a Manager in the Idle state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Transport == nil {
		return nil, errors.New("channel transport is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("channel sink is required")
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = schema.DefaultReconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		transport: cfg.Transport,
		sink:      cfg.Sink,
		policy:    backoff.NewConstantBackOff(delay),
		log:       logger,
		metrics:   cfg.Metrics,
		state:     schema.ChannelIdle,
	}, nil
}

// State returns the current channel state.
func (m *Manager) State() schema.ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the live handle, if any.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Connect opens a channel for the participant. Any prior handle is closed and
// confirmed closed before the new attempt starts. The handshake runs in the
// background; the returned handle tracks it.
func (m *Manager) Connect(ctx context.Context, id schema.ParticipantID) (*Handle, error) {
	if id == "" {
		return nil, schema.ErrInvalidRequest
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.stopTimerLocked()
	m.participant = id
	m.base = ctx
	m.wanted = true
	m.policy.Reset()
	m.mu.Unlock()

	if prev != nil {
		m.closeHandle(prev)
	}
	return m.toConnecting(), nil
}

// Close closes a handle. Closing the live handle tears the channel down.
func (m *Manager) Close(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	live := m.current == h
	m.mu.Unlock()
	if live {
		m.Teardown()
		return
	}
	m.closeHandle(h)
}

// Teardown closes the live handle, cancels any pending reconnect, and moves
// to Closed. Nothing is rescheduled afterwards.
func (m *Manager) Teardown() {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.wanted = false
	m.stopTimerLocked()
	m.mu.Unlock()

	if prev != nil {
		m.closeHandle(prev)
	}
	m.toClosed()
}

// Idle|Closed -> Connecting.
func (m *Manager) toConnecting() *Handle {
	m.mu.Lock()
	h := m.newHandleLocked()
	m.state = schema.ChannelConnecting
	m.emit(schema.ChannelConnecting, "")
	m.mu.Unlock()

	m.log.Info("channel connecting", "participant", h.participant, "handle", h.id)
	go m.run(h)
	return h
}

// Connecting|Reconnecting -> Open.
func (m *Manager) toOpen(h *Handle) bool {
	m.mu.Lock()
	if m.current != h {
		m.mu.Unlock()
		return false
	}
	m.state = schema.ChannelOpen
	m.policy.Reset()
	m.emit(schema.ChannelOpen, StatusConnected)
	m.mu.Unlock()

	m.log.Info("channel open", "participant", h.participant, "handle", h.id)
	return true
}

// Connecting|Open|Reconnecting -> Erroring. Schedules the reconnect timer.
func (m *Manager) toErroring(h *Handle, cause error) {
	m.mu.Lock()
	if m.current != h || !m.wanted {
		m.mu.Unlock()
		m.log.Debug("channel handle closed", "participant", h.participant, "handle", h.id)
		return
	}
	m.state = schema.ChannelErroring
	delay := m.policy.NextBackOff()
	if delay != backoff.Stop {
		m.timer = time.AfterFunc(delay, func() { m.toReconnecting(h) })
	}
	m.emit(schema.ChannelErroring, StatusReconnecting)
	m.mu.Unlock()

	m.log.Warn("channel error", "participant", h.participant, "handle", h.id, "err", cause, "retry_in", delay)
}

// Erroring -> Reconnecting. Only fires when the session still wants the
// channel and the failed handle is confirmed closed.
func (m *Manager) toReconnecting(prev *Handle) {
	m.mu.Lock()
	if !m.wanted || m.current != prev || m.state != schema.ChannelErroring || !prev.closed() {
		m.mu.Unlock()
		m.log.Debug("channel reconnect skipped", "participant", prev.participant, "handle", prev.id)
		return
	}
	m.timer = nil
	h := m.newHandleLocked()
	m.state = schema.ChannelReconnecting
	m.emit(schema.ChannelReconnecting, "")
	m.mu.Unlock()

	m.metrics.Reconnect()
	m.log.Info("channel reconnecting", "participant", h.participant, "handle", h.id)
	go m.run(h)
}

// Any -> Closed.
func (m *Manager) toClosed() {
	m.mu.Lock()
	if m.state == schema.ChannelClosed || m.state == schema.ChannelIdle {
		m.state = schema.ChannelClosed
		m.mu.Unlock()
		return
	}
	m.state = schema.ChannelClosed
	participant := m.participant
	m.emit(schema.ChannelClosed, "")
	m.mu.Unlock()

	m.log.Info("channel closed", "participant", participant)
}

func (m *Manager) newHandleLocked() *Handle {
	m.nextID++
	ctx, cancel := context.WithCancel(m.base)
	h := &Handle{
		id:          m.nextID,
		participant: m.participant,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.current = h
	return h
}

func (m *Manager) run(h *Handle) {
	err := m.pump(h)
	h.cancel()
	close(h.done)
	m.toErroring(h, err)
}

func (m *Manager) pump(h *Handle) error {
	stream, err := m.transport.Open(h.ctx, h.participant)
	if err != nil {
		return err
	}
	defer stream.Close()
	stop := context.AfterFunc(h.ctx, func() { _ = stream.Close() })
	defer stop()

	if !m.toOpen(h) {
		return context.Canceled
	}
	for {
		raw, err := stream.Next(h.ctx)
		if err != nil {
			if h.ctx.Err() != nil {
				return h.ctx.Err()
			}
			return err
		}
		m.sink.OnFrame(raw)
	}
}

func (m *Manager) closeHandle(h *Handle) {
	h.cancel()
	<-h.done
	m.log.Debug("channel handle released", "participant", h.participant, "handle", h.id)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// emit runs under m.mu so the sink observes transitions in order.
func (m *Manager) emit(state schema.ChannelState, status string) {
	m.metrics.ChannelState(state)
	m.sink.OnState(state, status)
}
