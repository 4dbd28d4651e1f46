// Package codesync is the client side of a collaborative code room: it keeps
// the local session state in step with the room server through a push
// channel for inbound events and a request API for outbound mutations.
package codesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/codesync/core"
	"pkt.systems/codesync/internal/channel"
	"pkt.systems/codesync/internal/dispatch"
	"pkt.systems/codesync/internal/eventbus"
	"pkt.systems/codesync/internal/logx"
	"pkt.systems/codesync/internal/metrics"
	"pkt.systems/codesync/internal/persist"
	"pkt.systems/codesync/internal/roomapi"
	"pkt.systems/codesync/internal/router"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Status texts set by the client itself.
const (
	StatusJoining         = "Joining room..."
	StatusRoomNameMissing = "Please enter a room name"
	StatusRoomIDMissing   = "Please enter a room ID"
	StatusCreateFailed    = "Failed to create room"
	StatusJoinOffline     = "Failed to join room - please check your connection"
	StatusSaved           = "File saved successfully"
	StatusSaveFailed      = "Failed to save file"
	StatusDeleted         = "Room deleted successfully. Ready to create or join a new room."
	StatusDeleteFailed    = "Failed to delete room"
)

var (
	// ErrNotStarted is returned when the client loop is not running.
	ErrNotStarted = errors.New("client not started")
	// ErrStopped is returned when the client loop exits while a call waits.
	ErrStopped = schema.ErrSessionClosed
)

// Config configures a Client.
type Config struct {
	Session schema.SessionConfig
	// ParticipantID overrides the persisted or generated participant id.
	ParticipantID schema.ParticipantID
	// DisplayName overrides the persisted display name.
	DisplayName schema.DisplayName
	// Theme overrides the persisted theme.
	Theme schema.ThemeName
}

// Deps captures optional collaborators.
type Deps struct {
	Logger     pslog.Logger
	Metrics    *metrics.Metrics
	Prefs      persist.Store
	EventSink  core.EventSink
	HTTPClient *http.Client
	// Transport overrides the push transport selected by Session.Transport.
	Transport channel.Transport
}

// Client owns one collaboration session. Every state transition runs on a
// single loop goroutine; blocking requests run on the caller's goroutine and
// post their effects to the loop.
type Client struct {
	cfg      schema.SessionConfig
	self     schema.ParticipantID
	log      pslog.Logger
	metrics  *metrics.Metrics
	prefs    persist.Store
	api      *roomapi.Client
	bus      *eventbus.Bus
	state    *core.State
	router   *router.Router
	dispatch *dispatch.Dispatcher
	channel  *channel.Manager

	life       context.Context
	cancelLife context.CancelFunc

	// flowMu serializes create, join, leave and delete.
	flowMu sync.Mutex

	inboxMu  sync.Mutex
	inbox    []func()
	running  bool
	wake     chan struct{}
	loopDone chan struct{}

	mu         sync.Mutex
	started    bool
	cancelLoop context.CancelFunc
}

// New constructs a Client. Identity comes from cfg, then the prefs store,
// and a fresh participant id is generated and persisted when neither has one.
func New(cfg Config, deps Deps) (*Client, error) {
	session, err := schema.NormalizeSessionConfig(cfg.Session)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	var stored persist.Prefs
	if deps.Prefs != nil {
		prefs, _, err := deps.Prefs.Load()
		if err != nil {
			return nil, fmt.Errorf("load prefs: %w", err)
		}
		stored = prefs
	}
	self := cfg.ParticipantID
	if self == "" {
		self = stored.ParticipantID
	}
	generated := false
	if self == "" {
		self = NewParticipantID()
		generated = true
	}
	name := cfg.DisplayName
	if name == "" {
		name = stored.DisplayName
	}
	theme, ok := schema.NormalizeThemeName(string(cfg.Theme))
	if cfg.Theme == "" || !ok {
		theme, _ = schema.NormalizeThemeName(string(stored.Theme))
	}

	logger = logger.With("participant", self)
	api, err := roomapi.New(roomapi.Config{
		BaseURL:    session.BaseURL,
		APIPrefix:  session.APIPrefix,
		Timeout:    session.RequestTimeout,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
		Metrics:    deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	transport := deps.Transport
	if transport == nil {
		transport, err = newTransport(session, api.Endpoint(""), deps.HTTPClient)
		if err != nil {
			return nil, err
		}
	}

	life, cancelLife := context.WithCancel(context.Background())
	c := &Client{
		cfg:        session,
		self:       self,
		log:        logger,
		metrics:    deps.Metrics,
		prefs:      deps.Prefs,
		api:        api,
		bus:        eventbus.New(logger),
		life:       logx.ContextWithParticipantLogger(life, logger, self),
		cancelLife: cancelLife,
		wake:       make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
	}
	c.state = core.NewState(self, name, core.StateDeps{
		Sink:   newEventFanout(c.bus, deps.EventSink),
		Logger: logger,
	})
	c.state.SetTheme(theme)
	c.router = router.New(c.state, router.Deps{Logger: logger, Metrics: deps.Metrics})
	c.dispatch, err = dispatch.New(c.state, dispatch.Deps{
		Upstream: api,
		Post:     func(fn func()) { c.post(fn) },
		Debounce: session.CodeDebounce,
		Context:  c.life,
		Logger:   logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		cancelLife()
		return nil, err
	}
	c.channel, err = channel.NewManager(channel.Config{
		Transport:      transport,
		Sink:           channelSink{c: c},
		ReconnectDelay: session.ReconnectDelay,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	if err != nil {
		cancelLife()
		return nil, err
	}
	if generated {
		if err := c.savePrefs(name, theme); err != nil {
			logger.Warn("client prefs save failed", "err", err)
		}
	}
	logger.Info("client created", "transport", session.Transport, "base_url", session.BaseURL, "generated_id", generated)
	return c, nil
}

// NewParticipantID returns a fresh participant id.
func NewParticipantID() schema.ParticipantID {
	return schema.ParticipantID("user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func newTransport(session schema.SessionConfig, api string, client *http.Client) (channel.Transport, error) {
	switch session.Transport {
	case schema.TransportWebSocket:
		t, err := channel.NewWebSocketTransport(api, nil)
		if err != nil {
			return nil, err
		}
		t.IdleTimeout = session.IdleTimeout
		return t, nil
	default:
		t := channel.NewSSETransport(api, client)
		t.IdleTimeout = session.IdleTimeout
		return t, nil
	}
}

// Start runs the session loop until Stop or ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.log.Warn("client start rejected", "reason", "already started")
		return errors.New("client already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancelLoop = cancel
	c.started = true
	c.mu.Unlock()

	c.inboxMu.Lock()
	c.running = true
	c.inboxMu.Unlock()
	go c.loop(loopCtx)
	c.log.Info("client start")
	return nil
}

// Stop tears the channel down, drops pending sends and ends the loop. It does
// not announce a departure; call LeaveRoom first for that.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	cancel := c.cancelLoop
	c.mu.Unlock()
	if !started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.log.Info("client stop requested")
	c.channel.Teardown()
	_ = c.do(ctx, func() { c.dispatch.Cancel() })
	c.cancelLife()
	cancel()
	select {
	case <-c.loopDone:
		c.log.Info("client stopped")
		return nil
	case <-ctx.Done():
		c.log.Warn("client stop timed out", "err", ctx.Err())
		return ctx.Err()
	}
}

// Self returns the local participant id.
func (c *Client) Self() schema.ParticipantID { return c.self }

// Subscribe returns UI events for the local participant.
func (c *Client) Subscribe() (<-chan eventbus.Event, func()) {
	return c.bus.Subscribe(c.self)
}

// ChannelState returns the push channel state.
func (c *Client) ChannelState() schema.ChannelState {
	return c.channel.State()
}

// Snapshot returns a copy of the session state.
func (c *Client) Snapshot() (schema.SessionSnapshot, error) {
	var snap schema.SessionSnapshot
	err := c.do(context.Background(), func() { snap = c.state.Snapshot() })
	return snap, err
}

// Presence returns roster entries with their cursors, plus stale cursors.
func (c *Client) Presence() ([]schema.PresenceEntry, error) {
	var out []schema.PresenceEntry
	err := c.do(context.Background(), func() { out = c.state.Presence() })
	return out, err
}

// CreateRoom creates a room and joins it.
func (c *Client) CreateRoom(ctx context.Context, name string, language string) (schema.JoinRoomResponse, error) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	if err := c.requireDisplayName(ctx); err != nil {
		return schema.JoinRoomResponse{}, err
	}
	roomName, err := schema.NormalizeRoomName(name)
	if err != nil {
		c.setStatus(StatusRoomNameMissing)
		return schema.JoinRoomResponse{}, err
	}
	lang := schema.DefaultLanguage
	if strings.TrimSpace(language) != "" {
		if lang, err = schema.NormalizeLanguage(language); err != nil {
			return schema.JoinRoomResponse{}, err
		}
	}
	created, err := c.api.CreateRoom(ctx, schema.CreateRoomRequest{Name: roomName, Language: lang})
	if err != nil {
		c.setStatus(StatusCreateFailed)
		return schema.JoinRoomResponse{}, err
	}
	c.log.Info("client room created", "room", created.ID, "name", created.Name, "language", created.Language)
	return c.join(ctx, created.ID)
}

// JoinRoom joins an existing room and opens the push channel.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (schema.JoinRoomResponse, error) {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	if err := c.requireDisplayName(ctx); err != nil {
		return schema.JoinRoomResponse{}, err
	}
	id, err := schema.NormalizeRoomID(roomID)
	if err != nil {
		c.setStatus(StatusRoomIDMissing)
		return schema.JoinRoomResponse{}, err
	}
	return c.join(ctx, id)
}

func (c *Client) join(ctx context.Context, id schema.RoomID) (schema.JoinRoomResponse, error) {
	var inRoom bool
	var name schema.DisplayName
	if err := c.do(ctx, func() {
		inRoom = c.state.InRoom()
		name = c.state.SelfName()
		if !inRoom {
			c.state.SetStatus(StatusJoining)
		}
	}); err != nil {
		return schema.JoinRoomResponse{}, err
	}
	if inRoom {
		return schema.JoinRoomResponse{}, schema.ErrAlreadyInRoom
	}
	log := logx.WithParticipantRoom(logx.ContextWithParticipantLogger(ctx, c.log, c.self), c.self, id)
	resp, err := c.api.JoinRoom(ctx, schema.JoinRoomRequest{RoomID: id, UserID: c.self, UserName: name})
	if err != nil {
		log.Warn("client join failed", "err", err)
		c.setStatus(joinFailureStatus(err))
		return schema.JoinRoomResponse{}, err
	}
	if err := c.do(ctx, func() { c.state.Join(resp) }); err != nil {
		return schema.JoinRoomResponse{}, err
	}
	if _, err := c.channel.Connect(c.life, c.self); err != nil {
		log.Warn("client channel connect failed", "err", err)
		return resp, err
	}
	log.Info("client join ok", "users", len(resp.Users), "chat", len(resp.ChatMessages))
	return resp, nil
}

func joinFailureStatus(err error) string {
	var reqErr *roomapi.RequestError
	if !errors.As(err, &reqErr) {
		return StatusJoinOffline
	}
	if reqErr.Status == http.StatusOK && reqErr.Message != "" {
		return fmt.Sprintf("Error: %s", reqErr.Message)
	}
	if reqErr.Status != 0 {
		message := reqErr.Message
		if message == "" {
			message = "Unknown error"
		}
		return fmt.Sprintf("Failed to join room: %s", message)
	}
	return StatusJoinOffline
}

// LeaveRoom announces the departure, closes the channel and resets the
// session to the welcome state. A failed announcement is logged only.
func (c *Client) LeaveRoom(ctx context.Context) error {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	room, name, err := c.detach(ctx)
	if err != nil {
		return err
	}
	if err := c.api.LeaveRoom(ctx, schema.LeaveRoomRequest{RoomID: room.ID, UserID: c.self, UserName: name}); err != nil {
		c.log.Warn("client leave announce failed", "room", room.ID, "err", err)
	}
	if err := c.do(ctx, func() { c.state.Leave("") }); err != nil {
		return err
	}
	c.log.Info("client room left", "room", room.ID)
	return nil
}

// DeleteRoom deletes the joined room on the server and resets the session.
func (c *Client) DeleteRoom(ctx context.Context) error {
	c.flowMu.Lock()
	defer c.flowMu.Unlock()

	room, err := c.currentRoom(ctx)
	if err != nil {
		return err
	}
	if err := c.api.DeleteRoom(ctx, room.ID); err != nil {
		c.setStatus(StatusDeleteFailed)
		return err
	}
	if _, _, err := c.detach(ctx); err != nil && !errors.Is(err, schema.ErrNotInRoom) {
		return err
	}
	if err := c.do(ctx, func() { c.state.Leave(StatusDeleted) }); err != nil {
		return err
	}
	c.log.Info("client room deleted", "room", room.ID)
	return nil
}

// SaveRoom asks the server to persist the room content.
func (c *Client) SaveRoom(ctx context.Context) error {
	room, err := c.currentRoom(ctx)
	if err != nil {
		return err
	}
	if err := c.api.SaveRoom(ctx, room.ID); err != nil {
		c.setStatus(StatusSaveFailed)
		return err
	}
	c.setStatus(StatusSaved)
	return nil
}

// detach cancels pending sends and tears the channel down, returning the
// room that was joined.
func (c *Client) detach(ctx context.Context) (core.RoomInfo, schema.DisplayName, error) {
	var room core.RoomInfo
	var ok bool
	var name schema.DisplayName
	if err := c.do(ctx, func() {
		room, ok = c.state.Room()
		name = c.state.SelfName()
		if ok {
			c.dispatch.Cancel()
		}
	}); err != nil {
		return core.RoomInfo{}, "", err
	}
	if !ok {
		return core.RoomInfo{}, "", schema.ErrNotInRoom
	}
	c.channel.Teardown()
	return room, name, nil
}

func (c *Client) currentRoom(ctx context.Context) (core.RoomInfo, error) {
	var room core.RoomInfo
	var ok bool
	if err := c.do(ctx, func() { room, ok = c.state.Room() }); err != nil {
		return core.RoomInfo{}, err
	}
	if !ok {
		return core.RoomInfo{}, schema.ErrNotInRoom
	}
	return room, nil
}

func (c *Client) requireDisplayName(ctx context.Context) error {
	var name schema.DisplayName
	if err := c.do(ctx, func() { name = c.state.SelfName() }); err != nil {
		return err
	}
	_, err := schema.NormalizeDisplayName(string(name))
	return err
}

// SetDisplayName validates and persists the display name.
func (c *Client) SetDisplayName(name string) error {
	normalized, err := schema.NormalizeDisplayName(name)
	if err != nil {
		return err
	}
	var theme schema.ThemeName
	if err := c.do(context.Background(), func() {
		c.state.SetDisplayName(normalized)
		theme = c.state.Snapshot().Theme
	}); err != nil {
		return err
	}
	return c.savePrefs(normalized, theme)
}

// SetTheme validates and persists the theme.
func (c *Client) SetTheme(name string) error {
	theme, ok := schema.NormalizeThemeName(name)
	if !ok {
		return schema.ErrInvalidTheme
	}
	var display schema.DisplayName
	if err := c.do(context.Background(), func() {
		c.state.SetTheme(theme)
		display = c.state.SelfName()
	}); err != nil {
		return err
	}
	return c.savePrefs(display, theme)
}

func (c *Client) savePrefs(name schema.DisplayName, theme schema.ThemeName) error {
	if c.prefs == nil {
		return nil
	}
	return c.prefs.Save(persist.Prefs{ParticipantID: c.self, DisplayName: name, Theme: theme})
}

// Edit records a local edit of the active file. The room update is debounced.
func (c *Client) Edit(content string) error {
	return c.do(context.Background(), func() { c.dispatch.OnLocalEdit(content) })
}

// MoveCursor sends the local cursor position.
func (c *Client) MoveCursor(pos schema.Position) error {
	return c.do(context.Background(), func() { c.dispatch.OnLocalCursorMove(pos) })
}

// SendChat sends a chat message. It fails fast while another send is in flight.
func (c *Client) SendChat(body string) error {
	var sendErr error
	if err := c.do(context.Background(), func() { sendErr = c.dispatch.SendChat(body) }); err != nil {
		return err
	}
	return sendErr
}

// ToggleReaction flips the local reaction on a chat message and reports
// whether it is present afterwards. Reactions are not sent to the server.
func (c *Client) ToggleReaction(messageID string, kind string) (bool, error) {
	reaction, err := schema.NormalizeReactionKind(kind)
	if err != nil {
		return false, err
	}
	var present bool
	err = c.do(context.Background(), func() {
		present = c.state.ToggleReaction(schema.MessageID(messageID), reaction)
	})
	return present, err
}

// OpenFile adds an untitled file and activates it.
func (c *Client) OpenFile() (schema.FileSnapshot, error) {
	var file schema.FileSnapshot
	err := c.do(context.Background(), func() { file = c.state.OpenFile() })
	return file, err
}

// CloseFile removes a file. Closing the only file reports false.
func (c *Client) CloseFile(id schema.FileID) (bool, error) {
	var changed bool
	var closeErr error
	if err := c.do(context.Background(), func() { changed, closeErr = c.state.CloseFile(id) }); err != nil {
		return false, err
	}
	return changed, closeErr
}

// SwitchFile activates a file.
func (c *Client) SwitchFile(id schema.FileID) error {
	var switchErr error
	if err := c.do(context.Background(), func() { switchErr = c.state.SwitchFile(id) }); err != nil {
		return err
	}
	return switchErr
}

// ChangeLanguage resets the active file to the language template and sends
// it immediately.
func (c *Client) ChangeLanguage(language string) error {
	lang, err := schema.NormalizeLanguage(language)
	if err != nil {
		return err
	}
	return c.do(context.Background(), func() {
		content := c.state.ChangeLanguage(lang)
		c.dispatch.FlushNow(content)
	})
}

// ResetCode replaces the active file with its language template and sends it
// immediately.
func (c *Client) ResetCode() error {
	return c.do(context.Background(), func() {
		content := c.state.ResetActive()
		c.dispatch.FlushNow(content)
	})
}

func (c *Client) setStatus(text string) {
	_ = c.do(context.Background(), func() { c.state.SetStatus(text) })
}

// post queues fn on the loop. It never blocks and reports false once the
// loop is not running.
func (c *Client) post(fn func()) bool {
	c.inboxMu.Lock()
	if !c.running {
		c.inboxMu.Unlock()
		return false
	}
	c.inbox = append(c.inbox, fn)
	c.inboxMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the loop and waits for it.
func (c *Client) do(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	if !c.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	case <-c.loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.loopDone)
	for {
		select {
		case <-ctx.Done():
			c.inboxMu.Lock()
			c.running = false
			dropped := len(c.inbox)
			c.inbox = nil
			c.inboxMu.Unlock()
			c.log.Debug("client loop exit", "dropped", dropped)
			return
		case <-c.wake:
		}
		c.inboxMu.Lock()
		batch := c.inbox
		c.inbox = nil
		c.inboxMu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}

// channelSink moves channel callbacks onto the loop.
type channelSink struct {
	c *Client
}

func (s channelSink) OnFrame(raw []byte) {
	s.c.post(func() { s.c.router.Route(raw) })
}

func (s channelSink) OnState(state schema.ChannelState, status string) {
	s.c.post(func() {
		s.c.state.SetChannelState(state)
		if status != "" && s.c.state.InRoom() {
			s.c.state.SetStatus(status)
		}
	})
}
