package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"pkt.systems/codesync/internal/logx"
	"pkt.systems/codesync/internal/sessionprefs"
	"pkt.systems/codesync/internal/version"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// Session is the collaboration surface the handler drives.
type Session interface {
	Self() schema.ParticipantID
	CreateRoom(ctx context.Context, name string, language string) (schema.JoinRoomResponse, error)
	JoinRoom(ctx context.Context, roomID string) (schema.JoinRoomResponse, error)
	LeaveRoom(ctx context.Context) error
	SaveRoom(ctx context.Context) error
	DeleteRoom(ctx context.Context) error
	SetDisplayName(name string) error
	SetTheme(name string) error
	Edit(content string) error
	MoveCursor(pos schema.Position) error
	SendChat(body string) error
	ToggleReaction(messageID string, kind string) (bool, error)
	OpenFile() (schema.FileSnapshot, error)
	CloseFile(id schema.FileID) (bool, error)
	SwitchFile(id schema.FileID) error
	ChangeLanguage(language string) error
	ResetCode() error
	Snapshot() (schema.SessionSnapshot, error)
	Presence() ([]schema.PresenceEntry, error)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// Out receives command output. Writes are serialized by the handler only;
	// share a locked writer when other goroutines print too.
	Out                 io.Writer
	DisableAuditLogging bool
}

// Handler routes terminal input to session operations. Lines starting with
// "/" are commands; anything else is sent as chat.
type Handler struct {
	session Session
	cfg     HandlerConfig
	mu      sync.Mutex
}

// NewHandler constructs a command handler.
func NewHandler(session Session, cfg HandlerConfig) *Handler {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Handler{session: session, cfg: cfg}
}

// Handle executes one line of input. It reports false for blank input.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	self := h.session.Self()
	baseLog := logx.WithParticipant(ctx, self)
	ctx = logx.ContextWithParticipantLogger(ctx, baseLog, self)
	log := baseLog.With("input_len", len(input))

	cmd, ok := Parse(input)
	if !ok {
		if strings.TrimSpace(input) == "" {
			return false, nil
		}
		if !h.cfg.DisableAuditLogging {
			log.Debug("audit command", "command_type", "chat", "command", strings.TrimSpace(input))
		}
		return true, h.session.SendChat(input)
	}
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "create":
		return true, h.handleCreate(ctx, cmd)
	case "join":
		return true, h.handleJoin(ctx, cmd)
	case "leave":
		return true, h.session.LeaveRoom(ctx)
	case "save":
		return true, h.session.SaveRoom(ctx)
	case "delete":
		return true, h.handleDelete(ctx, cmd)
	case "name":
		return true, h.handleName(ctx, cmd)
	case "theme":
		return true, h.handleTheme(ctx, cmd)
	case "open":
		return true, h.handleOpen(ctx)
	case "close":
		return true, h.handleClose(ctx, cmd)
	case "switch":
		return true, h.handleSwitch(ctx, cmd)
	case "files":
		return true, h.handleFiles(ctx)
	case "lang":
		return true, h.handleLanguage(ctx, cmd)
	case "reset":
		return true, h.session.ResetCode()
	case "edit":
		return true, h.handleEdit(ctx, cmd)
	case "load":
		return true, h.handleLoad(ctx, cmd)
	case "download":
		return true, h.handleDownload(ctx, cmd)
	case "show":
		return true, h.handleShow(ctx)
	case "cursor":
		return true, h.handleCursor(ctx, cmd)
	case "react":
		return true, h.handleReact(ctx, cmd)
	case "who":
		return true, h.handleWho(ctx)
	case "chat":
		return true, h.handleChat(ctx)
	case "togglefullcode":
		return true, h.handleToggle(ctx, "full code", (*sessionprefs.Prefs).ToggleFullCode)
	case "togglecursors":
		return true, h.handleToggle(ctx, "cursor echo", (*sessionprefs.Prefs).ToggleCursors)
	case "status":
		return true, h.handleStatus(ctx)
	case "help":
		h.appendLines(helpLines()...)
		return true, nil
	case "version":
		h.appendLines(fmt.Sprintf("%s %s", version.Module(), version.Current()))
		return true, nil
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

func (h *Handler) handleCreate(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 {
		return fmt.Errorf("usage: /create <name> [language]")
	}
	name := cmd.Args[0]
	lang := ""
	if len(cmd.Args) > 1 {
		lang = cmd.Args[1]
	}
	resp, err := h.session.CreateRoom(ctx, name, lang)
	if err != nil {
		pslog.Ctx(ctx).Warn("command create failed", "err", err)
		return err
	}
	h.appendLines(fmt.Sprintf("room %s created (id %s)", resp.RoomName, resp.RoomID))
	return nil
}

func (h *Handler) handleJoin(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 {
		return fmt.Errorf("usage: /join <room-id>")
	}
	resp, err := h.session.JoinRoom(ctx, cmd.Args[0])
	if err != nil {
		pslog.Ctx(ctx).Warn("command join failed", "err", err)
		return err
	}
	h.appendLines(fmt.Sprintf("joined %s (%d users, %d messages)", resp.RoomName, len(resp.Users), len(resp.ChatMessages)))
	return nil
}

func (h *Handler) handleDelete(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 || cmd.Args[0] != "affirm" {
		return fmt.Errorf("usage: /delete affirm (deletes the room for everyone)")
	}
	return h.session.DeleteRoom(ctx)
}

func (h *Handler) handleName(ctx context.Context, cmd Command) error {
	if cmd.Text == "" {
		snap, err := h.session.Snapshot()
		if err != nil {
			return err
		}
		h.appendLines("name: " + string(snap.SelfName))
		return nil
	}
	if err := h.session.SetDisplayName(cmd.Text); err != nil {
		pslog.Ctx(ctx).Warn("command name rejected", "err", err)
		return err
	}
	h.appendLines("name set to " + cmd.Text)
	return nil
}

func (h *Handler) handleTheme(ctx context.Context, cmd Command) error {
	log := pslog.Ctx(ctx)
	if len(cmd.Args) == 0 {
		snap, err := h.session.Snapshot()
		if err != nil {
			return err
		}
		h.appendLines(
			"theme: "+string(snap.Theme),
			"available themes: "+strings.Join(formatThemes(schema.AvailableThemes()), ", "),
		)
		log.Info("command theme listed", "current", snap.Theme)
		return nil
	}
	if err := h.session.SetTheme(cmd.Args[0]); err != nil {
		log.Warn("command theme rejected", "theme", cmd.Args[0])
		return fmt.Errorf("unknown theme %q (available: %s)", cmd.Args[0], strings.Join(formatThemes(schema.AvailableThemes()), ", "))
	}
	h.appendLines("theme set to " + cmd.Args[0])
	return nil
}

func (h *Handler) handleOpen(ctx context.Context) error {
	file, err := h.session.OpenFile()
	if err != nil {
		return err
	}
	logx.WithFile(pslog.Ctx(ctx), file.ID).Info("command file opened")
	h.appendLines(fmt.Sprintf("opened %s (%s)", file.Name, file.ID))
	return nil
}

func (h *Handler) handleClose(ctx context.Context, cmd Command) error {
	id, err := h.fileArg(cmd)
	if err != nil {
		return err
	}
	closed, err := h.session.CloseFile(id)
	if err != nil {
		return err
	}
	if !closed {
		h.appendLines("cannot close the last file")
		return nil
	}
	logx.WithFile(pslog.Ctx(ctx), id).Info("command file closed")
	return h.handleFiles(ctx)
}

func (h *Handler) handleSwitch(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 {
		return fmt.Errorf("usage: /switch <file-id|number>")
	}
	id, err := h.fileArg(cmd)
	if err != nil {
		return err
	}
	if err := h.session.SwitchFile(id); err != nil {
		return err
	}
	return h.handleFiles(ctx)
}

// fileArg resolves the first argument as a file id or 1-based index. Without
// arguments it returns the active file.
func (h *Handler) fileArg(cmd Command) (schema.FileID, error) {
	snap, err := h.session.Snapshot()
	if err != nil {
		return "", err
	}
	if len(cmd.Args) == 0 {
		return snap.ActiveFile, nil
	}
	arg := cmd.Args[0]
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(snap.Files) {
			return "", schema.ErrFileNotFound
		}
		return snap.Files[n-1].ID, nil
	}
	return schema.FileID(arg), nil
}

func (h *Handler) handleFiles(context.Context) error {
	snap, err := h.session.Snapshot()
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(snap.Files))
	for i, f := range snap.Files {
		marker := " "
		if f.Active {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %d. %s [%s] (%s)", marker, i+1, f.Name, f.Language, f.ID))
	}
	h.appendLines(lines...)
	return nil
}

func (h *Handler) handleLanguage(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 {
		return fmt.Errorf("usage: /lang <%s>", strings.Join(formatLanguages(schema.Languages()), "|"))
	}
	if err := h.session.ChangeLanguage(cmd.Args[0]); err != nil {
		pslog.Ctx(ctx).Warn("command lang rejected", "language", cmd.Args[0], "err", err)
		return err
	}
	return nil
}

func (h *Handler) handleEdit(_ context.Context, cmd Command) error {
	if cmd.Text == "" {
		return fmt.Errorf("usage: /edit <content> (use \\n for newlines)")
	}
	return h.session.Edit(cmd.Unescaped())
}

func (h *Handler) handleLoad(ctx context.Context, cmd Command) error {
	if cmd.Text == "" {
		return fmt.Errorf("usage: /load <path>")
	}
	data, err := os.ReadFile(cmd.Text)
	if err != nil {
		return err
	}
	pslog.Ctx(ctx).Info("command load", "path", cmd.Text, "bytes", len(data))
	return h.session.Edit(string(data))
}

func (h *Handler) handleDownload(ctx context.Context, cmd Command) error {
	snap, err := h.session.Snapshot()
	if err != nil {
		return err
	}
	active, ok := activeFile(snap)
	if !ok {
		return schema.ErrFileNotFound
	}
	path := cmd.Text
	if path == "" {
		path = active.Name
	}
	if err := os.WriteFile(path, []byte(active.Content), 0o644); err != nil {
		return err
	}
	pslog.Ctx(ctx).Info("command download", "path", path, "bytes", len(active.Content))
	h.appendLines("wrote " + path)
	return nil
}

func (h *Handler) handleShow(context.Context) error {
	snap, err := h.session.Snapshot()
	if err != nil {
		return err
	}
	active, ok := activeFile(snap)
	if !ok {
		return schema.ErrFileNotFound
	}
	lines := []string{fmt.Sprintf("--- %s [%s] ---", active.Name, active.Language)}
	lines = append(lines, strings.Split(active.Content, "\n")...)
	h.appendLines(lines...)
	return nil
}

func (h *Handler) handleCursor(_ context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: /cursor <line> <column>")
	}
	line, err := cmd.Int(0)
	if err != nil || line < 0 {
		return fmt.Errorf("invalid line %q", cmd.Arg(0))
	}
	column, err := cmd.Int(1)
	if err != nil || column < 0 {
		return fmt.Errorf("invalid column %q", cmd.Arg(1))
	}
	return h.session.MoveCursor(schema.Position{Line: line, Column: column})
}

func (h *Handler) handleReact(_ context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: /react <message-id|number> <%s>", strings.Join(formatReactions(schema.ReactionKinds()), "|"))
	}
	id := cmd.Args[0]
	if n, err := strconv.Atoi(id); err == nil {
		snap, err := h.session.Snapshot()
		if err != nil {
			return err
		}
		if n < 1 || n > len(snap.Chat) {
			return fmt.Errorf("no chat message %d", n)
		}
		id = string(snap.Chat[n-1].ID)
	}
	present, err := h.session.ToggleReaction(id, cmd.Args[1])
	if err != nil {
		return err
	}
	if present {
		h.appendLines(fmt.Sprintf("reacted %s", cmd.Args[1]))
	} else {
		h.appendLines(fmt.Sprintf("removed %s", cmd.Args[1]))
	}
	return nil
}

func (h *Handler) handleWho(context.Context) error {
	entries, err := h.session.Presence()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		h.appendLines("no participants")
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		label := schema.SenderLabel(e.Name, e.ID)
		switch {
		case e.Self:
			label += " (you)"
		case e.Stale:
			label += " (left)"
		}
		if e.Cursor != nil {
			label += fmt.Sprintf(" @ %d:%d", e.Cursor.Line+1, e.Cursor.Column+1)
		}
		lines = append(lines, label)
	}
	h.appendLines(lines...)
	return nil
}

func (h *Handler) handleChat(context.Context) error {
	snap, err := h.session.Snapshot()
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(snap.Chat))
	for i, msg := range snap.Chat {
		line := fmt.Sprintf("%d. %s: %s", i+1, schema.SenderLabel(msg.UserName, msg.UserID), msg.Message)
		if tallies := snap.Reactions[msg.ID]; len(tallies) > 0 {
			parts := make([]string, 0, len(tallies))
			for _, t := range tallies {
				parts = append(parts, fmt.Sprintf("%s %d", t.Kind, t.Count))
			}
			line += " [" + strings.Join(parts, ", ") + "]"
		}
		lines = append(lines, line)
	}
	h.appendLines(lines...)
	return nil
}

func (h *Handler) handleToggle(ctx context.Context, label string, toggle func(*sessionprefs.Prefs) bool) error {
	prefs := sessionprefs.FromContext(ctx)
	if prefs == nil {
		return errors.New("session preferences not available")
	}
	enabled := toggle(prefs)
	state := "off"
	if enabled {
		state = "on"
	}
	pslog.Ctx(ctx).Info("command toggle", "pref", label, "enabled", enabled)
	h.appendLines(label + ": " + state)
	return nil
}

func (h *Handler) handleStatus(context.Context) error {
	snap, err := h.session.Snapshot()
	if err != nil {
		return err
	}
	room := "none"
	if snap.InRoom {
		room = fmt.Sprintf("%s (%s)", snap.RoomName, snap.RoomID)
	}
	h.appendLines(
		"participant: "+schema.SenderLabel(snap.SelfName, snap.Self),
		"room: "+room,
		"channel: "+string(snap.Channel),
		"language: "+string(snap.Language),
		fmt.Sprintf("users: %d", len(snap.Roster)),
		"status: "+snap.Status,
	)
	return nil
}

func (h *Handler) appendLines(lines ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, line := range lines {
		_, _ = fmt.Fprintln(h.cfg.Out, line)
	}
}

func activeFile(snap schema.SessionSnapshot) (schema.FileSnapshot, bool) {
	for _, f := range snap.Files {
		if f.ID == snap.ActiveFile {
			return f, true
		}
	}
	return schema.FileSnapshot{}, false
}

func helpLines() []string {
	return []string{
		"Commands",
		"  /create <name> [language] - create a room and join it",
		"  /join <room-id> - join a room",
		"  /leave - leave the room",
		"  /save - save the room on the server",
		"  /delete affirm - delete the room for everyone",
		"  /name [display-name] - show or set your display name",
		"  /theme [name] - show or set the theme (available: " + strings.Join(formatThemes(schema.AvailableThemes()), ", ") + ")",
		"  /open - open a new file",
		"  /close [file] - close a file (default: active)",
		"  /switch <file> - switch the active file",
		"  /files - list files",
		"  /lang <language> - reset the active file to a language (" + strings.Join(formatLanguages(schema.Languages()), ", ") + ")",
		"  /reset - reset the active file to its template",
		"  /edit <content> - replace the active file content",
		"  /load <path> - replace the active file with a local file",
		"  /download [path] - write the active file to disk",
		"  /show - print the active file",
		"  /cursor <line> <column> - move your cursor",
		"  /react <message> <kind> - toggle a reaction (" + strings.Join(formatReactions(schema.ReactionKinds()), ", ") + ")",
		"  /who - list participants and cursors",
		"  /chat - print chat history",
		"  /togglefullcode - print whole buffers on code updates",
		"  /togglecursors - print remote cursor moves",
		"  /status - show session status",
		"  /version - show version information",
		"  /quit - leave the room and exit",
		"  <text> - send a chat message",
	}
}

func formatThemes(themes []schema.ThemeName) []string {
	formatted := make([]string, 0, len(themes))
	for _, name := range themes {
		formatted = append(formatted, string(name))
	}
	return formatted
}

func formatLanguages(langs []schema.Language) []string {
	formatted := make([]string, 0, len(langs))
	for _, lang := range langs {
		formatted = append(formatted, string(lang))
	}
	return formatted
}

func formatReactions(kinds []schema.ReactionKind) []string {
	formatted := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		formatted = append(formatted, string(kind))
	}
	return formatted
}
