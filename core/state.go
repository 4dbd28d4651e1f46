package core

import (
	"context"
	"fmt"

	"pkt.systems/codesync/internal/logx"
	"pkt.systems/codesync/schema"
	"pkt.systems/pslog"
)

// State is the single mutable aggregate of a collaboration session.
// It is owned by the session loop and must not be shared across goroutines.
type State struct {
	self      schema.ParticipantID
	selfName  schema.DisplayName
	theme     schema.ThemeName
	room      *RoomInfo
	files     map[schema.FileID]*file
	order     []schema.FileID
	active    schema.FileID
	language  schema.Language
	roster    []schema.Participant
	cursors   map[schema.ParticipantID]schema.Position
	names     map[schema.ParticipantID]schema.DisplayName
	chat      []schema.ChatMessage
	reactions *reactionSet
	status    string
	channel   schema.ChannelState
	sending   bool
	sink      EventSink
	log       pslog.Logger
}

// RoomInfo describes the joined room.
type RoomInfo struct {
	ID   schema.RoomID
	Name string
}

// NewState constructs a fresh state holding the welcome file.
func NewState(self schema.ParticipantID, name schema.DisplayName, deps StateDeps) *State {
	sink := deps.Sink
	if sink == nil {
		sink = nopSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &State{
		self:     self,
		selfName: name,
		theme:    schema.DefaultTheme,
		channel:  schema.ChannelIdle,
		sink:     sink,
		log:      logger.With("participant", self),
	}
	s.resetLocal()
	return s
}

// Self returns the local participant id.
func (s *State) Self() schema.ParticipantID { return s.self }

// SelfName returns the local display name.
func (s *State) SelfName() schema.DisplayName { return s.selfName }

// InRoom reports whether a room is joined.
func (s *State) InRoom() bool { return s.room != nil }

// Room returns the joined room, if any.
func (s *State) Room() (RoomInfo, bool) {
	if s.room == nil {
		return RoomInfo{}, false
	}
	return *s.room, true
}

// Language returns the language of the active file.
func (s *State) Language() schema.Language { return s.language }

// IsSendingMessage reports whether a chat send is in flight.
func (s *State) IsSendingMessage() bool { return s.sending }

// Status returns the latest status text.
func (s *State) Status() string { return s.status }

// ActiveFile returns the active file.
func (s *State) ActiveFile() schema.FileSnapshot {
	f := s.files[s.active]
	if f == nil {
		return schema.FileSnapshot{}
	}
	return f.Snapshot(true)
}

// Files returns the file set in order.
func (s *State) Files() []schema.FileSnapshot {
	out := make([]schema.FileSnapshot, 0, len(s.order))
	for _, id := range s.order {
		if f := s.files[id]; f != nil {
			out = append(out, f.Snapshot(id == s.active))
		}
	}
	return out
}

// Roster returns a copy of the current roster.
func (s *State) Roster() []schema.Participant {
	return append([]schema.Participant(nil), s.roster...)
}

// Chat returns a copy of the chat log.
func (s *State) Chat() []schema.ChatMessage {
	return append([]schema.ChatMessage(nil), s.chat...)
}

// Cursor returns the last known cursor of a participant.
func (s *State) Cursor(id schema.ParticipantID) (schema.Position, bool) {
	pos, ok := s.cursors[id]
	return pos, ok
}

// Join replaces the local state with the room snapshot returned by the server.
// The roster is taken verbatim from the snapshot.
func (s *State) Join(resp schema.JoinRoomResponse) {
	lang := resp.Language
	if lang == "" {
		lang = schema.DefaultLanguage
	}
	name := resp.RoomName
	s.room = &RoomInfo{ID: resp.RoomID, Name: name}
	seed := newFile(MainFileID, "main", lang, resp.Code)
	s.files = map[schema.FileID]*file{seed.ID: seed}
	s.order = []schema.FileID{seed.ID}
	s.active = seed.ID
	s.language = lang
	s.roster = rosterFromEntries(resp.Users)
	s.cursors = make(map[schema.ParticipantID]schema.Position)
	s.names = make(map[schema.ParticipantID]schema.DisplayName)
	s.chat = append([]schema.ChatMessage(nil), resp.ChatMessages...)
	s.reactions = newReactionSet()
	s.sending = false

	s.log.Info("state room joined", "room", resp.RoomID, "users", len(s.roster), "chat", len(s.chat))
	s.sink.OnRoom(schema.RoomEvent{UserID: s.self, RoomID: resp.RoomID, RoomName: name, InRoom: true})
	s.emitFiles()
	s.emitBuffer(false)
	s.sink.OnRoster(schema.RosterEvent{UserID: s.self, Users: s.Roster()})
	s.SetStatus(fmt.Sprintf("Successfully joined room: %s", name))
}

// Leave drops all room state and restores the welcome file.
// It is used both for leaving and after the room was deleted.
func (s *State) Leave(status string) {
	var roomID schema.RoomID
	if s.room != nil {
		roomID = s.room.ID
	}
	s.room = nil
	s.resetLocal()
	s.log.Info("state room left", "room", roomID)
	s.sink.OnRoom(schema.RoomEvent{UserID: s.self, RoomID: roomID, InRoom: false})
	s.emitFiles()
	s.emitBuffer(false)
	s.sink.OnRoster(schema.RosterEvent{UserID: s.self})
	if status != "" {
		s.SetStatus(status)
	}
}

func (s *State) resetLocal() {
	seed := newFile(MainFileID, "main", schema.DefaultLanguage, schema.WelcomeCode)
	s.files = map[schema.FileID]*file{seed.ID: seed}
	s.order = []schema.FileID{seed.ID}
	s.active = seed.ID
	s.language = schema.DefaultLanguage
	s.roster = nil
	s.cursors = make(map[schema.ParticipantID]schema.Position)
	s.names = make(map[schema.ParticipantID]schema.DisplayName)
	s.chat = nil
	s.reactions = newReactionSet()
	s.sending = false
}

// OpenFile adds an untitled file in the current language and activates it.
func (s *State) OpenFile() schema.FileSnapshot {
	f := newFile(newFileID(), "untitled", s.language, schema.DefaultCode(s.language))
	s.files[f.ID] = f
	s.order = append(s.order, f.ID)
	s.active = f.ID
	logx.WithFile(s.log, f.ID).Debug("state file opened", "name", f.Name)
	s.emitFiles()
	s.emitBuffer(false)
	return f.Snapshot(true)
}

// CloseFile removes a file. Closing the only file is a no-op and reports false.
// Closing the active file promotes the first remaining file.
func (s *State) CloseFile(id schema.FileID) (bool, error) {
	if _, ok := s.files[id]; !ok {
		return false, schema.ErrFileNotFound
	}
	if len(s.order) <= 1 {
		return false, nil
	}
	wasActive := s.active == id
	delete(s.files, id)
	s.order = removeFileID(s.order, id)
	if wasActive {
		next := s.files[s.order[0]]
		s.active = next.ID
		s.language = next.Language
	}
	logx.WithFile(s.log, id).Debug("state file closed", "active", s.active)
	s.emitFiles()
	if wasActive {
		s.emitBuffer(false)
	}
	return true, nil
}

// SwitchFile activates an existing file.
func (s *State) SwitchFile(id schema.FileID) error {
	f, ok := s.files[id]
	if !ok {
		return schema.ErrFileNotFound
	}
	if s.active == id {
		return nil
	}
	s.active = id
	s.language = f.Language
	logx.WithFile(s.log, id).Debug("state file switched")
	s.emitFiles()
	s.emitBuffer(false)
	return nil
}

// ChangeLanguage resets the active file to the language template and renames
// its extension. It returns the new content.
func (s *State) ChangeLanguage(lang schema.Language) string {
	f := s.files[s.active]
	s.language = lang
	f.Language = lang
	f.Content = schema.DefaultCode(lang)
	f.Name = schema.RenameForLanguage(f.Name, lang)
	logx.WithFile(s.log, f.ID).Info("state language changed", "language", lang, "name", f.Name)
	s.emitFiles()
	s.emitBuffer(false)
	return f.Content
}

// ResetActive replaces the active content with the template for its language.
func (s *State) ResetActive() string {
	f := s.files[s.active]
	f.Content = schema.DefaultCode(f.Language)
	s.emitBuffer(false)
	return f.Content
}

// EditActive records a local edit of the active file.
func (s *State) EditActive(content string) {
	if f := s.files[s.active]; f != nil {
		f.Content = content
	}
}

// ApplyRemoteCode overwrites a file with content from another participant.
// Updates authored by the local participant are ignored and report false.
func (s *State) ApplyRemoteCode(update schema.CodeUpdatedPayload) bool {
	if update.UserID == s.self {
		s.log.Trace("state code echo ignored")
		return false
	}
	target := s.files[update.FileID]
	if target == nil {
		target = s.files[s.active]
	}
	target.Content = update.Code
	logx.WithFile(s.log, target.ID).Debug("state remote code applied", "from", update.UserID, "bytes", len(update.Code))
	s.sink.OnBuffer(schema.BufferEvent{UserID: s.self, FileID: target.ID, Content: target.Content, Remote: true})
	s.SetStatus(fmt.Sprintf("Code updated by %s", schema.SenderLabel(update.UserName, update.UserID)))
	return true
}

// SetCursor overwrites a participant's cursor position.
func (s *State) SetCursor(owner schema.ParticipantID, name schema.DisplayName, pos schema.Position) {
	s.cursors[owner] = pos
	if name != "" {
		s.names[owner] = name
	}
	s.sink.OnCursor(schema.CursorEvent{UserID: s.self, Owner: owner, Position: pos})
}

// ReplaceRoster swaps the roster wholesale and prunes cursors of participants
// no longer present. The local cursor is kept.
func (s *State) ReplaceRoster(entries []schema.RosterEntry) {
	s.roster = rosterFromEntries(entries)
	present := make(map[schema.ParticipantID]struct{}, len(s.roster))
	for _, p := range s.roster {
		present[p.ID] = struct{}{}
	}
	pruned := 0
	for id := range s.cursors {
		if id == s.self {
			continue
		}
		if _, ok := present[id]; !ok {
			delete(s.cursors, id)
			delete(s.names, id)
			pruned++
		}
	}
	s.log.Debug("state roster replaced", "users", len(s.roster), "cursors_pruned", pruned)
	s.sink.OnRoster(schema.RosterEvent{UserID: s.self, Users: s.Roster()})
}

// AppendChat appends a message in arrival order without de-duplication.
func (s *State) AppendChat(msg schema.ChatMessage) {
	s.chat = append(s.chat, msg)
	s.sink.OnChat(schema.ChatEvent{UserID: s.self, Message: msg})
}

// ToggleReaction flips the local participant's reaction on a message.
// It reports whether the reaction is present afterwards.
func (s *State) ToggleReaction(messageID schema.MessageID, kind schema.ReactionKind) bool {
	return s.reactions.toggle(messageID, s.self, kind)
}

// HasReaction reports whether the local participant reacted with kind.
func (s *State) HasReaction(messageID schema.MessageID, kind schema.ReactionKind) bool {
	return s.reactions.has(messageID, s.self, kind)
}

// Reactions returns the tallies for a message.
func (s *State) Reactions(messageID schema.MessageID) []schema.ReactionTally {
	return s.reactions.tallies(messageID, s.self)
}

// SetStatus stores and publishes a status line.
func (s *State) SetStatus(text string) {
	s.status = text
	s.sink.OnStatus(schema.StatusEvent{UserID: s.self, Text: text})
}

// SetChannelState records the channel lifecycle state.
func (s *State) SetChannelState(state schema.ChannelState) {
	if s.channel == state {
		return
	}
	s.channel = state
	s.sink.OnChannel(schema.ChannelEvent{UserID: s.self, State: state})
}

// Connected reports whether the push channel is open.
func (s *State) Connected() bool { return s.channel == schema.ChannelOpen }

// SetSending flips the chat in-flight flag.
func (s *State) SetSending(sending bool) { s.sending = sending }

// SetDisplayName updates the local display name.
func (s *State) SetDisplayName(name schema.DisplayName) { s.selfName = name }

// SetTheme updates the local theme.
func (s *State) SetTheme(theme schema.ThemeName) { s.theme = theme }

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() schema.SessionSnapshot {
	snap := schema.SessionSnapshot{
		Self:        s.self,
		SelfName:    s.selfName,
		Theme:       s.theme,
		InRoom:      s.room != nil,
		Language:    s.language,
		Files:       s.Files(),
		ActiveFile:  s.active,
		Roster:      s.Roster(),
		Cursors:     make(map[schema.ParticipantID]schema.Position, len(s.cursors)),
		Chat:        s.Chat(),
		Reactions:   s.reactions.snapshot(s.self),
		Status:      s.status,
		Connected:   s.Connected(),
		Channel:     s.channel,
		SendingChat: s.sending,
	}
	if s.room != nil {
		snap.RoomID = s.room.ID
		snap.RoomName = s.room.Name
	}
	for id, pos := range s.cursors {
		snap.Cursors[id] = pos
	}
	return snap
}

func (s *State) emitFiles() {
	s.sink.OnFiles(schema.FilesEvent{UserID: s.self, Files: s.Files(), ActiveFile: s.active})
}

func (s *State) emitBuffer(remote bool) {
	f := s.files[s.active]
	s.sink.OnBuffer(schema.BufferEvent{UserID: s.self, FileID: f.ID, Content: f.Content, Remote: remote})
}

func rosterFromEntries(entries []schema.RosterEntry) []schema.Participant {
	out := make([]schema.Participant, 0, len(entries))
	for _, entry := range entries {
		out = append(out, schema.Participant{ID: entry.UserID, Name: entry.UserName, Online: true})
	}
	return out
}
