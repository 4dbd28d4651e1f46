package schema

// FileSnapshot is a read-only view of a local file.
type FileSnapshot struct {
	ID       FileID
	Name     string
	Language Language
	Content  string
	Active   bool
}

// PresenceEntry is one participant in the presence view.
// Stale is set for cursor entries whose participant is not in the roster.
type PresenceEntry struct {
	ID     ParticipantID
	Name   DisplayName
	Online bool
	Cursor *Position
	Self   bool
	Stale  bool
}

// ReactionTally summarizes reactions of one kind on a message.
type ReactionTally struct {
	Kind      ReactionKind
	Count     int
	ReactedBy []ParticipantID
	Mine      bool
}

// SessionSnapshot is a read-only view of the whole session state.
type SessionSnapshot struct {
	Self        ParticipantID
	SelfName    DisplayName
	Theme       ThemeName
	InRoom      bool
	RoomID      RoomID
	RoomName    string
	Language    Language
	Files       []FileSnapshot
	ActiveFile  FileID
	Roster      []Participant
	Cursors     map[ParticipantID]Position
	Chat        []ChatMessage
	Reactions   map[MessageID][]ReactionTally
	Status      string
	Connected   bool
	Channel     ChannelState
	SendingChat bool
}
