package schema

// ChannelState is the lifecycle state of the push channel.
type ChannelState string

const (
	// ChannelIdle means no channel has been requested.
	ChannelIdle ChannelState = "idle"
	// ChannelConnecting means the first handshake is in progress.
	ChannelConnecting ChannelState = "connecting"
	// ChannelOpen means frames are flowing.
	ChannelOpen ChannelState = "open"
	// ChannelErroring means the transport failed and a retry is scheduled.
	ChannelErroring ChannelState = "erroring"
	// ChannelReconnecting means a retry handshake is in progress.
	ChannelReconnecting ChannelState = "reconnecting"
	// ChannelClosed means the channel was torn down explicitly.
	ChannelClosed ChannelState = "closed"
)

// StatusEvent carries a new status line for the UI.
type StatusEvent struct {
	UserID ParticipantID
	Text   string
}

// BufferEvent asks the editor to replace its buffer.
type BufferEvent struct {
	UserID  ParticipantID
	FileID  FileID
	Content string
	Remote  bool
}

// RosterEvent reports a replaced roster.
type RosterEvent struct {
	UserID ParticipantID
	Users  []Participant
}

// CursorEvent reports a cursor move.
type CursorEvent struct {
	UserID   ParticipantID
	Owner    ParticipantID
	Position Position
}

// ChatEvent reports an appended chat message.
type ChatEvent struct {
	UserID  ParticipantID
	Message ChatMessage
}

// FilesEvent reports a change to the file set or the active file.
type FilesEvent struct {
	UserID     ParticipantID
	Files      []FileSnapshot
	ActiveFile FileID
}

// ChannelEvent reports a channel state transition.
type ChannelEvent struct {
	UserID ParticipantID
	State  ChannelState
}

// RoomEvent reports entering or leaving a room.
type RoomEvent struct {
	UserID   ParticipantID
	RoomID   RoomID
	RoomName string
	InRoom   bool
}
