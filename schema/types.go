package schema

// ParticipantID identifies a participant for the lifetime of a session.
type ParticipantID string

// DisplayName is the user-facing participant name.
type DisplayName string

// RoomID identifies a shared room.
type RoomID string

// FileID identifies a file inside the local file set.
type FileID string

// MessageID identifies a chat message.
type MessageID string

// Language is an editor language tag (javascript, python, ...).
type Language string

// ReactionKind names a chat reaction.
type ReactionKind string

// ThemeName identifies a UI theme.
type ThemeName string

// Position is a zero-based cursor location in the active buffer.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Participant is a roster entry.
type Participant struct {
	ID     ParticipantID
	Name   DisplayName
	Online bool
}

// ChatMessage is an immutable chat log entry.
type ChatMessage struct {
	ID        MessageID     `json:"id"`
	UserID    ParticipantID `json:"user_id"`
	UserName  DisplayName   `json:"user_name"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
}

// Reaction is a single (message, participant, kind) triple.
type Reaction struct {
	MessageID MessageID
	UserID    ParticipantID
	Kind      ReactionKind
}
