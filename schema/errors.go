package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDisplayNameRequired indicates an empty display name.
	ErrDisplayNameRequired = errors.New("Please enter a display name")
	// ErrDisplayNameTooShort indicates a display name under the minimum length.
	ErrDisplayNameTooShort = errors.New("Name must be at least 3 characters")
	// ErrDisplayNameTooLong indicates a display name over the maximum length.
	ErrDisplayNameTooLong = errors.New("Name must be 15 characters or less")
	// ErrDisplayNameCharset indicates a display name with unsupported characters.
	ErrDisplayNameCharset = errors.New("Name can only contain letters, numbers, and underscores")
	// ErrRoomNameRequired indicates a room create without a name.
	ErrRoomNameRequired = errors.New("room name is required")
	// ErrRoomIDRequired indicates a join without a room id.
	ErrRoomIDRequired = errors.New("room id is required")
	// ErrRoomNotFound indicates the server does not know the room.
	ErrRoomNotFound = errors.New("Room not found")
	// ErrNotInRoom indicates an operation that requires a joined room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrAlreadyInRoom indicates a join while another room is joined.
	ErrAlreadyInRoom = errors.New("already in a room")
	// ErrEmptyMessage indicates an empty chat body.
	ErrEmptyMessage = errors.New("Message cannot be empty")
	// ErrMessageTooLong indicates a chat body over the limit.
	ErrMessageTooLong = errors.New("Message too long (max 200 characters)")
	// ErrChatInFlight indicates a chat send while a previous send is pending.
	ErrChatInFlight = errors.New("chat message already sending")
	// ErrInvalidLanguage indicates an unsupported language tag.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrInvalidReaction indicates an unsupported reaction kind.
	ErrInvalidReaction = errors.New("invalid reaction")
	// ErrFileNotFound indicates a requested file could not be found.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidTheme indicates an unsupported theme name.
	ErrInvalidTheme = errors.New("invalid theme")
	// ErrMalformedFrame indicates an inbound frame that could not be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrSessionClosed indicates the session loop has stopped.
	ErrSessionClosed = errors.New("session closed")
)
