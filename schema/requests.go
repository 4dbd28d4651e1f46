package schema

// Wire contract for the room server HTTP API.

// CreateRoomRequest describes a request to create a room.
type CreateRoomRequest struct {
	Name     string   `json:"name"`
	Language Language `json:"language"`
}

// CreateRoomResponse is the created room.
type CreateRoomResponse struct {
	ID        RoomID   `json:"id"`
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Language  Language `json:"language"`
	CreatedAt string   `json:"created_at,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// JoinRoomRequest describes a request to join a room.
type JoinRoomRequest struct {
	RoomID   RoomID        `json:"room_id"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
}

// JoinRoomResponse is the room snapshot returned on join.
type JoinRoomResponse struct {
	RoomID       RoomID        `json:"room_id"`
	RoomName     string        `json:"room_name"`
	Code         string        `json:"code"`
	Language     Language      `json:"language"`
	UserID       ParticipantID `json:"user_id"`
	UserName     DisplayName   `json:"user_name"`
	Users        []RosterEntry `json:"users"`
	ChatMessages []ChatMessage `json:"chat_messages"`
	Error        string        `json:"error,omitempty"`
}

// UpdateCodeRequest pushes new content for a room.
type UpdateCodeRequest struct {
	RoomID   RoomID        `json:"room_id"`
	Code     string        `json:"code"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	FileID   FileID        `json:"file_id,omitempty"`
}

// UpdateCursorRequest pushes a cursor position.
type UpdateCursorRequest struct {
	RoomID   RoomID        `json:"room_id"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	Position Position      `json:"position"`
}

// SendChatRequest posts a chat message.
type SendChatRequest struct {
	RoomID   RoomID        `json:"room_id"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	Message  string        `json:"message"`
}

// SendChatResponse acknowledges a chat message.
type SendChatResponse struct {
	Success   bool      `json:"success"`
	MessageID MessageID `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LeaveRoomRequest announces a graceful departure.
type LeaveRoomRequest struct {
	RoomID   RoomID        `json:"room_id"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
}

// Ack is the generic acknowledgement shape.
type Ack struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
