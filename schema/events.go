package schema

import "encoding/json"

// FrameType is the top-level type of a push channel frame.
type FrameType string

const (
	// FramePing is a keep-alive with no payload.
	FramePing FrameType = "ping"
	// FrameUserJoined carries the roster after a participant joined.
	FrameUserJoined FrameType = "user_joined"
	// FrameUserLeft carries the roster after a participant left.
	FrameUserLeft FrameType = "user_left"
	// FrameCodeUpdated carries replacement content for a file.
	FrameCodeUpdated FrameType = "code_updated"
	// FrameCursorUpdated carries a participant cursor position.
	FrameCursorUpdated FrameType = "cursor_updated"
	// FrameChatMessage carries a new chat message.
	FrameChatMessage FrameType = "chat_message"
	// FrameTypingStatus is emitted by some servers and ignored by the client.
	FrameTypingStatus FrameType = "typing_status"
)

// Frame is the envelope for every push channel message.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RosterEntry is a participant as reported by the server.
type RosterEntry struct {
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
}

// RosterPayload is the data of user_joined and user_left frames.
type RosterPayload struct {
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	Users    []RosterEntry `json:"users"`
}

// CodeUpdatedPayload is the data of code_updated frames.
// FileID is optional; when empty the update targets the active file.
type CodeUpdatedPayload struct {
	Code     string        `json:"code"`
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	FileID   FileID        `json:"file_id,omitempty"`
}

// CursorUpdatedPayload is the data of cursor_updated frames.
type CursorUpdatedPayload struct {
	UserID   ParticipantID `json:"user_id"`
	UserName DisplayName   `json:"user_name"`
	Position Position      `json:"position"`
}

// DecodeFrame parses a raw frame envelope.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, ErrMalformedFrame
	}
	if frame.Type == "" {
		return Frame{}, ErrMalformedFrame
	}
	return frame, nil
}

// EncodeFrame builds a frame envelope around the given payload.
func EncodeFrame(frameType FrameType, payload any) ([]byte, error) {
	frame := Frame{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}
