package schema

import (
	"strings"
	"unicode/utf8"
)

const (
	// DisplayNameMin is the minimum display name length.
	DisplayNameMin = 3
	// DisplayNameMax is the maximum display name length.
	DisplayNameMax = 15
	// ChatMessageMax is the maximum chat body length in characters.
	ChatMessageMax = 200
)

// NormalizeDisplayName trims and validates a display name.
// Allowed characters: A-Z, a-z, 0-9, '_'.
func NormalizeDisplayName(name string) (DisplayName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrDisplayNameRequired
	}
	n := utf8.RuneCountInString(trimmed)
	if n < DisplayNameMin {
		return "", ErrDisplayNameTooShort
	}
	if n > DisplayNameMax {
		return "", ErrDisplayNameTooLong
	}
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "", ErrDisplayNameCharset
	}
	return DisplayName(trimmed), nil
}

// NormalizeChatBody trims a chat body and enforces the length limit.
func NormalizeChatBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > ChatMessageMax {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// NormalizeRoomID trims a room id and rejects empty values.
func NormalizeRoomID(id string) (RoomID, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", ErrRoomIDRequired
	}
	return RoomID(trimmed), nil
}

// NormalizeRoomName trims a room name and rejects empty values.
func NormalizeRoomName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrRoomNameRequired
	}
	return trimmed, nil
}

// NormalizeReactionKind validates a reaction kind.
func NormalizeReactionKind(kind string) (ReactionKind, error) {
	normalized := ReactionKind(strings.ToLower(strings.TrimSpace(kind)))
	for _, known := range reactionKinds {
		if known == normalized {
			return normalized, nil
		}
	}
	return "", ErrInvalidReaction
}

var reactionKinds = []ReactionKind{"thumbsup", "heart", "laugh", "zap", "sad", "angry"}

// ReactionKinds returns the supported reaction kinds in display order.
func ReactionKinds() []ReactionKind {
	out := make([]ReactionKind, len(reactionKinds))
	copy(out, reactionKinds)
	return out
}

// SenderLabel returns the name to show for a participant, falling back to the id.
func SenderLabel(name DisplayName, id ParticipantID) string {
	if strings.TrimSpace(string(name)) != "" {
		return string(name)
	}
	return string(id)
}
