package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// IdentityRegex validates identity format on the legacy join path
	IdentityRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// SanitizeJoinField normalizes a legacy join path segment: surrounding
// whitespace is trimmed and interior spaces become underscores, the way
// older clients already expect.
func SanitizeJoinField(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

// ValidateRoomID validates room ID
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room ID is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format")
	}
	return nil
}

// ValidateIdentity validates a client identity
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	if len(identity) > 100 {
		return fmt.Errorf("identity is too long (max 100 characters)")
	}
	if !IdentityRegex.MatchString(identity) {
		return fmt.Errorf("invalid identity format")
	}
	return nil
}

// ValidateDisplayName validates a display name
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	// Check for valid UTF-8
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}
