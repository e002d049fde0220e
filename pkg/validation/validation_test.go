package validation

import (
	"strings"
	"testing"
)

func TestSanitizeJoinField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "alice", "alice"},
		{"interior space", "team standup", "team_standup"},
		{"many spaces", "a b c", "a_b_c"},
		{"surrounding whitespace", "  alice  ", "alice"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJoinField(tt.input); got != tt.want {
				t.Errorf("SanitizeJoinField() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		roomID  string
		wantErr bool
	}{
		{"valid room ID", "room-123", false},
		{"valid with underscore", "room_123", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "room 123", true},
		{"invalid chars 2", "room@123", true},
		{"path traversal", "../rooms", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.roomID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoomID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		wantErr  bool
	}{
		{"valid identity", "alice", false},
		{"valid with dash", "alice-laptop", false},
		{"valid sanitized email", "alice_example_com", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid chars", "alice smith", true},
		{"invalid chars 2", "alice@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentity(tt.identity)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentity() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		display string
		wantErr bool
	}{
		{"valid name", "Alice", false},
		{"valid with spaces", "Alice Smith", false},
		{"valid unicode", "Алиса", false},
		{"empty", "", true},
		{"only whitespace", "   ", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.display)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDisplayName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
