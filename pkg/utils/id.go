package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// GenerateSessionID generates a unique session ID. Session IDs are
// plain UUIDs so clients can use them as stable map keys.
func GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateInstanceID generates the ID a relay instance stamps on bus
// envelopes.
func GenerateInstanceID() string {
	return GenerateID("relay")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
