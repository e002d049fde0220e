package domain

import "time"

// AdmissionClaim is the verified identity extracted from a join token.
// Transports hand it to the relay untouched; everything the relay
// knows about a client comes from here.
type AdmissionClaim struct {
	Identity    string
	RoomID      RoomID
	DisplayName string
	IsHost      bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Valid reports whether the claim carries the required fields to admit
// a session.
func (c *AdmissionClaim) Valid() bool {
	return c.Identity != "" && c.RoomID != ""
}
