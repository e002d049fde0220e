package domain

import "time"

// RoomStats is a point-in-time snapshot of one room.
type RoomStats struct {
	RoomID    RoomID    `json:"room_id"`
	Sessions  int       `json:"sessions"`
	Hosts     int       `json:"hosts"`
	OldestAt  time.Time `json:"oldest_at"`
	NewestAt  time.Time `json:"newest_at"`
	Timestamp time.Time `json:"timestamp"`
}

// RelayStats aggregates instance-wide relay activity for the stats
// endpoint. Counters are cumulative since process start.
type RelayStats struct {
	InstanceID       string      `json:"instance_id"`
	Uptime           string      `json:"uptime"`
	Sessions         int         `json:"sessions"`
	Rooms            int         `json:"rooms"`
	PacketsRelayed   uint64      `json:"packets_relayed"`
	PacketsDropped   uint64      `json:"packets_dropped"`
	BusPublished     uint64      `json:"bus_published"`
	BusReceived      uint64      `json:"bus_received"`
	SessionsAdmitted uint64      `json:"sessions_admitted"`
	SessionsClosed   uint64      `json:"sessions_closed"`
	RoomList         []RoomStats `json:"room_list,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}
