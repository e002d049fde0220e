package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already registered")
	ErrRoomNotFound    = errors.New("room not found")

	ErrQueueFull       = errors.New("outbound queue full")
	ErrTransportClosed = errors.New("transport closed")
	ErrPayloadTooLarge = errors.New("payload exceeds limit")
)
