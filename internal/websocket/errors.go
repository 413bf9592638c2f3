package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout after 5 seconds")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Handler-related errors
var (
	ErrMissingParameters = errors.New("missing token or boardId")
	ErrNotAdmitted       = errors.New("connection has not been admitted")
)
