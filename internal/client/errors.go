package client

import "errors"

var (
	ErrAlreadyConnected = errors.New("client already connected")
	ErrNotConnected     = errors.New("client not connected")
	ErrSessionEnded     = errors.New("session ended by host")
)
