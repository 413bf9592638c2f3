package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("no session exists for this board")
	ErrUnauthorized      = errors.New("only the session host may perform this action")
	ErrCannotRevokeHost  = errors.New("the host's drawing permission cannot be revoked")
	ErrNotAParticipant   = errors.New("identity is not a session participant")
	ErrInvalidConnection = errors.New("connection ID cannot be empty")
)
