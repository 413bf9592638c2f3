package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrBoardNotFound = errors.New("board not found")
	ErrUnauthorized  = errors.New("unauthorized access")
)
