package types

import "errors"

var (
	ErrInvalidEmail      = errors.New("email must be 3-254 characters and contain '@'")
	ErrInvalidBoardTitle = errors.New("board title must be 1-200 characters")
	ErrMissingLayers     = errors.New("board must have at least one layer")
	ErrInvalidLayerID    = errors.New("layer ID must be one of the fixed board layers")
	ErrInvalidEventType  = errors.New("invalid event type")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrPayloadTooLarge   = errors.New("event payload exceeds 256KB limit")
	ErrInvalidScale      = errors.New("viewport scale must be positive and finite")
	ErrOddPointCount     = errors.New("stroke points must be x/y pairs")
)
