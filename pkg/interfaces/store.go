package interfaces

import (
	"context"

	"collabboard/pkg/types"
)

// BoardStore handles durable board persistence. The realtime core calls
// GetBoard once at session creation and UpdateBoard only on an explicit
// checkpoint save; it never writes on individual strokes.
type BoardStore interface {
	// CreateBoard persists a new board and returns its generated ID.
	CreateBoard(ctx context.Context, board *types.Board) error

	// GetBoard retrieves a board by ID. Returns ErrBoardNotFound if absent.
	GetBoard(ctx context.Context, boardID string) (*types.Board, error)

	// UpdateBoard replaces the title and layers of an existing board.
	UpdateBoard(ctx context.Context, board *types.Board) error

	// ListBoardsByCreator returns all boards owned by an identity,
	// newest first.
	ListBoardsByCreator(ctx context.Context, creatorEmail string) ([]*types.Board, error)

	// DeleteBoard removes a board. Returns ErrBoardNotFound if absent.
	DeleteBoard(ctx context.Context, boardID string) error

	// HealthCheck verifies store connectivity and basic operations.
	HealthCheck(ctx context.Context) error

	// Close releases store resources after pending writes complete.
	Close() error
}
