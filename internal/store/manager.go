package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "collabboard/pkg/database"
	"collabboard/pkg/interfaces"
	"collabboard/pkg/types"
)

// Manager implements the BoardStore interface on SQLite. All writes funnel
// through a single goroutine; SQLite serializes writers anyway, so queueing
// them here avoids busy-timeout contention under concurrent saves.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas, and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// once after 5 seconds on failure.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Board store write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Board store write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Board store write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("board store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("board store is shutting down")
	}
}

// CreateBoard persists a new board. A missing ID or timestamps are filled in;
// a missing layer set gets the default host/guest pair.
func (m *Manager) CreateBoard(ctx context.Context, board *types.Board) error {
	if board.ID == "" {
		board.ID = uuid.New().String()
	}
	if board.Layers == nil {
		board.Layers = types.DefaultLayers()
	}
	now := time.Now().UTC()
	if board.CreatedAt.IsZero() {
		board.CreatedAt = now
	}
	board.UpdatedAt = now

	if err := board.Validate(); err != nil {
		return err
	}

	return m.executeWrite(func(db *sql.DB) error {
		layersJSON, err := json.Marshal(board.Layers)
		if err != nil {
			return fmt.Errorf("failed to marshal layers: %w", err)
		}

		query := `
			INSERT INTO boards (id, title, layers, creator_email, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			board.ID,
			board.Title,
			string(layersJSON),
			board.CreatorEmail,
			board.CreatedAt,
			board.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert board: %w", err)
		}
		return nil
	})
}

// GetBoard retrieves a board by ID.
func (m *Manager) GetBoard(ctx context.Context, boardID string) (*types.Board, error) {
	query := `
		SELECT id, title, layers, creator_email, created_at, updated_at
		FROM boards
		WHERE id = ?
	`

	row := m.db.QueryRowContext(ctx, query, boardID)

	var board types.Board
	var layersJSON string

	err := row.Scan(
		&board.ID,
		&board.Title,
		&layersJSON,
		&board.CreatorEmail,
		&board.CreatedAt,
		&board.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to query board: %w", err)
	}

	if err := json.Unmarshal([]byte(layersJSON), &board.Layers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layers: %w", err)
	}

	return &board, nil
}

// UpdateBoard replaces the title and layers of an existing board. This is the
// checkpoint-save path; it is never invoked per stroke.
func (m *Manager) UpdateBoard(ctx context.Context, board *types.Board) error {
	if err := board.Validate(); err != nil {
		return err
	}

	return m.executeWrite(func(db *sql.DB) error {
		layersJSON, err := json.Marshal(board.Layers)
		if err != nil {
			return fmt.Errorf("failed to marshal layers: %w", err)
		}

		query := `
			UPDATE boards
			SET title = ?, layers = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := db.ExecContext(ctx, query,
			board.Title,
			string(layersJSON),
			time.Now().UTC(),
			board.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update board: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrBoardNotFound
		}
		return nil
	})
}

// ListBoardsByCreator returns all boards owned by an identity, newest first.
func (m *Manager) ListBoardsByCreator(ctx context.Context, creatorEmail string) ([]*types.Board, error) {
	query := `
		SELECT id, title, layers, creator_email, created_at, updated_at
		FROM boards
		WHERE creator_email = ?
		ORDER BY updated_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query, creatorEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*types.Board

	for rows.Next() {
		var board types.Board
		var layersJSON string

		err := rows.Scan(
			&board.ID,
			&board.Title,
			&layersJSON,
			&board.CreatorEmail,
			&board.CreatedAt,
			&board.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}

		if err := json.Unmarshal([]byte(layersJSON), &board.Layers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal layers: %w", err)
		}

		boards = append(boards, &board)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating board rows: %w", err)
	}

	return boards, nil
}

// DeleteBoard removes a board by ID.
func (m *Manager) DeleteBoard(ctx context.Context, boardID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", boardID)
		if err != nil {
			return fmt.Errorf("failed to delete board: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if affected == 0 {
			return interfaces.ErrBoardNotFound
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM boards LIMIT 1")
	if err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	_ = rows.Close()

	return nil
}

// GetDB returns the underlying database connection for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the store after the write loop drains.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance pragmas.
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
