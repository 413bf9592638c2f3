package database

import "time"

// Config holds SQLite connection settings for the board store.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}
