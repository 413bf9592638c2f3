package database

import (
	"database/sql"
	"fmt"
)

// Migration represents one schema change applied in version order.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Built-in migrations. Boards carry their layer sets as a JSON column so the
// stroke format can evolve without schema churn.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_boards_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS boards (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				layers TEXT NOT NULL,
				creator_email TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_boards_creator ON boards(creator_email);
			CREATE INDEX IF NOT EXISTS idx_boards_updated ON boards(updated_at);
		`,
	},
}

// MigrationManager applies pending migrations and validates the schema.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for the given connection.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order. Each
// migration runs in its own transaction together with its tracking row.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema ensures the database matches the expected structure.
func (m *MigrationManager) ValidateSchema() error {
	requiredTables := []string{"boards", "schema_migrations"}
	for _, table := range requiredTables {
		exists, err := m.tableExists(table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	requiredIndexes := []string{"idx_boards_creator", "idx_boards_updated"}
	for _, index := range requiredIndexes {
		exists, err := m.indexExists(index)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	return err
}

func (m *MigrationManager) getAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}

func (m *MigrationManager) tableExists(tableName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *MigrationManager) indexExists(indexName string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
