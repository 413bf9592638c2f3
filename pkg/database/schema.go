package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaValidator verifies the deployed schema against code expectations
// without coupling to the migration system.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"boards":            "Board data storage",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies board table columns match the Go struct.
func (v *SchemaValidator) ValidateTableStructure() error {
	boardColumns := map[string]string{
		"id":            "TEXT",
		"title":         "TEXT",
		"layers":        "TEXT",
		"creator_email": "TEXT",
		"created_at":    "DATETIME",
		"updated_at":    "DATETIME",
	}

	if err := v.validateColumns("boards", boardColumns); err != nil {
		return fmt.Errorf("boards table structure invalid: %w", err)
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return fmt.Errorf("failed to query table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		found[name] = strings.ToUpper(colType)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, colType := range expected {
		actual, exists := found[column]
		if !exists {
			return fmt.Errorf("column %s is missing", column)
		}
		if actual != colType {
			return fmt.Errorf("column %s has type %s, expected %s", column, actual, colType)
		}
	}

	return nil
}
