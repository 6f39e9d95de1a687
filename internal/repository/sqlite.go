// Package repository implements the persistence components (DeliveryRepo,
// EventRepo, SuppressionStore, QuotaStore) against SQLite, using squirrel
// for query building against SQLite.
package repository

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// sb is the squirrel statement builder shared by every repository, using
// the "?" placeholder format SQLite (and modernc.org/sqlite's driver)
// expects.
var sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Open opens (creating if necessary) the SQLite database at path, enabling
// WAL journaling and foreign keys, since writers are serialized to one connection.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single shared writer connection avoids SQLITE_BUSY under WAL for the
	// write-heavy delivery/event/quota paths; reads are cheap enough to share it.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// InitializeSchema creates every table and index idempotently, so it is safe
// to call on every process start.
func InitializeSchema(db *sql.DB) error {
	for _, query := range tableDefinitions {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
