package datastore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	path := store.Settings.Database.SQLite.Path
	if path == "" {
		return fmt.Errorf("sqlite database path is not configured")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger(store.Settings.Debug)})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", path)
}

// Close closes the underlying SQLite connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access SQLite connection: %w", err)
	}
	return sqlDB.Close()
}
