package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Database.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(store.Settings.Debug)})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", cfg.Host)
}

// Close closes the underlying MySQL connection.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access MySQL connection: %w", err)
	}
	return sqlDB.Close()
}
