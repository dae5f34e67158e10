package datastore

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. Migration batch queries can take several hundred ms, so
// the threshold sits above those.
const DefaultSlowQueryThreshold = 1 * time.Second

var storeLogger *slog.Logger

func getLogger() *slog.Logger {
	if storeLogger == nil {
		storeLogger = logging.ForService("datastore")
	}
	return storeLogger
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.Default.LogMode(level)
}

// performAutoMigration runs GORM automigration for all models and logs the outcome.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Webcam{}, &AnimationJob{}, &CapturedImage{}, &ImageTag{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		getLogger().Debug("Database initialized",
			"type", dbType,
			"connection", connectionInfo)
	}

	return nil
}
