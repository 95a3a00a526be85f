package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gextrader/src/model"
)

// MainDB is the primary read/write database connection used by the
// application.
var MainDB *gorm.DB

// InitMainDB opens the main database connection and runs migrations. The
// driver follows the DSN scheme: postgres URLs use the postgres driver,
// anything prefixed with sqlite:// opens a local file. Call once at startup.
func InitMainDB() error {
	config := GetConfig()

	dialector := dialectorFor(config.DatabaseURL)
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	MainDB = db
	logrus.Info("[database] MainDB connection established")

	if err := MainDB.AutoMigrate(
		&model.DecisionRecord{},
		&model.OperationLog{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}

func dialectorFor(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "sqlite://") {
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}
	return postgres.Open(dsn)
}
