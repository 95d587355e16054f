package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/rendus-api/internal/models"
)

const sqlitePrefix = "sqlite://"

// ConnectPostgres establishes a connection to the PostgreSQL database using the provided DSN.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Connect opens the journal database. A sqlite:// URL selects an embedded file database.
func Connect(url string) (*gorm.DB, error) {
	url = strings.TrimSpace(url)
	if path, ok := strings.CutPrefix(url, sqlitePrefix); ok {
		if path == "" {
			return nil, fmt.Errorf("sqlite path must not be empty")
		}
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return db, nil
	}
	return ConnectPostgres(url)
}

// Migrate creates the journal tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ProcessingRun{}, &models.ReportExport{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
