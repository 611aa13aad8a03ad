package database

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shrike/internal/domain"
)

var DB *gorm.DB

// Connect opens the snapshot database and runs migrations. Persistence is
// optional; the caller only connects when a DSN is configured.
func Connect(dsn string) error {
	if dsn == "" {
		return errors.New("database: empty DSN")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("database: open connection: %w", err)
	}

	if err := db.AutoMigrate(&domain.PoolSnapshot{}); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}

	DB = db
	log.Info("snapshot database connected")
	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
