package db

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"bookcircle/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Logger is the GORM logger shared by every connection: warnings and slow
// queries only, missing rows are not noise.
func Logger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: Logger(), TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	slog.Info("database connection established")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	slog.Info("database migration completed")
	return conn, nil
}

// Migrate creates or updates every table, including the unique indexes the
// engagement ledger relies on.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.Comment{},
		&models.BookVote{},
		&models.CommentLike{},
		&models.Bookmark{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
