package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"github.com/memeflix/backend/internal/favorites"
	"github.com/memeflix/backend/internal/history"
	"github.com/memeflix/backend/internal/memes"
	"github.com/memeflix/backend/internal/users"
	"github.com/memeflix/backend/internal/votes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// OpenSQLite establishes a SQLite connection with foreign keys enforced and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&memes.Meme{},
		&memes.Tag{},
		&memes.MemeTag{},
		&votes.Vote{},
		&favorites.Favorite{},
		&history.ViewEvent{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// withPragmas appends the connection pragmas to a file path or DSN.
func withPragmas(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") && path != ":memory:" {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + sqlitePragmas
}
