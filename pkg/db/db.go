package db

import (
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	conn     *gorm.DB
	connOnce sync.Once
)

// Connection returns the process-wide GORM connection,
// opening it on first use according to the configured
// database type.
func Connection() *gorm.DB {
	connOnce.Do(func() {
		var err error

		switch env.Variables().DatabaseType {
		case "postgres":
			conn, err = gorm.Open(
				postgres.Open(env.Variables().DatabaseDSN),
				&gorm.Config{},
			)
		case "sqlite":
			fallthrough
		default:
			conn, err = gorm.Open(
				sqlite.Open(sqliteDSN(env.Variables().DatabasePath)),
				&gorm.Config{},
			)
		}

		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
	})

	return conn
}

// SetConnection overrides the process-wide connection,
// primarily for tests.
func SetConnection(db *gorm.DB) {
	connOnce.Do(func() {})
	conn = db
}

// Migrate applies the schema for all kasal models.
func Migrate() error {
	return Connection().AutoMigrate(models.All()...)
}

// IsConstraintViolation reports whether the error is a
// uniqueness or other constraint failure, which callers may
// treat as a conflict rather than an internal failure.
func IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func sqliteDSN(path string) string {
	if path == "" {
		return "file::memory:?cache=shared"
	}

	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}
