// Package store persists recording artifacts, classification history and
// trusted contacts through GORM.
package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chadiek/callscreen/internal/models"
)

// ErrNotFound is returned when an id or number has no row.
var ErrNotFound = errors.New("store: not found")

// Store is the record store.
type Store struct {
	db *gorm.DB
}

// Open connects using dsn. A "mysql://" prefix selects MySQL; anything else
// is treated as a SQLite path (":memory:" included).
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		dialector = mysql.Open(rest)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// AllModels lists the migrated tables.
func AllModels() []interface{} {
	return []interface{}{
		&models.RecordingArtifact{},
		&models.ClassificationRecord{},
		&models.Contact{},
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
