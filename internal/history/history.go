// Package history persists conversation turns across invocations.
// The store is the only state with cross-invocation lifetime; it is
// append-only with FIFO eviction beyond a configured cap.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/taicli/tai/internal/core"
)

// Decisions recorded on a turn that proposed a command.
const (
	DecisionExecuted  = "executed"
	DecisionCancelled = "cancelled"
	DecisionCopied    = "copied"
)

// Turn is one persisted conversation turn: the user utterance, the model
// response, and, when a command was proposed, the user's decision and any
// captured execution result.
type Turn struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`

	Utterance string
	Response  string
	Command   string
	Decision  string
	ExitCode  sql.NullInt32
	Output    string
}

// Store is a SQLite-backed turn store. SQLite's own file locking provides
// the exclusive-append guarantee; an append is a single transaction and is
// either fully visible or absent on the next read.
type Store struct {
	db    *gorm.DB
	limit int
}

const historySchemaVersion = 1

// NewStore opens (creating if needed) the history database at dbFilePath.
// The limit caps the number of retained turns; the oldest are evicted
// first.
func NewStore(dbFilePath string, limit int) (*Store, error) {
	dbFileExists := true
	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		dbFileExists = false
	} else if err != nil {
		return nil, fmt.Errorf("error checking history db: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error opening history db: %w", err)
	}

	if needsMigration(dbFileExists, db, filepath.Dir(dbFilePath)) {
		if err := db.AutoMigrate(&Turn{}); err != nil {
			return nil, fmt.Errorf("error migrating history schema: %w", err)
		}
		if err := writeSchemaVersion(filepath.Dir(dbFilePath), historySchemaVersion); err != nil {
			return nil, fmt.Errorf("error writing history schema version: %w", err)
		}
	}

	if limit <= 0 {
		limit = 50
	}

	return &Store{db: db, limit: limit}, nil
}

func needsMigration(dbFileExists bool, db *gorm.DB, dir string) bool {
	if !dbFileExists {
		return true
	}

	versionMatches, err := schemaVersionMatches(dir)
	if err != nil || !versionMatches {
		return true
	}

	// If the version marker is present but the table is missing (corruption
	// or manual deletion), re-run migrations to restore the schema.
	return !db.Migrator().HasTable(&Turn{})
}

func writeSchemaVersion(dir string, version int) error {
	return os.WriteFile(schemaVersionPath(dir), []byte(strconv.Itoa(version)), 0644)
}

func schemaVersionMatches(dir string) (bool, error) {
	data, err := os.ReadFile(schemaVersionPath(dir))
	if err != nil {
		return false, err
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, err
	}
	if version != historySchemaVersion {
		return false, fmt.Errorf("history schema version mismatch: got %d, want %d", version, historySchemaVersion)
	}
	return true, nil
}

func schemaVersionPath(dir string) string {
	return filepath.Join(dir, "history_schema_version")
}

// DefaultPath returns the fixed user-config location of the history store.
func DefaultPath() string {
	return core.HistoryFile()
}

// Append adds a turn, evicting the oldest turns beyond the cap in the same
// transaction so the FIFO invariant holds even across a crash.
func (s *Store) Append(turn *Turn) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(turn); result.Error != nil {
			return result.Error
		}

		var count int64
		if result := tx.Model(&Turn{}).Count(&count); result.Error != nil {
			return result.Error
		}

		if excess := count - int64(s.limit); excess > 0 {
			var oldest []Turn
			if result := tx.Order("id asc").Limit(int(excess)).Find(&oldest); result.Error != nil {
				return result.Error
			}
			if result := tx.Delete(&oldest); result.Error != nil {
				return result.Error
			}
		}

		return nil
	})
}

// Recent returns the last min(n, stored) turns in chronological order
// (oldest first).
func (s *Store) Recent(n int) ([]Turn, error) {
	var turns []Turn
	result := s.db.Order("id desc").Limit(n).Find(&turns)
	if result.Error != nil {
		return nil, result.Error
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// RecentWithin returns the last min(n, stored) turns no older than the
// given window, chronological order. Used to keep stale interactions out
// of the prompt.
func (s *Store) RecentWithin(n int, window time.Duration) ([]Turn, error) {
	cutoff := time.Now().Add(-window)

	var turns []Turn
	result := s.db.Where("created_at > ?", cutoff).
		Order("id desc").
		Limit(n).
		Find(&turns)
	if result.Error != nil {
		return nil, result.Error
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Count returns the number of stored turns.
func (s *Store) Count() (int64, error) {
	var count int64
	result := s.db.Model(&Turn{}).Count(&count)
	return count, result.Error
}

// Clear removes all turns. Triggered only by explicit user request; the
// delete is a single statement, all-or-nothing.
func (s *Store) Clear() error {
	result := s.db.Exec("DELETE FROM turns")
	return result.Error
}
