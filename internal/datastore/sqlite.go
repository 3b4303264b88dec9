package datastore

import (
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pdetect/pdetect-go/internal/conf"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.Output.SQLite.Path == "" {
		return fmt.Errorf("SQLite output requires a database path")
	}
	return nil
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	dir, fileName := filepath.Split(store.Settings.Output.SQLite.Path)
	absoluteFilePath := store.Settings.Output.SQLite.Path
	if dir != "" {
		basePath := conf.GetBasePath(dir)
		absoluteFilePath = filepath.Join(basePath, fileName)
	}

	// Create a new GORM logger
	newLogger := createGormLogger()

	// Open the SQLite database. SQLite does not enforce foreign keys unless
	// asked, and the run/result constraint depends on it.
	dsn := absoluteFilePath + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newLogger})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", absoluteFilePath)
}

func (store *SQLiteStore) Close() error {
	// Handle close specific to SQLite
	return nil
}
