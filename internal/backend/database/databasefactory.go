package database

import (
	"fmt"
	"log/slog"
)

func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	case "memory", "":
		database = NewMemoryDatabase()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Idempotent; an in-memory SQLite database starts empty on every open.
	slog.Info("initializing database schema", "type", databaseType)
	if err = database.CreateDatabase(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
