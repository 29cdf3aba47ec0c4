package database

import (
	"context"
	"errors"

	"github.com/jo-hoe/promptrank/internal/entry"
)

// ErrNotFound is returned for ids the store does not hold.
var ErrNotFound = errors.New("entry not found")

// DatabaseService persists entries. Implementations store copies, so callers may keep
// mutating the values they pass in or get back.
type DatabaseService interface {
	CreateDatabase() error
	DoesDatabaseExist() bool
	Close() error

	// CreateEntry inserts e. An empty id is replaced by a generated one; the stored
	// entry is returned.
	CreateEntry(ctx context.Context, e entry.Entry) (entry.Entry, error)
	GetEntryByID(ctx context.Context, id string) (entry.Entry, error)
	// GetEntries returns all entries, including soft-deleted ones, in insertion order.
	GetEntries(ctx context.Context) ([]entry.Entry, error)
	UpdateEntry(ctx context.Context, e entry.Entry) error
	// PurgeEntry physically removes a row. Curator deletes are soft and never call it.
	PurgeEntry(ctx context.Context, id string) error
}
