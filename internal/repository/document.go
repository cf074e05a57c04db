package repository

import (
	"context"

	"docsync/internal/model"
)

// DocumentRepository is the record store for pending documents.
// No business logic here, only persistence.
type DocumentRepository interface {
	// Create inserts a pending document record keyed by doc.ID.
	Create(ctx context.Context, doc *model.Document) error

	// FindByID returns a record by its ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindByFileName returns the most recent record with the given file name or ErrNotFound.
	FindByFileName(ctx context.Context, fileName string) (*model.Document, error)

	// List returns every pending record, oldest first.
	List(ctx context.Context) ([]model.Document, error)

	// Delete removes a record by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
