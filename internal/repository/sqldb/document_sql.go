// Package sqldb implements repository.DocumentRepository on database/sql.
// The same queries serve SQLite and PostgreSQL; placeholders are rebound per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docsync/internal/database"
	"docsync/internal/model"
	"docsync/internal/repository"
)

const columns = `id, file_name, entry, data_uri, timestamp`

// DocumentStore is a SQL implementation of repository.DocumentRepository.
// It uses parameterized queries and contains no business logic.
type DocumentStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewDocumentStore creates a new DocumentStore repository.
func NewDocumentStore(db *sql.DB, dialect database.Dialect) *DocumentStore {
	return &DocumentStore{db: db, dialect: dialect}
}

var _ repository.DocumentRepository = (*DocumentStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.Document, error) {
	var (
		d     model.Document
		entry string
		ts    int64
	)
	if err := row.Scan(&d.ID, &d.FileName, &entry, &d.DataURI, &ts); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(entry), &d.Metadata); err != nil {
		return nil, fmt.Errorf("decode entry for %s: %w", d.ID, err)
	}
	d.Timestamp = time.UnixMilli(ts).UTC()
	return &d, nil
}

// Create inserts a new pending document row.
func (r *DocumentStore) Create(ctx context.Context, doc *model.Document) error {
	entry, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	q := r.dialect.Rebind(`INSERT INTO pending_documents (` + columns + `) VALUES (?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, q,
		doc.ID,
		doc.FileName,
		string(entry),
		doc.DataURI,
		doc.Timestamp.UnixMilli(),
	)
	return err
}

// FindByID fetches a single record by its ID.
func (r *DocumentStore) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := r.dialect.Rebind(`SELECT ` + columns + ` FROM pending_documents WHERE id = ?`)
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// FindByFileName fetches the newest record stored under fileName.
func (r *DocumentStore) FindByFileName(ctx context.Context, fileName string) (*model.Document, error) {
	q := r.dialect.Rebind(`SELECT ` + columns + ` FROM pending_documents WHERE file_name = ? ORDER BY timestamp DESC, id DESC LIMIT 1`)
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, fileName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return d, err
}

// List returns all pending records ordered by creation time.
func (r *DocumentStore) List(ctx context.Context) ([]model.Document, error) {
	const q = `SELECT ` + columns + ` FROM pending_documents ORDER BY timestamp ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes a record by ID. It does not return an error if the row does not exist.
func (r *DocumentStore) Delete(ctx context.Context, id string) error {
	q := r.dialect.Rebind(`DELETE FROM pending_documents WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// Ping checks the database connection.
func (r *DocumentStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
