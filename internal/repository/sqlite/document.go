package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/repository"
)

var _ repository.DocumentRepository = (*DB)(nil)

// Upsert inserts or updates a document keyed by slug.
//
// ON CONFLICT ... DO UPDATE:
// Unlike INSERT OR REPLACE, which deletes the old row, an upsert updates the
// row in place, so the id and created_at of an existing page survive a
// re-import. RETURNING hands back the canonical id and created_at in the same
// statement.
func (db *DB) Upsert(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO documents (id, slug, title, description, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(slug) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			body = excluded.body,
			updated_at = excluded.updated_at
		 RETURNING id, created_at`,
		xid.New().String(),
		doc.Slug,
		doc.Title,
		doc.Description,
		doc.Body,
		now,
		now,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: upserting document %s: %w", doc.Slug, err)
	}

	doc.UpdatedAt = now
	return nil
}

// GetBySlug retrieves a single document, body included.
func (db *DB) GetBySlug(ctx context.Context, slug string) (*model.Document, error) {
	var doc model.Document

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, slug, title, description, body, created_at, updated_at
		 FROM documents
		 WHERE slug = ?`,
		slug,
	).Scan(
		&doc.ID,
		&doc.Slug,
		&doc.Title,
		&doc.Description,
		&doc.Body,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("document", slug)
		}
		return nil, fmt.Errorf("sqlite: getting document %s: %w", slug, err)
	}

	return &doc, nil
}

// List returns a page of documents ordered by slug. Bodies are left out;
// the index page only needs titles.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, slug, title, description, created_at, updated_at
		 FROM documents
		 ORDER BY slug
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]model.Document, 0, limit)
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(
			&d.ID, &d.Slug, &d.Title, &d.Description,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating documents: %w", err)
	}

	return docs, nil
}

// Count returns the number of stored documents.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting documents: %w", err)
	}
	return n, nil
}

// DeleteExcept removes the documents a re-import no longer produced, so a
// page deleted from the content directory disappears from the site.
func (db *DB) DeleteExcept(ctx context.Context, keep []string) (int, error) {
	query := `DELETE FROM documents`
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += ` WHERE slug NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for i, slug := range keep {
			args[i] = slug
		}
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning documents: %w", err)
	}
	return int(n), nil
}
