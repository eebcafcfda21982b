// Package repository declares the storage interfaces the services depend on.
package repository

import (
	"context"

	"github.com/sakif/js2py-docs/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// DocumentRepository stores imported documentation pages. Slugs are unique.
type DocumentRepository interface {
	// Upsert inserts doc or updates the document with the same slug. The ID
	// and CreatedAt of an existing document are kept and copied into doc.
	Upsert(ctx context.Context, doc *model.Document) error
	GetBySlug(ctx context.Context, slug string) (*model.Document, error)
	// List returns documents ordered by slug, without their bodies.
	List(ctx context.Context, opts ListOptions) ([]model.Document, error)
	Count(ctx context.Context) (int, error)
	// DeleteExcept removes every document whose slug is not in keep and
	// returns how many were removed. An empty keep removes everything.
	DeleteExcept(ctx context.Context, keep []string) (int, error)
}
