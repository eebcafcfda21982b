package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/sakif/js2py-docs/internal/model"
)

// Upserter is the part of the document repository the importer needs.
type Upserter interface {
	Upsert(ctx context.Context, doc *model.Document) error
}

// Pruner is implemented by stores that can drop documents the content
// directory no longer has. The importer prunes when the store supports it.
type Pruner interface {
	DeleteExcept(ctx context.Context, keep []string) (int, error)
}

// Importer loads the content directory into the document store.
type Importer struct {
	store  Upserter
	logger *slog.Logger
}

func NewImporter(store Upserter, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// Import scans fsys and upserts every document by slug, then removes stored
// documents whose file is gone. It returns the number of documents imported.
func (im *Importer) Import(ctx context.Context, fsys fs.FS) (int, error) {
	docs, err := Scan(fsys)
	if err != nil {
		return 0, err
	}

	slugs := make([]string, 0, len(docs))
	for _, doc := range docs {
		slugs = append(slugs, doc.Slug)
		if err := im.store.Upsert(ctx, doc); err != nil {
			return 0, fmt.Errorf("content: importing %s: %w", doc.Slug, err)
		}
		im.logger.Debug("document imported",
			slog.String("slug", doc.Slug),
			slog.Int("playgrounds", len(Playgrounds(doc.Body))),
		)
	}

	if p, ok := im.store.(Pruner); ok {
		removed, err := p.DeleteExcept(ctx, slugs)
		if err != nil {
			return 0, fmt.Errorf("content: pruning: %w", err)
		}
		if removed > 0 {
			im.logger.Info("stale documents removed", slog.Int("removed", removed))
		}
	}

	im.logger.Info("content imported", slog.Int("documents", len(docs)))
	return len(docs), nil
}
