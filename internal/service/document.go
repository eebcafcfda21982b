// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take primitives and return domain values and apperror errors.
// They know nothing about HTTP, so the same logic serves the HTTP handlers
// and the cmd/snippet CLI.
//
// DEPENDENCY INJECTION:
// DocumentService takes a repository.DocumentRepository (interface), not a
// *sqlite.DB. Tests pass an in-memory fake (see document_test.go).
package service

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/content"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/repository"
)

const (
	MaxSlugLength    = 200
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// PageSection is one rendered part of a page: prose HTML or a playground.
type PageSection struct {
	HTML       template.HTML            `json:"html,omitempty"`
	Playground *content.PlaygroundBlock `json:"playground,omitempty"`
}

// Page is a document ready to be shown.
type Page struct {
	Document *model.Document `json:"document"`
	Sections []PageSection   `json:"sections"`
}

// Playgrounds returns the page's playground blocks in order.
func (p *Page) Playgrounds() []*content.PlaygroundBlock {
	var blocks []*content.PlaygroundBlock
	for _, s := range p.Sections {
		if s.Playground != nil {
			blocks = append(blocks, s.Playground)
		}
	}
	return blocks
}

// DocumentService serves the imported documentation pages.
type DocumentService struct {
	repo   repository.DocumentRepository
	logger *slog.Logger
}

func NewDocumentService(repo repository.DocumentRepository, logger *slog.Logger) *DocumentService {
	return &DocumentService{repo: repo, logger: logger}
}

// List returns a page of documents (without bodies) and the total count.
// Limit is clamped to 1..MaxListLimit; a negative offset becomes 0.
func (s *DocumentService) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list documents", slog.String("error", err.Error()))
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}
	return docs, total, nil
}

// Get returns a document by slug. Leading and trailing slashes are ignored,
// so "/basics/lists/" and "basics/lists" name the same page.
func (s *DocumentService) Get(ctx context.Context, slug string) (*model.Document, error) {
	slug, err := cleanSlug(slug)
	if err != nil {
		return nil, err
	}
	return s.repo.GetBySlug(ctx, slug)
}

// Page returns the document split into rendered prose and playgrounds.
func (s *DocumentService) Page(ctx context.Context, slug string) (*Page, error) {
	doc, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}

	page := &Page{Document: doc}
	for _, sec := range content.Split(doc.Body) {
		if sec.Playground != nil {
			page.Sections = append(page.Sections, PageSection{Playground: sec.Playground})
			continue
		}
		html, err := content.RenderMarkdown(sec.Markdown)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", doc.Slug, err)
		}
		page.Sections = append(page.Sections, PageSection{HTML: html})
	}
	return page, nil
}

// Block returns playground number index (0-based) of a document.
func (s *DocumentService) Block(ctx context.Context, slug string, index int) (*content.PlaygroundBlock, error) {
	doc, err := s.Get(ctx, slug)
	if err != nil {
		return nil, err
	}

	blocks := content.Playgrounds(doc.Body)
	if index < 0 || index >= len(blocks) {
		return nil, apperror.NotFound("playground", fmt.Sprintf("%s#%d", doc.Slug, index))
	}
	return blocks[index], nil
}

func cleanSlug(slug string) (string, error) {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return "", apperror.ValidationFailed("slug", "document slug is required")
	}
	if len(slug) > MaxSlugLength {
		return "", apperror.ValidationFailed("slug",
			fmt.Sprintf("document slug must be %d characters or less", MaxSlugLength))
	}
	if strings.Contains(slug, "..") {
		return "", apperror.ValidationFailed("slug", "document slug must not contain ..")
	}
	return slug, nil
}
