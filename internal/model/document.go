// Package model defines the data structures shared across the application.
package model

import "time"

// Document is one documentation page imported from the content directory.
//
// Slug is the page path relative to the content root without its extension,
// e.g. "basics/variables" for content/docs/basics/variables.mdx. Body keeps the
// raw markdown (frontmatter stripped) so pages can be re-rendered and their
// playground blocks re-extracted on demand.
type Document struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Body        string    `json:"body,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
