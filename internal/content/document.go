// Package content turns the markdown/MDX files under the content directory
// into documents and splits document bodies into prose and playgrounds.
package content

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/adrg/frontmatter"

	"github.com/sakif/js2py-docs/internal/model"
)

// Meta is the frontmatter of a documentation page.
type Meta struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Extensions lists the file types imported as documents.
var Extensions = []string{".md", ".mdx"}

// ParseDocument reads one page. The title comes from the frontmatter, then
// from the first level-one heading, then from the slug.
func ParseDocument(slug string, r io.Reader) (*model.Document, error) {
	var meta Meta
	body, err := frontmatter.Parse(r, &meta)
	if err != nil {
		return nil, fmt.Errorf("content: parsing frontmatter of %s: %w", slug, err)
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = path.Base(slug)
	}

	return &model.Document{
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(meta.Description),
		Body:        string(body),
	}, nil
}

func firstHeading(body []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// SlugFor maps a file path relative to the content root to its slug:
// "basics/lists.mdx" → "basics/lists". It reports false for files that are
// not documents.
func SlugFor(rel string) (string, bool) {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	ext := path.Ext(rel)
	for _, e := range Extensions {
		if strings.EqualFold(ext, e) {
			return strings.TrimSuffix(rel, ext), true
		}
	}
	return "", false
}

// Scan parses every document in fsys.
func Scan(fsys fs.FS) ([]*model.Document, error) {
	var docs []*model.Document
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		slug, ok := SlugFor(p)
		if !ok {
			return nil
		}

		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("content: opening %s: %w", p, err)
		}
		defer f.Close()

		doc, err := ParseDocument(slug, f)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
