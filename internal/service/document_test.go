package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/model"
)

const listsBody = "# Lists\n\nPython lists are JavaScript arrays.\n\n" +
	"<PythonEditor title=\"Append\" compare>\n" +
	"```python\nxs = [1]\nxs.append(2)\nprint(xs)\n```\n" +
	"```js\nconst xs = [1];\nxs.push(2);\nconsole.log(xs);\n```\n" +
	"</PythonEditor>\n\n" +
	"More prose.\n\n" +
	"<PythonEditor>\n```python\nprint(len([1, 2]))\n```\n</PythonEditor>\n"

func sampleDocs() []model.Document {
	return []model.Document{
		{ID: "d1", Slug: "basics/lists", Title: "Lists", Body: listsBody},
		{ID: "d2", Slug: "basics/strings", Title: "Strings", Body: "# Strings\n"},
		{ID: "d3", Slug: "intro", Title: "Intro", Body: "Welcome."},
	}
}

func TestDocumentService_List(t *testing.T) {
	svc := NewDocumentService(newFakeDocRepo(sampleDocs()...), quietLogger())

	docs, total, err := svc.List(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, docs, 2)
	assert.Equal(t, "basics/lists", docs[0].Slug)
	assert.Empty(t, docs[0].Body)

	docs, _, err = svc.List(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Len(t, docs, 3, "non-positive limit falls back to the default")
}

func TestDocumentService_ListError(t *testing.T) {
	repo := newFakeDocRepo()
	repo.err = errors.New("disk on fire")
	svc := NewDocumentService(repo, quietLogger())

	_, _, err := svc.List(context.Background(), 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing documents")
}

func TestDocumentService_Get(t *testing.T) {
	svc := NewDocumentService(newFakeDocRepo(sampleDocs()...), quietLogger())

	doc, err := svc.Get(context.Background(), "/basics/lists/")
	require.NoError(t, err)
	assert.Equal(t, "Lists", doc.Title)

	tests := []struct {
		name string
		slug string
		want error
	}{
		{name: "empty", slug: "  ", want: apperror.ErrValidation},
		{name: "traversal", slug: "../etc/passwd", want: apperror.ErrValidation},
		{name: "too long", slug: strings.Repeat("a", MaxSlugLength+1), want: apperror.ErrValidation},
		{name: "missing", slug: "nope", want: apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Get(context.Background(), tt.slug)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDocumentService_Page(t *testing.T) {
	svc := NewDocumentService(newFakeDocRepo(sampleDocs()...), quietLogger())

	page, err := svc.Page(context.Background(), "basics/lists")
	require.NoError(t, err)
	require.Len(t, page.Sections, 4)

	assert.Contains(t, string(page.Sections[0].HTML), "<h1")
	assert.Contains(t, string(page.Sections[0].HTML), "JavaScript arrays")

	first := page.Sections[1].Playground
	require.NotNil(t, first)
	assert.Equal(t, "Append", first.Title)
	assert.True(t, first.Compare)
	assert.Contains(t, first.Snippets.Python, "xs.append(2)")
	assert.Contains(t, first.Snippets.JavaScript, "xs.push(2)")

	assert.Contains(t, string(page.Sections[2].HTML), "More prose.")

	blocks := page.Playgrounds()
	require.Len(t, blocks, 2)
	assert.Equal(t, 1, blocks[1].Index)
	assert.Empty(t, blocks[1].Snippets.JavaScript)
}

func TestDocumentService_Block(t *testing.T) {
	svc := NewDocumentService(newFakeDocRepo(sampleDocs()...), quietLogger())

	b, err := svc.Block(context.Background(), "basics/lists", 1)
	require.NoError(t, err)
	assert.Equal(t, "print(len([1, 2]))", strings.TrimSpace(b.Snippets.Python))

	_, err = svc.Block(context.Background(), "basics/lists", 2)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.Block(context.Background(), "basics/lists", -1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.Block(context.Background(), "intro", 0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
