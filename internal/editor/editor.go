// Package editor loads the code editor widget's static files once per
// process and serves them.
//
// The bundle is held by its own loader.Loader, separate from the Python
// interpreter's, so the two load concurrently and fail independently.
package editor

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sakif/js2py-docs/internal/assets"
)

// DefaultBase is where the editor files come from when nothing else is
// configured.
const DefaultBase = "https://cdn.jsdelivr.net/npm/monaco-editor@0.52.0"

// DefaultFiles is the minimal set needed to boot the editor.
var DefaultFiles = []string{
	"min/vs/loader.js",
	"min/vs/editor/editor.main.js",
	"min/vs/editor/editor.main.css",
	"min/vs/editor/editor.main.nls.js",
}

// File is one bundle file.
type File struct {
	Name        string
	Body        []byte
	ContentType string
	ETag        string
}

// Bundle is the loaded set of editor files.
type Bundle struct {
	files    map[string]*File
	loadedAt time.Time
	size     int
}

// Lookup returns the named file.
func (b *Bundle) Lookup(name string) (*File, bool) {
	f, ok := b.files[name]
	return f, ok
}

// Names lists the bundle's files in sorted order.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.files))
	for n := range b.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Size is the total byte size of the bundle.
func (b *Bundle) Size() int {
	return b.size
}

// LoadedAt is when the bundle finished loading.
func (b *Bundle) LoadedAt() time.Time {
	return b.loadedAt
}

// Load fetches every file from store. Any missing file fails the whole
// load.
func Load(ctx context.Context, store assets.Store, files []string) (*Bundle, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}

	b := &Bundle{files: make(map[string]*File, len(files))}
	for _, name := range files {
		body, err := store.Fetch(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("editor: loading %s from %s: %w", name, store.Location(), err)
		}
		b.files[name] = &File{
			Name:        name,
			Body:        body,
			ContentType: contentType(name),
			ETag:        `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`,
		}
		b.size += len(body)
	}
	b.loadedAt = time.Now()
	return b, nil
}

// Factory adapts Load to loader.Factory.
func Factory(store assets.Store, files []string) func(ctx context.Context) (*Bundle, error) {
	return func(ctx context.Context) (*Bundle, error) {
		return Load(ctx, store, files)
	}
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
