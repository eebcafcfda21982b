// Package assets fetches the files the heavyweight runtimes are built from
// (python.wasm, the editor bundle).
//
// A Store is opened from a base location:
//
//	/srv/assets or file:///srv/assets   → DirStore
//	https://cdn.example.com/pyodide      → HTTPStore
//	s3://bucket/prefix                   → S3Store (minio-go)
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a store has no file with the given name.
var ErrNotFound = errors.New("assets: not found")

// Store fetches named files relative to its base.
type Store interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	// Location describes the base for logs.
	Location() string
}

// S3Config holds the credentials used for s3:// bases.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Open returns the store for base.
func Open(base string, s3 S3Config) (Store, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, errors.New("assets: empty base location")
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// A plain path (a one-letter scheme is a Windows drive).
		return NewDirStore(base), nil
	}

	switch u.Scheme {
	case "file":
		return NewDirStore(u.Path), nil
	case "http", "https":
		return NewHTTPStore(base, nil), nil
	case "s3":
		return NewS3Store(s3, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("assets: unsupported scheme %q", u.Scheme)
	}
}

// cleanName rejects names that would escape the base.
func cleanName(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "", errors.New("assets: empty name")
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("assets: invalid name %q", name)
		}
	}
	return name, nil
}
