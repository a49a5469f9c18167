package store

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cerebrum", "store")

// ErrNotFound is returned when the package is not in the store
var ErrNotFound = errors.New("store: package not found")

// LatestVersion is used when the version is not specified
const LatestVersion = "latest"

// PackageKey identifies a tool package
type PackageKey struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// GetVersion returns the version, or LatestVersion when not set
func (k PackageKey) GetVersion() string {
	if k.Version == "" {
		return LatestVersion
	}
	return k.Version
}

// String returns author/name/version
func (k PackageKey) String() string {
	return path.Join(k.Author, k.Name, k.GetVersion())
}

// Validate returns an error if the name is missing, or a part of the key
// is not a single path segment
func (k PackageKey) Validate() error {
	if k.Name == "" {
		return errors.New("store: package name is required")
	}
	for _, seg := range []string{k.Author, k.Name, k.Version} {
		if seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return errors.Errorf("store: invalid package key segment %q", seg)
		}
	}
	return nil
}

// Package is a downloaded tool package
type Package struct {
	PackageKey

	// Config is the raw tool manifest
	Config []byte `json:"config,omitempty"`
	// Files are the package files by relative path
	Files map[string][]byte `json:"files,omitempty"`
	// Dir is the folder the files were written to
	Dir       string    `json:"dir,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PackageStore caches tool packages.
// The keys namespace is `/<prefix>/tools/<author>/<name>/<version>`.
type PackageStore interface {
	Get(ctx context.Context, key PackageKey) (*Package, error)
	Put(ctx context.Context, pkg *Package) error
	Delete(ctx context.Context, key PackageKey) error
	// List returns the keys of stored packages, sorted
	List(ctx context.Context) ([]PackageKey, error)
}

func packagePath(prefix string, key PackageKey) string {
	return path.Join("/", prefix, "tools", key.Author, key.Name, key.GetVersion())
}
