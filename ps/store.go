package ps

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not exist in the store.
	ErrNotFound = errors.New("object not found")
	// ErrConflict is returned when a write's version token does not match
	// the stored object, including a create over an existing object.
	ErrConflict = errors.New("version token mismatch")
)

// EntryKind distinguishes files from directories.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name  string
	Path  string
	Kind  EntryKind
	Token string // version token of a file entry, empty for directories
}

// Object is the result of Get: a file with its content and version token, or
// a directory with its entries.
type Object struct {
	Path    string
	Kind    EntryKind
	Content []byte
	Token   string
	Entries []Entry
}

// IsDir reports whether the object is a directory.
func (o *Object) IsDir() bool {
	return o != nil && o.Kind == KindDir
}

// Revision is returned by a successful write.
type Revision struct {
	Token  string // new version token of the written object
	Commit string // backend revision id (commit hash, S3 version id), may be empty
}

// Store is the backing-store contract: four primitives over a versioned,
// path-addressed file tree.
//
// Put with an empty token creates the object and fails with ErrConflict if
// it already exists. Put or Delete with a token succeed only when the token
// equals the object's current one.
type Store interface {
	Get(ctx context.Context, path string) (*Object, error)
	Put(ctx context.Context, path string, data []byte, message string, token string) (Revision, error)
	Delete(ctx context.Context, path string, message string, token string) error
	RepositoryExists(ctx context.Context, owner, repo string) (bool, error)
}

// Historian is implemented by stores that keep a commit log.
type Historian interface {
	LatestTransaction() Transaction
	History(path string, limit int) ([]Transaction, error)
}

// AsHistorian returns the Historian behind store, looking through wrappers
// that expose the store they decorate with Unwrap.
func AsHistorian(store Store) (Historian, bool) {
	for store != nil {
		if h, ok := store.(Historian); ok {
			return h, true
		}
		w, ok := store.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		store = w.Unwrap()
	}
	return nil, false
}

// cleanPath trims slashes so "users/", "/users" and "users" are the same.
func cleanPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// baseName returns the last element of a slash-separated path.
func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
