package db

import (
	"strings"

	"github.com/google/uuid"
	"github.com/nickyhof/GitDB/core"
)

const (
	readmePath = "README.md"
	markerName = ".gitkeep"
)

// ResolvePath returns the storage path of a document.
func ResolvePath(collection, id string) string {
	return collection + "/" + id + core.DocumentExt
}

// GenerateID returns a new random document id (UUIDv4).
func GenerateID() string {
	return uuid.NewString()
}

// ValidateName checks a collection name or document id. Names become path
// segments, so separators, parent references and leading dots are rejected.
func ValidateName(kind, name string) error {
	op := "validate " + kind
	switch {
	case name == "":
		return core.Errorf(core.ErrValidation, op, "%s must not be empty", kind)
	case strings.ContainsAny(name, `/\`):
		return core.Errorf(core.ErrValidation, op, "%s %q must not contain path separators", kind, name)
	case strings.Contains(name, ".."):
		return core.Errorf(core.ErrValidation, op, "%s %q must not contain \"..\"", kind, name)
	case strings.HasPrefix(name, "."):
		return core.Errorf(core.ErrValidation, op, "%s %q must not start with \".\"", kind, name)
	}
	return nil
}

// documentID strips the document extension from a listing entry name. It
// reports false for entries that are not documents, such as the collection
// marker.
func documentID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, core.DocumentExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, core.DocumentExt)
	return id, id != ""
}
