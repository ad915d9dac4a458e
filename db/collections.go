package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"go.uber.org/zap"
)

const readme = `# GitDB

This repository is a GitDB database. Each directory is a collection and each
JSON file in it is one document, named after its _id.

Edit documents through GitDB so that version checks keep concurrent writers
from overwriting each other.
`

// InitializeDatabase writes the README marker at the repository root. An
// existing README is left alone.
func (m *Manager) InitializeDatabase(ctx context.Context) error {
	const op = "initialize database"

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	_, err = session.Store.Put(ctx, readmePath, []byte(readme), "Initialize database", "")
	if err != nil && !errors.Is(err, ps.ErrConflict) {
		return storeError(op, err)
	}
	return nil
}

// CreateCollection writes the marker file that makes an empty collection
// visible. Creating an existing collection succeeds.
func (m *Manager) CreateCollection(ctx context.Context, name string) error {
	if err := ValidateName("collection", name); err != nil {
		return err
	}
	op := "create collection " + name

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	_, err = session.Store.Put(ctx, name+"/"+markerName, nil, "Create collection "+name, "")
	if err != nil && !errors.Is(err, ps.ErrConflict) {
		return storeError(op, err)
	}

	m.logger.Debug("Created collection", zap.String("collection", name))
	return nil
}

// ListCollections returns the names of the directories at the repository
// root, skipping hidden ones.
func (m *Manager) ListCollections(ctx context.Context) ([]string, error) {
	const op = "list collections"

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	root, err := session.Store.Get(ctx, "")
	if err != nil {
		if errors.Is(err, ps.ErrNotFound) {
			return []string{}, nil
		}
		return nil, storeError(op, err)
	}

	names := []string{}
	for _, entry := range root.Entries {
		if entry.Kind == ps.KindDir && !strings.HasPrefix(entry.Name, ".") {
			names = append(names, entry.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection deletes every file in the collection, including files in
// nested directories, one commit each. It is not atomic: when a delete fails
// the remaining files are still attempted, and files already deleted stay
// deleted.
func (m *Manager) DeleteCollection(ctx context.Context, name string) error {
	if err := ValidateName("collection", name); err != nil {
		return err
	}
	op := "delete collection " + name

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	dir, err := session.Store.Get(ctx, name)
	if err != nil {
		return storeError(op, err)
	}
	if !dir.IsDir() {
		return core.Errorf(core.ErrNotFound, op, "%s is not a collection", name)
	}

	defer m.cache.purgeCollection(name)

	deleted, errs := m.deleteTree(ctx, session, name, dir)
	if len(errs) > 0 {
		return core.E(core.ErrStorage, op, fmt.Errorf("%d of %d files not deleted: %w", len(errs), len(errs)+deleted, errors.Join(errs...)))
	}

	m.logger.Debug("Deleted collection", zap.String("collection", name), zap.Int("files", deleted))
	return nil
}

// deleteTree deletes the files below dir, descending into subdirectories.
func (m *Manager) deleteTree(ctx context.Context, session *Session, collection string, dir *ps.Object) (int, []error) {
	var errs []error
	deleted := 0
	for _, entry := range dir.Entries {
		if err := ctx.Err(); err != nil {
			return deleted, append(errs, err)
		}

		if entry.Kind == ps.KindDir {
			sub, err := session.Store.Get(ctx, entry.Path)
			if err != nil {
				if errors.Is(err, ps.ErrNotFound) {
					continue
				}
				errs = append(errs, fmt.Errorf("%s: %w", entry.Path, err))
				continue
			}
			n, subErrs := m.deleteTree(ctx, session, collection, sub)
			deleted += n
			errs = append(errs, subErrs...)
			continue
		}

		message := "Delete collection " + collection
		if id, ok := documentID(entry.Name); ok && entry.Path == ResolvePath(collection, id) {
			message = fmt.Sprintf("Delete document %s in %s", id, collection)
		}

		if err := session.Store.Delete(ctx, entry.Path, message, entry.Token); err != nil {
			m.logger.Warn("Failed to delete file", zap.String("collection", collection), zap.String("path", entry.Path), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", entry.Path, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}
