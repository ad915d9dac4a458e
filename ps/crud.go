package ps

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"go.uber.org/zap"
)

// Get reads a file or lists a directory at HEAD. The empty path lists the
// repository root.
func (persistence *Persistence) Get(ctx context.Context, path string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := persistence.ensureInitialized(); err != nil {
		return nil, err
	}

	persistence.mu.RLock()
	defer persistence.mu.RUnlock()

	path = cleanPath(path)

	tree, err := persistence.headTree()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		if path == "" {
			return &Object{Kind: KindDir}, nil
		}
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	if path == "" {
		entries, err := listEntries(tree, "")
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindDir, Entries: entries}, nil
	}

	entry, err := tree.FindEntry(path)
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}

	if !entry.Mode.IsFile() {
		entries, err := listEntries(tree, path)
		if err != nil {
			return nil, err
		}
		return &Object{Path: path, Kind: KindDir, Entries: entries}, nil
	}

	content, hash, err := readFile(tree, path)
	if err != nil {
		return nil, err
	}

	return &Object{
		Path:    path,
		Kind:    KindFile,
		Content: content,
		Token:   hash.String(),
	}, nil
}

// Put writes data to path in a single commit. The token must be the blob hash
// of the current file, or empty when the file must not exist yet.
func (persistence *Persistence) Put(ctx context.Context, path string, data []byte, message string, token string) (Revision, error) {
	if err := ctx.Err(); err != nil {
		return Revision{}, err
	}
	if err := persistence.ensureInitialized(); err != nil {
		return Revision{}, err
	}

	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	path = cleanPath(path)
	if path == "" {
		return Revision{}, fmt.Errorf("empty path")
	}

	if err := persistence.checkToken(path, token); err != nil {
		return Revision{}, err
	}

	blobHash, err := persistence.createBlob(data)
	if err != nil {
		return Revision{}, err
	}

	currentTree, err := persistence.getCurrentTree()
	if err != nil {
		return Revision{}, err
	}

	newTree, err := persistence.updateTreePath(currentTree, path, blobHash)
	if err != nil {
		return Revision{}, fmt.Errorf("failed to update tree: %w", err)
	}

	txn, err := persistence.commitTree(newTree, message)
	if err != nil {
		return Revision{}, err
	}

	persistence.logger.Debug("Wrote file", zap.String("path", path), zap.String("commit", txn.Id))

	return Revision{Token: blobHash.String(), Commit: txn.Id}, nil
}

// Delete removes the file at path in a single commit. The token must match
// the file's current blob hash.
func (persistence *Persistence) Delete(ctx context.Context, path string, message string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := persistence.ensureInitialized(); err != nil {
		return err
	}

	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	path = cleanPath(path)

	tree, err := persistence.headTree()
	if err != nil {
		return err
	}
	current, err := fileHash(tree, path)
	if err != nil {
		return err
	}
	if current == plumbing.ZeroHash {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if token != current.String() {
		return fmt.Errorf("%s: %w", path, ErrConflict)
	}

	newTree, err := persistence.deleteTreePath(tree.Hash, path)
	if err != nil {
		return fmt.Errorf("failed to update tree: %w", err)
	}

	txn, err := persistence.commitTree(newTree, message)
	if err != nil {
		return err
	}

	persistence.logger.Debug("Deleted file", zap.String("path", path), zap.String("commit", txn.Id))
	return nil
}

// RepositoryExists reports whether the repository is usable. A local
// repository has no owner; when it tracks a remote, the remote is pulled
// first so reads start from its latest state.
func (persistence *Persistence) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !persistence.IsInitialized() {
		return false, nil
	}

	persistence.mu.Lock()
	defer persistence.mu.Unlock()

	if persistence.remoteName != "" {
		if err := persistence.Pull(persistence.remoteName, "", persistence.auth); err != nil {
			persistence.logger.Warn("Pull failed", zap.String("remote", persistence.remoteName), zap.Error(err))
		}
	}

	return true, nil
}

// checkToken compares token with the blob hash currently at path.
func (persistence *Persistence) checkToken(path, token string) error {
	tree, err := persistence.headTree()
	if err != nil {
		return err
	}
	current, err := fileHash(tree, path)
	if err != nil {
		return err
	}

	switch {
	case token == "" && current != plumbing.ZeroHash:
		return fmt.Errorf("%s already exists: %w", path, ErrConflict)
	case token != "" && token != current.String():
		return fmt.Errorf("%s: %w", path, ErrConflict)
	}
	return nil
}
