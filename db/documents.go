package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"go.uber.org/zap"
)

// CreateDocument stores data as a new document. The _id of data is used when
// present, otherwise one is generated. If a file already exists at the
// document's path, the write is retried once with that file's token.
func (m *Manager) CreateDocument(ctx context.Context, collection string, data core.Document) (core.Document, error) {
	if err := ValidateName("collection", collection); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, core.Errorf(core.ErrValidation, "create document", "document body must be an object")
	}

	id := GenerateID()
	if raw, ok := data[core.IDField]; ok {
		s, isString := raw.(string)
		if !isString {
			return nil, core.Errorf(core.ErrValidation, "create document", "%s must be a string", core.IDField)
		}
		if err := ValidateName("document id", s); err != nil {
			return nil, err
		}
		id = s
	}
	op := fmt.Sprintf("create document %s in %s", id, collection)

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	doc := core.NormalizeDocument(data.Clone())
	now := m.timestamp()
	doc[core.IDField] = id
	doc[core.CreatedAtField] = now
	doc[core.UpdatedAtField] = now

	content, err := core.EncodeDocument(doc)
	if err != nil {
		return nil, core.E(core.ErrValidation, op, err)
	}

	path := ResolvePath(collection, id)
	message := fmt.Sprintf("Create document %s in %s", id, collection)

	rev, err := session.Store.Put(ctx, path, content, message, "")
	if errors.Is(err, ps.ErrConflict) {
		m.logger.Debug("Document exists, retrying with current token", zap.String("collection", collection), zap.String("id", id))

		current, getErr := session.Store.Get(ctx, path)
		if getErr != nil {
			return nil, storeError(op, getErr)
		}
		rev, err = session.Store.Put(ctx, path, content, message, current.Token)
	}
	if err != nil {
		return nil, storeError(op, err)
	}

	m.cache.put(collection, id, rev.Token, doc)
	return doc, nil
}

// ReadDocument returns the document with the given id. A missing or
// unparseable file is reported as not found. The returned _id is always the
// id of the path, whatever the file holds.
func (m *Manager) ReadDocument(ctx context.Context, collection, id string) (core.Document, error) {
	doc, _, err := m.readVersioned(ctx, collection, id)
	return doc, err
}

func (m *Manager) readVersioned(ctx context.Context, collection, id string) (core.Document, string, error) {
	if err := ValidateName("collection", collection); err != nil {
		return nil, "", err
	}
	if err := ValidateName("document id", id); err != nil {
		return nil, "", err
	}
	op := fmt.Sprintf("read document %s in %s", id, collection)

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, "", err
	}

	obj, err := session.Store.Get(ctx, ResolvePath(collection, id))
	if err != nil {
		return nil, "", storeError(op, err)
	}
	if obj.IsDir() {
		return nil, "", core.Errorf(core.ErrNotFound, op, "path is a directory")
	}

	doc, err := core.DecodeDocument(obj.Content)
	if err != nil {
		return nil, "", core.E(core.ErrNotFound, op, err)
	}
	doc[core.IDField] = id

	m.cache.put(collection, id, obj.Token, doc)
	return doc, obj.Token, nil
}

// UpdateDocument merges patch over the stored document and writes it back
// with the token it was read with. The _id and createdAt fields are kept;
// updatedAt is refreshed.
func (m *Manager) UpdateDocument(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	if patch == nil {
		return nil, core.Errorf(core.ErrValidation, "update document", "patch must be an object")
	}

	current, token, err := m.readVersioned(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	return m.writeUpdate(ctx, session, collection, id, current, token, patch)
}

// writeUpdate applies patch to current and writes it to the path of id,
// conditionally on token.
func (m *Manager) writeUpdate(ctx context.Context, session *Session, collection, id string, current core.Document, token string, patch core.Document) (core.Document, error) {
	op := fmt.Sprintf("update document %s in %s", id, collection)

	doc := current.Merge(core.NormalizeDocument(patch.Clone()))
	doc[core.IDField] = id
	if createdAt, ok := current[core.CreatedAtField]; ok {
		doc[core.CreatedAtField] = createdAt
	}
	doc[core.UpdatedAtField] = m.timestamp()

	content, err := core.EncodeDocument(doc)
	if err != nil {
		return nil, core.E(core.ErrValidation, op, err)
	}

	message := fmt.Sprintf("Update document %s in %s", id, collection)
	rev, err := session.Store.Put(ctx, ResolvePath(collection, id), content, message, token)
	if err != nil {
		m.cache.remove(collection, id)
		return nil, storeError(op, err)
	}

	m.cache.put(collection, id, rev.Token, doc)
	return doc, nil
}

// DeleteDocument deletes the document with the token it currently has.
func (m *Manager) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := ValidateName("collection", collection); err != nil {
		return err
	}
	if err := ValidateName("document id", id); err != nil {
		return err
	}
	op := fmt.Sprintf("delete document %s in %s", id, collection)

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return err
	}

	path := ResolvePath(collection, id)
	obj, err := session.Store.Get(ctx, path)
	if err != nil {
		return storeError(op, err)
	}
	if obj.IsDir() {
		return core.Errorf(core.ErrNotFound, op, "path is a directory")
	}

	return m.deleteWithToken(ctx, session, collection, id, obj.Token)
}

func (m *Manager) deleteWithToken(ctx context.Context, session *Session, collection, id, token string) error {
	op := fmt.Sprintf("delete document %s in %s", id, collection)
	message := fmt.Sprintf("Delete document %s in %s", id, collection)

	defer m.cache.remove(collection, id)
	if err := session.Store.Delete(ctx, ResolvePath(collection, id), message, token); err != nil {
		return storeError(op, err)
	}
	return nil
}

// DocumentHistory returns the commits that touched a document, newest
// first. limit <= 0 means all of them. Stores without a commit log report a
// validation error.
func (m *Manager) DocumentHistory(ctx context.Context, collection, id string, limit int) ([]ps.Transaction, error) {
	if err := ValidateName("collection", collection); err != nil {
		return nil, err
	}
	if err := ValidateName("document id", id); err != nil {
		return nil, err
	}
	op := fmt.Sprintf("history of document %s in %s", id, collection)

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}
	h, ok := ps.AsHistorian(session.Store)
	if !ok {
		return nil, core.Errorf(core.ErrValidation, op, "the backing store keeps no history")
	}

	history, err := h.History(ResolvePath(collection, id), limit)
	if err != nil {
		return nil, storeError(op, err)
	}
	if len(history) == 0 {
		return nil, core.Errorf(core.ErrNotFound, op, "no commits touch %s", ResolvePath(collection, id))
	}
	return history, nil
}

// ListDocuments returns the ids of the documents in a collection, in listing
// order. A missing collection is empty.
func (m *Manager) ListDocuments(ctx context.Context, collection string) ([]string, error) {
	entries, err := m.listDocumentEntries(ctx, collection)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.id
	}
	return ids, nil
}

type documentEntry struct {
	id    string
	path  string
	token string
}

func (m *Manager) listDocumentEntries(ctx context.Context, collection string) ([]documentEntry, error) {
	if err := ValidateName("collection", collection); err != nil {
		return nil, err
	}
	op := "list documents in " + collection

	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := session.Store.Get(ctx, collection)
	if err != nil {
		if errors.Is(err, ps.ErrNotFound) {
			return []documentEntry{}, nil
		}
		return nil, storeError(op, err)
	}
	if !dir.IsDir() {
		return nil, core.Errorf(core.ErrNotFound, op, "%s is not a collection", collection)
	}

	entries := make([]documentEntry, 0, len(dir.Entries))
	for _, entry := range dir.Entries {
		if entry.Kind != ps.KindFile {
			continue
		}
		if id, ok := documentID(entry.Name); ok {
			entries = append(entries, documentEntry{id: id, path: entry.Path, token: entry.Token})
		}
	}
	return entries, nil
}
