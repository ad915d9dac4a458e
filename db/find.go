package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"github.com/nickyhof/GitDB/query"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FindOptions limits the result of Find. Skip is applied before Limit; zero
// means no limit.
type FindOptions struct {
	Limit int
	Skip  int
}

// UpdateResult reports an UpdateMany.
type UpdateResult struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
}

// DeleteResult reports a DeleteMany.
type DeleteResult struct {
	Matched int `json:"matched"`
	Deleted int `json:"deleted"`
}

// match is a document found by a scan with the token it was read at.
type match struct {
	id    string
	doc   core.Document
	token string
}

// ParseQuery accepts a query.Query, a raw map or nil (match everything).
func ParseQuery(q any) (query.Query, error) {
	switch v := q.(type) {
	case nil:
		return query.All, nil
	case query.Query:
		return v, nil
	case *query.Query:
		if v == nil {
			return query.All, nil
		}
		return *v, nil
	case map[string]any:
		return query.Parse(v)
	case core.Document:
		return query.Parse(v)
	default:
		return query.Query{}, core.Errorf(core.ErrValidation, "parse query", "query must be an object, got %T", q)
	}
}

// scan reads every document of a collection and returns those matching q,
// in listing order. Reads run concurrently; cached documents are used when
// their token equals the one in the listing. Documents that vanish or fail
// to parse between listing and reading are skipped.
func (m *Manager) scan(ctx context.Context, collection string, q query.Query, limit int) ([]match, error) {
	op := "find documents in " + collection

	entries, err := m.listDocumentEntries(ctx, collection)
	if err != nil {
		return nil, err
	}
	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*match, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			doc, token, ok, err := m.loadEntry(gctx, session, collection, entry)
			if err != nil || !ok {
				return err
			}
			if q.Matches(doc) {
				results[i] = &match{id: entry.id, doc: doc, token: token}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError(op, err)
	}

	matches := make([]match, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		matches = append(matches, *r)
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (m *Manager) loadEntry(ctx context.Context, session *Session, collection string, entry documentEntry) (core.Document, string, bool, error) {
	if doc, ok := m.cache.get(collection, entry.id, entry.token); ok {
		return doc, entry.token, true, nil
	}

	obj, err := session.Store.Get(ctx, entry.path)
	if err != nil {
		if errors.Is(err, ps.ErrNotFound) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("read %s: %w", entry.path, err)
	}
	if obj.IsDir() {
		return nil, "", false, nil
	}

	doc, err := core.DecodeDocument(obj.Content)
	if err != nil {
		m.logger.Warn("Skipping malformed document", zap.String("path", entry.path), zap.Error(err))
		return nil, "", false, nil
	}
	doc[core.IDField] = entry.id

	m.cache.put(collection, entry.id, obj.Token, doc)
	return doc, obj.Token, true, nil
}

// FindDocuments returns every document of the collection matching q.
func (m *Manager) FindDocuments(ctx context.Context, collection string, q any) ([]core.Document, error) {
	return m.Find(ctx, collection, q, FindOptions{})
}

// Find returns the documents matching q, honoring opts.
func (m *Manager) Find(ctx context.Context, collection string, q any, opts FindOptions) ([]core.Document, error) {
	parsed, err := ParseQuery(q)
	if err != nil {
		return nil, err
	}
	if opts.Limit < 0 || opts.Skip < 0 {
		return nil, core.Errorf(core.ErrValidation, "find documents", "limit and skip must not be negative")
	}

	limit := 0
	if opts.Limit > 0 {
		limit = opts.Skip + opts.Limit
	}

	matches, err := m.scan(ctx, collection, parsed, limit)
	if err != nil {
		return nil, err
	}

	if opts.Skip >= len(matches) {
		return []core.Document{}, nil
	}
	matches = matches[opts.Skip:]

	docs := make([]core.Document, len(matches))
	for i, r := range matches {
		docs[i] = r.doc
	}
	return docs, nil
}

// FindOne returns the first document matching q, or a not found error.
func (m *Manager) FindOne(ctx context.Context, collection string, q any) (core.Document, error) {
	docs, err := m.Find(ctx, collection, q, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, core.Errorf(core.ErrNotFound, "find one in "+collection, "no document matches the query")
	}
	return docs[0], nil
}

// Count returns the number of documents matching q.
func (m *Manager) Count(ctx context.Context, collection string, q any) (int, error) {
	parsed, err := ParseQuery(q)
	if err != nil {
		return 0, err
	}
	matches, err := m.scan(ctx, collection, parsed, 0)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// UpdateMany applies patch to every document matching filter. Each document
// is written with the token it matched at, so a document changed after the
// scan is not updated. Failures are logged and left out of Modified.
func (m *Manager) UpdateMany(ctx context.Context, collection string, filter any, patch core.Document) (UpdateResult, error) {
	parsed, err := ParseQuery(filter)
	if err != nil {
		return UpdateResult{}, err
	}
	if patch == nil {
		return UpdateResult{}, core.Errorf(core.ErrValidation, "update documents", "update must be an object")
	}

	matches, err := m.scan(ctx, collection, parsed, 0)
	if err != nil {
		return UpdateResult{}, err
	}
	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return UpdateResult{}, err
	}

	result := UpdateResult{Matched: len(matches)}
	for _, r := range matches {
		if err := ctx.Err(); err != nil {
			return result, storeError("update documents in "+collection, err)
		}
		if _, err := m.writeUpdate(ctx, session, collection, r.id, r.doc, r.token, patch); err != nil {
			m.logger.Warn("Failed to update document", zap.String("collection", collection), zap.String("id", r.id), zap.Error(err))
			continue
		}
		result.Modified++
	}
	return result, nil
}

// DeleteMany deletes every document matching filter. Failures are logged and
// left out of Deleted.
func (m *Manager) DeleteMany(ctx context.Context, collection string, filter any) (DeleteResult, error) {
	parsed, err := ParseQuery(filter)
	if err != nil {
		return DeleteResult{}, err
	}

	matches, err := m.scan(ctx, collection, parsed, 0)
	if err != nil {
		return DeleteResult{}, err
	}
	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{Matched: len(matches)}
	for _, r := range matches {
		if err := ctx.Err(); err != nil {
			return result, storeError("delete documents in "+collection, err)
		}
		if err := m.deleteWithToken(ctx, session, collection, r.id, r.token); err != nil {
			m.logger.Warn("Failed to delete document", zap.String("collection", collection), zap.String("id", r.id), zap.Error(err))
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// Distinct returns the distinct values of field across the documents
// matching q, in order of first appearance. Documents without the field are
// ignored.
func (m *Manager) Distinct(ctx context.Context, collection, field string, q any) ([]any, error) {
	if field == "" {
		return nil, core.Errorf(core.ErrValidation, "distinct", "field must not be empty")
	}
	parsed, err := ParseQuery(q)
	if err != nil {
		return nil, err
	}

	matches, err := m.scan(ctx, collection, parsed, 0)
	if err != nil {
		return nil, err
	}

	values := []any{}
	for _, r := range matches {
		v, ok := query.Lookup(r.doc, field)
		if !ok || containsValue(values, v) {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}

func containsValue(values []any, v any) bool {
	for _, existing := range values {
		if reflect.DeepEqual(existing, v) {
			return true
		}
	}
	return false
}
