package db

import (
	"context"
	"testing"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"github.com/nickyhof/GitDB/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type M = map[string]any

func seedUsers(t *testing.T, m *Manager) {
	t.Helper()
	users := []core.Document{
		{"_id": "u1", "name": "Ann", "age": 25, "city": "Oslo"},
		{"_id": "u2", "name": "Bob", "age": 30, "city": "Bergen"},
		{"_id": "u3", "name": "Cid", "age": 25, "city": "Oslo"},
		{"_id": "u4", "name": "Dee", "age": 40},
	}
	for _, u := range users {
		_, err := m.CreateDocument(context.Background(), "users", u)
		require.NoError(t, err)
	}
}

func ids(docs []core.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}

func TestFind(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	docs, err := m.Find(ctx, "users", M{"city": "Oslo"}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, ids(docs))

	docs, err = m.Find(ctx, "users", M{"age": M{"$gt": 25}}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u4"}, ids(docs))

	docs, err = m.Find(ctx, "users", query.MustParse(M{"city": M{"$exists": false}}), FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u4"}, ids(docs))

	docs, err = m.Find(ctx, "users", nil, FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 4)

	docs, err = m.Find(ctx, "empty", nil, FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFindLimitAndSkip(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	docs, err := m.Find(ctx, "users", nil, FindOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids(docs))

	docs, err = m.Find(ctx, "users", nil, FindOptions{Limit: 2, Skip: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, ids(docs))

	docs, err = m.Find(ctx, "users", nil, FindOptions{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = m.Find(ctx, "users", nil, FindOptions{Limit: -1})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFindInvalidQuery(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Find(ctx, "users", M{"age": M{"$between": A{1, 2}}}, FindOptions{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = m.Count(ctx, "users", "age > 3")
	assert.ErrorIs(t, err, core.ErrValidation)
}

type A = []any

func TestFindOne(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	doc, err := m.FindOne(ctx, "users", M{"age": 25})
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID())

	_, err = m.FindOne(ctx, "users", M{"age": 99})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCount(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)

	n, err := m.Count(context.Background(), "users", M{"name": M{"$regex": "^[AB]"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDistinct(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	values, err := m.Distinct(ctx, "users", "age", M{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{25.0, 30.0, 40.0}, values)

	values, err = m.Distinct(ctx, "users", "city", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"Oslo", "Bergen"}, values)

	_, err = m.Distinct(ctx, "users", "", nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestUpdateMany(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	result, err := m.UpdateMany(ctx, "users", M{"city": "Oslo"}, core.Document{"region": "east"})
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 2, Modified: 2}, result)

	docs, err := m.Find(ctx, "users", M{"region": "east"}, FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, ids(docs))
	for _, d := range docs {
		assert.Equal(t, "Oslo", d["city"])
	}
}

func TestUpdateManyIsolatesFailures(t *testing.T) {
	m, store := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	store.beforePut = func(path, token string) error {
		if path == ResolvePath("users", "u3") {
			return ps.ErrConflict
		}
		return nil
	}

	result, err := m.UpdateMany(ctx, "users", M{"city": "Oslo"}, core.Document{"region": "east"})
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 2, Modified: 1}, result)

	n, err := m.Count(ctx, "users", M{"region": "east"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateManyInvalidPatch(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.UpdateMany(context.Background(), "users", nil, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDeleteMany(t *testing.T) {
	m, _ := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	result, err := m.DeleteMany(ctx, "users", M{"age": 25})
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Matched: 2, Deleted: 2}, result)

	remaining, err := m.ListDocuments(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u4"}, remaining)
}

func TestDeleteManyReadsExternalChanges(t *testing.T) {
	m, store := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	// u1 changes behind the manager's back after it was cached; the scan
	// sees the new token in the listing and reads the fresh content.
	obj, err := store.Store.Get(ctx, "users/u1.json")
	require.NoError(t, err)
	_, err = store.Store.Put(ctx, "users/u1.json", []byte(`{"_id":"u1","age":25,"pinned":true}`), "external", obj.Token)
	require.NoError(t, err)

	result, err := m.DeleteMany(ctx, "users", M{"age": 25})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Deleted)

	_, err = m.ReadDocument(ctx, "users", "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestScanUsesCacheOnlyForCurrentTokens(t *testing.T) {
	m, store := newTestManager(t)
	seedUsers(t, m)
	ctx := context.Background()

	// Every document was cached when it was written.
	store.reset()
	docs, err := m.Find(ctx, "users", nil, FindOptions{})
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	gets, _ := store.counts()
	assert.Equal(t, 1, gets, "only the directory listing should be read")

	// An external write changes the token, so the entry is not served.
	obj, err := store.Store.Get(ctx, "users/u2.json")
	require.NoError(t, err)
	_, err = store.Store.Put(ctx, "users/u2.json", []byte(`{"_id":"u2","name":"Bobby","age":30}`), "external", obj.Token)
	require.NoError(t, err)

	store.reset()
	doc, err := m.FindOne(ctx, "users", M{"_id": "u2"})
	require.NoError(t, err)
	assert.Equal(t, "Bobby", doc["name"])
	gets, _ = store.counts()
	assert.Equal(t, 2, gets)
}

func TestScanWithoutCache(t *testing.T) {
	m, store := newTestManager(t, WithCache(0, 0), WithConcurrency(2))
	seedUsers(t, m)

	store.reset()
	n, err := m.Count(context.Background(), "users", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	gets, _ := store.counts()
	assert.Equal(t, 5, gets)
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(nil)
	require.NoError(t, err)
	assert.True(t, q.IsEmpty())

	q, err = ParseQuery(core.Document{"a": 1})
	require.NoError(t, err)
	assert.Len(t, q.Fields(), 1)

	_, err = ParseQuery([]any{1})
	assert.ErrorIs(t, err, core.ErrValidation)
}
