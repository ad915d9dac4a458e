package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/GitDB"
	"github.com/nickyhof/GitDB/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T, authConfig *AuthConfig) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendMemory

	registry := prometheus.NewRegistry()
	instance, err := GitDB.Open(cfg, GitDB.WithRegisterer(registry))
	require.NoError(t, err)

	return NewServer(instance, authConfig, registry, nil)
}

// do sends a request through the router and decodes the JSON response into
// out when it is non-nil.
func do(t *testing.T, s *Server, method, path, body string, out any, headers ...string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestInfoAndHealth(t *testing.T) {
	s := setupTestServer(t, nil)

	var info InfoResponse
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/api/v1", "", &info))
	assert.Equal(t, "GitDB API", info.Name)
	assert.Contains(t, info.Endpoints, "collections")

	var health HealthResponse
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/health", "", &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Connected)
}

func TestConnectStatusDisconnect(t *testing.T) {
	s := setupTestServer(t, nil)

	var status StatusResponse
	do(t, s, "GET", "/api/v1/collections/status", "", &status)
	assert.False(t, status.Connected)
	assert.Nil(t, status.Database)

	var errResp ErrorResponse
	code := do(t, s, "POST", "/api/v1/collections/connect", `{"token":"t"}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, errResp.Code)

	var connected ConnectResponse
	code = do(t, s, "POST", "/api/v1/collections/connect", `{"token":"t","owner":"acme","repo":"data"}`, &connected)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, connected.Success)
	assert.Equal(t, Database{Owner: "acme", Repo: "data"}, connected.Database)

	do(t, s, "GET", "/api/v1/collections/status", "", &status)
	assert.True(t, status.Connected)
	require.NotNil(t, status.Database)
	assert.Equal(t, "acme", status.Database.Owner)
	assert.NotEmpty(t, status.ConnectedAt)

	assert.Equal(t, http.StatusOK, do(t, s, "POST", "/api/v1/collections/disconnect", "", nil))

	status = StatusResponse{}
	do(t, s, "GET", "/api/v1/collections/status", "", &status)
	assert.False(t, status.Connected)

	code = do(t, s, "GET", "/api/v1/collections", "", &errResp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCollectionEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)

	var created MessageResponse
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/collections", `{"name":"users"}`, &created))
	assert.True(t, created.Success)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/api/v1/collections", `{}`, &errResp))
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", "/api/v1/collections", `{"name":"../etc"}`, &errResp))

	var list CollectionsResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/api/v1/collections", "", &list))
	assert.Equal(t, []string{"users"}, list.Collections)
	assert.Equal(t, 1, list.Count)

	do(t, s, "POST", "/api/v1/collections/users/documents", `{"_id":"u1","name":"Alice"}`, nil)

	var info CollectionResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/api/v1/collections/users", "", &info))
	assert.Equal(t, 1, info.DocumentCount)
	assert.Equal(t, []string{"u1"}, info.Documents)

	require.Equal(t, http.StatusOK, do(t, s, "DELETE", "/api/v1/collections/users", "", nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, "DELETE", "/api/v1/collections/users", "", &errResp))
	assert.Equal(t, "Not Found", errResp.Error)
}

func TestDocumentEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	base := "/api/v1/collections/users/documents"

	var created DocumentResponse
	require.Equal(t, http.StatusCreated, do(t, s, "POST", base, `{"name":"Alice","age":30}`, &created))
	id := created.Document.ID()
	require.NotEmpty(t, id)
	assert.Equal(t, 30.0, created.Document["age"])
	assert.NotEmpty(t, created.Document["createdAt"])

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", base, `[1,2]`, &errResp))

	var got DocumentResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", base+"/"+id, "", &got))
	assert.Equal(t, "Alice", got.Document["name"])

	var updated DocumentResponse
	require.Equal(t, http.StatusOK, do(t, s, "PUT", base+"/"+id, `{"age":31,"_id":"other"}`, &updated))
	assert.Equal(t, 31.0, updated.Document["age"])
	assert.Equal(t, id, updated.Document.ID())
	assert.Equal(t, created.Document["createdAt"], updated.Document["createdAt"])

	var ids DocumentIDsResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", base, "", &ids))
	assert.Equal(t, []string{id}, ids.Documents)

	require.Equal(t, http.StatusOK, do(t, s, "DELETE", base+"/"+id, "", nil))
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", base+"/"+id, "", &errResp))
	assert.Equal(t, http.StatusNotFound, do(t, s, "DELETE", base+"/"+id, "", &errResp))
}

func seed(t *testing.T, s *Server) {
	t.Helper()
	for _, doc := range []string{
		`{"_id":"u1","name":"Alice","age":25,"city":"Oslo"}`,
		`{"_id":"u2","name":"Bob","age":30,"city":"Bergen"}`,
		`{"_id":"u3","name":"Carol","age":25,"city":"Oslo"}`,
		`{"_id":"u4","name":"Dave","age":40}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/collections/users/documents", doc, nil))
	}
}

func TestQueryEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	seed(t, s)
	base := "/api/v1/collections/users/documents"

	var found DocumentsResponse
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/find", `{"age":{"$gte":30}}`, &found))
	assert.Equal(t, 2, found.Count)

	found = DocumentsResponse{}
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/find?limit=2&skip=1", "", &found))
	require.Len(t, found.Documents, 2)
	assert.Equal(t, "u2", found.Documents[0].ID())

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", base+"/find?limit=-1", "", &errResp))
	assert.Equal(t, http.StatusBadRequest, do(t, s, "POST", base+"/find", `{"age":{"$bogus":1}}`, &errResp))

	var one DocumentResponse
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/findOne", `{"name":{"$regex":"^car","$options":"i"}}`, &one))
	assert.Equal(t, "u3", one.Document.ID())
	assert.Equal(t, http.StatusNotFound, do(t, s, "POST", base+"/findOne", `{"name":"Zed"}`, &errResp))

	var count CountResponse
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/count", `{"city":{"$exists":false}}`, &count))
	assert.Equal(t, 1, count.Count)

	var distinct DistinctResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", base+"/distinct/city", "", &distinct))
	assert.Equal(t, []any{"Oslo", "Bergen"}, distinct.Values)

	distinct = DistinctResponse{}
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/distinct/age", `{"city":"Oslo"}`, &distinct))
	assert.Equal(t, []any{25.0}, distinct.Values)
}

func TestBulkEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)
	seed(t, s)
	base := "/api/v1/collections/users/documents"

	var updated UpdateManyResponse
	require.Equal(t, http.StatusOK, do(t, s, "PATCH", base, `{"filter":{"age":25},"update":{"group":"young"}}`, &updated))
	assert.Equal(t, 2, updated.Matched)
	assert.Equal(t, 2, updated.Modified)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, s, "PATCH", base, `{"filter":{}}`, &errResp))

	var count CountResponse
	do(t, s, "POST", base+"/count", `{"group":"young"}`, &count)
	assert.Equal(t, 2, count.Count)

	var deleted DeleteManyResponse
	require.Equal(t, http.StatusOK, do(t, s, "POST", base+"/delete", `{"age":{"$in":[25,40]}}`, &deleted))
	assert.Equal(t, 3, deleted.Matched)
	assert.Equal(t, 3, deleted.Deleted)

	var ids DocumentIDsResponse
	do(t, s, "GET", base, "", &ids)
	assert.Equal(t, []string{"u2"}, ids.Documents)
}

func TestCacheEndpoints(t *testing.T) {
	s := setupTestServer(t, nil)

	var created DocumentResponse
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/collections/users/documents", `{"name":"Alice"}`, &created))

	var health HealthResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/health", "", &health))
	assert.Equal(t, 1, health.CacheSize)
	assert.Equal(t, "local/memory", health.Database)

	var cleared MessageResponse
	require.Equal(t, http.StatusOK, do(t, s, "POST", "/clear-cache", "", &cleared))
	assert.True(t, cleared.Success)

	health = HealthResponse{}
	do(t, s, "GET", "/health", "", &health)
	assert.Equal(t, 0, health.CacheSize)

	// reads still work and refill the cache
	var got DocumentResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/api/v1/collections/users/documents/"+created.Document.ID(), "", &got))
	assert.Equal(t, "Alice", got.Document["name"])
	do(t, s, "GET", "/health", "", &health)
	assert.Equal(t, 1, health.CacheSize)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "GET", "/clear-cache", "", &errResp))
}

func TestDatabaseInfoEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, s, "POST", "/api/v1/collections", `{"name":"users"}`, nil))

	var info DatabaseInfoResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", "/database-info", "", &info))
	assert.True(t, info.Success)
	assert.Equal(t, "local/memory", info.Database.Name)
	assert.Equal(t, []string{"users"}, info.Database.Collections)
	require.NotNil(t, info.Database.LastCommit)
	assert.Equal(t, "Create collection users", info.Database.LastCommit.Message)

	do(t, s, "POST", "/api/v1/collections/disconnect", "", nil)
	var errResp ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, "GET", "/database-info", "", &errResp))
}

func TestDocumentHistoryEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	base := "/api/v1/collections/users/documents"

	var created DocumentResponse
	require.Equal(t, http.StatusCreated, do(t, s, "POST", base, `{"name":"Alice"}`, &created))
	id := created.Document.ID()
	require.Equal(t, http.StatusOK, do(t, s, "PUT", base+"/"+id, `{"age":31}`, nil))

	var history HistoryResponse
	require.Equal(t, http.StatusOK, do(t, s, "GET", base+"/"+id+"/history", "", &history))
	assert.Equal(t, id, history.ID)
	require.Len(t, history.History, 2)
	assert.True(t, strings.HasPrefix(history.History[0].Message, "Update document "+id))
	assert.NotEmpty(t, history.History[0].Id)

	history = HistoryResponse{}
	require.Equal(t, http.StatusOK, do(t, s, "GET", base+"/"+id+"/history?limit=1", "", &history))
	assert.Len(t, history.History, 1)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, s, "GET", base+"/"+id+"/history?limit=x", "", &errResp))
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", base+"/missing/history", "", &errResp))
}

func TestUnknownRoute(t *testing.T) {
	s := setupTestServer(t, nil)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, s, "GET", "/api/v2/anything", "", &errResp))
	assert.Equal(t, http.StatusNotFound, errResp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil)
	seed(t, s)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gitdb_store_operations_total{operation="put",outcome="ok"}`)
}

func createTestJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func TestAuthRequired(t *testing.T) {
	s := setupTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret"})

	var errResp ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/api/v1/collections", "", &errResp))
	assert.Contains(t, errResp.Message, "Authorization")

	assert.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/api/v1/collections", "", &errResp, "Authorization", "Basic Zm9vOmJhcg=="))

	// health and metrics stay open
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/health", "", nil))

	assert.Equal(t, http.StatusUnauthorized, do(t, s, "POST", "/clear-cache", "", &errResp))
	assert.Equal(t, http.StatusUnauthorized, do(t, s, "GET", "/database-info", "", &errResp))
}

func TestAuthWithValidJWT(t *testing.T) {
	s := setupTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret", Issuer: "gitdb-tests", Audience: "gitdb"})

	token := createTestJWT(t, "test-secret", jwt.MapClaims{
		"name":  "Test User",
		"email": "test@example.com",
		"iss":   "gitdb-tests",
		"aud":   "gitdb",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	var list CollectionsResponse
	assert.Equal(t, http.StatusOK, do(t, s, "GET", "/api/v1/collections", "", &list, "Authorization", "Bearer "+token))
	assert.True(t, list.Success)
}

func TestAuthWithInvalidJWT(t *testing.T) {
	s := setupTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret", Issuer: "gitdb-tests"})

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{
			name:   "wrong secret",
			token:  createTestJWT(t, "other-secret", jwt.MapClaims{"name": "x", "iss": "gitdb-tests"}),
			reason: "invalid token",
		},
		{
			name:   "expired",
			token:  createTestJWT(t, "test-secret", jwt.MapClaims{"name": "x", "iss": "gitdb-tests", "exp": time.Now().Add(-time.Hour).Unix()}),
			reason: "expired",
		},
		{
			name:   "wrong issuer",
			token:  createTestJWT(t, "test-secret", jwt.MapClaims{"name": "x", "iss": "someone-else"}),
			reason: "invalid issuer",
		},
		{
			name:   "no identity",
			token:  createTestJWT(t, "test-secret", jwt.MapClaims{"iss": "gitdb-tests"}),
			reason: "missing identity claims",
		},
		{
			name:   "garbage",
			token:  "not-a-jwt",
			reason: "invalid token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			code := do(t, s, "GET", "/api/v1/collections", "", &errResp, "Authorization", "Bearer "+tt.token)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Contains(t, errResp.Message, tt.reason)
		})
	}
}

func TestParseBearer(t *testing.T) {
	token, err := parseBearer("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = parseBearer("bearer   xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Bearer ", "Token abc"} {
		_, err := parseBearer(header)
		assert.Error(t, err, header)
	}
}

func TestServerStartStop(t *testing.T) {
	s := setupTestServer(t, nil)
	require.NoError(t, s.Start("127.0.0.1:0"))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.True(t, strings.HasPrefix(s.Addr(), "127.0.0.1:"))
	require.NoError(t, s.Stop(ctx))
}
