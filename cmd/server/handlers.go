package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/db"
	"go.uber.org/zap"
)

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := core.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request error", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...any) {
	writeError(w, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// readBody returns the trimmed request body.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}

// decodeDocument reads a JSON object body.
func decodeDocument(r *http.Request) (core.Document, error) {
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return core.DecodeDocument(data)
}

// decodeQuery reads an optional JSON object body. An empty body matches
// every document.
func decodeQuery(r *http.Request) (any, error) {
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return core.DecodeDocument(data)
}

// intParam parses a non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Name:        "GitDB API",
		Version:     Version,
		Description: "Git-backed document database API",
		Endpoints: map[string]string{
			"collections": "/api/v1/collections",
			"documents":   "/api/v1/collections/{collection}/documents",
			"history":     "/api/v1/collections/{collection}/documents/{id}/history",
			"info":        "/database-info",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.manager.Status()
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Connected: status.Connected,
		CacheSize: s.manager.CacheSize(),
	}
	if status.Connected {
		resp.Database = status.Owner + "/" + status.Repo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.manager.ClearCache()
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Cache cleared successfully"})
}

func (s *Server) handleDatabaseInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.DatabaseInfo(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DatabaseInfoResponse{Success: true, Database: info})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Owner == "" || req.Repo == "" {
		s.badRequest(w, "owner and repo are required")
		return
	}

	creds := core.Credentials{Token: req.Token, Owner: req.Owner, Repo: req.Repo}
	if _, err := s.manager.Connect(r.Context(), creds); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.manager.InitializeDatabase(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		Success:  true,
		Message:  "Connected to database successfully",
		Database: Database{Owner: req.Owner, Repo: req.Repo},
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.manager.Disconnect()
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Disconnected from database"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.manager.Status()
	resp := StatusResponse{Connected: status.Connected}
	if status.Connected {
		resp.Database = &Database{Owner: status.Owner, Repo: status.Repo}
		resp.ConnectedAt = status.ConnectedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.manager.ListCollections(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionsResponse{
		Success:     true,
		Collections: collections,
		Count:       len(collections),
	})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Name == "" {
		s.badRequest(w, "name is required")
		return
	}

	if err := s.manager.CreateCollection(r.Context(), req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Collection '%s' created successfully", req.Name),
	})
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	ids, err := s.manager.ListDocuments(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionResponse{
		Success:       true,
		Collection:    name,
		DocumentCount: len(ids),
		Documents:     ids,
	})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.manager.DeleteCollection(r.Context(), name); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Collection '%s' deleted successfully", name),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	ids, err := s.manager.ListDocuments(r.Context(), collection)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentIDsResponse{
		Success:    true,
		Collection: collection,
		Documents:  ids,
		Count:      len(ids),
	})
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	data, err := decodeDocument(r)
	if err != nil {
		s.badRequest(w, "request body must be a JSON object: %v", err)
		return
	}

	doc, err := s.manager.CreateDocument(r.Context(), collection, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DocumentResponse{
		Success:  true,
		Message:  "Document created successfully",
		Document: doc,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	doc, err := s.manager.ReadDocument(r.Context(), vars["collection"], vars["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Success: true, Document: doc})
}

func (s *Server) handleDocumentHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	limit, err := intParam(r, "limit")
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	history, err := s.manager.DocumentHistory(r.Context(), vars["collection"], vars["id"], limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, ID: vars["id"], History: history})
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	patch, err := decodeDocument(r)
	if err != nil {
		s.badRequest(w, "request body must be a JSON object: %v", err)
		return
	}

	doc, err := s.manager.UpdateDocument(r.Context(), vars["collection"], vars["id"], patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{
		Success:  true,
		Message:  "Document updated successfully",
		Document: doc,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := s.manager.DeleteDocument(r.Context(), vars["collection"], vars["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Document deleted successfully"})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	q, err := decodeQuery(r)
	if err != nil {
		s.badRequest(w, "invalid query: %v", err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}
	skip, err := intParam(r, "skip")
	if err != nil {
		s.badRequest(w, "%v", err)
		return
	}

	docs, err := s.manager.Find(r.Context(), collection, q, db.FindOptions{Limit: limit, Skip: skip})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{
		Success:    true,
		Collection: collection,
		Documents:  docs,
		Count:      len(docs),
	})
}

func (s *Server) handleFindOne(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	q, err := decodeQuery(r)
	if err != nil {
		s.badRequest(w, "invalid query: %v", err)
		return
	}

	doc, err := s.manager.FindOne(r.Context(), collection, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Success: true, Document: doc})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	q, err := decodeQuery(r)
	if err != nil {
		s.badRequest(w, "invalid query: %v", err)
		return
	}

	n, err := s.manager.Count(r.Context(), collection, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Success: true, Collection: collection, Count: n})
}

func (s *Server) handleDistinct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection, field := vars["collection"], vars["field"]

	q, err := decodeQuery(r)
	if err != nil {
		s.badRequest(w, "invalid query: %v", err)
		return
	}

	values, err := s.manager.Distinct(r.Context(), collection, field, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DistinctResponse{
		Success:    true,
		Collection: collection,
		Field:      field,
		Values:     values,
		Count:      len(values),
	})
}

func (s *Server) handleUpdateMany(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	var req UpdateManyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Update == nil {
		s.badRequest(w, "update is required")
		return
	}

	var filter any
	if req.Filter != nil {
		filter = req.Filter
	}
	result, err := s.manager.UpdateMany(r.Context(), collection, filter, req.Update)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateManyResponse{
		Success:    true,
		Collection: collection,
		Matched:    result.Matched,
		Modified:   result.Modified,
	})
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]

	q, err := decodeQuery(r)
	if err != nil {
		s.badRequest(w, "invalid query: %v", err)
		return
	}

	result, err := s.manager.DeleteMany(r.Context(), collection, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteManyResponse{
		Success:    true,
		Collection: collection,
		Matched:    result.Matched,
		Deleted:    result.Deleted,
	})
}
