// Package main provides the GitDB HTTP server.
package main

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/db"
	"github.com/nickyhof/GitDB/ps"
)

// ConnectRequest is the body of POST /collections/connect.
type ConnectRequest struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// CollectionRequest is the body of POST /collections.
type CollectionRequest struct {
	Name string `json:"name"`
}

// UpdateManyRequest is the body of PATCH /collections/{collection}/documents.
type UpdateManyRequest struct {
	Filter map[string]any `json:"filter"`
	Update core.Document  `json:"update"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type InfoResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Connected bool   `json:"connected"`
	Database  string `json:"database,omitempty"`
	CacheSize int    `json:"cacheSize"`
}

type DatabaseInfoResponse struct {
	Success  bool            `json:"success"`
	Database db.DatabaseInfo `json:"database"`
}

// HistoryResponse lists the commits of one document, newest first.
type HistoryResponse struct {
	Success bool             `json:"success"`
	ID      string           `json:"id"`
	History []ps.Transaction `json:"history"`
}

// MessageResponse acknowledges a write that returns no data.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Database names the connected repository.
type Database struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type ConnectResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Database Database `json:"database"`
}

type StatusResponse struct {
	Connected   bool      `json:"connected"`
	Database    *Database `json:"database"`
	ConnectedAt string    `json:"connectedAt,omitempty"`
}

type CollectionsResponse struct {
	Success     bool     `json:"success"`
	Collections []string `json:"collections"`
	Count       int      `json:"count"`
}

type CollectionResponse struct {
	Success       bool     `json:"success"`
	Collection    string   `json:"collection"`
	DocumentCount int      `json:"documentCount"`
	Documents     []string `json:"documents"`
}

type DocumentIDsResponse struct {
	Success    bool     `json:"success"`
	Collection string   `json:"collection"`
	Documents  []string `json:"documents"`
	Count      int      `json:"count"`
}

type DocumentsResponse struct {
	Success    bool            `json:"success"`
	Collection string          `json:"collection"`
	Documents  []core.Document `json:"documents"`
	Count      int             `json:"count"`
}

type DocumentResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message,omitempty"`
	Document core.Document `json:"document"`
}

type CountResponse struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

type DistinctResponse struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Values     []any  `json:"values"`
	Count      int    `json:"count"`
}

type UpdateManyResponse struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Matched    int    `json:"matched"`
	Modified   int    `json:"modified"`
}

type DeleteManyResponse struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Matched    int    `json:"matched"`
	Deleted    int    `json:"deleted"`
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
