package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nickyhof/GitDB"
	"github.com/nickyhof/GitDB/db"
	"github.com/nickyhof/GitDB/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// Server exposes a GitDB instance over HTTP.
type Server struct {
	instance   *GitDB.Instance
	manager    *db.Manager
	authConfig *AuthConfig
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	listener   net.Listener
	done       chan error
}

// NewServer creates a server for instance. Authentication is enabled when
// authConfig is non-nil and Enabled; metrics are served when gatherer is set.
func NewServer(instance *GitDB.Instance, authConfig *AuthConfig, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		instance:   instance,
		manager:    instance.Manager,
		authConfig: authConfig,
		gatherer:   gatherer,
		logger:     logger.Named("Server"),
		router:     mux.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.requestLogger)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s not allowed on %s", r.Method, r.URL.Path))
	})

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}
	s.router.Handle("/clear-cache", s.authenticate(http.HandlerFunc(s.handleClearCache))).Methods(http.MethodPost)
	s.router.Handle("/database-info", s.authenticate(http.HandlerFunc(s.handleDatabaseInfo))).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("", s.handleInfo).Methods(http.MethodGet)

	api.HandleFunc("/collections/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/collections/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/collections/status", s.handleStatus).Methods(http.MethodGet)

	api.HandleFunc("/collections", s.handleListCollections).Methods(http.MethodGet)
	api.HandleFunc("/collections", s.handleCreateCollection).Methods(http.MethodPost)
	api.HandleFunc("/collections/{name}", s.handleGetCollection).Methods(http.MethodGet)
	api.HandleFunc("/collections/{name}", s.handleDeleteCollection).Methods(http.MethodDelete)

	docs := api.PathPrefix("/collections/{collection}/documents").Subrouter()
	docs.HandleFunc("", s.handleListDocuments).Methods(http.MethodGet)
	docs.HandleFunc("", s.handleCreateDocument).Methods(http.MethodPost)
	docs.HandleFunc("", s.handleUpdateMany).Methods(http.MethodPatch)
	docs.HandleFunc("/find", s.handleFind).Methods(http.MethodPost)
	docs.HandleFunc("/findOne", s.handleFindOne).Methods(http.MethodPost)
	docs.HandleFunc("/count", s.handleCount).Methods(http.MethodPost)
	docs.HandleFunc("/delete", s.handleDeleteMany).Methods(http.MethodPost)
	docs.HandleFunc("/distinct/{field}", s.handleDistinct).Methods(http.MethodGet, http.MethodPost)
	docs.HandleFunc("/{id}/history", s.handleDocumentHistory).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", s.handleGetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", s.handleUpdateDocument).Methods(http.MethodPut)
	docs.HandleFunc("/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)
}

// statusRecorder captures the status code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Body = http.MaxBytesReader(rec, r.Body, maxBodyBytes)

		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if identity := identityFromContext(r.Context()); identity != nil {
			fields = append(fields, zap.String("identity", identity.String()))
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("Request failed", fields...)
			return
		}
		s.logger.Debug("Request", fields...)
	})
}

// Start begins listening on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan error, 1)

	s.logger.Info("HTTP server listening", zap.String("addr", listener.Addr().String()))

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
