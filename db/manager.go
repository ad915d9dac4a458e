package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/ps"
	"go.uber.org/zap"
)

const (
	DefaultCacheSize   = 1024
	DefaultCacheTTL    = 10 * time.Minute
	DefaultConcurrency = 8
)

// Dialer opens a backing store for the given credentials. It must not
// validate the target; Connect does that with RepositoryExists.
type Dialer func(ctx context.Context, creds core.Credentials) (ps.Store, error)

// Session is a live connection to one repository.
type Session struct {
	Store       ps.Store
	Credentials core.Credentials
	ConnectedAt time.Time
}

// Status describes the current session.
type Status struct {
	Connected   bool      `json:"connected"`
	Owner       string    `json:"owner,omitempty"`
	Repo        string    `json:"repo,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Manager holds at most one Session and implements the collection and
// document operations on top of it. It is safe for concurrent use; the
// store's version tokens are the only protection between concurrent writers.
type Manager struct {
	dial        Dialer
	logger      *zap.Logger
	cache       *documentCache
	concurrency int
	now         func() time.Time

	mu      sync.RWMutex
	session *Session
	creds   *core.Credentials
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCache sizes the document cache. A size of zero disables it.
func WithCache(size int, ttl time.Duration) Option {
	return func(m *Manager) {
		m.cache = newDocumentCache(size, ttl)
	}
}

// WithConcurrency bounds the number of parallel document reads of a scan.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithCredentials caches credentials so the first operation connects lazily.
func WithCredentials(creds core.Credentials) Option {
	return func(m *Manager) {
		if creds.Complete() {
			m.creds = &creds
		}
	}
}

// WithClock replaces time.Now for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a disconnected Manager.
func NewManager(dial Dialer, opts ...Option) *Manager {
	m := &Manager{
		dial:        dial,
		logger:      zap.NewNop(),
		cache:       newDocumentCache(DefaultCacheSize, DefaultCacheTTL),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("Manager")
	return m
}

// Connect validates creds against the backing store and makes the result the
// current session, replacing any previous one.
func (m *Manager) Connect(ctx context.Context, creds core.Credentials) (*Session, error) {
	const op = "connect"

	if !creds.Complete() {
		return nil, core.Errorf(core.ErrValidation, op, "owner and repository are required")
	}

	store, err := m.dial(ctx, creds)
	if err != nil {
		return nil, core.E(core.ErrConnection, op, err)
	}

	exists, err := store.RepositoryExists(ctx, creds.Owner, creds.Repo)
	if err != nil {
		return nil, core.E(core.ErrConnection, op, err)
	}
	if !exists {
		return nil, core.Errorf(core.ErrConnection, op, "repository %s not found or not accessible", creds)
	}

	session := &Session{
		Store:       store,
		Credentials: creds,
		ConnectedAt: m.now().UTC(),
	}

	m.mu.Lock()
	m.session = session
	m.creds = &creds
	m.mu.Unlock()

	m.cache.purge()
	m.logger.Info("Connected", zap.String("repository", creds.String()))
	return session, nil
}

// Disconnect drops the session and the cached credentials.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.creds = nil
	m.mu.Unlock()

	m.cache.purge()
	if had {
		m.logger.Info("Disconnected")
	}
}

// EnsureConnected returns the current session, reconnecting with cached
// credentials if there is none.
func (m *Manager) EnsureConnected(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	session, creds := m.session, m.creds
	m.mu.RUnlock()

	if session != nil {
		return session, nil
	}
	if creds == nil {
		return nil, core.E(core.ErrNotConnected, "ensure connected", errors.New("call connect first"))
	}

	m.logger.Debug("Reconnecting with cached credentials", zap.String("repository", creds.String()))
	return m.Connect(ctx, *creds)
}

// Status reports the current session without connecting.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return Status{}
	}
	return Status{
		Connected:   true,
		Owner:       m.session.Credentials.Owner,
		Repo:        m.session.Credentials.Repo,
		ConnectedAt: m.session.ConnectedAt,
	}
}

// ClearCache drops every cached document.
func (m *Manager) ClearCache() {
	m.cache.purge()
	m.logger.Info("Cache cleared")
}

// CacheSize returns the number of cached documents.
func (m *Manager) CacheSize() int {
	return m.cache.len()
}

// DatabaseInfo describes the connected repository.
type DatabaseInfo struct {
	Name        string          `json:"name"`
	Owner       string          `json:"owner"`
	Repo        string          `json:"repo"`
	Collections []string        `json:"collections"`
	CacheSize   int             `json:"cacheSize"`
	LastCommit  *ps.Transaction `json:"lastCommit,omitempty"`
	ConnectedAt time.Time       `json:"connectedAt"`
}

// DatabaseInfo lists the collections of the current repository. LastCommit
// is set when the store keeps a commit log.
func (m *Manager) DatabaseInfo(ctx context.Context) (DatabaseInfo, error) {
	session, err := m.EnsureConnected(ctx)
	if err != nil {
		return DatabaseInfo{}, err
	}
	collections, err := m.ListCollections(ctx)
	if err != nil {
		return DatabaseInfo{}, err
	}

	info := DatabaseInfo{
		Name:        session.Credentials.String(),
		Owner:       session.Credentials.Owner,
		Repo:        session.Credentials.Repo,
		Collections: collections,
		CacheSize:   m.CacheSize(),
		ConnectedAt: session.ConnectedAt,
	}
	if h, ok := ps.AsHistorian(session.Store); ok {
		if txn := h.LatestTransaction(); txn.Id != "" {
			info.LastCommit = &txn
		}
	}
	return info, nil
}

func (m *Manager) timestamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

// storeError wraps a store error with the matching error kind.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ps.ErrNotFound):
		return core.E(core.ErrNotFound, op, err)
	case errors.Is(err, ps.ErrConflict):
		return core.E(core.ErrConflict, op, err)
	default:
		var kinded *core.Error
		if errors.As(err, &kinded) {
			return err
		}
		return core.E(core.ErrStorage, op, err)
	}
}
