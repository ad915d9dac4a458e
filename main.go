package GitDB

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/nickyhof/GitDB/config"
	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/db"
	"github.com/nickyhof/GitDB/metrics"
	"github.com/nickyhof/GitDB/op"
	"github.com/nickyhof/GitDB/ps"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Instance is an opened GitDB: a session manager over the configured backend.
type Instance struct {
	Manager *db.Manager
	Config  *config.Config
	Metrics *metrics.Collectors
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	dialer     db.Dialer
}

// WithLogger sets the logger handed to the manager and the stores.
func WithLogger(logger *zap.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithRegisterer registers store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *openOptions) {
		o.registerer = reg
	}
}

// WithDialer replaces the dialer built from the configured backend.
func WithDialer(dial db.Dialer) Option {
	return func(o *openOptions) {
		o.dialer = dial
	}
}

// Open builds a Manager for cfg. No connection is made; stored credentials
// are used on the first operation.
func Open(cfg *config.Config, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := openOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dial := o.dialer
	if dial == nil {
		var err error
		dial, err = NewDialer(cfg, o.logger)
		if err != nil {
			return nil, err
		}
	}

	instance := &Instance{Config: cfg}
	if o.registerer != nil {
		instance.Metrics = metrics.NewCollectors(o.registerer)
		next := dial
		dial = func(ctx context.Context, creds core.Credentials) (ps.Store, error) {
			store, err := next(ctx, creds)
			if err != nil {
				return nil, err
			}
			return metrics.InstrumentStore(store, instance.Metrics), nil
		}
	}

	managerOpts := []db.Option{
		db.WithLogger(o.logger),
		db.WithCache(cfg.Cache.Size, cfg.Cache.TTL),
	}
	if cfg.Concurrency > 0 {
		managerOpts = append(managerOpts, db.WithConcurrency(cfg.Concurrency))
	}
	if creds := defaultCredentials(cfg); creds.Complete() {
		managerOpts = append(managerOpts, db.WithCredentials(creds))
	}

	instance.Manager = db.NewManager(dial, managerOpts...)
	return instance, nil
}

// Database connects if needed, initializes the repository and returns the
// database handle.
func (instance *Instance) Database(ctx context.Context) (*op.DatabaseOp, error) {
	return op.Open(ctx, instance.Manager)
}

// defaultCredentials fills in coordinates for the local backends, which have
// no owner of their own.
func defaultCredentials(cfg *config.Config) core.Credentials {
	creds := cfg.Credentials
	if creds.Complete() {
		return creds
	}
	switch cfg.Backend {
	case config.BackendMemory:
		creds.Owner, creds.Repo = "local", "memory"
	case config.BackendGit:
		creds.Owner, creds.Repo = "local", filepath.Base(cfg.Git.Dir)
	}
	return creds
}

// NewDialer returns the dialer for the configured backend. The memory and
// git backends keep one repository for the life of the dialer, so a
// reconnect sees earlier writes.
func NewDialer(cfg *config.Config, logger *zap.Logger) (db.Dialer, error) {
	switch cfg.Backend {
	case config.BackendGitHub:
		return func(ctx context.Context, creds core.Credentials) (ps.Store, error) {
			opts := []ps.GitHubOption{
				ps.WithCommitter(cfg.Identity),
				ps.WithGitHubLogger(logger),
			}
			if cfg.GitHub.BaseURL != "" {
				opts = append(opts, ps.WithBaseURL(cfg.GitHub.BaseURL))
			}
			if cfg.GitHub.Branch != "" {
				opts = append(opts, ps.WithBranch(cfg.GitHub.Branch))
			}
			return ps.NewGitHubStore(creds, opts...)
		}, nil

	case config.BackendMemory:
		open := onceStore(func(core.Credentials) (ps.Store, error) {
			return ps.NewMemoryPersistence(ps.WithIdentity(cfg.Identity), ps.WithLogger(logger))
		})
		return open, nil

	case config.BackendGit:
		open := onceStore(func(creds core.Credentials) (ps.Store, error) {
			opts := []ps.Option{ps.WithIdentity(cfg.Identity), ps.WithLogger(logger)}
			if auth := remoteAuth(cfg.Git, creds); auth != nil {
				opts = append(opts, ps.WithRemoteAuth(auth))
			}
			if cfg.Git.Remote != "" {
				opts = append(opts, ps.WithPushTo(cfg.Git.Remote))
			}
			var gitURL *string
			if cfg.Git.URL != "" {
				gitURL = &cfg.Git.URL
			}
			return ps.NewFilePersistence(cfg.Git.Dir, gitURL, opts...)
		})
		return open, nil

	case config.BackendS3:
		return func(ctx context.Context, creds core.Credentials) (ps.Store, error) {
			s3cfg := cfg.S3
			if s3cfg.Bucket == "" {
				s3cfg.Bucket = creds.Owner
			}
			if s3cfg.Prefix == "" {
				s3cfg.Prefix = creds.Repo
			}
			return ps.NewS3Store(ctx, s3cfg, logger)
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// onceStore opens a store on the first successful dial and returns the same
// store afterwards.
func onceStore(open func(core.Credentials) (ps.Store, error)) db.Dialer {
	var (
		mu    sync.Mutex
		store ps.Store
	)
	return func(ctx context.Context, creds core.Credentials) (ps.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		if store != nil {
			return store, nil
		}
		s, err := open(creds)
		if err != nil {
			return nil, err
		}
		store = s
		return store, nil
	}
}

func remoteAuth(cfg config.GitConfig, creds core.Credentials) *ps.RemoteAuth {
	switch ps.AuthType(cfg.Auth) {
	case ps.AuthTypeToken:
		return &ps.RemoteAuth{Type: ps.AuthTypeToken, Token: creds.Token}
	case ps.AuthTypeSSH:
		return &ps.RemoteAuth{Type: ps.AuthTypeSSH, KeyPath: cfg.KeyPath, Passphrase: cfg.Password}
	case ps.AuthTypeBasic:
		return &ps.RemoteAuth{Type: ps.AuthTypeBasic, Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.URL != "" && creds.Token != "" {
		return &ps.RemoteAuth{Type: ps.AuthTypeToken, Token: creds.Token}
	}
	return nil
}
