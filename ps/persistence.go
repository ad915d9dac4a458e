package ps

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/cache"
	"github.com/go-git/go-git/v6/storage/filesystem"
	"github.com/go-git/go-git/v6/storage/memory"
	"github.com/nickyhof/GitDB/core"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized = errors.New("persistence layer not initialized")
	ErrRepoNotFound   = errors.New("repository not found")
)

// Persistence is a Store backed by a go-git repository. Writes go straight
// to the object store as blob, tree and commit objects; the version token of
// a file is its blob hash.
type Persistence struct {
	repo         *git.Repository
	mu           sync.RWMutex
	isMemoryMode bool
	identity     core.Identity
	remoteName   string // push target after each commit, empty to disable
	auth         *RemoteAuth
	logger       *zap.Logger
}

var _ Store = (*Persistence)(nil)

// Option configures a Persistence.
type Option func(*Persistence)

// WithIdentity sets the commit author.
func WithIdentity(identity core.Identity) Option {
	return func(p *Persistence) {
		p.identity = identity
	}
}

// WithRemoteAuth sets the credentials used to clone, pull and push.
func WithRemoteAuth(auth *RemoteAuth) Option {
	return func(p *Persistence) {
		p.auth = auth
	}
}

// WithPushTo pushes every commit to the named remote.
func WithPushTo(remoteName string) Option {
	return func(p *Persistence) {
		p.remoteName = remoteName
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Persistence) {
		p.logger = logger
	}
}

func newPersistence(repo *git.Repository, memoryMode bool, opts []Option) *Persistence {
	p := &Persistence{
		repo:         repo,
		isMemoryMode: memoryMode,
		identity:     core.Identity{Name: "GitDB", Email: "gitdb@localhost"},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("GitStore")
	return p
}

// IsInitialized returns true if the persistence layer has a valid repository
func (p *Persistence) IsInitialized() bool {
	return p != nil && p.repo != nil
}

// ensureInitialized checks if the persistence layer is initialized and returns an error if not
func (p *Persistence) ensureInitialized() error {
	if !p.IsInitialized() {
		return ErrNotInitialized
	}
	return nil
}

// NewMemoryPersistence creates a repository that lives only in memory.
func NewMemoryPersistence(opts ...Option) (*Persistence, error) {
	wt := memfs.New()
	storer := memory.NewStorage()

	repo, err := git.Init(storer, git.WithWorkTree(wt))
	if err != nil {
		return nil, err
	}

	return newPersistence(repo, true, opts), nil
}

// NewFilePersistence opens the repository in baseDir, creating it if needed.
// When gitUrl is set, baseDir is cloned from it if it holds no repository
// yet (otherwise the push remote is pointed at gitUrl), and every later
// commit is pushed back to it. The push remote is origin unless WithPushTo
// names another.
func NewFilePersistence(baseDir string, gitUrl *string, opts ...Option) (*Persistence, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	wt := osfs.New(baseDir)
	fs, err := wt.Chroot(".git")
	if err != nil {
		return nil, err
	}

	storer := filesystem.NewStorageWithOptions(
		fs,
		cache.NewObjectLRUDefault(),
		filesystem.Options{ExclusiveAccess: true})

	p := newPersistence(nil, false, opts)

	_, statErr := os.Stat(fs.Root())
	switch {
	case statErr == nil:
		// Directory exists, open existing repo
		p.repo, err = git.Open(storer, wt)
		if err != nil {
			return nil, err
		}
		if _, err := fs.Stat("config"); errors.Is(err, os.ErrNotExist) {
			if err := p.writeConfig(); err != nil {
				return nil, err
			}
		}
		if gitUrl != nil {
			if p.remoteName == "" {
				p.remoteName = "origin"
			}
			if err := p.ensureRemote(p.remoteName, *gitUrl); err != nil {
				return nil, err
			}
		}
	case gitUrl != nil:
		authMethod, err := p.auth.getAuthMethod()
		if err != nil {
			return nil, fmt.Errorf("failed to configure auth: %w", err)
		}
		if p.remoteName == "" {
			p.remoteName = "origin"
		}
		p.repo, err = git.Clone(storer, wt, &git.CloneOptions{
			URL:        *gitUrl,
			RemoteName: p.remoteName,
			Auth:       authMethod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to clone %s: %w", *gitUrl, err)
		}
	default:
		// Directory doesn't exist, initialize new repo
		p.repo, err = git.Init(storer, git.WithWorkTree(wt))
		if err != nil {
			return nil, err
		}
		if err := p.writeConfig(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// writeConfig stores .git/config. Init skips it for the default layout and
// the file transport does not serve a repository without one.
func (p *Persistence) writeConfig() error {
	cfg, err := p.repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := p.repo.Storer.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
