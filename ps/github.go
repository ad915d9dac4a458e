package ps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/nickyhof/GitDB/core"
	"go.uber.org/zap"
)

// GitHubStore is a Store over the contents API of one GitHub repository.
// Version tokens are the blob SHAs GitHub reports, so they agree with the
// tokens of a Persistence cloned from the same repository.
type GitHubStore struct {
	client   *github.Client
	owner    string
	repo     string
	branch   string
	identity *core.Identity
	logger   *zap.Logger
}

var _ Store = (*GitHubStore)(nil)

// GitHubOption configures a GitHubStore.
type GitHubOption func(*gitHubConfig)

type gitHubConfig struct {
	httpClient *http.Client
	baseURL    string
	branch     string
	identity   *core.Identity
	logger     *zap.Logger
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) GitHubOption {
	return func(c *gitHubConfig) {
		c.httpClient = client
	}
}

// WithBaseURL points the store at a GitHub Enterprise API endpoint.
func WithBaseURL(baseURL string) GitHubOption {
	return func(c *gitHubConfig) {
		c.baseURL = baseURL
	}
}

// WithBranch reads and writes a branch other than the default one.
func WithBranch(branch string) GitHubOption {
	return func(c *gitHubConfig) {
		c.branch = branch
	}
}

// WithCommitter sets the committer recorded on every write. Without it
// GitHub uses the token's user.
func WithCommitter(identity core.Identity) GitHubOption {
	return func(c *gitHubConfig) {
		c.identity = &identity
	}
}

// WithGitHubLogger sets the logger.
func WithGitHubLogger(logger *zap.Logger) GitHubOption {
	return func(c *gitHubConfig) {
		c.logger = logger
	}
}

// NewGitHubStore returns a store for creds.Owner/creds.Repo authenticated
// with creds.Token. No request is made.
func NewGitHubStore(creds core.Credentials, opts ...GitHubOption) (*GitHubStore, error) {
	cfg := gitHubConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := github.NewClient(cfg.httpClient)
	if creds.Token != "" {
		client = client.WithAuthToken(creds.Token)
	}
	if cfg.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", cfg.baseURL, err)
		}
		client.BaseURL = base
	}

	return &GitHubStore{
		client:   client,
		owner:    creds.Owner,
		repo:     creds.Repo,
		branch:   cfg.branch,
		identity: cfg.identity,
		logger:   cfg.logger.Named("GitHubStore"),
	}, nil
}

// Get returns the file at path with its blob SHA, or the listing of the
// directory at path.
func (s *GitHubStore) Get(ctx context.Context, path string) (*Object, error) {
	path = cleanPath(path)

	var opts *github.RepositoryContentGetOptions
	if s.branch != "" {
		opts = &github.RepositoryContentGetOptions{Ref: s.branch}
	}

	file, dir, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, path, opts)
	if err != nil {
		return nil, s.mapError("get", path, err)
	}

	if file == nil {
		entries := make([]Entry, 0, len(dir))
		for _, item := range dir {
			entry := Entry{
				Name: item.GetName(),
				Path: item.GetPath(),
				Kind: KindFile,
			}
			if item.GetType() == "dir" {
				entry.Kind = KindDir
			} else {
				entry.Token = item.GetSHA()
			}
			entries = append(entries, entry)
		}
		return &Object{Path: path, Kind: KindDir, Entries: entries}, nil
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return &Object{
		Path:    path,
		Kind:    KindFile,
		Content: []byte(content),
		Token:   file.GetSHA(),
	}, nil
}

// Put creates the file when token is empty and updates it otherwise.
func (s *GitHubStore) Put(ctx context.Context, path string, data []byte, message string, token string) (Revision, error) {
	path = cleanPath(path)

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: data,
	}
	if s.branch != "" {
		opts.Branch = github.String(s.branch)
	}
	if s.identity != nil {
		opts.Committer = &github.CommitAuthor{
			Name:  github.String(s.identity.Name),
			Email: github.String(s.identity.Email),
		}
	}

	var (
		res *github.RepositoryContentResponse
		err error
	)
	if token == "" {
		res, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, path, opts)
	} else {
		opts.SHA = github.String(token)
		res, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, path, opts)
	}
	if err != nil {
		return Revision{}, s.mapError("put", path, err)
	}

	rev := Revision{
		Token:  res.GetContent().GetSHA(),
		Commit: res.Commit.GetSHA(),
	}
	s.logger.Debug("Wrote file", zap.String("path", path), zap.String("commit", rev.Commit))
	return rev, nil
}

// Delete removes the file at path if its blob SHA equals token.
func (s *GitHubStore) Delete(ctx context.Context, path string, message string, token string) error {
	path = cleanPath(path)

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		SHA:     github.String(token),
	}
	if s.branch != "" {
		opts.Branch = github.String(s.branch)
	}
	if s.identity != nil {
		opts.Committer = &github.CommitAuthor{
			Name:  github.String(s.identity.Name),
			Email: github.String(s.identity.Email),
		}
	}

	if _, _, err := s.client.Repositories.DeleteFile(ctx, s.owner, s.repo, path, opts); err != nil {
		return s.mapError("delete", path, err)
	}

	s.logger.Debug("Deleted file", zap.String("path", path))
	return nil
}

// RepositoryExists asks the API for owner/repo. A 404 means the repository
// does not exist or the token cannot see it.
func (s *GitHubStore) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	_, _, err := s.client.Repositories.Get(ctx, owner, repo)
	if err == nil {
		return true, nil
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusNotFound:
			return false, nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return false, fmt.Errorf("access to %s/%s denied: %s", owner, repo, errResp.Message)
		}
	}
	return false, err
}

// mapError turns API status codes into the store sentinels.
func (s *GitHubStore) mapError(op, path string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
		case http.StatusConflict:
			return fmt.Errorf("%s %s: %s: %w", op, path, errResp.Message, ErrConflict)
		case http.StatusUnprocessableEntity:
			// a create over an existing file or a stale sha names the sha;
			// bad paths and oversized content do not
			if mentionsSHA(errResp) {
				return fmt.Errorf("%s %s: %s: %w", op, path, errResp.Message, ErrConflict)
			}
		}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		s.logger.Warn("Rate limited", zap.String("op", op), zap.Time("reset", rateErr.Rate.Reset.Time))
	}

	return fmt.Errorf("%s %s: %w", op, path, err)
}

func mentionsSHA(errResp *github.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(errResp.Message), "sha") {
		return true
	}
	for _, e := range errResp.Errors {
		if e.Field == "sha" || strings.Contains(strings.ToLower(e.Message), "sha") {
			return true
		}
	}
	return false
}
