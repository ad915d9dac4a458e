package ps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCurrentBranch(t *testing.T) {
	p, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	if _, err := p.Put(context.Background(), "a.json", []byte(`{}`), "create", ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	branch, err := p.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "master" && branch != "main" {
		t.Errorf("Unexpected branch %q", branch)
	}
}

func TestRemoteManagement(t *testing.T) {
	p, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	if err := p.AddRemote("origin", "https://example.com/a.git"); err != nil {
		t.Fatalf("AddRemote failed: %v", err)
	}
	if err := p.AddRemote("origin", "https://example.com/b.git"); err == nil {
		t.Error("Expected duplicate remote to fail")
	}

	remotes, err := p.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes failed: %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != "origin" {
		t.Fatalf("Unexpected remotes %+v", remotes)
	}

	if err := p.RemoveRemote("origin"); err != nil {
		t.Fatalf("RemoveRemote failed: %v", err)
	}
	remotes, _ = p.ListRemotes()
	if len(remotes) != 0 {
		t.Errorf("Expected no remotes, got %+v", remotes)
	}
}

func TestReopenPointsOriginAtURL(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFilePersistence(dir, nil); err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	first := "https://example.com/first.git"
	p, err := NewFilePersistence(dir, &first)
	if err != nil {
		t.Fatalf("Failed to reopen with URL: %v", err)
	}
	assertOrigin(t, p, first)
	if p.remoteName != "origin" {
		t.Errorf("Expected writes to push to origin, got %q", p.remoteName)
	}

	second := "https://example.com/second.git"
	p, err = NewFilePersistence(dir, &second)
	if err != nil {
		t.Fatalf("Failed to reopen with new URL: %v", err)
	}
	assertOrigin(t, p, second)
}

func TestPushRemoteName(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFilePersistence(dir, nil); err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}

	url := "https://example.com/data.git"
	p, err := NewFilePersistence(dir, &url, WithPushTo("upstream"))
	if err != nil {
		t.Fatalf("Failed to reopen with URL: %v", err)
	}
	if p.remoteName != "upstream" {
		t.Errorf("Expected writes to push to upstream, got %q", p.remoteName)
	}

	remotes, err := p.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes failed: %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != "upstream" || remotes[0].URLs[0] != url {
		t.Errorf("Expected upstream at %s, got %+v", url, remotes)
	}
}

func assertOrigin(t *testing.T, p *Persistence, url string) {
	t.Helper()
	remotes, err := p.ListRemotes()
	if err != nil {
		t.Fatalf("ListRemotes failed: %v", err)
	}
	if len(remotes) != 1 || remotes[0].Name != "origin" || len(remotes[0].URLs) != 1 || remotes[0].URLs[0] != url {
		t.Errorf("Expected origin at %s, got %+v", url, remotes)
	}
}

func TestCloneFromLocalRemote(t *testing.T) {
	ctx := context.Background()
	upstreamDir := filepath.Join(t.TempDir(), "upstream")

	upstream, err := NewFilePersistence(upstreamDir, nil)
	if err != nil {
		t.Fatalf("Failed to create upstream: %v", err)
	}
	rev, err := upstream.Put(ctx, "users/1.json", []byte(`{"name":"Ann"}`), "create", "")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	clone, err := NewFilePersistence(filepath.Join(t.TempDir(), "clone"), &upstreamDir)
	if err != nil {
		t.Fatalf("Failed to clone: %v", err)
	}
	obj, err := clone.Get(ctx, "users/1.json")
	if err != nil {
		t.Fatalf("Get from clone failed: %v", err)
	}
	if obj.Token != rev.Token {
		t.Error("Expected the clone to report the upstream blob hash")
	}

	exists, err := clone.RepositoryExists(ctx, "", "")
	if err != nil || !exists {
		t.Errorf("Expected clone to exist, got %v, %v", exists, err)
	}

	// Writes on the clone are pushed to origin.
	pushed, err := clone.Put(ctx, "users/2.json", []byte(`{"name":"Bob"}`), "create", "")
	if err != nil {
		t.Fatalf("Put on clone failed: %v", err)
	}
	reopened, err := NewFilePersistence(upstreamDir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen upstream: %v", err)
	}
	obj, err = reopened.Get(ctx, "users/2.json")
	if err != nil {
		t.Fatalf("Expected the write to reach upstream: %v", err)
	}
	if obj.Token != pushed.Token {
		t.Error("Expected upstream to hold the pushed blob")
	}
}

func TestNewRepositoryHasConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFilePersistence(dir, nil); err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git", "config")); err != nil {
		t.Errorf("Expected .git/config to be written: %v", err)
	}
}

func TestAuthMethod(t *testing.T) {
	var nilAuth *RemoteAuth
	if m, err := nilAuth.getAuthMethod(); m != nil || err != nil {
		t.Errorf("Expected no auth for nil, got %v, %v", m, err)
	}

	m, err := (&RemoteAuth{Type: AuthTypeToken, Token: "t"}).getAuthMethod()
	if err != nil || m == nil {
		t.Errorf("Expected token auth, got %v, %v", m, err)
	}

	m, err = (&RemoteAuth{Type: AuthTypeBasic, Username: "u", Password: "p"}).getAuthMethod()
	if err != nil || m == nil {
		t.Errorf("Expected basic auth, got %v, %v", m, err)
	}
}
