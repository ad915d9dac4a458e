package ps

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nickyhof/GitDB/core"
)

// runWithBothPersistence runs a test against memory and file-backed repositories
func runWithBothPersistence(t *testing.T, name string, fn func(t *testing.T, p *Persistence)) {
	t.Run(name+"/memory", func(t *testing.T) {
		p, err := NewMemoryPersistence()
		if err != nil {
			t.Fatalf("Failed to create memory persistence: %v", err)
		}
		fn(t, p)
	})
	t.Run(name+"/file", func(t *testing.T) {
		p, err := NewFilePersistence(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("Failed to create file persistence: %v", err)
		}
		fn(t, p)
	})
}

func TestNewMemoryPersistence(t *testing.T) {
	persistence, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create memory persistence: %v", err)
	}

	if !persistence.IsInitialized() {
		t.Error("Expected persistence to be initialized")
	}
}

func TestPersistenceNotInitialized(t *testing.T) {
	var persistence Persistence

	if persistence.IsInitialized() {
		t.Error("Expected uninitialized persistence to return false")
	}

	err := persistence.ensureInitialized()
	if err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}

	exists, err := persistence.RepositoryExists(context.Background(), "", "")
	if err != nil || exists {
		t.Errorf("Expected uninitialized repository to not exist, got %v, %v", exists, err)
	}
}

func TestEmptyRepository(t *testing.T) {
	runWithBothPersistence(t, "EmptyRepository", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		root, err := p.Get(ctx, "")
		if err != nil {
			t.Fatalf("Get root failed: %v", err)
		}
		if !root.IsDir() || len(root.Entries) != 0 {
			t.Errorf("Expected empty root directory, got %+v", root)
		}

		if _, err := p.Get(ctx, "users/1.json"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		if p.LatestTransaction().Id != "" {
			t.Error("Expected no transactions in a new repository")
		}
	})
}

func TestPutAndGet(t *testing.T) {
	runWithBothPersistence(t, "PutAndGet", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		rev, err := p.Put(ctx, "users/1.json", []byte(`{"_id":"1"}`), "Create document 1 in users", "")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if rev.Token == "" || rev.Commit == "" {
			t.Fatalf("Expected token and commit, got %+v", rev)
		}

		obj, err := p.Get(ctx, "users/1.json")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(obj.Content) != `{"_id":"1"}` {
			t.Errorf("Content mismatch: got %s", obj.Content)
		}
		if obj.Token != rev.Token {
			t.Errorf("Expected token %s, got %s", rev.Token, obj.Token)
		}

		txn := p.LatestTransaction()
		if txn.Id != rev.Commit {
			t.Errorf("Expected latest transaction %s, got %s", rev.Commit, txn.Id)
		}
		if !strings.HasPrefix(txn.Message, "Create document 1") {
			t.Errorf("Unexpected commit message %q", txn.Message)
		}
		if txn.Author != "GitDB <gitdb@localhost>" {
			t.Errorf("Unexpected author %q", txn.Author)
		}
	})
}

func TestPutCreateConflict(t *testing.T) {
	runWithBothPersistence(t, "PutCreateConflict", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		if _, err := p.Put(ctx, "users/1.json", []byte(`{}`), "create", ""); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		_, err := p.Put(ctx, "users/1.json", []byte(`{"x":1}`), "create again", "")
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("Expected ErrConflict, got %v", err)
		}
	})
}

func TestPutWithStaleToken(t *testing.T) {
	runWithBothPersistence(t, "PutWithStaleToken", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		first, err := p.Put(ctx, "users/1.json", []byte(`{"v":1}`), "create", "")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		second, err := p.Put(ctx, "users/1.json", []byte(`{"v":2}`), "update", first.Token)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if second.Token == first.Token {
			t.Error("Expected a new token after update")
		}

		if _, err := p.Put(ctx, "users/1.json", []byte(`{"v":3}`), "update", first.Token); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict for stale token, got %v", err)
		}

		obj, err := p.Get(ctx, "users/1.json")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(obj.Content) != `{"v":2}` {
			t.Errorf("Stale write must not land, got %s", obj.Content)
		}
	})
}

func TestDelete(t *testing.T) {
	runWithBothPersistence(t, "Delete", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		rev, err := p.Put(ctx, "users/1.json", []byte(`{}`), "create", "")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		if err := p.Delete(ctx, "users/1.json", "delete", "0000"); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}

		if err := p.Delete(ctx, "users/1.json", "delete", rev.Token); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if _, err := p.Get(ctx, "users/1.json"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}

		if err := p.Delete(ctx, "users/1.json", "delete", rev.Token); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for second delete, got %v", err)
		}
	})
}

func TestListDirectories(t *testing.T) {
	runWithBothPersistence(t, "ListDirectories", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		for _, path := range []string{"README.md", "users/.gitkeep", "users/a.json", "users/b.json", "orders/.gitkeep"} {
			if _, err := p.Put(ctx, path, []byte(`{}`), "write "+path, ""); err != nil {
				t.Fatalf("Put %s failed: %v", path, err)
			}
		}

		root, err := p.Get(ctx, "/")
		if err != nil {
			t.Fatalf("Get root failed: %v", err)
		}
		kinds := map[string]EntryKind{}
		for _, e := range root.Entries {
			kinds[e.Name] = e.Kind
		}
		if kinds["users"] != KindDir || kinds["orders"] != KindDir || kinds["README.md"] != KindFile {
			t.Errorf("Unexpected root listing %+v", root.Entries)
		}

		users, err := p.Get(ctx, "users/")
		if err != nil {
			t.Fatalf("Get users failed: %v", err)
		}
		if !users.IsDir() || len(users.Entries) != 3 {
			t.Fatalf("Expected 3 entries in users, got %+v", users.Entries)
		}
		for _, e := range users.Entries {
			if e.Token == "" {
				t.Errorf("Expected token on file entry %s", e.Path)
			}
			if !strings.HasPrefix(e.Path, "users/") {
				t.Errorf("Expected full path, got %s", e.Path)
			}
		}
	})
}

func TestDeleteLastFileRemovesDirectory(t *testing.T) {
	runWithBothPersistence(t, "DeleteLastFileRemovesDirectory", func(t *testing.T, p *Persistence) {
		ctx := context.Background()

		rev, err := p.Put(ctx, "tmp/.gitkeep", nil, "create", "")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := p.Delete(ctx, "tmp/.gitkeep", "drop", rev.Token); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := p.Get(ctx, "tmp"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected directory to be gone, got %v", err)
		}
	})
}

func TestFilePersistenceReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p, err := NewFilePersistence(dir, nil, WithIdentity(core.Identity{Name: "test", Email: "test@test.com"}))
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	rev, err := p.Put(ctx, "users/1.json", []byte(`{"name":"Ann"}`), "create", "")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := NewFilePersistence(dir, nil)
	if err != nil {
		t.Fatalf("Failed to reopen persistence: %v", err)
	}
	obj, err := reopened.Get(ctx, "users/1.json")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if obj.Token != rev.Token {
		t.Errorf("Expected token to survive reopen")
	}
	if reopened.LatestTransaction().Author != "test <test@test.com>" {
		t.Errorf("Unexpected author %q", reopened.LatestTransaction().Author)
	}
}

func TestHistory(t *testing.T) {
	p, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	ctx := context.Background()

	rev, _ := p.Put(ctx, "users/1.json", []byte(`{"v":1}`), "create 1", "")
	_, _ = p.Put(ctx, "users/2.json", []byte(`{}`), "create 2", "")
	_, _ = p.Put(ctx, "users/1.json", []byte(`{"v":2}`), "update 1", rev.Token)

	history, err := p.History("users/1.json", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 commits touching users/1.json, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "update 1") {
		t.Errorf("Expected newest commit first, got %q", history[0].Message)
	}

	all, err := p.History("", 1)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(all))
	}
}

func TestCanceledContext(t *testing.T) {
	p, err := NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Put(ctx, "a.json", []byte(`{}`), "create", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := p.Get(ctx, "a.json"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
