package op

import (
	"context"
	"time"

	"github.com/nickyhof/GitDB/db"
)

type DatabaseOp struct {
	Manager *db.Manager
}

// Open connects (or reuses the current session) and makes sure the
// repository carries the database README.
func Open(ctx context.Context, manager *db.Manager) (*DatabaseOp, error) {
	if _, err := manager.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	if err := manager.InitializeDatabase(ctx); err != nil {
		return nil, err
	}
	return &DatabaseOp{Manager: manager}, nil
}

func (op *DatabaseOp) CollectionNames(ctx context.Context) ([]string, error) {
	return op.Manager.ListCollections(ctx)
}

func (op *DatabaseOp) Collections(ctx context.Context) (db.QueryResult, error) {
	start := time.Now()
	names, err := op.CollectionNames(ctx)
	if err != nil {
		return db.QueryResult{}, err
	}
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}
	return db.QueryResult{Column: "collection", Values: values, ExecutionTimeSec: since(start)}, nil
}

func (op *DatabaseOp) CreateCollection(ctx context.Context, name string) (*CollectionOp, db.CommitResult, error) {
	start := time.Now()
	c, err := CreateCollection(ctx, name, op.Manager)
	if err != nil {
		return nil, db.CommitResult{}, err
	}
	return c, db.CommitResult{CollectionsCreated: 1, ExecutionTimeSec: since(start)}, nil
}

func (op *DatabaseOp) Collection(ctx context.Context, name string) (*CollectionOp, error) {
	return GetCollection(ctx, name, op.Manager)
}

func (op *DatabaseOp) DropCollection(ctx context.Context, name string) (db.CommitResult, error) {
	c := &CollectionOp{Name: name, Manager: op.Manager}
	return c.Drop(ctx)
}
