package op

import (
	"context"
	"iter"
	"time"

	"github.com/nickyhof/GitDB/core"
	"github.com/nickyhof/GitDB/db"
	"github.com/nickyhof/GitDB/ps"
)

type CollectionOp struct {
	Name    string
	Manager *db.Manager
}

func CreateCollection(ctx context.Context, name string, manager *db.Manager) (*CollectionOp, error) {
	if err := manager.CreateCollection(ctx, name); err != nil {
		return nil, err
	}

	return &CollectionOp{
		Name:    name,
		Manager: manager,
	}, nil
}

// GetCollection returns an op for an existing collection.
func GetCollection(ctx context.Context, name string, manager *db.Manager) (*CollectionOp, error) {
	if err := db.ValidateName("collection", name); err != nil {
		return nil, err
	}

	names, err := manager.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return &CollectionOp{Name: name, Manager: manager}, nil
		}
	}

	return nil, core.Errorf(core.ErrNotFound, "get collection", "collection %s does not exist", name)
}

func (op *CollectionOp) Drop(ctx context.Context) (db.CommitResult, error) {
	start := time.Now()
	if err := op.Manager.DeleteCollection(ctx, op.Name); err != nil {
		return db.CommitResult{}, err
	}
	return db.CommitResult{CollectionsDeleted: 1, ExecutionTimeSec: since(start)}, nil
}

func (op *CollectionOp) Get(ctx context.Context, id string) (core.Document, error) {
	return op.Manager.ReadDocument(ctx, op.Name, id)
}

// GetInto reads a document and decodes it into out.
func (op *CollectionOp) GetInto(ctx context.Context, id string, out any) error {
	doc, err := op.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := doc.Decode(out); err != nil {
		return core.E(core.ErrValidation, "decode document "+id, err)
	}
	return nil
}

func (op *CollectionOp) Insert(ctx context.Context, doc core.Document) (core.Document, error) {
	return op.Manager.CreateDocument(ctx, op.Name, doc)
}

// InsertAll inserts documents one by one and stops at the first failure.
func (op *CollectionOp) InsertAll(ctx context.Context, docs []core.Document) ([]core.Document, error) {
	created := make([]core.Document, 0, len(docs))
	for _, doc := range docs {
		c, err := op.Insert(ctx, doc)
		if err != nil {
			return created, err
		}
		created = append(created, c)
	}
	return created, nil
}

func (op *CollectionOp) Update(ctx context.Context, id string, patch core.Document) (core.Document, error) {
	return op.Manager.UpdateDocument(ctx, op.Name, id, patch)
}

func (op *CollectionOp) Delete(ctx context.Context, id string) error {
	return op.Manager.DeleteDocument(ctx, op.Name, id)
}

// History returns the commits that touched the document, newest first.
func (op *CollectionOp) History(ctx context.Context, id string, limit int) ([]ps.Transaction, error) {
	return op.Manager.DocumentHistory(ctx, op.Name, id, limit)
}

func (op *CollectionOp) Keys(ctx context.Context) ([]string, error) {
	return op.Manager.ListDocuments(ctx, op.Name)
}

func (op *CollectionOp) Count(ctx context.Context, q any) (int, error) {
	return op.Manager.Count(ctx, op.Name, q)
}

func (op *CollectionOp) Find(ctx context.Context, q any, opts db.FindOptions) (db.QueryResult, error) {
	start := time.Now()
	docs, err := op.Manager.Find(ctx, op.Name, q, opts)
	if err != nil {
		return db.QueryResult{}, err
	}
	return db.QueryResult{Documents: docs, ExecutionTimeSec: since(start)}, nil
}

func (op *CollectionOp) FindOne(ctx context.Context, q any) (core.Document, error) {
	return op.Manager.FindOne(ctx, op.Name, q)
}

func (op *CollectionOp) Distinct(ctx context.Context, field string, q any) (db.QueryResult, error) {
	start := time.Now()
	values, err := op.Manager.Distinct(ctx, op.Name, field, q)
	if err != nil {
		return db.QueryResult{}, err
	}
	return db.QueryResult{Column: field, Values: values, ExecutionTimeSec: since(start)}, nil
}

func (op *CollectionOp) UpdateMany(ctx context.Context, filter any, patch core.Document) (db.CommitResult, error) {
	start := time.Now()
	res, err := op.Manager.UpdateMany(ctx, op.Name, filter, patch)
	if err != nil {
		return db.CommitResult{}, err
	}
	return db.CommitResult{
		DocumentsMatched: res.Matched,
		DocumentsWritten: res.Modified,
		ExecutionTimeSec: since(start),
	}, nil
}

func (op *CollectionOp) DeleteMany(ctx context.Context, filter any) (db.CommitResult, error) {
	start := time.Now()
	res, err := op.Manager.DeleteMany(ctx, op.Name, filter)
	if err != nil {
		return db.CommitResult{}, err
	}
	return db.CommitResult{
		DocumentsMatched: res.Matched,
		DocumentsDeleted: res.Deleted,
		ExecutionTimeSec: since(start),
	}, nil
}

// Scan yields every document matching q. A failed scan yields the error
// once and stops.
func (op *CollectionOp) Scan(ctx context.Context, q any) iter.Seq2[core.Document, error] {
	return func(yield func(core.Document, error) bool) {
		docs, err := op.Manager.FindDocuments(ctx, op.Name, q)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}
