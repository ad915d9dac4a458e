// Package op provides collection-level operations for GitDB.
//
// The op package sits between the front ends (cmd/cli, cmd/server) and the
// session manager (db/), binding operations to one collection and reporting
// them as db results.
//
// # DatabaseOp
//
//	dbOp, err := op.Open(ctx, manager)       // connect and initialize
//	names, _ := dbOp.CollectionNames(ctx)
//	users, _, _ := dbOp.CreateCollection(ctx, "users")
//
// # CollectionOp
//
//	users, err := op.GetCollection(ctx, "users", manager)
//
//	doc, _ := users.Insert(ctx, core.Document{"name": "Ann"})
//	doc, _ = users.Get(ctx, doc.ID())
//	users.Update(ctx, doc.ID(), core.Document{"age": 31})
//	users.Delete(ctx, doc.ID())
//
//	for doc, err := range users.Scan(ctx, map[string]any{"age": map[string]any{"$gt": 30}}) {
//	    // ...
//	}
//
// # Architecture
//
//	Front ends (cmd/)
//	     ↓
//	Operations (op/)     ← This package
//	     ↓
//	Session manager (db/)
//	     ↓
//	Persistence (ps/)
//	     ↓
//	GitHub / go-git / S3
package op
