// Package db provides the session manager for GitDB.
//
// A Manager holds one connection to a repository and translates collection
// and document operations into backing-store reads and conditional writes.
//
// # Manager Usage
//
//	manager := db.NewManager(dial, db.WithLogger(logger))
//	if _, err := manager.Connect(ctx, core.Credentials{Token: token, Owner: "acme", Repo: "data"}); err != nil {
//	    log.Fatal(err)
//	}
//	doc, err := manager.CreateDocument(ctx, "users", core.Document{"name": "Ann", "age": 30})
//	adults, err := manager.Find(ctx, "users", map[string]any{"age": map[string]any{"$gte": 18}}, db.FindOptions{Limit: 10})
//
// # Storage Layout
//
// A collection is a directory holding a .gitkeep marker and one JSON file per
// document, named <_id>.json. Every write is one commit.
//
// # Concurrency
//
// Updates and deletes carry the version token the document was read with;
// a concurrent change makes them fail with core.ErrConflict. Only creates
// retry, once. Multi-document operations scan the whole collection and are
// not atomic.
package db
