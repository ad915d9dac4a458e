// Package GitDB is a document database stored in a Git repository.
//
// Collections are directories and documents are JSON files named by their
// _id. Every write is a commit, and every write is conditional on the
// version token the document was read with, so concurrent writers see a
// conflict instead of overwriting each other.
//
// The repository can live on GitHub (contents API), in a local or cloned
// Git repository, in memory, or in an S3 bucket.
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.Backend = config.BackendMemory
//
//	instance, _ := GitDB.Open(cfg)
//	database, _ := instance.Database(ctx)
//	users, _, _ := database.CreateCollection(ctx, "users")
//
//	users.Insert(ctx, core.Document{"name": "Alice", "age": 30})
//	result, _ := users.Find(ctx, map[string]any{"age": map[string]any{"$gte": 18}}, db.FindOptions{})
//	result.Display(os.Stdout)
//
// # Queries
//
// Filters use the MongoDB shape: literal fields match by equality and
// operator objects support $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin,
// $exists and $regex. Dotted paths reach into nested objects and arrays.
package GitDB
