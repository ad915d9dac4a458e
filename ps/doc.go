// Package ps provides the persistence layer for GitDB.
//
// Every backend implements Store: four primitives over a versioned,
// path-addressed file tree. Each file carries a version token, and writes
// and deletes are conditional on it.
//
// # GitHub
//
// The primary backend talks to the GitHub contents API. Tokens are blob SHAs:
//
//	store, err := ps.NewGitHubStore(core.Credentials{Token: token, Owner: "acme", Repo: "data"})
//
// # Local Git
//
// Persistence writes blobs, trees and commits straight into a go-git
// repository, in memory or on disk. Tokens are blob hashes as well, so a
// clone of a GitHub repository reports the same tokens:
//
//	persistence, err := ps.NewMemoryPersistence()
//	persistence, err := ps.NewFilePersistence("/path/to/data", nil)
//
// With a clone URL the repository is cloned on first use and every commit
// is pushed back.
//
// # S3
//
// S3Store keeps documents as objects and uses ETags with conditional
// requests as tokens.
package ps
