// Package core provides core types used throughout GitDB.
//
// # Documents
//
// A Document is a JSON object. Every stored document carries an "_id"
// field, assigned at creation and never changed, plus "createdAt" and
// "updatedAt" timestamps:
//
//	doc := core.Document{"name": "Ann", "age": 30}
//	data, _ := core.EncodeDocument(doc)
//
// Values read back from the store are JSON-shaped (numbers are float64).
// Normalize converts Go values into the same shape so comparisons behave
// the same for in-process callers and JSON clients.
//
// # Errors
//
// Errors returned by the session manager wrap one of the kinds
// ErrNotConnected, ErrConnection, ErrNotFound, ErrConflict, ErrValidation or
// ErrStorage:
//
//	if errors.Is(err, core.ErrConflict) {
//	    // re-read and retry
//	}
//
// StatusCode maps a kind to the HTTP status reported by the API server.
package core
