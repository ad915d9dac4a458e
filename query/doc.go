// Package query implements the document query language used by every
// multi-document operation.
//
// A query maps dot-separated field paths to either a literal, matched by
// equality, or an operator object:
//
//	q, err := query.Parse(map[string]any{
//	    "age":          map[string]any{"$gte": 25, "$lt": 65},
//	    "address.city": "Oslo",
//	    "email":        map[string]any{"$exists": true},
//	})
//	if q.Matches(doc) {
//	    // ...
//	}
//
// Supported operators: $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $regex
// (with optional $options), $exists. All top-level fields must match, and
// all operators on one field must hold. There are no logical operators.
//
// Queries are validated once by Parse; evaluation never fails. Ordering
// operators only compare numbers with numbers, strings with strings and
// booleans with booleans; any other pairing does not match.
package query
