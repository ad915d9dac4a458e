package db

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nickyhof/GitDB/core"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	CommitResultType
)

type Result interface {
	Type() ResultType
	Display(w io.Writer)
}

// QueryResult holds documents, or plain values for distinct and listings.
type QueryResult struct {
	Documents        []core.Document
	Column           string // header used when Values is set
	Values           []any
	ExecutionTimeSec float64
}

// CommitResult counts what a write changed.
type CommitResult struct {
	CollectionsCreated int
	CollectionsDeleted int
	DocumentsMatched   int
	DocumentsWritten   int
	DocumentsDeleted   int
	ExecutionTimeSec   float64
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result CommitResult) Type() ResultType {
	return CommitResultType
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	if secs < 0.001 {
		return "<1ms"
	} else if secs < 1 {
		return fmt.Sprintf("%dms", int(secs*1000))
	} else if secs < 60 {
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	} else {
		mins := int(secs / 60)
		remainSecs := int(secs) % 60
		if remainSecs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm%ds", mins, remainSecs)
	}
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

// Rows returns the number of documents or values.
func (result QueryResult) Rows() int {
	if result.Values != nil {
		return len(result.Values)
	}
	return len(result.Documents)
}

func (result QueryResult) Display(w io.Writer) {
	switch {
	case result.Values != nil && len(result.Values) > 0:
		column := result.Column
		if column == "" {
			column = "value"
		}
		rows := make([][]string, len(result.Values))
		for i, v := range result.Values {
			rows[i] = []string{formatValue(v)}
		}
		table := NewTable(w)
		table.Header([]string{column})
		table.Bulk(rows)
		table.Render()
	case len(result.Documents) > 0:
		columns := documentColumns(result.Documents)
		rows := make([][]string, len(result.Documents))
		for r, doc := range result.Documents {
			rows[r] = make([]string, len(columns))
			for i, column := range columns {
				if v, ok := doc[column]; ok {
					rows[r][i] = formatValue(v)
				}
			}
		}
		table := NewTable(w)
		table.Header(columns)
		table.Bulk(rows)
		table.Render()
	}

	noun := "documents"
	if result.Values != nil {
		noun = "values"
	}
	fmt.Fprintf(w, "%d %s (%s)\n", result.Rows(), noun, result.ExecutionTime())
}

func (result CommitResult) Display(w io.Writer) {
	var parts []string

	if result.CollectionsCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d collection(s) created", result.CollectionsCreated))
	}
	if result.CollectionsDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%d collection(s) deleted", result.CollectionsDeleted))
	}
	if result.DocumentsMatched > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) matched", result.DocumentsMatched))
	}
	if result.DocumentsWritten > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) written", result.DocumentsWritten))
	}
	if result.DocumentsDeleted > 0 {
		parts = append(parts, fmt.Sprintf("%d document(s) deleted", result.DocumentsDeleted))
	}

	if len(parts) == 0 {
		fmt.Fprintf(w, "OK (%s)\n", result.ExecutionTime())
	} else {
		fmt.Fprintf(w, "%s (%s)\n", strings.Join(parts, ", "), result.ExecutionTime())
	}
}

// documentColumns returns _id followed by every other key in sorted order,
// with the timestamps last.
func documentColumns(docs []core.Document) []string {
	seen := map[string]bool{}
	var keys []string
	for _, doc := range docs {
		for key := range doc {
			if seen[key] {
				continue
			}
			seen[key] = true
			switch key {
			case core.IDField, core.CreatedAtField, core.UpdatedAtField:
			default:
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)

	columns := []string{core.IDField}
	columns = append(columns, keys...)
	for _, key := range []string{core.CreatedAtField, core.UpdatedAtField} {
		if seen[key] {
			columns = append(columns, key)
		}
	}
	return columns
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return fmt.Sprintf("%v", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
