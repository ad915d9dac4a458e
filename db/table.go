package db

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// maxCellWidth truncates long values such as nested objects.
const maxCellWidth = 40

// SimpleTable renders rows as an ASCII grid for the shell.
type SimpleTable struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

// NewTable creates a new table writer
func NewTable(w io.Writer) *SimpleTable {
	return &SimpleTable{
		writer: w,
		rows:   make([][]string, 0),
	}
}

// Header sets the table headers
func (t *SimpleTable) Header(headers []string) {
	t.headers = headers
}

// Row adds a single row
func (t *SimpleTable) Row(row []string) {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = truncate(strings.ReplaceAll(cell, "\n", " "), maxCellWidth)
	}
	t.rows = append(t.rows, cells)
}

// Bulk adds multiple rows
func (t *SimpleTable) Bulk(rows [][]string) {
	for _, row := range rows {
		t.Row(row)
	}
}

// Render outputs the formatted table
func (t *SimpleTable) Render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	// Calculate column widths
	colWidths := t.calculateWidths()

	// Build separator line
	separator := t.buildSeparator(colWidths)

	// Print table
	fmt.Fprintln(t.writer, separator)

	// Print headers
	if len(t.headers) > 0 {
		fmt.Fprintln(t.writer, t.formatRow(t.headers, colWidths))
		fmt.Fprintln(t.writer, separator)
	}

	// Print rows
	for _, row := range t.rows {
		fmt.Fprintln(t.writer, t.formatRow(row, colWidths))
	}

	fmt.Fprintln(t.writer, separator)
}

// calculateWidths determines the width needed for each column
func (t *SimpleTable) calculateWidths() []int {
	// Determine number of columns
	numCols := len(t.headers)
	for _, row := range t.rows {
		if len(row) > numCols {
			numCols = len(row)
		}
	}

	widths := make([]int, numCols)

	// Check header widths
	for i, h := range t.headers {
		if displayWidth(h) > widths[i] {
			widths[i] = displayWidth(h)
		}
	}

	// Check row widths
	for _, row := range t.rows {
		for i, cell := range row {
			if i < numCols && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	// Minimum width of 1
	for i := range widths {
		if widths[i] < 1 {
			widths[i] = 1
		}
	}

	return widths
}

// buildSeparator creates the horizontal line
func (t *SimpleTable) buildSeparator(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("-", w+2)
	}
	return "+" + strings.Join(parts, "+") + "+"
}

// formatRow formats a single row with proper padding
func (t *SimpleTable) formatRow(row []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		// Left-align with padding
		parts[i] = " " + cell + strings.Repeat(" ", w-displayWidth(cell)+1)
	}
	return "|" + strings.Join(parts, "|") + "|"
}

// displayWidth counts runes, so non-ASCII values stay aligned.
func displayWidth(s string) int {
	return utf8.RuneCountInString(s)
}

func truncate(s string, width int) string {
	if displayWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}
