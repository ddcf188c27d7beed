// Package ingest parses uploaded recipient files into row sets.
//
// The format contract is intentionally naive: the first non-empty line is
// the header row and every subsequent non-empty line is split on literal
// commas, positionally against the header. There is no quoting, escaping,
// or type inference, so encoding/csv is deliberately not used here.
package ingest

import (
	"bufio"
	"io"
	"strings"

	"mailmerge/internal/types"
)

// ExpectedColumns documents the column layout the upload UI advertises.
// Parsing does not enforce it; headers are taken verbatim from the file.
var ExpectedColumns = []string{
	"NO.",
	"First Name",
	"Last Name",
	"Position",
	"LinkedIn Profile Link",
	"Email Address",
	"Company Name",
	"Company Email Address",
	"Company Website Link",
	"Name",
}

// ParseRecipients validates the filename and parses the file contents into
// a RowSet.
//
// Rules:
//   - The filename must end in the literal ".csv" (extension-based
//     validation only, case-sensitive: ".CSV" is rejected).
//   - Blank lines (whitespace-only) are skipped entirely.
//   - At least two non-empty lines are required: a header and one data row.
//   - Each data line is split on literal commas; values map positionally to
//     headers. Missing trailing cells default to "", extra cells are dropped.
func ParseRecipients(filename string, r io.Reader) (*types.RowSet, error) {
	if !strings.HasSuffix(filename, ".csv") {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidFileType,
			"file must have a .csv extension",
			nil,
		)
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	// Recipient lists can have long lines (LinkedIn URLs, long company
	// names); raise the scanner limit well past the default 64 KiB.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to read uploaded file",
			err,
		)
	}

	if len(lines) < 2 {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationFileTooShort,
			"file must contain a header line and at least one data row",
			nil,
			map[string]any{"expected_columns": ExpectedColumns},
		)
	}

	headers := splitFields(lines[0])

	rows := make([]types.Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := splitFields(line)
		row := make(types.Row, len(headers))
		for i, header := range headers {
			if i < len(values) {
				row[header] = values[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	return &types.RowSet{Columns: headers, Rows: rows}, nil
}

// splitFields splits a line on literal commas and trims whitespace from each
// field. Quoting is not interpreted; a comma inside quotes still splits.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
