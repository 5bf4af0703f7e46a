package docpdf

import (
	"regexp"
	"strings"
)

// KeyValueRow is one extracted row of a particulars table.
type KeyValueRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// emptyValues are cell contents treated as "no value".
var emptyValues = map[string]bool{"": true, "none": true, "n/a": true, "-": true}

var colonRowRe = regexp.MustCompile(`^([^:]{2,60}):\s+(.+)$`)

// KeyValueRows scans the particulars region of a document (the first
// quarter of its pages, at least the first two) for key-value table rows.
// Two layouts are recognized: "Key: Value" lines and two-column lines
// separated by a column gap (two or more spaces).
//
// A row whose key cell is empty, or a line that is neither layout but
// follows a row directly, is treated as a continuation of the previous
// value — particulars tables routinely split across page boundaries.
func KeyValueRows(pages []string) []KeyValueRow {
	limit := len(pages) / 4
	if limit < 2 {
		limit = min(2, len(pages))
	}

	var rows []KeyValueRow
	appendContinuation := func(v string) bool {
		if len(rows) == 0 {
			return false
		}
		rows[len(rows)-1].Value = strings.TrimSpace(rows[len(rows)-1].Value + " " + v)
		return true
	}

	for _, page := range pages[:limit] {
		inTable := false
		for _, line := range strings.Split(page, "\n") {
			line = strings.TrimRight(line, " ")
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				inTable = false
				continue
			}

			key, value, ok := splitRow(line)
			switch {
			case ok && key != "":
				rows = append(rows, KeyValueRow{Key: key, Value: value})
				inTable = true
			case ok && key == "":
				// Empty key cell: value continuation from a split row.
				if !appendContinuation(value) {
					inTable = false
				}
			case inTable && startsLower(trimmed):
				// Wrapped value text directly under a table row.
				appendContinuation(trimmed)
			default:
				inTable = false
			}
		}
	}
	return rows
}

// splitRow attempts to split a line into key and value cells.
func splitRow(line string) (key, value string, ok bool) {
	if m := colonRowRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		key, value = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if !emptyValues[strings.ToLower(value)] {
			return key, value, true
		}
		return "", "", false
	}

	// Two-column layout: cells separated by a gap of 2+ spaces.
	if idx := strings.Index(line, "  "); idx > 0 {
		key = strings.TrimSpace(line[:idx])
		value = strings.TrimSpace(line[idx:])
		if emptyValues[strings.ToLower(value)] {
			return "", "", false
		}
		return key, value, true
	}

	// Leading gap with a single cell: continuation of the previous value.
	if strings.HasPrefix(line, "  ") {
		value = strings.TrimSpace(line)
		if !emptyValues[strings.ToLower(value)] {
			return "", value, true
		}
	}
	return "", "", false
}

func startsLower(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c >= 'a' && c <= 'z'
}
