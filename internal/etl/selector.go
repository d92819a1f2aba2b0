package etl

import "strings"

// DefaultStripPrefix is the JSON:API envelope prefix removed from flattened keys.
const DefaultStripPrefix = "attributes."

// FieldSelector is an ordered list of dotted paths naming the output columns.
type FieldSelector []string

// Columns returns the output column names for the selector once prefix
// has been stripped, in selector order.
func (s FieldSelector) Columns(prefix string) []string {
	cols := make([]string, len(s))
	for i, p := range s {
		cols[i] = p
		if prefix != "" {
			cols[i] = strings.TrimPrefix(p, prefix)
		}
	}
	return cols
}

// ParseFieldSelector splits a comma-separated list of paths, dropping blanks.
func ParseFieldSelector(s string) FieldSelector {
	var sel FieldSelector
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			sel = append(sel, p)
		}
	}
	return sel
}
