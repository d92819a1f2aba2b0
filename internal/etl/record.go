package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Transform emits a Table of Records, every Destination consumes one.

// Field describes a single column in the transformed table.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the ordered columns of a Table.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field, or -1.
func (s *Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Record is a single flattened, field-projected row.
// Index is the dense zero-based row position assigned by Transform.
type Record struct {
	Index int            `json:"index"`
	Data  map[string]any `json:"data"`
}

// Values returns the record's values in schema order.
// Columns the record does not carry come back as nil.
func (r Record) Values(s *Schema) []any {
	out := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = r.Data[f.Name]
	}
	return out
}

// Table is the ordered record set handed from Transform to Load.
type Table struct {
	Schema  *Schema  `json:"schema"`
	Records []Record `json:"records"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}
