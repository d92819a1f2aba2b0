package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ── Transformer ────────────────────────────────────────────
// Transformers post-process projected records inside the Transform stage.
// Each takes a record and returns a (possibly modified) record and a boolean
// indicating whether to keep it.

// Transformer processes a single record.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// SchemaTransformer is implemented by transformers that change column
// names or types. The returned schema replaces the table's schema.
type SchemaTransformer interface {
	TransformSchema(*Schema) (*Schema, error)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, bool)

func (f TransformerFunc) Transform(r Record) (Record, bool) { return f(r) }

// ── Built-in Transforms ────────────────────────────────────

// TimestampLayout is the text form used for converted timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// EpochTimestamp converts an epoch-seconds field into a UTC time.Time.
// Values that are not numeric are left as they are.
type EpochTimestamp struct {
	Field string
}

func (t *EpochTimestamp) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok || v == nil {
		return r, true
	}
	secs, ok := toFloatSafe(v)
	if !ok {
		return r, true
	}
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	r.Data[t.Field] = time.Unix(whole, nanos).UTC()
	return r, true
}

func (t *EpochTimestamp) TransformSchema(s *Schema) (*Schema, error) {
	out := cloneSchema(s)
	if i := out.Index(t.Field); i >= 0 {
		out.Fields[i].Type = "datetime"
	}
	return out, nil
}

// filterOps are the comparisons FilterTransform understands.
var filterOps = map[string]bool{"eq": true, "neq": true, "gt": true, "lt": true, "contains": true}

// FilterTransform drops records where the given field does not match the value.
type FilterTransform struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "lt" | "contains"
	Value any
}

func (t *FilterTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok {
		return r, false
	}
	switch t.Op {
	case "eq":
		return r, fmt.Sprint(v) == fmt.Sprint(t.Value)
	case "neq":
		return r, fmt.Sprint(v) != fmt.Sprint(t.Value)
	case "contains":
		return r, strings.Contains(fmt.Sprint(v), fmt.Sprint(t.Value))
	case "gt":
		return r, toFloat(v) > toFloat(t.Value)
	case "lt":
		return r, toFloat(v) < toFloat(t.Value)
	default:
		return r, true
	}
}

// RenameTransform renames columns. All renames apply at once, so a
// mapping may swap two columns.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		if n, ok := t.Mapping[k]; ok {
			k = n
		}
		data[k] = v
	}
	r.Data = data
	return r, true
}

// TransformSchema fails when a new name lands on a column that keeps its
// own name.
func (t *RenameTransform) TransformSchema(s *Schema) (*Schema, error) {
	out := cloneSchema(s)
	seen := make(map[string]string, len(out.Fields))
	for i, f := range out.Fields {
		name := f.Name
		if n, ok := t.Mapping[f.Name]; ok {
			name = n
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("rename: %q and %q would both become %q", prev, f.Name, name)
		}
		seen[name] = f.Name
		out.Fields[i].Name = name
	}
	return out, nil
}

// LimitTransform caps the number of records.
type LimitTransform struct {
	Count int
	seen  int
}

func NewLimitTransform(count int) *LimitTransform {
	return &LimitTransform{Count: count}
}

func (t *LimitTransform) Transform(r Record) (Record, bool) {
	t.seen++
	return r, t.seen <= t.Count
}

// TypeCastTransform converts a field's value to a target type.
type TypeCastTransform struct {
	Field    string
	CastType string // "number" | "string" | "bool"
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool) {
	v, ok := r.Data[t.Field]
	if !ok || v == nil {
		return r, true
	}
	switch t.CastType {
	case "number":
		r.Data[t.Field] = toFloat(v)
	case "string":
		r.Data[t.Field] = fmt.Sprint(v)
	case "bool":
		r.Data[t.Field] = toBool(v)
	}
	return r, true
}

func (t *TypeCastTransform) TransformSchema(s *Schema) (*Schema, error) {
	out := cloneSchema(s)
	if i := out.Index(t.Field); i >= 0 {
		switch t.CastType {
		case "number":
			out.Fields[i].Type = "number"
		case "bool":
			out.Fields[i].Type = "boolean"
		default:
			out.Fields[i].Type = "text"
		}
	}
	return out, nil
}

// ── Declarative config ─────────────────────────────────────

// TransformConfig is a declarative transform definition, as written in job files.
type TransformConfig struct {
	Type   string         `json:"type" yaml:"type"` // "epoch_timestamp" | "filter" | "rename" | "limit" | "type_cast"
	Config map[string]any `json:"config" yaml:"config"`
}

// BuildTransformers converts declarative TransformConfig into Transformer instances.
func BuildTransformers(configs []TransformConfig) ([]Transformer, error) {
	var ts []Transformer

	for i, tc := range configs {
		switch tc.Type {
		case "epoch_timestamp":
			field, _ := tc.Config["field"].(string)
			if field == "" {
				return nil, fmt.Errorf("transform %d (%s): field is required", i, tc.Type)
			}
			ts = append(ts, &EpochTimestamp{Field: field})

		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field == "" || op == "" {
				return nil, fmt.Errorf("transform %d (%s): field and op are required", i, tc.Type)
			}
			if !filterOps[op] {
				return nil, fmt.Errorf("transform %d (%s): unknown op %q", i, tc.Type, op)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok || len(mapping) == 0 {
				return nil, fmt.Errorf("transform %d (%s): mapping is required", i, tc.Type)
			}
			m := make(map[string]string, len(mapping))
			targets := make(map[string]string, len(mapping))
			for k, v := range mapping {
				n, _ := v.(string)
				if n == "" {
					return nil, fmt.Errorf("transform %d (%s): %q needs a new name", i, tc.Type, k)
				}
				if prev, dup := targets[n]; dup {
					return nil, fmt.Errorf("transform %d (%s): %q and %q both rename to %q", i, tc.Type, prev, k, n)
				}
				targets[n] = k
				m[k] = n
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "limit":
			count, ok := toFloatSafe(tc.Config["count"])
			if !ok || count <= 0 {
				return nil, fmt.Errorf("transform %d (%s): count must be positive", i, tc.Type)
			}
			ts = append(ts, NewLimitTransform(int(count)))

		case "type_cast":
			field, _ := tc.Config["field"].(string)
			castType, _ := tc.Config["castType"].(string)
			if field == "" || castType == "" {
				return nil, fmt.Errorf("transform %d (%s): field and castType are required", i, tc.Type)
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: castType})

		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}

	return ts, nil
}

// ── Helpers ────────────────────────────────────────────────

// applyTransformers runs the chain over every record of t. Surviving records
// are re-indexed densely from zero.
func applyTransformers(t *Table, ts []Transformer) (*Table, error) {
	if len(ts) == 0 {
		return t, nil
	}
	schema := t.Schema
	for _, tr := range ts {
		if st, ok := tr.(SchemaTransformer); ok {
			var err error
			if schema, err = st.TransformSchema(schema); err != nil {
				return nil, err
			}
		}
	}

	kept := make([]Record, 0, len(t.Records))
	for _, r := range t.Records {
		keep := true
		for _, tr := range ts {
			if r, keep = tr.Transform(r); !keep {
				break
			}
		}
		if keep {
			r.Index = len(kept)
			kept = append(kept, r)
		}
	}
	return &Table{Schema: schema, Records: kept}, nil
}

func cloneSchema(s *Schema) *Schema {
	out := &Schema{Fields: make([]Field, len(s.Fields))}
	copy(out.Fields, s.Fields)
	return out
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		lower := strings.ToLower(b)
		return lower == "true" || lower == "yes" || lower == "1"
	default:
		f, ok := toFloatSafe(v)
		return ok && f != 0
	}
}

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) float64 {
	f, _ := toFloatSafe(v)
	return f
}
