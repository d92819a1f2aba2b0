package etl

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// TransformOptions configures the Transform stage.
type TransformOptions struct {
	// Selector picks and orders the output columns. Empty keeps every
	// flattened key in first-seen order.
	Selector FieldSelector
	// RecordsKey names the envelope key holding the entity array, e.g. "data".
	RecordsKey string
	// StripPrefix is removed from flattened keys and selector paths.
	StripPrefix string
	// Steps run on each projected record, after projection.
	Steps []Transformer
}

// Transform loads the RawPayload stored at path and reshapes it into a Table.
func Transform(path string, opts TransformOptions) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stageErr(StageTransform, StorageReadError, "read raw", path, err)
	}
	return transform(data, path, opts)
}

// TransformPayload reshapes an in-memory payload into a Table.
func TransformPayload(raw RawPayload, opts TransformOptions) (*Table, error) {
	return transform(raw, "", opts)
}

func transform(raw []byte, path string, opts TransformOptions) (*Table, error) {
	root, err := ParseNode(raw)
	if err != nil {
		return nil, stageErr(StageTransform, PayloadParseError, "parse raw", path, err)
	}

	entities, err := locateEntities(root, opts.RecordsKey)
	if err != nil {
		return nil, stageErr(StageTransform, FieldResolutionError, "locate records", path, err)
	}

	flats := make([]Flat, len(entities))
	for i, e := range entities {
		if e.Kind != ObjectNode {
			return nil, stageErr(StageTransform, FieldResolutionError, "locate records", path,
				fmt.Errorf("record %d is not an object", i))
		}
		flats[i] = Flatten(e).StripPrefix(opts.StripPrefix)
	}

	var columns []string
	if len(opts.Selector) > 0 {
		columns = opts.Selector.Columns(opts.StripPrefix)
	} else {
		columns = unionKeys(flats)
	}

	if len(flats) > 0 {
		if missing := unresolved(columns, flats); len(missing) > 0 {
			return nil, stageErr(StageTransform, FieldResolutionError, "project fields", path,
				fmt.Errorf("no record has %s", strings.Join(missing, ", ")))
		}
	}

	records := make([]Record, len(flats))
	for i, f := range flats {
		data := make(map[string]any, len(columns))
		for _, c := range columns {
			data[c] = f.Values[c] // nil when the leaf is missing
		}
		records[i] = Record{Index: i, Data: data}
	}

	table, err := applyTransformers(&Table{Schema: inferSchema(columns, records), Records: records}, opts.Steps)
	if err != nil {
		return nil, stageErr(StageTransform, FieldResolutionError, "apply transforms", path, err)
	}
	return table, nil
}

// locateEntities finds the list of entities inside the payload.
func locateEntities(root Node, recordsKey string) ([]Node, error) {
	if recordsKey != "" {
		if v, ok := root.Get(recordsKey); ok {
			switch v.Kind {
			case ArrayNode:
				return v.Items, nil
			case ObjectNode:
				return []Node{v}, nil
			default:
				return nil, fmt.Errorf("%q holds a scalar, not records", recordsKey)
			}
		}
	}
	switch root.Kind {
	case ArrayNode:
		return root.Items, nil
	case ObjectNode:
		return []Node{root}, nil
	default:
		return nil, fmt.Errorf("payload is a scalar, not records")
	}
}

func unionKeys(flats []Flat) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range flats {
		for _, k := range f.Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func unresolved(columns []string, flats []Flat) []string {
	var missing []string
	for _, c := range columns {
		found := false
		for _, f := range flats {
			if _, ok := f.Values[c]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, fmt.Sprintf("%q", c))
		}
	}
	return missing
}

// inferSchema types each column from its first non-nil value.
func inferSchema(columns []string, records []Record) *Schema {
	s := &Schema{Fields: make([]Field, len(columns))}
	for i, c := range columns {
		typ := "text"
		for _, r := range records {
			if v := r.Data[c]; v != nil {
				typ = inferType(v)
				break
			}
		}
		s.Fields[i] = Field{Name: c, Type: typ}
	}
	return s
}

func inferType(v any) string {
	switch v.(type) {
	case int, int64, float64, float32:
		return "number"
	case bool:
		return "boolean"
	case time.Time:
		return "datetime"
	default:
		return "text"
	}
}
