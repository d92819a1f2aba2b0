package etl

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Flat is one entity flattened into dotted-path keys.
// Keys keeps first-seen order; Values holds scalar leaves only.
type Flat struct {
	Keys   []string
	Values map[string]any
}

func (f *Flat) set(key string, v any) {
	if _, ok := f.Values[key]; !ok {
		f.Keys = append(f.Keys, key)
	}
	f.Values[key] = v
}

// Flatten walks n and returns its leaves keyed by dotted path.
//
//	{"a":{"b":1},"c":[1,2]}  →  a.b=1, c="[1,2]"
//
// Arrays are not expanded: each becomes a single leaf holding its compact
// JSON text. Empty objects contribute no leaf.
func Flatten(n Node) Flat {
	f := Flat{Values: make(map[string]any)}
	flattenInto(&f, "", n)
	return f
}

func flattenInto(f *Flat, prefix string, n Node) {
	switch n.Kind {
	case ObjectNode:
		for _, m := range n.Members {
			key := m.Key
			if prefix != "" {
				key = prefix + "." + m.Key
			}
			flattenInto(f, key, m.Value)
		}
	case ArrayNode:
		b, _ := n.MarshalJSON()
		f.set(prefix, string(b))
	default:
		f.set(prefix, scalarValue(n.Scalar))
	}
}

// scalarValue narrows json.Number to int64 or float64 where that is lossless.
func scalarValue(v any) any {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(string(num), 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(string(num), 64); err == nil {
		return f
	}
	return num
}

// StripPrefix returns a copy of f with prefix removed from every key that
// starts with it. A stripped key replaces an unprefixed key of the same name.
func (f Flat) StripPrefix(prefix string) Flat {
	if prefix == "" {
		return f
	}
	out := Flat{Values: make(map[string]any, len(f.Values))}
	for _, k := range f.Keys {
		out.set(strings.TrimPrefix(k, prefix), f.Values[k])
	}
	return out
}
