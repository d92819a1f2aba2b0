package etl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// RawPayload is the document captured by Extract, exactly as persisted.
type RawPayload []byte

// NodeKind tags which branch of a Node is populated.
type NodeKind uint8

const (
	ObjectNode NodeKind = iota + 1
	ArrayNode
	ScalarNode
)

// Member is one key/value pair of an object node, in document order.
type Member struct {
	Key   string
	Value Node
}

// Node is a decoded JSON value.
// Scalar holds string, json.Number, bool or nil.
type Node struct {
	Kind    NodeKind
	Members []Member
	Items   []Node
	Scalar  any
}

// Get returns the value of key on an object node.
// Duplicate keys resolve to the last occurrence, as in encoding/json.
func (n Node) Get(key string) (Node, bool) {
	if n.Kind != ObjectNode {
		return Node{}, false
	}
	for i := len(n.Members) - 1; i >= 0; i-- {
		if n.Members[i].Key == key {
			return n.Members[i].Value, true
		}
	}
	return Node{}, false
}

// ParseNode decodes a JSON document, keeping object key order and the
// exact text of numbers.
func ParseNode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeNode(dec)
	if err != nil {
		return Node{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, fmt.Errorf("unexpected data after top-level value")
	}
	return n, nil
}

func decodeNode(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Node{}, io.ErrUnexpectedEOF
		}
		return Node{}, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return Node{Kind: ScalarNode, Scalar: tok}, nil
	}

	switch delim {
	case '{':
		n := Node{Kind: ObjectNode}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return Node{}, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return Node{}, fmt.Errorf("object key is %T, not string", keyTok)
			}
			v, err := decodeNode(dec)
			if err != nil {
				return Node{}, err
			}
			n.Members = append(n.Members, Member{Key: key, Value: v})
		}
		if _, err := dec.Token(); err != nil {
			return Node{}, err
		}
		return n, nil

	case '[':
		n := Node{Kind: ArrayNode, Items: []Node{}}
		for dec.More() {
			v, err := decodeNode(dec)
			if err != nil {
				return Node{}, err
			}
			n.Items = append(n.Items, v)
		}
		if _, err := dec.Token(); err != nil {
			return Node{}, err
		}
		return n, nil

	default:
		return Node{}, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// MarshalJSON encodes the node compactly, in document order.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n Node) encode(buf *bytes.Buffer) error {
	switch n.Kind {
	case ObjectNode:
		buf.WriteByte('{')
		for i, m := range n.Members {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(m.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case ArrayNode:
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(n.Scalar)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
