package parser

import (
	"bytes"
	"encoding/json"

	"openapi-mcp/pkg/types"
)

// NodeKind identifies the JSON shape held by a Node.
type NodeKind int

const (
	KindInvalid NodeKind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindBool
	KindNull
)

// Node is one element of the decoded document tree. Object members keep
// their source order so schema bodies can be re-emitted exactly as written.
type Node struct {
	Kind NodeKind

	keys     []string
	children map[string]*Node

	Items []*Node

	Str  string
	Num  json.Number
	Bool bool

	// Source position when the decoder knows it (YAML always, JSON never).
	Line   int
	Column int
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{Kind: KindObject, children: make(map[string]*Node)}
}

// NewArray returns an empty array node.
func NewArray() *Node {
	return &Node{Kind: KindArray}
}

// StringNode returns a string scalar node.
func StringNode(s string) *Node {
	return &Node{Kind: KindString, Str: s}
}

// Put adds or replaces an object member. A replaced member keeps its
// original position.
func (n *Node) Put(key string, child *Node) {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	if _, exists := n.children[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
}

// Get returns the member node for key, or nil. Safe on nil and non-object
// receivers.
func (n *Node) Get(key string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	return n.children[key]
}

// Has reports whether the object has a member named key.
func (n *Node) Has(key string) bool {
	if n == nil || n.Kind != KindObject {
		return false
	}
	_, ok := n.children[key]
	return ok
}

// Keys returns the object member names in source order. The returned slice
// is shared; callers must not mutate it.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	return n.keys
}

// Len returns the member count for objects, the element count for arrays
// and zero otherwise.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindObject:
		return len(n.keys)
	case KindArray:
		return len(n.Items)
	default:
		return 0
	}
}

// AsString returns the string value and whether the node is a string.
func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Str, true
}

// StringOr returns the string value or def when the node is not a string.
func (n *Node) StringOr(def string) string {
	if s, ok := n.AsString(); ok {
		return s
	}
	return def
}

// AsBool returns the boolean value and whether the node is a boolean.
func (n *Node) AsBool() (bool, bool) {
	if n == nil || n.Kind != KindBool {
		return false, false
	}
	return n.Bool, true
}

// AsFloat returns the numeric value and whether the node is a number.
func (n *Node) AsFloat() (float64, bool) {
	if n == nil || n.Kind != KindNumber {
		return 0, false
	}
	f, err := n.Num.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsInt returns the integral value and whether the node is an integral
// number.
func (n *Node) AsInt() (int64, bool) {
	if n == nil || n.Kind != KindNumber {
		return 0, false
	}
	i, err := n.Num.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// Strings returns the elements of an array of strings. Non-string elements
// are skipped.
func (n *Node) Strings() []string {
	if n == nil || n.Kind != KindArray {
		return nil
	}
	out := make([]string, 0, len(n.Items))
	for _, item := range n.Items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Interface converts the node into plain Go values. Objects become
// *types.OrderedMap so member order survives arbitrarily deep.
func (n *Node) Interface() interface{} {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindObject:
		om := types.NewOrderedMap()
		for _, key := range n.keys {
			om.Set(key, n.children[key].Interface())
		}
		return om
	case KindArray:
		out := make([]interface{}, len(n.Items))
		for i, item := range n.Items {
			out[i] = item.Interface()
		}
		return out
	case KindString:
		return n.Str
	case KindNumber:
		return n.Num
	case KindBool:
		return n.Bool
	default:
		return nil
	}
}

// OrderedMap converts an object node into *types.OrderedMap. Returns nil
// for non-object nodes.
func (n *Node) OrderedMap() *types.OrderedMap {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	om, _ := n.Interface().(*types.OrderedMap)
	return om
}

// MarshalJSON emits the node with object members in source order.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	switch n.Kind {
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, key := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			value, err := json.Marshal(n.children[key])
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			value, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(value)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindString:
		return json.Marshal(n.Str)
	case KindNumber:
		if n.Num == "" {
			return []byte("0"), nil
		}
		return []byte(n.Num), nil
	case KindBool:
		return json.Marshal(n.Bool)
	default:
		return []byte("null"), nil
	}
}
