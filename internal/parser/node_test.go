package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/pkg/types"
)

func TestNode_PutKeepsOrder(t *testing.T) {
	n := NewObject()
	n.Put("zebra", StringNode("z"))
	n.Put("apple", StringNode("a"))
	n.Put("mango", StringNode("m"))
	n.Put("apple", StringNode("a2")) // replace keeps position

	assert.Equal(t, []string{"zebra", "apple", "mango"}, n.Keys())
	assert.Equal(t, "a2", n.Get("apple").StringOr(""))
	assert.Equal(t, 3, n.Len())
}

func TestNode_MarshalJSONIsOrdered(t *testing.T) {
	n := NewObject()
	n.Put("type", StringNode("object"))
	props := NewObject()
	props.Put("zulu", StringNode("1"))
	props.Put("alpha", StringNode("2"))
	n.Put("properties", props)
	n.Put("required", &Node{Kind: KindArray, Items: []*Node{StringNode("zulu")}})

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object","properties":{"zulu":"1","alpha":"2"},"required":["zulu"]}`, string(out))
}

func TestNode_ScalarAccessors(t *testing.T) {
	num := &Node{Kind: KindNumber, Num: json.Number("42")}
	i, ok := num.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	f, ok := num.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 42.0, f)

	frac := &Node{Kind: KindNumber, Num: json.Number("0.5")}
	_, ok = frac.AsInt()
	assert.False(t, ok)

	b := &Node{Kind: KindBool, Bool: true}
	v, ok := b.AsBool()
	require.True(t, ok)
	assert.True(t, v)

	// accessors are nil safe
	var nilNode *Node
	assert.Equal(t, "fallback", nilNode.StringOr("fallback"))
	assert.Nil(t, nilNode.Get("anything"))
	assert.Equal(t, 0, nilNode.Len())
}

func TestNode_Strings(t *testing.T) {
	n := &Node{Kind: KindArray, Items: []*Node{
		StringNode("a"),
		{Kind: KindNumber, Num: json.Number("1")},
		StringNode("b"),
	}}
	assert.Equal(t, []string{"a", "b"}, n.Strings())
}

func TestNode_InterfacePreservesOrder(t *testing.T) {
	n := NewObject()
	n.Put("b", StringNode("2"))
	n.Put("a", StringNode("1"))

	om, ok := n.Interface().(*types.OrderedMap)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, om.Keys())

	arr := &Node{Kind: KindArray, Items: []*Node{n}}
	vals, ok := arr.Interface().([]interface{})
	require.True(t, ok)
	require.Len(t, vals, 1)
	_, ok = vals[0].(*types.OrderedMap)
	assert.True(t, ok)
}

func TestNode_MarshalNilAndNull(t *testing.T) {
	var nilNode *Node
	out, err := json.Marshal(nilNode)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	out, err = json.Marshal(&Node{Kind: KindNull})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
