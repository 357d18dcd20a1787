package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"openapi-mcp/pkg/types"
)

// maxAliasDepth bounds alias expansion so hostile anchor chains cannot
// recurse forever.
const maxAliasDepth = 1000

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// parseYAML decodes data through yaml.v3 and splits the resulting tree the
// same way the JSON path does. yaml.v3 preserves member order.
func (p *Parser) parseYAML(data []byte, doc *Document, errList, warnList *[]types.IngestIssue) error {
	root, err := yamlRoot(data)
	if err != nil {
		*errList = append(*errList, types.IngestIssue{
			Message: fmt.Sprintf("yaml: %v", err),
			Line:    yamlErrorLine(err),
		})
		return fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	if root.Kind != KindObject {
		*errList = append(*errList, issue("", "top-level value must be an object"))
		return fmt.Errorf("%w: top-level value must be an object", ErrParseFailed)
	}
	if sw := root.Get("swagger").StringOr(""); strings.HasPrefix(sw, "2.") {
		return errSwagger2
	}
	p.splitDocument(root, doc, errList, warnList)
	return nil
}

// splitDocument distributes a fully decoded tree into the Document fields,
// mirroring the streaming JSON assignments.
func (p *Parser) splitDocument(root *Node, doc *Document, errList, warnList *[]types.IngestIssue) {
	for _, key := range root.Keys() {
		node := root.Get(key)
		switch key {
		case "openapi":
			doc.OpenAPI = node.StringOr("")
			if doc.OpenAPI == "" {
				*errList = append(*errList, issue("/openapi", "value must be a string"))
			}
		case "swagger":
			doc.Swagger = node.StringOr("")
		case "info":
			if node.Kind != KindObject {
				*errList = append(*errList, issue("/info", "value must be an object"))
				break
			}
			doc.Info = node
		case "servers", "security", "tags":
			if node.Kind != KindArray {
				*warnList = append(*warnList, issue("/"+key, "value must be an array"))
				break
			}
			switch key {
			case "servers":
				doc.Servers = node
			case "security":
				doc.Security = node
			case "tags":
				doc.Tags = node
			}
		case "paths":
			if node.Kind != KindObject {
				*errList = append(*errList, issue("/paths", "value must be an object"))
				break
			}
			for _, name := range node.Keys() {
				doc.Paths = append(doc.Paths, Member{Name: name, Node: node.Get(name)})
			}
			doc.hasPaths = true
		case "components":
			p.splitComponents(node, doc, errList)
		default:
			if !knownEnvelopeKeys[key] && !strings.HasPrefix(key, "x-") {
				*warnList = append(*warnList, issue("/"+escapePointer(key), "unknown top-level member"))
			}
			doc.Extra = append(doc.Extra, Member{Name: key, Node: node})
		}
	}
}

func (p *Parser) splitComponents(node *Node, doc *Document, errList *[]types.IngestIssue) {
	if node.Kind != KindObject {
		*errList = append(*errList, issue("/components", "value must be an object"))
		return
	}
	for _, key := range node.Keys() {
		child := node.Get(key)
		switch key {
		case "schemas":
			if child.Kind != KindObject {
				*errList = append(*errList, issue("/components/schemas", "value must be an object"))
				doc.badSchemas = true
				break
			}
			for _, name := range child.Keys() {
				doc.Components.Schemas = append(doc.Components.Schemas, Member{Name: name, Node: child.Get(name)})
			}
		case "securitySchemes":
			if child.Kind != KindObject {
				*errList = append(*errList, issue("/components/securitySchemes", "value must be an object"))
				break
			}
			for _, name := range child.Keys() {
				doc.Components.SecuritySchemes = append(doc.Components.SecuritySchemes, Member{Name: name, Node: child.Get(name)})
			}
		default:
			doc.Components.Extra = append(doc.Components.Extra, Member{Name: key, Node: child})
		}
	}
}

// yamlRoot decodes data into the ordered node tree.
func yamlRoot(data []byte) (*Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 && root.Kind == yaml.DocumentNode {
		return nil, fmt.Errorf("empty document")
	}
	return yamlToNode(&root, 0)
}

func yamlToNode(n *yaml.Node, depth int) (*Node, error) {
	if depth > maxAliasDepth {
		return nil, fmt.Errorf("alias nesting exceeds %d levels", maxAliasDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Node{Kind: KindNull}, nil
		}
		return yamlToNode(n.Content[0], depth+1)
	case yaml.AliasNode:
		if n.Alias == nil {
			return &Node{Kind: KindNull}, nil
		}
		return yamlToNode(n.Alias, depth+1)
	case yaml.MappingNode:
		out := NewObject()
		out.Line, out.Column = n.Line, n.Column
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			key := keyNode.Value
			if keyNode.Kind == yaml.AliasNode && keyNode.Alias != nil {
				key = keyNode.Alias.Value
			}
			child, err := yamlToNode(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			out.Put(key, child)
		}
		return out, nil
	case yaml.SequenceNode:
		out := NewArray()
		out.Line, out.Column = n.Line, n.Column
		for _, item := range n.Content {
			child, err := yamlToNode(item, depth+1)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, child)
		}
		return out, nil
	case yaml.ScalarNode:
		return yamlScalar(n), nil
	default:
		return &Node{Kind: KindNull}, nil
	}
}

// yamlScalar maps a scalar node onto the JSON value space. Values that do
// not fit (hex ints are reparsed, .inf/.nan are not JSON) degrade to
// strings.
func yamlScalar(n *yaml.Node) *Node {
	out := &Node{Line: n.Line, Column: n.Column}
	switch n.Tag {
	case "!!null":
		out.Kind = KindNull
	case "!!bool":
		if b, err := strconv.ParseBool(n.Value); err == nil {
			out.Kind = KindBool
			out.Bool = b
		} else {
			out.Kind = KindString
			out.Str = n.Value
		}
	case "!!int":
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			out.Kind = KindNumber
			out.Num = json.Number(strconv.FormatInt(i, 10))
		} else if u, err := strconv.ParseUint(n.Value, 0, 64); err == nil {
			out.Kind = KindNumber
			out.Num = json.Number(strconv.FormatUint(u, 10))
		} else {
			out.Kind = KindString
			out.Str = n.Value
		}
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			out.Kind = KindNumber
			out.Num = json.Number(strconv.FormatFloat(f, 'g', -1, 64))
		} else {
			out.Kind = KindString
			out.Str = n.Value
		}
	default:
		out.Kind = KindString
		out.Str = n.Value
	}
	return out
}

func yamlErrorLine(err error) int {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	line, _ := strconv.Atoi(m[1])
	return line
}
