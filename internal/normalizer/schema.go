package normalizer

import (
	"strings"

	"openapi-mcp/internal/parser"
	"openapi-mcp/pkg/types"
)

// schemaPass creates one canonical Schema per named component schema, in
// source order, and scans each body for outbound dependencies.
func (r *run) schemaPass() {
	for _, m := range r.in.Components.Schemas {
		ptr := schemaPointer(m.Name)
		if m.Node == nil || m.Node.Kind != parser.KindObject {
			r.errorf(ptr, "schema must be an object")
			continue
		}
		s := r.decodeSchema(m.Node, ptr)
		s.Name = m.Name

		seen := make(map[string]bool)
		for _, hit := range schemaRefs(s, "") {
			if hit.Name == "" {
				r.errorf(ptr, "unresolvable reference %q", hit.Ref)
				continue
			}
			if !seen[hit.Name] {
				seen[hit.Name] = true
				s.Dependencies = append(s.Dependencies, hit.Name)
			}
		}
		r.out.Schemas = append(r.out.Schemas, s)
	}
}

// decodeSchema converts a schema body into the canonical record. Every
// standard keyword is copied through; x-* members land in Extensions in
// source order. Unknown members are ignored.
func (r *run) decodeSchema(node *parser.Node, pointer string) *types.Schema {
	if node == nil {
		return nil
	}
	if node.Kind != parser.KindObject {
		r.warnf(pointer, "schema must be an object")
		return &types.Schema{}
	}

	s := &types.Schema{}
	if ref := node.Get("$ref").StringOr(""); ref != "" {
		s.Ref = ref
		return s
	}

	s.Type = node.Get("type").StringOr("")
	s.Format = node.Get("format").StringOr("")
	s.Title = node.Get("title").StringOr("")
	s.Description = node.Get("description").StringOr("")

	if props := node.Get("properties"); props != nil {
		if props.Kind != parser.KindObject {
			r.errorf(pointer+"/properties", "properties must be an object")
		} else {
			s.Properties = make(map[string]*types.Schema, props.Len())
			for _, name := range props.Keys() {
				s.Properties[name] = r.decodeSchema(props.Get(name), pointer+"/properties/"+escapeToken(name))
				s.PropertyOrder = append(s.PropertyOrder, name)
			}
		}
	}
	s.Required = node.Get("required").Strings()

	if items := node.Get("items"); items != nil {
		s.Items = r.decodeSchema(items, pointer+"/items")
	}

	if ap := node.Get("additionalProperties"); ap != nil {
		if b, ok := ap.AsBool(); ok {
			allowed := b
			s.AdditionalAllowed = &allowed
		} else {
			s.AdditionalProperties = r.decodeSchema(ap, pointer+"/additionalProperties")
		}
	}

	s.AllOf = r.decodeSchemaList(node.Get("allOf"), pointer+"/allOf")
	s.OneOf = r.decodeSchemaList(node.Get("oneOf"), pointer+"/oneOf")
	s.AnyOf = r.decodeSchemaList(node.Get("anyOf"), pointer+"/anyOf")
	if not := node.Get("not"); not != nil {
		s.Not = r.decodeSchema(not, pointer+"/not")
	}
	if ifNode := node.Get("if"); ifNode != nil {
		s.If = r.decodeSchema(ifNode, pointer+"/if")
	}
	if thenNode := node.Get("then"); thenNode != nil {
		s.Then = r.decodeSchema(thenNode, pointer+"/then")
	}
	if elseNode := node.Get("else"); elseNode != nil {
		s.Else = r.decodeSchema(elseNode, pointer+"/else")
	}

	s.Minimum = floatPtr(node.Get("minimum"))
	s.Maximum = floatPtr(node.Get("maximum"))
	s.MinLength = intPtr(node.Get("minLength"))
	s.MaxLength = intPtr(node.Get("maxLength"))
	s.Pattern = node.Get("pattern").StringOr("")
	s.MultipleOf = floatPtr(node.Get("multipleOf"))
	s.MinItems = intPtr(node.Get("minItems"))
	s.MaxItems = intPtr(node.Get("maxItems"))
	s.MinProperties = intPtr(node.Get("minProperties"))
	s.MaxProperties = intPtr(node.Get("maxProperties"))
	if unique, ok := node.Get("uniqueItems").AsBool(); ok {
		s.UniqueItems = unique
	}

	// 3.1 numeric exclusives pass through; 3.0 boolean exclusives fold
	// into the numeric form against the inclusive bound.
	if ex := node.Get("exclusiveMinimum"); ex != nil {
		if f, ok := ex.AsFloat(); ok {
			s.ExclusiveMinimum = &f
		} else if b, ok := ex.AsBool(); ok && b && s.Minimum != nil {
			s.ExclusiveMinimum = s.Minimum
			s.Minimum = nil
		}
	}
	if ex := node.Get("exclusiveMaximum"); ex != nil {
		if f, ok := ex.AsFloat(); ok {
			s.ExclusiveMaximum = &f
		} else if b, ok := ex.AsBool(); ok && b && s.Maximum != nil {
			s.ExclusiveMaximum = s.Maximum
			s.Maximum = nil
		}
	}

	if enum := node.Get("enum"); enum != nil && enum.Kind == parser.KindArray {
		for _, item := range enum.Items {
			s.Enum = append(s.Enum, item.Interface())
		}
	}
	if c := node.Get("const"); c != nil {
		s.Const = c.Interface()
	}

	if disc := node.Get("discriminator"); disc != nil && disc.Kind == parser.KindObject {
		s.Discriminator = &types.Discriminator{
			PropertyName: disc.Get("propertyName").StringOr(""),
		}
		if mapping := disc.Get("mapping"); mapping != nil && mapping.Kind == parser.KindObject {
			s.Discriminator.Mapping = make(map[string]string, mapping.Len())
			for _, k := range mapping.Keys() {
				s.Discriminator.Mapping[k] = mapping.Get(k).StringOr("")
			}
		}
	}

	if nullable, ok := node.Get("nullable").AsBool(); ok {
		s.Nullable = nullable
	}
	if deprecated, ok := node.Get("deprecated").AsBool(); ok {
		s.Deprecated = deprecated
	}
	if ro, ok := node.Get("readOnly").AsBool(); ok {
		s.ReadOnly = ro
	}
	if wo, ok := node.Get("writeOnly").AsBool(); ok {
		s.WriteOnly = wo
	}

	if ex := node.Get("example"); ex != nil {
		s.Example = ex.Interface()
	}
	if exs := node.Get("examples"); exs != nil && exs.Kind == parser.KindArray {
		for _, item := range exs.Items {
			s.Examples = append(s.Examples, item.Interface())
		}
	}
	if def := node.Get("default"); def != nil {
		s.Default = def.Interface()
	}

	for _, key := range node.Keys() {
		if strings.HasPrefix(key, "x-") {
			s.Extensions = append(s.Extensions, types.VendorExtension{
				Name:  key,
				Value: node.Get(key).Interface(),
			})
		}
	}
	return s
}

func (r *run) decodeSchemaList(node *parser.Node, pointer string) []*types.Schema {
	if node == nil {
		return nil
	}
	if node.Kind != parser.KindArray {
		r.errorf(pointer, "value must be an array")
		return nil
	}
	out := make([]*types.Schema, 0, len(node.Items))
	for i, item := range node.Items {
		out = append(out, r.decodeSchema(item, pointer+"/"+itoa(i)))
	}
	return out
}

func floatPtr(node *parser.Node) *float64 {
	if f, ok := node.AsFloat(); ok {
		return &f
	}
	return nil
}

func intPtr(node *parser.Node) *int64 {
	if i, ok := node.AsInt(); ok {
		return &i
	}
	return nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// refHit is one named-schema reference found inside a schema body.
type refHit struct {
	Name string
	Ref  string
	Slot types.ReferenceSlot
}

// schemaRefs walks a schema body collecting every $ref at any depth. The
// slot of a hit is the structural position of the outermost container the
// walk entered; rootSlot overrides the slot for references found at the
// root (used when the walk starts from a parameter or body schema).
func schemaRefs(s *types.Schema, rootSlot types.ReferenceSlot) []refHit {
	var hits []refHit
	walkRefs(s, rootSlot, &hits)
	return hits
}

func walkRefs(s *types.Schema, slot types.ReferenceSlot, hits *[]refHit) {
	if s == nil {
		return
	}
	if s.Ref != "" {
		*hits = append(*hits, refHit{Name: refName(s.Ref), Ref: s.Ref, Slot: slot})
		return
	}
	for _, name := range s.PropertyOrder {
		walkRefs(s.Properties[name], orSlot(slot, types.SlotProperty), hits)
	}
	walkRefs(s.Items, orSlot(slot, types.SlotItems), hits)
	walkRefs(s.AdditionalProperties, orSlot(slot, types.SlotAdditionalProperties), hits)
	for _, sub := range s.AllOf {
		walkRefs(sub, orSlot(slot, types.SlotAllOf), hits)
	}
	for _, sub := range s.OneOf {
		walkRefs(sub, orSlot(slot, types.SlotOneOf), hits)
	}
	for _, sub := range s.AnyOf {
		walkRefs(sub, orSlot(slot, types.SlotAnyOf), hits)
	}
	walkRefs(s.Not, orSlot(slot, types.SlotNot), hits)
	walkRefs(s.If, orSlot(slot, types.SlotIf), hits)
	walkRefs(s.Then, orSlot(slot, types.SlotThen), hits)
	walkRefs(s.Else, orSlot(slot, types.SlotElse), hits)
}

// orSlot keeps a non-empty root slot so endpoint-scoped walks report the
// endpoint-level position rather than the schema-internal one.
func orSlot(root, inner types.ReferenceSlot) types.ReferenceSlot {
	if root != "" {
		return root
	}
	return inner
}

// refName reduces a local reference to the bare schema name. External and
// non-schema references yield "".
func refName(ref string) string {
	for _, prefix := range []string{
		"#/components/schemas/",
		"#/definitions/",
		"components/schemas/",
		"definitions/",
	} {
		if strings.HasPrefix(ref, prefix) {
			rest := strings.TrimPrefix(ref, prefix)
			if rest != "" && !strings.Contains(rest, "/") {
				return unescapeToken(rest)
			}
			return ""
		}
	}
	return ""
}

// unescapeToken reverses JSON pointer token escaping.
func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}
