package types

import "encoding/json"

// Discriminator mirrors the OpenAPI discriminator object.
type Discriminator struct {
	PropertyName string            `json:"propertyName"`
	Mapping      map[string]string `json:"mapping,omitempty"`
}

// Schema is the canonical record for one schema body. Named component
// schemas carry Name/ID/DocumentID; inline schemas leave them zero. A pure
// reference carries only Ref.
//
// Property order and vendor-extension order are preserved from the source
// document; MarshalJSON replays them so output is deterministic.
type Schema struct {
	ID         int64  `json:"id,omitempty"`
	DocumentID int64  `json:"document_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Ref holds the verbatim $ref string when this node is a reference.
	Ref string `json:"$ref,omitempty"`

	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Properties    map[string]*Schema `json:"properties,omitempty"`
	PropertyOrder []string           `json:"property_order,omitempty"`
	Required      []string           `json:"required,omitempty"`

	Items *Schema `json:"items,omitempty"`

	// AdditionalProperties is the schema form; AdditionalAllowed captures
	// the boolean form (nil when the keyword is absent).
	AdditionalProperties *Schema `json:"additional_properties,omitempty"`
	AdditionalAllowed    *bool   `json:"additional_allowed,omitempty"`

	AllOf []*Schema `json:"all_of,omitempty"`
	OneOf []*Schema `json:"one_of,omitempty"`
	AnyOf []*Schema `json:"any_of,omitempty"`
	Not   *Schema   `json:"not,omitempty"`

	If   *Schema `json:"if,omitempty"`
	Then *Schema `json:"then,omitempty"`
	Else *Schema `json:"else,omitempty"`

	// Validation constraints. Numeric exclusive bounds follow the 3.1
	// numeric form; 3.0 boolean exclusives are folded in by the normalizer.
	Minimum          *float64      `json:"minimum,omitempty"`
	Maximum          *float64      `json:"maximum,omitempty"`
	ExclusiveMinimum *float64      `json:"exclusive_minimum,omitempty"`
	ExclusiveMaximum *float64      `json:"exclusive_maximum,omitempty"`
	MinLength        *int64        `json:"min_length,omitempty"`
	MaxLength        *int64        `json:"max_length,omitempty"`
	Pattern          string        `json:"pattern,omitempty"`
	MultipleOf       *float64      `json:"multiple_of,omitempty"`
	MinItems         *int64        `json:"min_items,omitempty"`
	MaxItems         *int64        `json:"max_items,omitempty"`
	UniqueItems      bool          `json:"unique_items,omitempty"`
	MinProperties    *int64        `json:"min_properties,omitempty"`
	MaxProperties    *int64        `json:"max_properties,omitempty"`
	Enum             []interface{} `json:"enum,omitempty"`
	Const            interface{}   `json:"const,omitempty"`

	Discriminator *Discriminator `json:"discriminator,omitempty"`

	Nullable   bool `json:"nullable,omitempty"`
	Deprecated bool `json:"deprecated,omitempty"`
	ReadOnly   bool `json:"read_only,omitempty"`
	WriteOnly  bool `json:"write_only,omitempty"`

	Example  interface{}   `json:"example,omitempty"`
	Examples []interface{} `json:"examples,omitempty"`
	Default  interface{}   `json:"default,omitempty"`

	Extensions []VendorExtension `json:"extensions,omitempty"`

	// Derived at ingest: outbound named-schema dependencies and the
	// inverted used-by set.
	Dependencies []string `json:"dependencies,omitempty"`
	UsedBy       []string `json:"used_by,omitempty"`
}

// IsRef reports whether the node is a bare reference.
func (s *Schema) IsRef() bool {
	return s != nil && s.Ref != ""
}

// HasComposition reports whether any composition keyword is present.
func (s *Schema) HasComposition() bool {
	if s == nil {
		return false
	}
	return len(s.AllOf) > 0 || len(s.OneOf) > 0 || len(s.AnyOf) > 0 || s.Not != nil
}

// CompositionType names the first composition keyword in effect, or "".
func (s *Schema) CompositionType() string {
	switch {
	case s == nil:
		return ""
	case len(s.AllOf) > 0:
		return "allOf"
	case len(s.OneOf) > 0:
		return "oneOf"
	case len(s.AnyOf) > 0:
		return "anyOf"
	case s.Not != nil:
		return "not"
	}
	return ""
}

// ValidationKeywords lists the names of the validation constraints the
// schema declares, in a fixed order. The indexer tokenizes these.
func (s *Schema) ValidationKeywords() []string {
	var kw []string
	if s == nil {
		return kw
	}
	if s.Minimum != nil {
		kw = append(kw, "minimum")
	}
	if s.Maximum != nil {
		kw = append(kw, "maximum")
	}
	if s.ExclusiveMinimum != nil {
		kw = append(kw, "exclusiveMinimum")
	}
	if s.ExclusiveMaximum != nil {
		kw = append(kw, "exclusiveMaximum")
	}
	if s.MinLength != nil {
		kw = append(kw, "minLength")
	}
	if s.MaxLength != nil {
		kw = append(kw, "maxLength")
	}
	if s.Pattern != "" {
		kw = append(kw, "pattern")
	}
	if s.MultipleOf != nil {
		kw = append(kw, "multipleOf")
	}
	if s.MinItems != nil {
		kw = append(kw, "minItems")
	}
	if s.MaxItems != nil {
		kw = append(kw, "maxItems")
	}
	if s.UniqueItems {
		kw = append(kw, "uniqueItems")
	}
	if s.MinProperties != nil {
		kw = append(kw, "minProperties")
	}
	if s.MaxProperties != nil {
		kw = append(kw, "maxProperties")
	}
	if len(s.Enum) > 0 {
		kw = append(kw, "enum")
	}
	if s.Const != nil {
		kw = append(kw, "const")
	}
	return kw
}

// Body renders the schema as an ordered JSON-Schema-shaped object using the
// original source spellings (camelCase keywords, $ref, x-* extensions).
// includeExamples and includeExtensions control the optional slots; the
// resolver and the docs renderer both build on this.
func (s *Schema) Body(includeExamples, includeExtensions bool) *OrderedMap {
	return s.Render(includeExamples, includeExtensions, nil)
}

// Render is Body with nested schema nodes delegated to child, letting the
// resolver substitute reference expansion at every nesting point. A nil
// child renders recursively with the same options.
func (s *Schema) Render(includeExamples, includeExtensions bool, child func(*Schema) interface{}) *OrderedMap {
	if child == nil {
		child = func(n *Schema) interface{} {
			return n.Render(includeExamples, includeExtensions, nil)
		}
	}
	out := NewOrderedMap()
	if s == nil {
		return out
	}
	if s.Ref != "" {
		out.Set("$ref", s.Ref)
		return out
	}
	if s.Type != "" {
		out.Set("type", s.Type)
	}
	if s.Format != "" {
		out.Set("format", s.Format)
	}
	if s.Title != "" {
		out.Set("title", s.Title)
	}
	if s.Description != "" {
		out.Set("description", s.Description)
	}
	if len(s.PropertyOrder) > 0 {
		props := NewOrderedMap()
		for _, name := range s.PropertyOrder {
			if p, ok := s.Properties[name]; ok {
				props.Set(name, child(p))
			}
		}
		out.Set("properties", props)
	}
	if len(s.Required) > 0 {
		out.Set("required", s.Required)
	}
	if s.Items != nil {
		out.Set("items", child(s.Items))
	}
	if s.AdditionalProperties != nil {
		out.Set("additionalProperties", child(s.AdditionalProperties))
	} else if s.AdditionalAllowed != nil {
		out.Set("additionalProperties", *s.AdditionalAllowed)
	}
	writeComposition := func(key string, list []*Schema) {
		if len(list) == 0 {
			return
		}
		bodies := make([]interface{}, 0, len(list))
		for _, sub := range list {
			bodies = append(bodies, child(sub))
		}
		out.Set(key, bodies)
	}
	writeComposition("allOf", s.AllOf)
	writeComposition("oneOf", s.OneOf)
	writeComposition("anyOf", s.AnyOf)
	if s.Not != nil {
		out.Set("not", child(s.Not))
	}
	if s.If != nil {
		out.Set("if", child(s.If))
	}
	if s.Then != nil {
		out.Set("then", child(s.Then))
	}
	if s.Else != nil {
		out.Set("else", child(s.Else))
	}
	if s.Minimum != nil {
		out.Set("minimum", *s.Minimum)
	}
	if s.Maximum != nil {
		out.Set("maximum", *s.Maximum)
	}
	if s.ExclusiveMinimum != nil {
		out.Set("exclusiveMinimum", *s.ExclusiveMinimum)
	}
	if s.ExclusiveMaximum != nil {
		out.Set("exclusiveMaximum", *s.ExclusiveMaximum)
	}
	if s.MinLength != nil {
		out.Set("minLength", *s.MinLength)
	}
	if s.MaxLength != nil {
		out.Set("maxLength", *s.MaxLength)
	}
	if s.Pattern != "" {
		out.Set("pattern", s.Pattern)
	}
	if s.MultipleOf != nil {
		out.Set("multipleOf", *s.MultipleOf)
	}
	if s.MinItems != nil {
		out.Set("minItems", *s.MinItems)
	}
	if s.MaxItems != nil {
		out.Set("maxItems", *s.MaxItems)
	}
	if s.UniqueItems {
		out.Set("uniqueItems", true)
	}
	if s.MinProperties != nil {
		out.Set("minProperties", *s.MinProperties)
	}
	if s.MaxProperties != nil {
		out.Set("maxProperties", *s.MaxProperties)
	}
	if len(s.Enum) > 0 {
		out.Set("enum", s.Enum)
	}
	if s.Const != nil {
		out.Set("const", s.Const)
	}
	if s.Discriminator != nil {
		out.Set("discriminator", s.Discriminator)
	}
	if s.Nullable {
		out.Set("nullable", true)
	}
	if s.Deprecated {
		out.Set("deprecated", true)
	}
	if s.ReadOnly {
		out.Set("readOnly", true)
	}
	if s.WriteOnly {
		out.Set("writeOnly", true)
	}
	if includeExamples {
		if s.Example != nil {
			out.Set("example", s.Example)
		}
		if len(s.Examples) > 0 {
			out.Set("examples", s.Examples)
		}
		if s.Default != nil {
			out.Set("default", s.Default)
		}
	}
	if includeExtensions {
		for _, ext := range s.Extensions {
			out.Set(ext.Name, ext.Value)
		}
	}
	return out
}

// MarshalBody is a convenience wrapper returning the rendered body as JSON
// bytes with examples and extensions included.
func (s *Schema) MarshalBody() ([]byte, error) {
	return json.Marshal(s.Body(true, true))
}
