package normalizer

import "openapi-mcp/pkg/types"

// validateConsistency applies the cross-record checks after every pass has
// run. Structural violations become errors, stylistic ones warnings.
func (r *run) validateConsistency() {
	for _, s := range r.out.Schemas {
		r.validateSchemaConsistency(s)
	}
	for _, ep := range r.out.Endpoints {
		r.validateEndpointSecurity(ep)
	}
}

func (r *run) validateSchemaConsistency(s *types.Schema) {
	declared := make(map[string]bool, len(s.PropertyOrder))
	for _, name := range s.PropertyOrder {
		declared[name] = true
	}

	for _, req := range s.Required {
		if !declared[req] {
			r.warnf(schemaPointer(s.Name, "required"),
				"required property %q is not declared", req)
		}
	}

	if s.Type == "array" && s.Items == nil {
		r.errorf(schemaPointer(s.Name), "array schema has no items")
	}

	if s.Discriminator != nil && s.Discriminator.PropertyName != "" &&
		len(s.PropertyOrder) > 0 && !declared[s.Discriminator.PropertyName] && !s.HasComposition() {
		r.errorf(schemaPointer(s.Name, "discriminator"),
			"discriminator property %q is not a declared property", s.Discriminator.PropertyName)
	}
}

func (r *run) validateEndpointSecurity(ep *types.Endpoint) {
	for _, req := range ep.Security {
		for _, name := range req.SchemeOrder {
			if !r.schemeNames[name] {
				r.errorf(pathPointer(ep.Path, ep.Method, "security"),
					"security requirement references unknown scheme %q", name)
			}
		}
	}
}
