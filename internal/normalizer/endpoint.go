package normalizer

import (
	"fmt"
	"strings"

	"openapi-mcp/internal/parser"
	"openapi-mcp/pkg/types"
)

var methodKeys = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

var pathItemMeta = map[string]bool{
	"summary": true, "description": true, "servers": true,
	"parameters": true, "$ref": true,
}

// endpointScope accumulates the per-endpoint derived data while the
// operation decodes.
type endpointScope struct {
	index        int
	source       string
	deps         []string
	depSet       map[string]bool
	contentTypes []string
	ctSet        map[string]bool
	xrefSet      map[string]bool
	edgeSet      map[string]bool
}

func newEndpointScope(index int) *endpointScope {
	return &endpointScope{
		index:   index,
		depSet:  make(map[string]bool),
		ctSet:   make(map[string]bool),
		xrefSet: make(map[string]bool),
		edgeSet: make(map[string]bool),
	}
}

func (s *endpointScope) addDep(name string) {
	if !s.depSet[name] {
		s.depSet[name] = true
		s.deps = append(s.deps, name)
	}
}

func (s *endpointScope) addContentType(ct string) {
	if !s.ctSet[ct] {
		s.ctSet[ct] = true
		s.contentTypes = append(s.contentTypes, ct)
	}
}

// endpointPass creates one Endpoint per (path, method) pair, in source
// order, merging path-level parameters into every operation.
func (r *run) endpointPass() {
	seen := make(map[string]bool)
	for _, pm := range r.in.Paths {
		path := pm.Name
		item := pm.Node
		if !strings.HasPrefix(path, "/") {
			r.errorf(pathPointer(path, ""), "path template must start with '/'")
		}
		if item == nil || item.Kind != parser.KindObject {
			r.errorf(pathPointer(path, ""), "path item must be an object")
			continue
		}

		pathParams := item.Get("parameters")

		for _, key := range item.Keys() {
			lower := strings.ToLower(key)
			if !methodKeys[lower] {
				if !pathItemMeta[lower] && !strings.HasPrefix(key, "x-") {
					r.warnf(pathPointer(path, ""), "unknown path item member %q", key)
				}
				continue
			}
			op := item.Get(key)
			if op == nil || op.Kind != parser.KindObject {
				r.errorf(pathPointer(path, lower), "operation must be an object")
				continue
			}
			method := strings.ToUpper(lower)
			dupKey := method + " " + path
			if seen[dupKey] {
				r.errorf(pathPointer(path, lower), "duplicate operation %s %s", method, path)
				continue
			}
			seen[dupKey] = true
			r.endpoint(path, method, op, pathParams)
		}
	}
}

// endpoint decodes one operation into its canonical record.
func (r *run) endpoint(path, method string, op, pathParams *parser.Node) {
	scope := newEndpointScope(len(r.out.Endpoints))
	scope.source = method + " " + path

	ep := &types.Endpoint{
		Path:        path,
		Method:      method,
		OperationID: op.Get("operationId").StringOr(""),
		Summary:     op.Get("summary").StringOr(""),
		Description: op.Get("description").StringOr(""),
		Tags:        op.Get("tags").Strings(),
	}
	if deprecated, ok := op.Get("deprecated").AsBool(); ok {
		ep.Deprecated = deprecated
	}

	inherited := r.parameters(pathParams, pathPointer(path, "", "parameters"), scope)
	own := r.parameters(op.Get("parameters"), pathPointer(path, method, "parameters"), scope)
	ep.Parameters = mergeParameters(inherited, own)
	r.validatePathParameters(ep)

	if rb := op.Get("requestBody"); rb != nil {
		ep.RequestBody = r.requestBody(rb, pathPointer(path, method, "requestBody"), scope)
	}

	if resp := op.Get("responses"); resp != nil {
		ep.Responses, ep.ResponseOrder = r.responses(resp, pathPointer(path, method, "responses"), scope)
	} else {
		r.errorf(pathPointer(path, method), "operation has no responses")
	}

	if sec := op.Get("security"); sec != nil {
		ep.Security = r.securityRequirements(sec)
	} else {
		ep.Security = r.docSecurity
	}

	for _, key := range op.Keys() {
		if strings.HasPrefix(key, "x-") {
			ep.Extensions = append(ep.Extensions, types.VendorExtension{
				Name:  key,
				Value: op.Get(key).Interface(),
			})
		}
	}

	r.out.Endpoints = append(r.out.Endpoints, ep)
	r.derive(ep, scope)
}

// mergeParameters folds path-level parameters into the operation. An
// operation parameter overrides the inherited one when name and location
// match; inherited parameters keep their declaration position.
func mergeParameters(inherited, own []types.Parameter) []types.Parameter {
	if len(inherited) == 0 {
		return own
	}
	key := func(p types.Parameter) string { return p.Name + "\x00" + string(p.In) }

	overridden := make(map[string]bool, len(own))
	merged := make([]types.Parameter, 0, len(inherited)+len(own))
	for _, p := range inherited {
		replaced := false
		for _, o := range own {
			if o.Name == p.Name && o.In == p.In {
				merged = append(merged, o)
				overridden[key(o)] = true
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	for _, o := range own {
		if !overridden[key(o)] {
			merged = append(merged, o)
		}
	}
	return merged
}

// validatePathParameters reconciles the {token} set with the declared path
// parameters: missing ones are synthesized so the record always satisfies
// the template, and mismatches are recorded as warnings.
func (r *run) validatePathParameters(ep *types.Endpoint) {
	tokens := ep.PathParameterTokens()
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	declared := make(map[string]bool)
	for i := range ep.Parameters {
		p := &ep.Parameters[i]
		if p.In != types.LocationPath {
			continue
		}
		declared[p.Name] = true
		if !p.Required {
			r.warnf(pathPointer(ep.Path, ep.Method), "path parameter %q must be required; forcing", p.Name)
			p.Required = true
		}
		if !tokenSet[p.Name] {
			r.warnf(pathPointer(ep.Path, ep.Method), "path parameter %q does not appear in the path template", p.Name)
		}
	}

	for _, t := range tokens {
		if declared[t] {
			continue
		}
		r.warnf(pathPointer(ep.Path, ep.Method), "path parameter %q is not declared; synthesizing", t)
		ep.Parameters = append(ep.Parameters, types.Parameter{
			Name:     t,
			In:       types.LocationPath,
			Required: true,
			Schema:   &types.Schema{Type: "string"},
		})
	}
}

// parameters decodes a parameter array, following component references.
func (r *run) parameters(node *parser.Node, pointer string, scope *endpointScope) []types.Parameter {
	if node == nil {
		return nil
	}
	if node.Kind != parser.KindArray {
		r.errorf(pointer, "parameters must be an array")
		return nil
	}
	out := make([]types.Parameter, 0, len(node.Items))
	for i, item := range node.Items {
		ptr := fmt.Sprintf("%s/%d", pointer, i)
		resolved := r.resolveComponent(item, "parameters", ptr)
		if resolved == nil {
			continue
		}
		if p, ok := r.parameter(resolved, ptr, scope); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *run) parameter(node *parser.Node, pointer string, scope *endpointScope) (types.Parameter, bool) {
	name := node.Get("name").StringOr("")
	if name == "" {
		r.errorf(pointer, "parameter has no name")
		return types.Parameter{}, false
	}
	loc := types.ParameterLocation(node.Get("in").StringOr(""))
	if !loc.Valid() {
		r.errorf(pointer, "parameter %q has invalid location %q", name, node.Get("in").StringOr(""))
		return types.Parameter{}, false
	}

	p := types.Parameter{
		Name:        name,
		In:          loc,
		Description: node.Get("description").StringOr(""),
	}
	if required, ok := node.Get("required").AsBool(); ok {
		p.Required = required
	}
	if ex := node.Get("example"); ex != nil {
		p.Example = ex.Interface()
	}

	if sch := node.Get("schema"); sch != nil {
		p.Schema = r.decodeSchema(sch, pointer+"/schema")
		r.collectEndpointRefs(p.Schema, types.SlotParameter, types.UsageParameter, "", p.Required, true, pointer+"/schema", scope)
	} else if content := node.Get("content"); content != nil && content.Kind == parser.KindObject {
		// content-style parameter: the first media type carries the schema
		for _, ct := range content.Keys() {
			media := content.Get(ct)
			if sch := media.Get("schema"); sch != nil {
				p.Schema = r.decodeSchema(sch, pointer+"/content/"+escapeToken(ct)+"/schema")
				r.collectEndpointRefs(p.Schema, types.SlotParameter, types.UsageParameter, ct, p.Required, true, pointer, scope)
			}
			break
		}
	}
	return p, true
}

// requestBody decodes a request body, following component references.
func (r *run) requestBody(node *parser.Node, pointer string, scope *endpointScope) *types.RequestBody {
	resolved := r.resolveComponent(node, "requestBodies", pointer)
	if resolved == nil {
		return nil
	}
	if resolved.Kind != parser.KindObject {
		r.errorf(pointer, "requestBody must be an object")
		return nil
	}
	rb := &types.RequestBody{
		Description: resolved.Get("description").StringOr(""),
	}
	if required, ok := resolved.Get("required").AsBool(); ok {
		rb.Required = required
	}
	rb.Content, rb.ContentOrder = r.content(resolved.Get("content"), pointer+"/content", types.UsageRequestBody, rb.Required, scope)
	return rb
}

// responses decodes the status-code map in declaration order.
func (r *run) responses(node *parser.Node, pointer string, scope *endpointScope) (map[string]*types.Response, []string) {
	if node.Kind != parser.KindObject {
		r.errorf(pointer, "responses must be an object")
		return nil, nil
	}
	out := make(map[string]*types.Response, node.Len())
	order := make([]string, 0, node.Len())
	for _, code := range node.Keys() {
		ptr := pointer + "/" + escapeToken(code)
		if !validStatusKey(code) {
			r.warnf(ptr, "unusual response status %q", code)
		}
		resolved := r.resolveComponent(node.Get(code), "responses", ptr)
		if resolved == nil {
			continue
		}
		if resolved.Kind != parser.KindObject {
			r.errorf(ptr, "response must be an object")
			continue
		}
		resp := &types.Response{
			Description: resolved.Get("description").StringOr(""),
		}
		resp.Content, resp.ContentOrder = r.content(resolved.Get("content"), ptr+"/content", types.UsageResponseBody, false, scope)
		out[code] = resp
		order = append(order, code)
	}
	return out, order
}

// content decodes a content-type map, registering schema references under
// the given usage context. The first content type is the primary one.
func (r *run) content(node *parser.Node, pointer string, usage types.UsageContext, required bool, scope *endpointScope) (map[string]*types.MediaType, []string) {
	if node == nil {
		return nil, nil
	}
	if node.Kind != parser.KindObject {
		r.errorf(pointer, "content must be an object")
		return nil, nil
	}
	content := make(map[string]*types.MediaType, node.Len())
	order := make([]string, 0, node.Len())
	rootSlot := types.SlotRequestBody
	if usage == types.UsageResponseBody {
		rootSlot = types.SlotResponse
	}
	for i, ct := range node.Keys() {
		media := node.Get(ct)
		if media == nil || media.Kind != parser.KindObject {
			r.warnf(pointer+"/"+escapeToken(ct), "media type must be an object")
			continue
		}
		mt := &types.MediaType{}
		if sch := media.Get("schema"); sch != nil {
			ptr := pointer + "/" + escapeToken(ct) + "/schema"
			mt.Schema = r.decodeSchema(sch, ptr)
			r.collectEndpointRefs(mt.Schema, rootSlot, usage, ct, required, i == 0, ptr, scope)
		}
		if ex := media.Get("example"); ex != nil {
			mt.Example = ex.Interface()
		}
		content[ct] = mt
		order = append(order, ct)
		scope.addContentType(ct)
	}
	return content, order
}

// collectEndpointRefs records every named schema reference reachable from s
// as an endpoint dependency and a cross-reference row.
func (r *run) collectEndpointRefs(s *types.Schema, rootSlot types.ReferenceSlot, usage types.UsageContext, contentType string, required, primary bool, pointer string, scope *endpointScope) {
	for _, hit := range schemaRefs(s, rootSlot) {
		if hit.Name == "" {
			r.errorf(pointer, "unresolvable reference %q", hit.Ref)
			continue
		}
		scope.addDep(hit.Name)
		resolved := r.schemaNames[hit.Name]
		edgeKey := hit.Name + "\x00" + string(rootSlot)
		if !scope.edgeSet[edgeKey] {
			scope.edgeSet[edgeKey] = true
			r.out.Edges = append(r.out.Edges, types.ReferenceEdge{
				Source: scope.source, Target: hit.Name, Slot: rootSlot, Resolved: resolved,
			})
		}
		if !resolved {
			r.errorf(pointer, "reference to unknown schema %q", hit.Name)
			continue
		}
		xrefKey := fmt.Sprintf("%s\x00%s\x00%s", hit.Name, usage, contentType)
		if scope.xrefSet[xrefKey] {
			continue
		}
		scope.xrefSet[xrefKey] = true

		score := usageScore(usage)
		if !primary {
			score *= 0.9
		}
		r.out.CrossReferences = append(r.out.CrossReferences, EndpointXRef{
			EndpointIndex: scope.index,
			SchemaName:    hit.Name,
			Context:       usage,
			ContentType:   contentType,
			Required:      required,
			Score:         score,
		})
	}
}

// usageScore is the contextual importance of a schema usage.
func usageScore(usage types.UsageContext) float64 {
	switch usage {
	case types.UsageRequestBody:
		return 1.0
	case types.UsageResponseBody:
		return 0.8
	default:
		return 0.6
	}
}

// validStatusKey accepts 3-digit codes, range patterns like 2XX and the
// literal "default".
func validStatusKey(code string) bool {
	if code == "default" {
		return true
	}
	if len(code) != 3 {
		return false
	}
	if code[0] < '1' || code[0] > '5' {
		return false
	}
	rest := code[1:]
	if rest == "XX" {
		return true
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
