// Package normalizer turns parsed document trees into the canonical records
// the store persists: the document row, endpoints, schemas, security
// schemes, reference edges and the schema-endpoint cross references.
//
// Normalization never fails. Structural violations aggregate into
// Result.Errors, stylistic findings and circular references into
// Result.Warnings, and both lists end up on the stored document.
package normalizer

import (
	"strings"

	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/parser"
	"openapi-mcp/pkg/types"
)

// Result carries everything one document normalizes into.
type Result struct {
	Document        *types.APIDocument
	Endpoints       []*types.Endpoint
	Schemas         []*types.Schema
	SecuritySchemes []*types.SecurityScheme
	Edges           []types.ReferenceEdge
	CrossReferences []EndpointXRef
	Errors          []types.IngestIssue
	Warnings        []types.IngestIssue
}

// EndpointXRef is a cross-reference row tied to an endpoint by its position
// in Result.Endpoints. The store assigns real ids at commit time.
type EndpointXRef struct {
	EndpointIndex int
	SchemaName    string
	Context       types.UsageContext
	ContentType   string
	Required      bool
	Score         float64
}

// Normalizer drives the normalization passes.
type Normalizer struct {
	logger logging.Logger
}

// New creates a Normalizer.
func New(logger logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Normalizer{logger: logger.WithComponent("normalizer")}
}

// run is the per-document state shared by the passes.
type run struct {
	in  *parser.Document
	out *Result

	schemaNames map[string]bool
	components  map[string]map[string]*parser.Node
	docSecurity []types.SecurityRequirement
	schemeNames map[string]bool
}

// Normalize produces the canonical records for one parsed document.
func (n *Normalizer) Normalize(doc *parser.Document) *Result {
	r := &run{
		in:          doc,
		out:         &Result{},
		schemaNames: make(map[string]bool, len(doc.Components.Schemas)),
		components:  buildComponentIndex(doc),
		schemeNames: make(map[string]bool, len(doc.Components.SecuritySchemes)),
	}
	for _, m := range doc.Components.Schemas {
		r.schemaNames[m.Name] = true
	}
	for _, m := range doc.Components.SecuritySchemes {
		r.schemeNames[m.Name] = true
	}

	r.documentPass()
	r.docSecurity = r.securityRequirements(doc.Security)
	r.endpointPass()
	r.schemaPass()
	r.securityPass()
	r.classifyReferences()
	r.invertUsage()
	r.validateConsistency()

	n.logger.Debug("normalized document",
		"endpoints", len(r.out.Endpoints),
		"schemas", len(r.out.Schemas),
		"schemes", len(r.out.SecuritySchemes),
		"edges", len(r.out.Edges),
		"errors", len(r.out.Errors),
		"warnings", len(r.out.Warnings),
	)
	return r.out
}

// documentPass builds the APIDocument record from the envelope.
func (r *run) documentPass() {
	info := r.in.Info
	doc := &types.APIDocument{
		OpenAPIVersion: r.in.OpenAPI,
		ContentHash:    r.in.ContentHash,
		SourcePath:     r.in.SourcePath,
		FileSize:       r.in.SourceBytes,
	}
	if doc.OpenAPIVersion == "" {
		doc.OpenAPIVersion = r.in.Swagger
	}

	doc.Title = info.Get("title").StringOr("")
	if doc.Title == "" {
		r.errorf("/info/title", "missing required title")
	}
	doc.Version = info.Get("version").StringOr("")
	if doc.Version == "" {
		r.errorf("/info/version", "missing required version")
	}
	doc.Description = info.Get("description").StringOr("")

	if contact := info.Get("contact"); contact != nil && contact.Kind == parser.KindObject {
		doc.Contact = &types.Contact{
			Name:  contact.Get("name").StringOr(""),
			URL:   contact.Get("url").StringOr(""),
			Email: contact.Get("email").StringOr(""),
		}
	}
	if license := info.Get("license"); license != nil && license.Kind == parser.KindObject {
		doc.License = &types.License{
			Name: license.Get("name").StringOr(""),
			URL:  license.Get("url").StringOr(""),
		}
	}

	if r.in.Servers != nil {
		for _, item := range r.in.Servers.Items {
			if item.Kind != parser.KindObject {
				continue
			}
			url := item.Get("url").StringOr("")
			if url == "" {
				continue
			}
			doc.Servers = append(doc.Servers, types.Server{
				URL:         url,
				Description: item.Get("description").StringOr(""),
			})
		}
		if len(doc.Servers) > 0 {
			doc.BaseURL = doc.Servers[0].URL
		}
	}

	r.out.Document = doc
}

// buildComponentIndex indexes the non-schema component maps so $ref targets
// under parameters, requestBodies and responses resolve in place.
func buildComponentIndex(doc *parser.Document) map[string]map[string]*parser.Node {
	index := make(map[string]map[string]*parser.Node)
	for _, m := range doc.Components.Extra {
		if m.Node == nil || m.Node.Kind != parser.KindObject {
			continue
		}
		switch m.Name {
		case "parameters", "requestBodies", "responses", "headers", "examples":
			members := make(map[string]*parser.Node, m.Node.Len())
			for _, name := range m.Node.Keys() {
				members[name] = m.Node.Get(name)
			}
			index[m.Name] = members
		}
	}
	return index
}

// resolveComponent follows one level of #/components/<kind>/<name>
// indirection. Returns the node unchanged when it is not a reference.
func (r *run) resolveComponent(node *parser.Node, kind, pointer string) *parser.Node {
	ref := node.Get("$ref").StringOr("")
	if ref == "" {
		return node
	}
	prefix := "#/components/" + kind + "/"
	if !strings.HasPrefix(ref, prefix) {
		r.errorf(pointer, "unresolvable reference %q", ref)
		return nil
	}
	name := strings.TrimPrefix(ref, prefix)
	target := r.components[kind][name]
	if target == nil {
		r.errorf(pointer, "reference %q target does not exist", ref)
		return nil
	}
	return target
}

func (r *run) errorf(pointer, format string, args ...interface{}) {
	r.out.Errors = append(r.out.Errors, issuef(pointer, format, args...))
}

func (r *run) warnf(pointer, format string, args ...interface{}) {
	r.out.Warnings = append(r.out.Warnings, issuef(pointer, format, args...))
}
