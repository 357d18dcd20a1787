// Package resolver expands schema references for the getSchema tool. A
// per-call resolution stack contains cycles: a reference whose target is
// already on the stack is reported in CircularReferences and emitted as a
// verbatim $ref so callers can stitch the cycle themselves.
package resolver

import (
	"sort"
	"strings"

	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/query"
	"openapi-mcp/pkg/types"
)

// Depth bounds accepted by the tool surface.
const (
	MinDepth     = 1
	MaxDepth     = 10
	DefaultDepth = 5
)

// Source is the schema lookup the resolver walks; the search index
// satisfies it.
type Source interface {
	SchemaByName(name string) *types.Schema
	SchemaNames() []string
}

// Options controls one resolution.
type Options struct {
	MaxDepth          int
	IncludeExamples   bool
	IncludeExtensions bool
	// ResolveDependencies false renders the bare body with every $ref
	// verbatim.
	ResolveDependencies bool
}

// DefaultOptions matches the tool-surface defaults.
func DefaultOptions() Options {
	return Options{
		MaxDepth:            DefaultDepth,
		IncludeExamples:     true,
		IncludeExtensions:   true,
		ResolveDependencies: true,
	}
}

// Resolution is the outcome of one resolve call.
type Resolution struct {
	Name   string            `json:"name"`
	Schema *types.OrderedMap `json:"schema"`
	// Dependencies maps each expanded schema to the schemas it references.
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	// CircularReferences lists contained cycles as "A -> B -> A" paths.
	CircularReferences []string `json:"circular_references,omitempty"`
	// Unresolved lists $ref targets absent from the document.
	Unresolved []string `json:"unresolved,omitempty"`
	// DepthReached is true when any reference was left verbatim because
	// expansion hit MaxDepth.
	DepthReached bool `json:"depth_reached"`
	// TotalDependencies counts the distinct schemas referenced anywhere in
	// the expansion.
	TotalDependencies int `json:"total_dependencies"`
}

// Resolver expands references against one document's schemas.
type Resolver struct {
	source Source
	logger logging.Logger
}

// New creates a resolver over a schema source.
func New(source Source, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Resolver{source: source, logger: logger.WithComponent("resolver")}
}

// Resolve expands the named schema. Unknown names return ResourceNotFound
// with similar names attached.
func (r *Resolver) Resolve(name string, opts Options) (*Resolution, error) {
	name = NormalizeName(name)
	root := r.source.SchemaByName(name)
	if root == nil {
		return nil, apperrors.NewResourceNotFound("schema", name, r.similarNames(name))
	}
	if opts.MaxDepth < MinDepth {
		opts.MaxDepth = DefaultDepth
	}
	if opts.MaxDepth > MaxDepth {
		opts.MaxDepth = MaxDepth
	}

	walk := &walker{
		resolver: r,
		opts:     opts,
		stack:    []string{name},
		deps:     make(map[string][]string),
		depSet:   make(map[string]bool),
		seenDep:  make(map[string]bool),
		cycleSet: make(map[string]bool),
	}

	res := &Resolution{Name: name}
	res.Schema = walk.renderSchema(root, 1)
	res.Dependencies = walk.deps
	res.CircularReferences = walk.cycles
	res.Unresolved = walk.unresolved
	res.DepthReached = walk.depthReached
	res.TotalDependencies = len(walk.depSet)
	if len(res.Dependencies) == 0 {
		res.Dependencies = nil
	}
	return res, nil
}

// walker carries the per-call resolution state; nothing here is shared
// between requests.
type walker struct {
	resolver *Resolver
	opts     Options

	stack        []string
	deps         map[string][]string
	depSet       map[string]bool
	seenDep      map[string]bool
	cycles       []string
	cycleSet     map[string]bool
	unresolved   []string
	depthReached bool
}

// renderSchema renders a non-reference schema node, delegating nested
// nodes back into the walk. depth counts expanded reference levels.
func (w *walker) renderSchema(s *types.Schema, depth int) *types.OrderedMap {
	return s.Render(w.opts.IncludeExamples, w.opts.IncludeExtensions, func(child *types.Schema) interface{} {
		return w.renderNode(child, depth)
	})
}

func (w *walker) renderNode(s *types.Schema, depth int) interface{} {
	if s == nil {
		return nil
	}
	if s.Ref != "" {
		return w.renderRef(s, depth)
	}
	return w.renderSchema(s, depth)
}

// renderRef emits a reference node. The $ref string is always preserved;
// resolvable targets gain a sibling "resolved" body.
func (w *walker) renderRef(s *types.Schema, depth int) *types.OrderedMap {
	out := types.NewOrderedMap()
	out.Set("$ref", s.Ref)

	name := NormalizeName(s.Ref)
	if name == "" {
		return out
	}
	w.recordDependency(name)

	if !w.opts.ResolveDependencies {
		return out
	}

	target := w.resolver.source.SchemaByName(name)
	if target == nil {
		w.unresolved = append(w.unresolved, name)
		return out
	}

	if idx := w.stackIndex(name); idx >= 0 {
		path := strings.Join(append(w.stack[idx:], name), " -> ")
		if !w.cycleSet[path] {
			w.cycleSet[path] = true
			w.cycles = append(w.cycles, path)
		}
		return out
	}

	if depth >= w.opts.MaxDepth {
		w.depthReached = true
		return out
	}

	w.stack = append(w.stack, name)
	resolved := w.renderSchema(target, depth+1)
	w.stack = w.stack[:len(w.stack)-1]

	out.Set("resolved", resolved)
	return out
}

// recordDependency files name under the schema currently being expanded.
func (w *walker) recordDependency(name string) {
	parent := w.stack[len(w.stack)-1]
	edge := parent + "\x00" + name
	if !w.seenDep[edge] {
		w.seenDep[edge] = true
		w.deps[parent] = append(w.deps[parent], name)
	}
	w.depSet[name] = true
}

func (w *walker) stackIndex(name string) int {
	for i, entry := range w.stack {
		if entry == name {
			return i
		}
	}
	return -1
}

// similarNames proposes close matches for an unknown schema name.
func (r *Resolver) similarNames(name string) []string {
	lower := strings.ToLower(name)
	var similar []string
	for _, candidate := range r.source.SchemaNames() {
		if query.EditDistance(lower, strings.ToLower(candidate), 2) <= 2 ||
			strings.Contains(strings.ToLower(candidate), lower) {
			similar = append(similar, candidate)
		}
	}
	sort.Strings(similar)
	if len(similar) > 5 {
		similar = similar[:5]
	}
	return similar
}

// NormalizeName reduces any accepted schema spelling to the bare component
// name: User, components/schemas/User, #/components/schemas/User and
// #/definitions/User are equivalent.
func NormalizeName(name string) string {
	name = strings.TrimPrefix(name, "#/")
	for _, prefix := range []string{"components/schemas/", "definitions/"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}
