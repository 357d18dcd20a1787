package normalizer

import (
	"strings"

	"openapi-mcp/pkg/types"
)

// classifyReferences records one reference-graph edge per $ref occurrence
// inside the named schemas and classifies each as resolved, unresolved or
// circular. A reference A -> B is circular when B transitively reaches A;
// circularity is a warning, a missing target an error.
func (r *run) classifyReferences() {
	adjacency := make(map[string][]string, len(r.out.Schemas))
	for _, s := range r.out.Schemas {
		adjacency[s.Name] = s.Dependencies
	}

	reportedCycles := make(map[string]bool)
	for _, s := range r.out.Schemas {
		for _, hit := range schemaRefs(s, "") {
			if hit.Name == "" {
				// already reported by the schema pass
				r.out.Edges = append(r.out.Edges, types.ReferenceEdge{
					Source: s.Name, Target: hit.Ref, Slot: hit.Slot,
				})
				continue
			}
			resolved := r.schemaNames[hit.Name]
			if !resolved {
				r.errorf(schemaPointer(s.Name), "reference to unknown schema %q", hit.Name)
			}
			r.out.Edges = append(r.out.Edges, types.ReferenceEdge{
				Source: s.Name, Target: hit.Name, Slot: hit.Slot, Resolved: resolved,
			})
			if !resolved {
				continue
			}
			if path := shortestPath(adjacency, hit.Name, s.Name); path != nil {
				cycle := s.Name + " -> " + strings.Join(path, " -> ")
				if !reportedCycles[cycle] {
					reportedCycles[cycle] = true
					r.warnf(schemaPointer(s.Name), "circular reference %s", cycle)
				}
			}
		}
	}
}

// shortestPath runs a BFS from source to target over the dependency
// adjacency and returns the node path including both ends, or nil when
// target is unreachable.
func shortestPath(adjacency map[string][]string, source, target string) []string {
	if source == target {
		return []string{source}
	}
	parent := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[node] {
			if _, visited := parent[next]; visited {
				continue
			}
			parent[next] = node
			if next == target {
				path := []string{target}
				for at := node; at != ""; at = parent[at] {
					path = append([]string{at}, path...)
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// invertUsage builds the UsedBy set of each schema from the outbound
// dependency sets, in document order.
func (r *run) invertUsage() {
	byName := make(map[string]*types.Schema, len(r.out.Schemas))
	for _, s := range r.out.Schemas {
		byName[s.Name] = s
	}
	for _, s := range r.out.Schemas {
		for _, dep := range s.Dependencies {
			target := byName[dep]
			if target == nil {
				continue
			}
			if !contains(target.UsedBy, s.Name) {
				target.UsedBy = append(target.UsedBy, s.Name)
			}
		}
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
