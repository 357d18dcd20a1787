package normalizer

import (
	"openapi-mcp/internal/parser"
	"openapi-mcp/pkg/types"
)

// oauth2 flow keys in the order the OpenAPI spec lists them.
var flowKinds = []string{"implicit", "password", "clientCredentials", "authorizationCode"}

// securityPass maps each named security scheme to its canonical
// kind-specific shape.
func (r *run) securityPass() {
	for _, m := range r.in.Components.SecuritySchemes {
		ptr := "/components/securitySchemes/" + escapeToken(m.Name)
		node := m.Node
		if node == nil || node.Kind != parser.KindObject {
			r.errorf(ptr, "security scheme must be an object")
			continue
		}

		kind := types.SecuritySchemeKind(node.Get("type").StringOr(""))
		if !kind.Valid() {
			r.errorf(ptr, "unknown security scheme type %q", node.Get("type").StringOr(""))
			continue
		}

		scheme := &types.SecurityScheme{
			Name:        m.Name,
			Kind:        kind,
			Description: node.Get("description").StringOr(""),
		}

		switch kind {
		case types.SecurityAPIKey:
			scheme.ParamName = node.Get("name").StringOr("")
			scheme.In = types.ParameterLocation(node.Get("in").StringOr(""))
			if scheme.ParamName == "" {
				r.errorf(ptr, "apiKey scheme requires a name")
			}
			switch scheme.In {
			case types.LocationHeader, types.LocationQuery, types.LocationCookie:
			default:
				r.errorf(ptr, "apiKey scheme has invalid location %q", string(scheme.In))
			}
		case types.SecurityHTTP:
			scheme.Scheme = node.Get("scheme").StringOr("")
			scheme.BearerFormat = node.Get("bearerFormat").StringOr("")
			if scheme.Scheme == "" {
				r.errorf(ptr, "http scheme requires a scheme name")
			}
		case types.SecurityOAuth2:
			scheme.Flows = r.oauthFlows(node.Get("flows"), ptr+"/flows")
			if len(scheme.Flows) == 0 {
				r.errorf(ptr, "oauth2 scheme declares no flows")
			}
		case types.SecurityOpenIDConnect:
			scheme.OpenIDConnectURL = node.Get("openIdConnectUrl").StringOr("")
			if scheme.OpenIDConnectURL == "" {
				r.errorf(ptr, "openIdConnect scheme requires openIdConnectUrl")
			}
		}

		r.out.SecuritySchemes = append(r.out.SecuritySchemes, scheme)
	}
}

// oauthFlows decodes the flows object into the canonical flow list, one
// entry per declared flow kind.
func (r *run) oauthFlows(node *parser.Node, pointer string) []types.OAuthFlow {
	if node == nil || node.Kind != parser.KindObject {
		return nil
	}
	var flows []types.OAuthFlow
	for _, kind := range flowKinds {
		f := node.Get(kind)
		if f == nil || f.Kind != parser.KindObject {
			continue
		}
		flow := types.OAuthFlow{
			Kind:             kind,
			AuthorizationURL: f.Get("authorizationUrl").StringOr(""),
			TokenURL:         f.Get("tokenUrl").StringOr(""),
			RefreshURL:       f.Get("refreshUrl").StringOr(""),
		}
		if scopes := f.Get("scopes"); scopes != nil && scopes.Kind == parser.KindObject {
			flow.Scopes = make(map[string]string, scopes.Len())
			for _, name := range scopes.Keys() {
				flow.Scopes[name] = scopes.Get(name).StringOr("")
			}
		} else {
			r.warnf(pointer+"/"+kind, "flow declares no scopes")
		}
		flows = append(flows, flow)
	}
	return flows
}

// securityRequirements decodes a security array. Each element ANDs its
// schemes; the scheme declaration order is preserved so "first scheme" is
// well defined for code generation.
func (r *run) securityRequirements(node *parser.Node) []types.SecurityRequirement {
	if node == nil || node.Kind != parser.KindArray {
		return nil
	}
	out := make([]types.SecurityRequirement, 0, len(node.Items))
	for _, item := range node.Items {
		if item == nil || item.Kind != parser.KindObject {
			continue
		}
		req := types.SecurityRequirement{
			Schemes: make(map[string][]string, item.Len()),
		}
		for _, name := range item.Keys() {
			req.Schemes[name] = item.Get(name).Strings()
			req.SchemeOrder = append(req.SchemeOrder, name)
		}
		out = append(out, req)
	}
	return out
}
