// Package types provides the core data structures for the OpenAPI MCP
// server: canonical records produced by ingest, searchable documents, and
// the response envelopes returned by the MCP tools.
package types

import (
	"strings"
	"time"
)

// Known HTTP methods in canonical (uppercase) form.
const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodHead    = "HEAD"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
)

// KnownHTTPMethods lists every method an Endpoint record may carry.
var KnownHTTPMethods = []string{
	MethodGet, MethodPost, MethodPut, MethodPatch,
	MethodDelete, MethodHead, MethodOptions, MethodTrace,
}

// IsKnownHTTPMethod reports whether method (any case) is a known HTTP method.
func IsKnownHTTPMethod(method string) bool {
	upper := strings.ToUpper(strings.TrimSpace(method))
	for _, m := range KnownHTTPMethods {
		if m == upper {
			return true
		}
	}
	return false
}

// ParameterLocation identifies where a parameter is carried in a request.
type ParameterLocation string

const (
	// LocationPath marks a parameter embedded in the path template.
	LocationPath ParameterLocation = "path"
	// LocationQuery marks a query-string parameter.
	LocationQuery ParameterLocation = "query"
	// LocationHeader marks a request-header parameter.
	LocationHeader ParameterLocation = "header"
	// LocationCookie marks a cookie parameter.
	LocationCookie ParameterLocation = "cookie"
)

// Valid returns true if the location is one of the four OpenAPI locations.
func (l ParameterLocation) Valid() bool {
	switch l {
	case LocationPath, LocationQuery, LocationHeader, LocationCookie:
		return true
	}
	return false
}

// SecuritySchemeKind identifies the mechanism of a SecurityScheme.
type SecuritySchemeKind string

const (
	// SecurityAPIKey is an API key carried in a header, query or cookie.
	SecurityAPIKey SecuritySchemeKind = "apiKey"
	// SecurityHTTP is an HTTP authentication scheme (basic, bearer, ...).
	SecurityHTTP SecuritySchemeKind = "http"
	// SecurityOAuth2 is an OAuth 2.0 flow set.
	SecurityOAuth2 SecuritySchemeKind = "oauth2"
	// SecurityOpenIDConnect is OpenID Connect discovery.
	SecurityOpenIDConnect SecuritySchemeKind = "openIdConnect"
)

// Valid returns true if the kind is a recognized security scheme kind.
func (k SecuritySchemeKind) Valid() bool {
	switch k {
	case SecurityAPIKey, SecurityHTTP, SecurityOAuth2, SecurityOpenIDConnect:
		return true
	}
	return false
}

// OperationType is the semantic classification of an endpoint derived from
// its method and path shape.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationRead   OperationType = "read"
	OperationList   OperationType = "list"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
	OperationSearch OperationType = "search"
	OperationUpload OperationType = "upload"
	OperationAction OperationType = "action"
)

// ComplexityLevel is the ordinal complexity bucket of a record.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// Valid returns true if the level is a recognized complexity bucket.
func (c ComplexityLevel) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// UsageContext describes how an endpoint uses a schema.
type UsageContext string

const (
	// UsageRequestBody marks a schema referenced from a request body.
	UsageRequestBody UsageContext = "request_body"
	// UsageResponseBody marks a schema referenced from a response body.
	UsageResponseBody UsageContext = "response_body"
	// UsageParameter marks a schema referenced from a parameter.
	UsageParameter UsageContext = "parameter"
)

// ReferenceSlot names the structural position a $ref occupies.
type ReferenceSlot string

const (
	SlotProperty             ReferenceSlot = "property"
	SlotItems                ReferenceSlot = "items"
	SlotAdditionalProperties ReferenceSlot = "additional_properties"
	SlotAllOf                ReferenceSlot = "all_of"
	SlotOneOf                ReferenceSlot = "one_of"
	SlotAnyOf                ReferenceSlot = "any_of"
	SlotNot                  ReferenceSlot = "not"
	SlotIf                   ReferenceSlot = "if"
	SlotThen                 ReferenceSlot = "then"
	SlotElse                 ReferenceSlot = "else"
	SlotParameter            ReferenceSlot = "parameter"
	SlotRequestBody          ReferenceSlot = "request_body"
	SlotResponse             ReferenceSlot = "response"
)

// VendorExtension is one x-* key with its raw value, order-preserving.
type VendorExtension struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// IngestIssue is one error or warning recorded during parse/normalize.
// Pointer is a JSON pointer into the source document when known; Line,
// Column and Offset locate syntax errors in the raw bytes.
type IngestIssue struct {
	Pointer string `json:"pointer,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
}

// Contact mirrors the OpenAPI info.contact object.
type Contact struct {
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	Email string `json:"email,omitempty"`
}

// License mirrors the OpenAPI info.license object.
type License struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Server is one entry of the OpenAPI servers array.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// APIDocument is the root record of one ingested specification. Records are
// immutable once the ingest transaction commits.
type APIDocument struct {
	ID             int64         `json:"id"`
	Title          string        `json:"title"`
	Version        string        `json:"version"`
	OpenAPIVersion string        `json:"openapi_version"`
	Description    string        `json:"description,omitempty"`
	BaseURL        string        `json:"base_url,omitempty"`
	Contact        *Contact      `json:"contact,omitempty"`
	License        *License      `json:"license,omitempty"`
	Servers        []Server      `json:"servers,omitempty"`
	ContentHash    string        `json:"content_hash"`
	SourcePath     string        `json:"source_path"`
	FileSize       int64         `json:"file_size"`
	IngestErrors   []IngestIssue `json:"ingest_errors,omitempty"`
	IngestWarnings []IngestIssue `json:"ingest_warnings,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Parameter is one operation parameter after path-level merging.
type Parameter struct {
	Name        string            `json:"name"`
	In          ParameterLocation `json:"in"`
	Required    bool              `json:"required"`
	Schema      *Schema           `json:"schema,omitempty"`
	Description string            `json:"description,omitempty"`
	Example     interface{}       `json:"example,omitempty"`
}

// MediaType is the schema/example pair under one content type.
type MediaType struct {
	Schema  *Schema     `json:"schema,omitempty"`
	Example interface{} `json:"example,omitempty"`
}

// RequestBody is the canonical request body of an endpoint.
type RequestBody struct {
	Description string                `json:"description,omitempty"`
	Required    bool                  `json:"required"`
	Content     map[string]*MediaType `json:"content,omitempty"`
	// ContentOrder preserves the content-type declaration order.
	ContentOrder []string `json:"content_order,omitempty"`
}

// Response is the canonical response for one status code.
type Response struct {
	Description  string                `json:"description,omitempty"`
	Content      map[string]*MediaType `json:"content,omitempty"`
	ContentOrder []string              `json:"content_order,omitempty"`
}

// SecurityRequirement is one alternative of an endpoint's security list.
// Multiple schemes inside one requirement are ANDed; SchemeOrder preserves
// their declaration order so "the first scheme" is well defined.
type SecurityRequirement struct {
	Schemes     map[string][]string `json:"schemes"`
	SchemeOrder []string            `json:"scheme_order,omitempty"`
}

// First returns the first declared scheme name and its scopes, or "".
func (r *SecurityRequirement) First() (string, []string) {
	if len(r.SchemeOrder) == 0 {
		return "", nil
	}
	name := r.SchemeOrder[0]
	return name, r.Schemes[name]
}

// Endpoint is the canonical record for one (path, method) pair.
type Endpoint struct {
	ID          int64                `json:"id"`
	DocumentID  int64                `json:"document_id"`
	Path        string               `json:"path"`
	Method      string               `json:"method"`
	OperationID string               `json:"operation_id,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Description string               `json:"description,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	Parameters  []Parameter          `json:"parameters,omitempty"`
	RequestBody *RequestBody         `json:"request_body,omitempty"`
	Responses   map[string]*Response `json:"responses,omitempty"`
	// ResponseOrder preserves status-code declaration order.
	ResponseOrder []string              `json:"response_order,omitempty"`
	Security      []SecurityRequirement `json:"security,omitempty"`
	Deprecated    bool                  `json:"deprecated,omitempty"`
	Extensions    []VendorExtension     `json:"extensions,omitempty"`

	// Derived columns computed by the normalizer and persisted alongside
	// the record so the index can be rebuilt from the store alone.
	ParameterNames       []string `json:"parameter_names,omitempty"`
	ResponseCodes        []string `json:"response_codes,omitempty"`
	ContentTypes         []string `json:"content_types,omitempty"`
	SchemaDependencies   []string `json:"schema_dependencies,omitempty"`
	SecurityDependencies []string `json:"security_dependencies,omitempty"`
	SearchableText       string   `json:"searchable_text,omitempty"`
}

// PathParameterTokens extracts the {token} names from the path template in
// order of appearance.
func (e *Endpoint) PathParameterTokens() []string {
	return PathParameterTokens(e.Path)
}

// PathParameterTokens extracts {token} names from a path template.
func PathParameterTokens(path string) []string {
	var tokens []string
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			return tokens
		}
		closing := strings.IndexByte(path[open:], '}')
		if closing < 0 {
			return tokens
		}
		tokens = append(tokens, path[open+1:open+closing])
		path = path[open+closing+1:]
	}
}

// HasRequestBody reports whether the endpoint declares a request body with
// at least one content type.
func (e *Endpoint) HasRequestBody() bool {
	return e.RequestBody != nil && len(e.RequestBody.Content) > 0
}

// OAuthFlow is one flow of an oauth2 security scheme.
type OAuthFlow struct {
	Kind             string            `json:"kind"`
	AuthorizationURL string            `json:"authorization_url,omitempty"`
	TokenURL         string            `json:"token_url,omitempty"`
	RefreshURL       string            `json:"refresh_url,omitempty"`
	Scopes           map[string]string `json:"scopes,omitempty"`
}

// SecurityScheme is the canonical record for one named security scheme.
// Kind-specific fields are populated according to Kind and zero otherwise.
type SecurityScheme struct {
	ID          int64              `json:"id"`
	DocumentID  int64              `json:"document_id"`
	Name        string             `json:"name"`
	Kind        SecuritySchemeKind `json:"kind"`
	Description string             `json:"description,omitempty"`

	// apiKey
	In        ParameterLocation `json:"in,omitempty"`
	ParamName string            `json:"param_name,omitempty"`

	// http
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearer_format,omitempty"`

	// oauth2
	Flows []OAuthFlow `json:"flows,omitempty"`

	// openIdConnect
	OpenIDConnectURL string `json:"openid_connect_url,omitempty"`
}

// ReferenceEdge is one edge of the reference graph: Source depends on
// Target through Slot. Unresolved edges keep Resolved=false and surface in
// the document's ingest errors.
type ReferenceEdge struct {
	DocumentID int64         `json:"document_id"`
	Source     string        `json:"source"`
	Target     string        `json:"target"`
	Slot       ReferenceSlot `json:"slot"`
	Resolved   bool          `json:"resolved"`
}

// CrossReference is one row of the bidirectional schema-endpoint usage map.
// Score reflects contextual importance in [0,1].
type CrossReference struct {
	DocumentID  int64        `json:"document_id"`
	EndpointID  int64        `json:"endpoint_id"`
	SchemaName  string       `json:"schema_name"`
	Context     UsageContext `json:"context"`
	ContentType string       `json:"content_type,omitempty"`
	Required    bool         `json:"required"`
	Score       float64      `json:"score"`
}
