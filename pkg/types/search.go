package types

// SearchMode selects which corpus a search runs against.
type SearchMode string

const (
	// SearchModeEndpoints searches endpoint documents (the default).
	SearchModeEndpoints SearchMode = "endpoints"
	// SearchModeSchemas searches schema documents.
	SearchModeSchemas SearchMode = "schemas"
)

// Valid returns true if the mode is recognized.
func (m SearchMode) Valid() bool {
	return m == SearchModeEndpoints || m == SearchModeSchemas
}

// EndpointDocument is the denormalized, field-weighted projection of an
// Endpoint consumed by the full-text index.
type EndpointDocument struct {
	EndpointID           int64    `json:"endpoint_id"`
	EndpointPath         string   `json:"endpoint_path"`
	HTTPMethod           string   `json:"http_method"`
	OperationSummary     string   `json:"operation_summary"`
	OperationDescription string   `json:"operation_description"`
	OperationID          string   `json:"operation_id"`
	PathSegments         string   `json:"path_segments"`
	PathParameters       string   `json:"path_parameters"`
	QueryParameters      string   `json:"query_parameters"`
	HeaderParameters     string   `json:"header_parameters"`
	ParameterNames       string   `json:"parameter_names"`
	RequiredParameters   string   `json:"required_parameters"`
	OptionalParameters   string   `json:"optional_parameters"`
	ParameterTypes       string   `json:"parameter_types"`
	ResponseSchemas      string   `json:"response_schemas"`
	StatusCodes          string   `json:"status_codes"`
	ContentTypes         string   `json:"content_types"`
	SecurityRequirements string   `json:"security_requirements"`
	Tags                 string   `json:"tags"`
	ResourceName         string   `json:"resource_name"`
	OperationType        OperationType `json:"operation_type"`
	Keywords             []string `json:"keywords"`
	SearchableText       string   `json:"searchable_text"`

	Deprecated     bool `json:"deprecated"`
	HasRequestBody bool `json:"has_request_body"`
	HasExamples    bool `json:"has_examples"`
}

// SchemaDocument is the searchable projection of a Schema.
type SchemaDocument struct {
	SchemaID             int64           `json:"schema_id"`
	SchemaName           string          `json:"schema_name"`
	SchemaType           string          `json:"schema_type"`
	Description          string          `json:"description"`
	PropertyNames        string          `json:"property_names"`
	PropertyDescriptions string          `json:"property_descriptions"`
	PropertyTypes        string          `json:"property_types"`
	RequiredProperties   string          `json:"required_properties"`
	OptionalProperties   string          `json:"optional_properties"`
	NestedSchemas        string          `json:"nested_schemas"`
	ValidationRules      string          `json:"validation_rules"`
	UsedInEndpoints      string          `json:"used_in_endpoints"`
	UsageContexts        string          `json:"usage_contexts"`
	CompositionType      string          `json:"composition_type"`
	InheritsFrom         string          `json:"inherits_from"`
	ComplexityLevel      ComplexityLevel `json:"complexity_level"`
	UsageFrequency       int             `json:"usage_frequency"`
	Keywords             []string        `json:"keywords"`
	SearchableText       string          `json:"searchable_text"`
}

// ParameterSummary aggregates an endpoint's parameters for result display.
type ParameterSummary struct {
	Total           int            `json:"total"`
	Required        int            `json:"required"`
	Optional        int            `json:"optional"`
	TypeHistogram   map[string]int `json:"type_histogram,omitempty"`
	HasFileUpload   bool           `json:"has_file_upload"`
	HasComplexTypes bool           `json:"has_complex_types"`
	CommonNames     []string       `json:"common_names,omitempty"`
}

// AuthenticationInfo summarizes an endpoint's security requirements.
type AuthenticationInfo struct {
	Required    bool     `json:"required"`
	SchemeKinds []string `json:"scheme_kinds,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ResponseInfo summarizes an endpoint's responses.
type ResponseInfo struct {
	StatusCodes  []string        `json:"status_codes,omitempty"`
	ContentTypes []string        `json:"content_types,omitempty"`
	HasJSON      bool            `json:"has_json"`
	HasBinary    bool            `json:"has_binary"`
	Complexity   ComplexityLevel `json:"complexity,omitempty"`
}

// SearchResult is one enriched hit in a search response.
type SearchResult struct {
	EndpointID  int64    `json:"endpoint_id,omitempty"`
	SchemaID    int64    `json:"schema_id,omitempty"`
	SchemaName  string   `json:"schema_name,omitempty"`
	Path        string   `json:"path,omitempty"`
	Method      string   `json:"method,omitempty"`
	OperationID string   `json:"operation_id,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Score       float64  `json:"score"`
	Deprecated  bool     `json:"deprecated,omitempty"`

	OperationType      OperationType       `json:"operation_type,omitempty"`
	ComplexityLevel    ComplexityLevel     `json:"complexity_level,omitempty"`
	ResourceGroup      string              `json:"resource_group,omitempty"`
	Stability          string              `json:"stability,omitempty"`
	ParameterSummary   *ParameterSummary   `json:"parameter_summary,omitempty"`
	AuthenticationInfo *AuthenticationInfo `json:"authentication_info,omitempty"`
	ResponseInfo       *ResponseInfo       `json:"response_info,omitempty"`
}

// Pagination is the page envelope of a search response. Page is 1-based.
type Pagination struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Organization groups result ids along several axes at once. Groups hold
// member ids only; results are never duplicated into groups.
type Organization struct {
	ByTag           map[string][]int64 `json:"by_tag,omitempty"`
	ByResource      map[string][]int64 `json:"by_resource,omitempty"`
	ByComplexity    map[string][]int64 `json:"by_complexity,omitempty"`
	ByMethod        map[string][]int64 `json:"by_method,omitempty"`
	ByOperationType map[string][]int64 `json:"by_operation_type,omitempty"`
	ByAuth          map[string][]int64 `json:"by_auth,omitempty"`
}

// Suggestion is one alternative the query processor proposes when a search
// returns few or no hits.
type Suggestion struct {
	Type   string `json:"type"`
	Value  string `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// Suggestion types.
const (
	SuggestionSpelling       = "spelling"
	SuggestionGeneralization = "generalization"
	SuggestionCrossModal     = "cross_modal"
)

// SearchMetadata carries per-request search diagnostics.
type SearchMetadata struct {
	Query     string     `json:"query"`
	Mode      SearchMode `json:"mode"`
	TookMS    float64    `json:"took_ms"`
	CacheHit  bool       `json:"cache_hit"`
	Warnings  []string   `json:"warnings,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// SearchResponse is the envelope returned by the searchEndpoints tool.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Pagination   Pagination     `json:"pagination"`
	Organization *Organization  `json:"organization,omitempty"`
	Suggestions  []Suggestion   `json:"suggestions,omitempty"`
	Metadata     SearchMetadata `json:"metadata"`
}
