package types

// SchemaResolutionMetadata carries the resolver's per-call statistics. The
// field names follow the tool's public JSON contract (camelCase).
type SchemaResolutionMetadata struct {
	TotalDependencies int     `json:"totalDependencies"`
	ResolvedRefs      int     `json:"resolvedRefs"`
	UnresolvedRefs    int     `json:"unresolvedRefs"`
	MaxDepthReached   bool    `json:"maxDepthReached"`
	DepthUsed         int     `json:"depthUsed"`
	TookMS            float64 `json:"tookMs"`
	RequestID         string  `json:"requestId,omitempty"`
}

// SchemaResponse is the envelope returned by the getSchema tool.
type SchemaResponse struct {
	Name string `json:"name"`
	// Schema is the resolved body: ordered, with every expanded reference
	// emitted as {"$ref": original, "resolved": {...}}.
	Schema *OrderedMap `json:"schema"`
	// Dependencies maps each visited schema to the named schemas it
	// references directly.
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	// CircularReferences lists cycle paths like "User -> Profile -> User".
	CircularReferences []string `json:"circularReferences,omitempty"`
	// UsedBy lists the endpoints referencing this schema.
	UsedBy   []SchemaUsage            `json:"usedBy,omitempty"`
	Metadata SchemaResolutionMetadata `json:"metadata"`
}

// SchemaUsage is one endpoint usage row attached to a schema response.
type SchemaUsage struct {
	Path        string       `json:"path"`
	Method      string       `json:"method"`
	Context     UsageContext `json:"context"`
	ContentType string       `json:"contentType,omitempty"`
	Required    bool         `json:"required"`
}

// ExampleFormat enumerates the code-example output languages.
type ExampleFormat string

const (
	FormatCurl       ExampleFormat = "curl"
	FormatJavaScript ExampleFormat = "javascript"
	FormatPython     ExampleFormat = "python"
)

// Valid returns true if the format is supported.
func (f ExampleFormat) Valid() bool {
	switch f {
	case FormatCurl, FormatJavaScript, FormatPython:
		return true
	}
	return false
}

// ExampleResponse is the envelope returned by the getExample tool.
type ExampleResponse struct {
	Endpoint     string        `json:"endpoint"`
	Method       string        `json:"method"`
	Format       ExampleFormat `json:"format"`
	Example      string        `json:"example"`
	IncludesAuth bool          `json:"includes_auth"`
	BaseURL      string        `json:"base_url,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
}

// StoreStats summarizes the record store contents, served by the stats
// resource and the inspect API.
type StoreStats struct {
	Documents       int   `json:"documents"`
	Endpoints       int   `json:"endpoints"`
	Schemas         int   `json:"schemas"`
	SecuritySchemes int   `json:"security_schemes"`
	ReferenceEdges  int   `json:"reference_edges"`
	CrossReferences int   `json:"cross_references"`
	SizeBytes       int64 `json:"size_bytes,omitempty"`
}
