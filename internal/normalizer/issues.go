package normalizer

import (
	"fmt"
	"strings"

	"openapi-mcp/pkg/types"
)

func issuef(pointer, format string, args ...interface{}) types.IngestIssue {
	return types.IngestIssue{Pointer: pointer, Message: fmt.Sprintf(format, args...)}
}

// escapeToken applies JSON pointer token escaping.
func escapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// pathPointer builds the JSON pointer for an operation or one of its
// children.
func pathPointer(path, method string, rest ...string) string {
	p := "/paths/" + escapeToken(path)
	if method != "" {
		p += "/" + strings.ToLower(method)
	}
	for _, token := range rest {
		p += "/" + escapeToken(token)
	}
	return p
}

// schemaPointer builds the JSON pointer for a named component schema.
func schemaPointer(name string, rest ...string) string {
	p := "/components/schemas/" + escapeToken(name)
	for _, token := range rest {
		p += "/" + escapeToken(token)
	}
	return p
}
