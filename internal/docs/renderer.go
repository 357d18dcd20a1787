// Package docs renders the ingested API document as a human-readable
// reference: Markdown for files, goldmark-converted HTML for the /docs
// endpoint.
package docs

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"openapi-mcp/internal/config"
	"openapi-mcp/pkg/types"
)

// Source is the view of an indexed document the renderer reads.
type Source interface {
	Document() *types.APIDocument
	EndpointIDs() []int64
	Endpoint(id int64) *types.Endpoint
	SchemaNames() []string
	SchemaByName(name string) *types.Schema
	SecuritySchemeNames() []string
	SecurityScheme(name string) *types.SecurityScheme
}

const untaggedGroup = "other"

// Renderer builds the reference.
type Renderer struct {
	cfg   config.DocsConfig
	md    goldmark.Markdown
	title cases.Caser
}

// New creates a renderer.
func New(cfg config.DocsConfig) *Renderer {
	return &Renderer{
		cfg:   cfg,
		md:    goldmark.New(goldmark.WithExtensions(extension.Table)),
		title: cases.Title(language.English),
	}
}

// Markdown renders the full reference as Markdown.
func (r *Renderer) Markdown(src Source) string {
	doc := src.Document()
	var b strings.Builder

	title := r.cfg.Title
	if title == "" {
		title = doc.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if doc.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", doc.Description)
	}
	fmt.Fprintf(&b, "- Version: %s\n", doc.Version)
	fmt.Fprintf(&b, "- OpenAPI: %s\n", doc.OpenAPIVersion)
	if doc.BaseURL != "" {
		fmt.Fprintf(&b, "- Base URL: %s\n", doc.BaseURL)
	}
	b.WriteString("\n")

	r.writeEndpoints(&b, src)
	r.writeAuthentication(&b, src)
	r.writeSchemas(&b, src)

	return b.String()
}

// HTML renders the reference as a standalone HTML page.
func (r *Renderer) HTML(src Source) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(r.Markdown(src)), &body); err != nil {
		return nil, fmt.Errorf("convert reference markdown: %w", err)
	}

	title := r.cfg.Title
	if title == "" {
		title = src.Document().Title
	}
	var page bytes.Buffer
	err := pageTemplate.Execute(&page, map[string]interface{}{
		"Title": title,
		"Body":  template.HTML(body.String()), //nolint:gosec // body is rendered from our own store, not user HTML
	})
	if err != nil {
		return nil, fmt.Errorf("render reference page: %w", err)
	}
	return page.Bytes(), nil
}

// writeEndpoints groups operations by tag, untagged ones last.
func (r *Renderer) writeEndpoints(b *strings.Builder, src Source) {
	groups := make(map[string][]*types.Endpoint)
	var order []string
	for _, id := range src.EndpointIDs() {
		ep := src.Endpoint(id)
		if ep == nil {
			continue
		}
		tag := untaggedGroup
		if len(ep.Tags) > 0 {
			tag = ep.Tags[0]
		}
		if _, seen := groups[tag]; !seen {
			order = append(order, tag)
		}
		groups[tag] = append(groups[tag], ep)
	}
	if len(order) == 0 {
		return
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i] == untaggedGroup {
			return false
		}
		if order[j] == untaggedGroup {
			return true
		}
		return order[i] < order[j]
	})

	b.WriteString("## Endpoints\n\n")
	for _, tag := range order {
		fmt.Fprintf(b, "### %s\n\n", r.title.String(tag))
		b.WriteString("| Method | Path | Summary |\n|---|---|---|\n")
		for _, ep := range groups[tag] {
			summary := ep.Summary
			if summary == "" {
				summary = ep.OperationID
			}
			if ep.Deprecated {
				summary = strings.TrimSpace(summary + " *(deprecated)*")
			}
			fmt.Fprintf(b, "| %s | `%s` | %s |\n", ep.Method, ep.Path, summary)
		}
		b.WriteString("\n")
	}
}

func (r *Renderer) writeAuthentication(b *strings.Builder, src Source) {
	names := src.SecuritySchemeNames()
	if len(names) == 0 {
		return
	}
	b.WriteString("## Authentication\n\n")
	for _, name := range names {
		scheme := src.SecurityScheme(name)
		if scheme == nil {
			continue
		}
		fmt.Fprintf(b, "- **%s** — %s", name, schemeSummary(scheme))
		if scheme.Description != "" {
			fmt.Fprintf(b, ": %s", scheme.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func schemeSummary(scheme *types.SecurityScheme) string {
	switch scheme.Kind {
	case types.SecurityHTTP:
		if scheme.BearerFormat != "" {
			return fmt.Sprintf("HTTP %s (%s)", scheme.Scheme, scheme.BearerFormat)
		}
		return "HTTP " + scheme.Scheme
	case types.SecurityAPIKey:
		return fmt.Sprintf("API key %q in %s", scheme.ParamName, scheme.In)
	default:
		return string(scheme.Kind)
	}
}

func (r *Renderer) writeSchemas(b *strings.Builder, src Source) {
	names := src.SchemaNames()
	if len(names) == 0 {
		return
	}
	b.WriteString("## Schemas\n\n")
	for _, name := range names {
		schema := src.SchemaByName(name)
		if schema == nil {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", name)
		if schema.Description != "" {
			fmt.Fprintf(b, "%s\n\n", schema.Description)
		}
		if len(schema.PropertyOrder) == 0 {
			if schema.Type != "" {
				fmt.Fprintf(b, "Type: `%s`\n\n", schema.Type)
			}
			continue
		}
		b.WriteString("| Property | Type | Required |\n|---|---|---|\n")
		required := make(map[string]bool, len(schema.Required))
		for _, name := range schema.Required {
			required[name] = true
		}
		for _, prop := range schema.PropertyOrder {
			fmt.Fprintf(b, "| %s | `%s` | %s |\n",
				prop, propertyType(schema.Properties[prop]), requiredMark(required[prop]))
		}
		b.WriteString("\n")
	}
}

func propertyType(schema *types.Schema) string {
	switch {
	case schema == nil:
		return "any"
	case schema.Ref != "":
		return refName(schema.Ref)
	case schema.Type == "array" && schema.Items != nil:
		return propertyType(schema.Items) + "[]"
	case schema.Type != "":
		if schema.Format != "" {
			return schema.Type + " (" + schema.Format + ")"
		}
		return schema.Type
	default:
		return "object"
	}
}

func refName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func requiredMark(required bool) string {
	if required {
		return "yes"
	}
	return "no"
}

var pageTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} — API Reference</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; color: #1f2328; line-height: 1.5; }
code { background: #f6f8fa; padding: 0.1rem 0.3rem; border-radius: 4px; font-size: 0.9em; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1rem; }
th, td { border: 1px solid #d1d9e0; padding: 0.4rem 0.6rem; text-align: left; }
th { background: #f6f8fa; }
h1, h2 { border-bottom: 1px solid #d1d9e0; padding-bottom: 0.3rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))
