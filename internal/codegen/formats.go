package codegen

import (
	"fmt"
	"strings"
)

func renderCurl(req request) string {
	var b strings.Builder
	if req.comment != "" {
		fmt.Fprintf(&b, "# %s\n", req.comment)
	}
	fmt.Fprintf(&b, "curl -X %s \"%s\"", req.method, req.url)
	for _, h := range req.headers {
		fmt.Fprintf(&b, " \\\n  -H \"%s: %s\"", h.name, h.value)
	}
	if req.body != "" {
		fmt.Fprintf(&b, " \\\n  -d '%s'", req.body)
	}
	b.WriteString("\n")
	return b.String()
}

func renderJavaScript(req request) string {
	var b strings.Builder
	if req.comment != "" {
		fmt.Fprintf(&b, "// %s\n", req.comment)
	}
	fmt.Fprintf(&b, "const response = await fetch(\"%s\", {\n", req.url)
	fmt.Fprintf(&b, "  method: \"%s\",\n", req.method)
	b.WriteString("  headers: {\n")
	for _, h := range req.headers {
		fmt.Fprintf(&b, "    \"%s\": \"%s\",\n", h.name, h.value)
	}
	b.WriteString("  },\n")
	if req.body != "" {
		fmt.Fprintf(&b, "  body: JSON.stringify(%s),\n", indentBlock(req.body, "  "))
	}
	b.WriteString("});\n\n")
	b.WriteString("if (!response.ok) {\n")
	b.WriteString("  throw new Error(`HTTP ${response.status}`);\n")
	b.WriteString("}\n")
	b.WriteString("const data = await response.json();\n")
	b.WriteString("console.log(data);\n")
	return b.String()
}

func renderPython(req request) string {
	var b strings.Builder
	b.WriteString("import requests\n\n")
	if req.comment != "" {
		fmt.Fprintf(&b, "# %s\n", req.comment)
	}
	fmt.Fprintf(&b, "url = \"%s\"\n", req.url)
	b.WriteString("headers = {\n")
	for _, h := range req.headers {
		fmt.Fprintf(&b, "    \"%s\": \"%s\",\n", h.name, h.value)
	}
	b.WriteString("}\n")
	if req.body != "" {
		fmt.Fprintf(&b, "payload = \"\"\"%s\"\"\"\n\n", req.body)
		fmt.Fprintf(&b, "response = requests.%s(url, headers=headers, data=payload)\n", strings.ToLower(req.method))
	} else {
		b.WriteString("\n")
		fmt.Fprintf(&b, "response = requests.%s(url, headers=headers)\n", strings.ToLower(req.method))
	}
	b.WriteString("response.raise_for_status()\n")
	b.WriteString("print(response.json())\n")
	return b.String()
}

// indentBlock re-indents the continuation lines of a multi-line JSON
// literal so it nests cleanly inside the surrounding snippet.
func indentBlock(s, indent string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = indent + lines[i]
	}
	return strings.Join(lines, "\n")
}
