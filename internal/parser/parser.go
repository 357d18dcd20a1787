package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"

	"openapi-mcp/internal/logging"
	"openapi-mcp/pkg/types"
)

// DefaultProgressInterval is the byte gap between progress events.
const DefaultProgressInterval = 2 * 1024 * 1024

// ErrParseFailed marks inputs that cannot yield info, paths and a
// well-formed components.schemas map.
var ErrParseFailed = errors.New("document could not be parsed")

// errSwagger2 aborts the streaming pass when a Swagger 2.0 envelope is
// detected; the caller restarts through the conversion path.
var errSwagger2 = errors.New("swagger 2.0 document")

// errWrongShape marks a known element with the wrong JSON type. The issue
// is already recorded when it is returned.
var errWrongShape = errors.New("wrong shape")

// Options configures a Parser.
type Options struct {
	// ProgressInterval is the byte gap between progress events.
	// Zero selects DefaultProgressInterval.
	ProgressInterval int64
	// Progress receives events while the input is read.
	Progress ProgressFunc
	// SkipEnvelopeCheck drops the openapi/swagger/info/paths presence
	// errors for maximum throughput. The parse-failure floor still
	// applies: without info and paths there is nothing to normalize.
	SkipEnvelopeCheck bool
	// Strict runs full openapi3 validation after parsing; findings are
	// recorded as warnings.
	Strict bool
	// MaxDocumentBytes rejects larger inputs. Zero means no limit.
	MaxDocumentBytes int64
	Logger           logging.Logger
}

// Member is one named entry of a top-level map, in source order.
type Member struct {
	Name string
	Node *Node
}

// Components holds the parts of the components object the pipeline uses.
// Other component kinds are kept raw under Extra.
type Components struct {
	Schemas         []Member
	SecuritySchemes []Member
	Extra           []Member
}

// Document is the decoded document. The paths and components.schemas maps
// are split into one node per member so the decoder never holds either map
// as a single value.
type Document struct {
	OpenAPI    string
	Swagger    string
	Info       *Node
	Servers    *Node
	Security   *Node
	Tags       *Node
	Paths      []Member
	Components Components
	Extra      []Member

	SourcePath  string
	SourceBytes int64
	ContentHash string
	Converted   bool

	hasPaths   bool
	badSchemas bool
}

// Metrics describes one parse run.
type Metrics struct {
	Format         string        `json:"format"`
	BytesRead      int64         `json:"bytes_read"`
	TotalBytes     int64         `json:"total_bytes"`
	Duration       time.Duration `json:"duration"`
	PathCount      int           `json:"path_count"`
	SchemaCount    int           `json:"schema_count"`
	ProgressEvents int           `json:"progress_events"`
	Converted      bool          `json:"converted"`
}

// Parser turns OpenAPI documents into ordered trees ready for
// normalization.
type Parser struct {
	opts   Options
	logger logging.Logger
}

// New creates a Parser.
func New(opts Options) *Parser {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Parser{opts: opts, logger: logger.WithComponent("parser")}
}

// Parse reads and decodes the document at path.
func (p *Parser) Parse(ctx context.Context, path string) (*Document, *Metrics, []types.IngestIssue, []types.IngestIssue, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open spec file: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("stat spec file: %w", err)
	}
	if p.opts.MaxDocumentBytes > 0 && fi.Size() > p.opts.MaxDocumentBytes {
		return nil, nil, nil, nil, fmt.Errorf("%w: file size %d exceeds limit %d", ErrParseFailed, fi.Size(), p.opts.MaxDocumentBytes)
	}

	doc, metrics, errList, warnList, err := p.run(ctx, path, f, fi.Size())
	if errors.Is(err, errSwagger2) {
		data, rerr := os.ReadFile(path) // #nosec G304
		if rerr != nil {
			return nil, nil, nil, nil, fmt.Errorf("reread spec file: %w", rerr)
		}
		return p.reparseConverted(ctx, path, data)
	}
	if err == nil && p.opts.Strict {
		p.strictValidate(ctx, path, nil, &warnList)
	}
	return doc, metrics, errList, warnList, err
}

// ParseBytes decodes an in-memory document. name is used for format
// detection and reporting only.
func (p *Parser) ParseBytes(ctx context.Context, name string, data []byte) (*Document, *Metrics, []types.IngestIssue, []types.IngestIssue, error) {
	if p.opts.MaxDocumentBytes > 0 && int64(len(data)) > p.opts.MaxDocumentBytes {
		return nil, nil, nil, nil, fmt.Errorf("%w: input size %d exceeds limit %d", ErrParseFailed, len(data), p.opts.MaxDocumentBytes)
	}
	doc, metrics, errList, warnList, err := p.run(ctx, name, bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, errSwagger2) {
		return p.reparseConverted(ctx, name, data)
	}
	if err == nil && p.opts.Strict {
		p.strictValidate(ctx, "", data, &warnList)
	}
	return doc, metrics, errList, warnList, err
}

// run decodes one document from r.
func (p *Parser) run(ctx context.Context, name string, r io.Reader, total int64) (*Document, *Metrics, []types.IngestIssue, []types.IngestIssue, error) {
	start := time.Now()
	cr := newCountingReader(r, total, p.opts.ProgressInterval, p.opts.Progress)
	br := bufio.NewReaderSize(cr, 64*1024)

	doc := &Document{SourcePath: name, SourceBytes: total}
	var errList, warnList []types.IngestIssue

	format, err := detectFormat(name, br)
	if err != nil {
		errList = append(errList, issue("", "empty input"))
		return nil, nil, errList, warnList, fmt.Errorf("%w: empty input", ErrParseFailed)
	}

	switch format {
	case "json":
		err = p.parseJSON(ctx, br, doc, &errList, &warnList)
	default:
		var data []byte
		data, err = io.ReadAll(br)
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = p.parseYAML(data, doc, &errList, &warnList)
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, errSwagger2),
			errors.Is(err, ErrParseFailed),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return nil, nil, errList, warnList, err
		default:
			return nil, nil, errList, warnList, p.syntaxFailure(err, cr, &errList)
		}
	}

	cr.finish()
	doc.ContentHash = cr.sum()

	if err := p.evaluate(doc, &errList); err != nil {
		return nil, nil, errList, warnList, err
	}

	metrics := &Metrics{
		Format:         format,
		BytesRead:      cr.read,
		TotalBytes:     total,
		Duration:       time.Since(start),
		PathCount:      len(doc.Paths),
		SchemaCount:    len(doc.Components.Schemas),
		ProgressEvents: cr.events,
	}
	p.logger.Debug("parsed document",
		"path", name,
		"format", format,
		"paths", metrics.PathCount,
		"schemas", metrics.SchemaCount,
		"bytes", metrics.BytesRead,
		"duration_ms", metrics.Duration.Milliseconds(),
	)
	return doc, metrics, errList, warnList, nil
}

// detectFormat picks json or yaml by extension, then by the first
// non-whitespace byte.
func detectFormat(name string, br *bufio.Reader) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			_ = br.UnreadByte()
			return "json", nil
		default:
			_ = br.UnreadByte()
			return "yaml", nil
		}
	}
}

// envelope keys that never warrant an unknown-member warning. The 2.0 keys
// are listed so documents scanned before the swagger version is seen do not
// produce noise.
var knownEnvelopeKeys = map[string]bool{
	"openapi": true, "swagger": true, "info": true, "servers": true,
	"security": true, "tags": true, "paths": true, "components": true,
	"externalDocs": true, "webhooks": true, "jsonSchemaDialect": true,
	"host": true, "basePath": true, "schemes": true, "consumes": true,
	"produces": true, "definitions": true, "parameters": true,
	"responses": true, "securityDefinitions": true,
}

// parseJSON walks the top-level object token by token. The paths and
// components.schemas maps stream one member at a time.
func (p *Parser) parseJSON(ctx context.Context, r io.Reader, doc *Document, errList, warnList *[]types.IngestIssue) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		*errList = append(*errList, issue("", "top-level value must be an object"))
		return fmt.Errorf("%w: top-level value must be an object", ErrParseFailed)
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		switch key {
		case "openapi":
			node, err := decodeValue(dec)
			if err != nil {
				return err
			}
			doc.OpenAPI = node.StringOr("")
			if doc.OpenAPI == "" {
				*errList = append(*errList, issue("/openapi", "value must be a string"))
			}
		case "swagger":
			node, err := decodeValue(dec)
			if err != nil {
				return err
			}
			doc.Swagger = node.StringOr("")
			if strings.HasPrefix(doc.Swagger, "2.") {
				return errSwagger2
			}
		case "info":
			node, err := decodeValue(dec)
			if err != nil {
				return err
			}
			if node.Kind != KindObject {
				*errList = append(*errList, issue("/info", "value must be an object"))
				break
			}
			doc.Info = node
		case "servers":
			doc.Servers = p.arrayMember(dec, "/servers", warnList, &err)
			if err != nil {
				return err
			}
		case "security":
			doc.Security = p.arrayMember(dec, "/security", warnList, &err)
			if err != nil {
				return err
			}
		case "tags":
			doc.Tags = p.arrayMember(dec, "/tags", warnList, &err)
			if err != nil {
				return err
			}
		case "paths":
			err := p.decodeMemberMap(ctx, dec, "/paths", func(name string, n *Node) {
				doc.Paths = append(doc.Paths, Member{Name: name, Node: n})
			}, errList)
			if errors.Is(err, errWrongShape) {
				break
			}
			if err != nil {
				return err
			}
			doc.hasPaths = true
		case "components":
			if err := p.decodeComponents(ctx, dec, doc, errList); err != nil && !errors.Is(err, errWrongShape) {
				return err
			}
		default:
			node, err := decodeValue(dec)
			if err != nil {
				return err
			}
			if !knownEnvelopeKeys[key] && !strings.HasPrefix(key, "x-") {
				*warnList = append(*warnList, issue("/"+escapePointer(key), "unknown top-level member"))
			}
			doc.Extra = append(doc.Extra, Member{Name: key, Node: node})
		}
	}
	_, err = dec.Token() // closing brace
	return err
}

// arrayMember decodes a member expected to be an array, downgrading the
// wrong shape to a warning.
func (p *Parser) arrayMember(dec *json.Decoder, pointer string, warnList *[]types.IngestIssue, outErr *error) *Node {
	node, err := decodeValue(dec)
	if err != nil {
		*outErr = err
		return nil
	}
	if node.Kind != KindArray {
		*warnList = append(*warnList, issue(pointer, "value must be an array"))
		return nil
	}
	return node
}

// decodeMemberMap streams a map one member at a time, invoking put per
// member so the whole map is never resident as a single value.
func (p *Parser) decodeMemberMap(ctx context.Context, dec *json.Decoder, pointer string, put func(string, *Node), errList *[]types.IngestIssue) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		*errList = append(*errList, issue(pointer, "value must be an object"))
		if err := skipValueAfterToken(dec, tok); err != nil {
			return err
		}
		return errWrongShape
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		node, err := decodeValue(dec)
		if err != nil {
			return err
		}
		put(name, node)
	}
	_, err = dec.Token()
	return err
}

// decodeComponents splits the components object into schemas, security
// schemes and raw extras.
func (p *Parser) decodeComponents(ctx context.Context, dec *json.Decoder, doc *Document, errList *[]types.IngestIssue) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		*errList = append(*errList, issue("/components", "value must be an object"))
		if err := skipValueAfterToken(dec, tok); err != nil {
			return err
		}
		return errWrongShape
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		switch key {
		case "schemas":
			err := p.decodeMemberMap(ctx, dec, "/components/schemas", func(name string, n *Node) {
				doc.Components.Schemas = append(doc.Components.Schemas, Member{Name: name, Node: n})
			}, errList)
			if errors.Is(err, errWrongShape) {
				doc.badSchemas = true
				break
			}
			if err != nil {
				return err
			}
		case "securitySchemes":
			err := p.decodeMemberMap(ctx, dec, "/components/securitySchemes", func(name string, n *Node) {
				doc.Components.SecuritySchemes = append(doc.Components.SecuritySchemes, Member{Name: name, Node: n})
			}, errList)
			if err != nil && !errors.Is(err, errWrongShape) {
				return err
			}
		default:
			node, err := decodeValue(dec)
			if err != nil {
				return err
			}
			doc.Components.Extra = append(doc.Components.Extra, Member{Name: key, Node: node})
		}
	}
	_, err = dec.Token()
	return err
}

// decodeValue builds a Node from the decoder's next value.
func decodeValue(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return nodeFromToken(dec, tok)
}

func nodeFromToken(dec *json.Decoder, tok json.Token) (*Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.Put(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := NewArray()
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &Node{Kind: KindString, Str: t}, nil
	case json.Number:
		return &Node{Kind: KindNumber, Num: t}, nil
	case bool:
		return &Node{Kind: KindBool, Bool: t}, nil
	case nil:
		return &Node{Kind: KindNull}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// skipValueAfterToken discards the remainder of a value whose first token
// has already been consumed.
func skipValueAfterToken(dec *json.Decoder, tok json.Token) error {
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		_, err := nodeFromToken(dec, tok)
		return err
	}
	return nil
}

// evaluate applies envelope validation and the parse-failure floor.
func (p *Parser) evaluate(doc *Document, errList *[]types.IngestIssue) error {
	if !p.opts.SkipEnvelopeCheck {
		if doc.OpenAPI == "" && doc.Swagger == "" {
			*errList = append(*errList, issue("/openapi", `missing "openapi" or "swagger" version`))
		}
		if doc.Info == nil {
			*errList = append(*errList, issue("/info", `missing "info" object`))
		}
		if !doc.hasPaths {
			*errList = append(*errList, issue("/paths", `missing "paths" object`))
		}
	}
	switch {
	case doc.Info == nil:
		return fmt.Errorf("%w: no info object", ErrParseFailed)
	case !doc.hasPaths:
		return fmt.Errorf("%w: no paths object", ErrParseFailed)
	case doc.badSchemas:
		return fmt.Errorf("%w: components.schemas is not an object", ErrParseFailed)
	}
	return nil
}

// syntaxFailure turns a decoder error into a positioned fatal issue.
func (p *Parser) syntaxFailure(err error, cr *countingReader, errList *[]types.IngestIssue) error {
	var syn *json.SyntaxError
	switch {
	case errors.As(err, &syn):
		offset := syn.Offset
		if offset > 0 {
			offset--
		}
		line, col := cr.lineCol(offset)
		*errList = append(*errList, types.IngestIssue{
			Message: fmt.Sprintf("syntax error: %v", syn),
			Line:    line,
			Column:  col,
			Offset:  syn.Offset,
		})
		return fmt.Errorf("%w: syntax error at line %d column %d: %v", ErrParseFailed, line, col, syn)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		line, col := cr.lineCol(cr.read)
		*errList = append(*errList, types.IngestIssue{
			Message: "unexpected end of input",
			Line:    line,
			Column:  col,
			Offset:  cr.read,
		})
		return fmt.Errorf("%w: unexpected end of input at line %d", ErrParseFailed, line)
	default:
		return err
	}
}

// reparseConverted converts a Swagger 2.0 document to OpenAPI 3 and parses
// the converted JSON. Hash and size refer to the original bytes.
func (p *Parser) reparseConverted(ctx context.Context, name string, original []byte) (*Document, *Metrics, []types.IngestIssue, []types.IngestIssue, error) {
	p.logger.Info("converting swagger 2.0 document", "path", name)

	converted, err := convertSwagger(original)
	if err != nil {
		errList := []types.IngestIssue{issue("/swagger", fmt.Sprintf("swagger 2.0 conversion failed: %v", err))}
		return nil, nil, errList, nil, fmt.Errorf("%w: swagger 2.0 conversion: %v", ErrParseFailed, err)
	}

	doc, metrics, errList, warnList, err := p.run(ctx, name, bytes.NewReader(converted), int64(len(converted)))
	if doc != nil {
		doc.ContentHash = hashBytes(original)
		doc.SourceBytes = int64(len(original))
		doc.Swagger = "2.0"
		doc.Converted = true
	}
	if metrics != nil {
		metrics.Converted = true
		if !looksLikeJSON(original) {
			metrics.Format = "yaml"
		}
	}
	if err == nil && p.opts.Strict {
		p.strictValidate(ctx, "", converted, &warnList)
	}
	return doc, metrics, errList, warnList, err
}

// convertSwagger rewrites Swagger 2.0 bytes as OpenAPI 3 JSON.
func convertSwagger(original []byte) ([]byte, error) {
	jsonBytes := original
	if !looksLikeJSON(original) {
		node, err := yamlRoot(original)
		if err != nil {
			return nil, err
		}
		jsonBytes, err = json.Marshal(node)
		if err != nil {
			return nil, err
		}
	}

	var doc2 openapi2.T
	if err := json.Unmarshal(jsonBytes, &doc2); err != nil {
		return nil, err
	}
	v3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, err
	}
	return v3.MarshalJSON()
}

func looksLikeJSON(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

// strictValidate runs the full openapi3 validator and downgrades findings
// to warnings.
func (p *Parser) strictValidate(ctx context.Context, path string, data []byte, warnList *[]types.IngestIssue) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		t   *openapi3.T
		err error
	)
	if data != nil {
		t, err = loader.LoadFromData(data)
	} else {
		t, err = loader.LoadFromFile(path)
	}
	if err != nil {
		*warnList = append(*warnList, issue("", fmt.Sprintf("strict validation: %v", err)))
		return
	}
	if err := t.Validate(ctx); err != nil {
		*warnList = append(*warnList, issue("", fmt.Sprintf("strict validation: %v", err)))
	}
}

func issue(pointer, message string) types.IngestIssue {
	return types.IngestIssue{Pointer: pointer, Message: message}
}

// escapePointer applies JSON pointer token escaping.
func escapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
