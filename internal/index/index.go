// Package index builds the in-memory search index over the canonical
// records of one document: field-level inverted postings with BM25
// scoring, phrase and fuzzy matching, and the bidirectional
// schema-endpoint cross-reference map. The index is rebuildable from the
// store alone and swapped in atomically.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/query"
	"openapi-mcp/internal/store"
	"openapi-mcp/pkg/types"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// fieldText is the default search field backed by the weighted
// searchable-text blob.
const fieldText = "text"

// fieldBoosts scales per-field BM25 scores.
var fieldBoosts = map[string]float64{
	fieldText:  1.0,
	"path":     2.0,
	"method":   1.5,
	"tag":      1.5,
	"auth":     1.2,
	"param":    1.2,
	"response": 1.2,
	"status":   1.0,
}

// Fuzzy-match score penalties by edit distance.
var fuzzyPenalty = [3]float64{1.0, 0.7, 0.5}

// Hit is one scored document.
type Hit struct {
	ID    int64
	Score float64
}

// fieldIndex is the inverted index of one field across one corpus.
type fieldIndex struct {
	postings map[string]map[int64][]int // term -> doc -> positions
	docLen   map[int64]int
	totalLen int
}

func newFieldIndex() *fieldIndex {
	return &fieldIndex{
		postings: make(map[string]map[int64][]int),
		docLen:   make(map[int64]int),
	}
}

func (f *fieldIndex) add(docID int64, text string) {
	terms := Tokenize(text)
	for pos, term := range terms {
		docs := f.postings[term]
		if docs == nil {
			docs = make(map[int64][]int)
			f.postings[term] = docs
		}
		docs[docID] = append(docs[docID], pos)
	}
	f.docLen[docID] += len(terms)
	f.totalLen += len(terms)
}

func (f *fieldIndex) avgLen() float64 {
	if len(f.docLen) == 0 {
		return 0
	}
	return float64(f.totalLen) / float64(len(f.docLen))
}

// corpus is the indexed state of one search mode.
type corpus struct {
	fields map[string]*fieldIndex
	docs   []int64 // all document keys, ascending
}

func newCorpus(fieldNames []string) *corpus {
	fields := make(map[string]*fieldIndex, len(fieldNames))
	for _, name := range fieldNames {
		fields[name] = newFieldIndex()
	}
	return &corpus{fields: fields}
}

func (c *corpus) size() int { return len(c.docs) }

// Index is the searchable view of one ingested document.
type Index struct {
	documentID int64

	endpoints *corpus
	schemas   *corpus

	endpointDocs map[int64]*types.EndpointDocument
	schemaDocs   map[int64]*types.SchemaDocument

	document        *types.APIDocument
	endpointRecords map[int64]*types.Endpoint
	schemaRecords   map[int64]*types.Schema
	schemaByName    map[string]*types.Schema
	schemeByName    map[string]*types.SecurityScheme
	schemeOrder     []string

	endpointOrder []int64
	schemaOrder   []int64

	schemaUsage   map[string][]types.CrossReference // schema name -> usages
	endpointUsage map[int64][]types.CrossReference  // endpoint id -> usages

	vocab query.Vocabulary
}

// Build reads one document's records from the store and indexes them.
func Build(ctx context.Context, st store.Store, documentID int64, logger logging.Logger) (*Index, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	logger = logger.WithComponent("index")

	document, err := st.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	endpoints, err := st.ListEndpoints(ctx, documentID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}
	schemas, err := st.ListSchemas(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	schemes, err := st.ListSecuritySchemes(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load security schemes: %w", err)
	}
	xrefs, err := st.ListCrossReferences(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load cross references: %w", err)
	}

	idx := &Index{
		documentID:      documentID,
		document:        document,
		endpoints:       newCorpus([]string{fieldText, "path", "method", "tag", "auth", "param", "response", "status"}),
		schemas:         newCorpus([]string{fieldText, "path", "param", "response", "tag"}),
		endpointDocs:    make(map[int64]*types.EndpointDocument, len(endpoints)),
		schemaDocs:      make(map[int64]*types.SchemaDocument, len(schemas)),
		endpointRecords: make(map[int64]*types.Endpoint, len(endpoints)),
		schemaRecords:   make(map[int64]*types.Schema, len(schemas)),
		schemaByName:    make(map[string]*types.Schema, len(schemas)),
		schemeByName:    make(map[string]*types.SecurityScheme, len(schemes)),
		schemaUsage:     make(map[string][]types.CrossReference),
		endpointUsage:   make(map[int64][]types.CrossReference),
		vocab:           make(query.Vocabulary),
	}

	for _, ep := range endpoints {
		idx.endpointRecords[ep.ID] = ep
		idx.endpointOrder = append(idx.endpointOrder, ep.ID)
	}
	for _, scheme := range schemes {
		idx.schemeByName[scheme.Name] = scheme
		idx.schemeOrder = append(idx.schemeOrder, scheme.Name)
	}
	for _, x := range xrefs {
		idx.schemaUsage[x.SchemaName] = append(idx.schemaUsage[x.SchemaName], x)
		idx.endpointUsage[x.EndpointID] = append(idx.endpointUsage[x.EndpointID], x)
	}

	for _, ep := range endpoints {
		doc := BuildEndpointDocument(ep)
		idx.endpointDocs[ep.ID] = doc
		idx.indexEndpoint(doc)
	}
	for _, s := range schemas {
		idx.schemaRecords[s.ID] = s
		idx.schemaByName[s.Name] = s
		idx.schemaOrder = append(idx.schemaOrder, s.ID)
		doc := BuildSchemaDocument(s, idx.schemaUsage[s.Name], idx.endpointRecords)
		idx.schemaDocs[s.ID] = doc
		idx.indexSchema(doc)
	}

	for term, docs := range idx.endpoints.fields[fieldText].postings {
		idx.vocab[term] += len(docs)
	}
	for term, docs := range idx.schemas.fields[fieldText].postings {
		idx.vocab[term] += len(docs)
	}

	logger.Info("index built",
		"document_id", documentID,
		"endpoints", len(endpoints),
		"schemas", len(schemas),
		"vocabulary", len(idx.vocab),
	)
	return idx, nil
}

func (idx *Index) indexEndpoint(doc *types.EndpointDocument) {
	c := idx.endpoints
	id := doc.EndpointID
	c.docs = append(c.docs, id)
	c.fields[fieldText].add(id, doc.SearchableText)
	c.fields["path"].add(id, doc.EndpointPath+" "+doc.PathSegments)
	c.fields["method"].add(id, doc.HTTPMethod)
	c.fields["tag"].add(id, doc.Tags)
	c.fields["auth"].add(id, doc.SecurityRequirements)
	c.fields["param"].add(id, doc.ParameterNames)
	c.fields["response"].add(id, doc.ResponseSchemas)
	c.fields["status"].add(id, doc.StatusCodes)
}

func (idx *Index) indexSchema(doc *types.SchemaDocument) {
	c := idx.schemas
	id := doc.SchemaID
	c.docs = append(c.docs, id)
	c.fields[fieldText].add(id, doc.SearchableText)
	c.fields["path"].add(id, doc.SchemaName)
	c.fields["param"].add(id, doc.PropertyNames)
	c.fields["response"].add(id, doc.NestedSchemas)
	c.fields["tag"].add(id, doc.UsageContexts)
}

// DocumentID returns the ingested document this index covers.
func (idx *Index) DocumentID() int64 { return idx.documentID }

// Document returns the document record this index covers.
func (idx *Index) Document() *types.APIDocument { return idx.document }

// SecurityScheme returns a security scheme record by name.
func (idx *Index) SecurityScheme(name string) *types.SecurityScheme { return idx.schemeByName[name] }

// SecuritySchemeNames lists scheme names in declaration order.
func (idx *Index) SecuritySchemeNames() []string { return idx.schemeOrder }

// Vocabulary exposes the default-field vocabulary for suggestions.
func (idx *Index) Vocabulary() query.Vocabulary { return idx.vocab }

// Endpoint returns a full endpoint record by id.
func (idx *Index) Endpoint(id int64) *types.Endpoint { return idx.endpointRecords[id] }

// EndpointDoc returns the searchable document of an endpoint.
func (idx *Index) EndpointDoc(id int64) *types.EndpointDocument { return idx.endpointDocs[id] }

// Schema returns a full schema record by id.
func (idx *Index) Schema(id int64) *types.Schema { return idx.schemaRecords[id] }

// SchemaByName returns a full schema record by name.
func (idx *Index) SchemaByName(name string) *types.Schema { return idx.schemaByName[name] }

// SchemaDoc returns the searchable document of a schema.
func (idx *Index) SchemaDoc(id int64) *types.SchemaDocument { return idx.schemaDocs[id] }

// SchemaNames lists the indexed schema names in declaration order.
func (idx *Index) SchemaNames() []string {
	names := make([]string, 0, len(idx.schemaOrder))
	for _, id := range idx.schemaOrder {
		names = append(names, idx.schemaRecords[id].Name)
	}
	return names
}

// EndpointIDs lists the indexed endpoint ids in declaration order.
func (idx *Index) EndpointIDs() []int64 { return idx.endpointOrder }

// SchemaUsage returns the endpoints using a schema, with context.
func (idx *Index) SchemaUsage(name string) []types.CrossReference { return idx.schemaUsage[name] }

// EndpointSchemas returns the schemas an endpoint uses, with context.
func (idx *Index) EndpointSchemas(endpointID int64) []types.CrossReference {
	return idx.endpointUsage[endpointID]
}

// Search executes a structured query against one corpus. Results are
// ordered by score descending, ties broken by document key.
func (idx *Index) Search(q *query.Query, mode types.SearchMode) []Hit {
	c := idx.endpoints
	if mode == types.SearchModeSchemas {
		c = idx.schemas
	}
	if q == nil || q.IsEmpty() {
		return nil
	}

	var matched map[int64]float64
	for _, group := range q.Groups {
		groupScores := make(map[int64]float64)
		for _, clause := range group {
			for id, score := range idx.matchClause(c, clause) {
				if score > groupScores[id] {
					groupScores[id] = score
				}
			}
		}
		if matched == nil {
			matched = groupScores
			continue
		}
		// AND: intersect, summing scores
		for id := range matched {
			if add, ok := groupScores[id]; ok {
				matched[id] += add
			} else {
				delete(matched, id)
			}
		}
	}
	if matched == nil {
		matched = make(map[int64]float64)
	}

	for _, clause := range q.MustNot {
		for id := range idx.matchClause(c, clause) {
			delete(matched, id)
		}
	}

	hits := make([]Hit, 0, len(matched))
	for id, score := range matched {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// matchClause scores one clause against a corpus field.
func (idx *Index) matchClause(c *corpus, clause query.Clause) map[int64]float64 {
	fieldName := fieldText
	if clause.Field != "" {
		fieldName = clause.Field
	}
	field, ok := c.fields[fieldName]
	if !ok {
		return nil
	}
	boost := fieldBoosts[fieldName]
	terms := TokenizeQuery(clause.Text)
	if len(terms) == 0 {
		return nil
	}

	if clause.Phrase || len(terms) > 1 {
		return idx.matchPhrase(c, field, terms, boost, clause.Phrase)
	}
	if clause.Fuzzy {
		return idx.matchFuzzy(c, field, terms[0], boost)
	}
	return idx.matchTerm(c, field, terms[0], boost, 1.0)
}

func (idx *Index) matchTerm(c *corpus, field *fieldIndex, term string, boost, penalty float64) map[int64]float64 {
	docs := field.postings[term]
	if len(docs) == 0 {
		return nil
	}
	out := make(map[int64]float64, len(docs))
	idf := idf(c.size(), len(docs))
	avg := field.avgLen()
	for id, positions := range docs {
		out[id] = bm25(len(positions), field.docLen[id], avg, idf) * boost * penalty
	}
	return out
}

func (idx *Index) matchFuzzy(c *corpus, field *fieldIndex, term string, boost float64) map[int64]float64 {
	out := make(map[int64]float64)
	for candidate := range field.postings {
		dist := query.EditDistance(term, candidate, 2)
		if dist > 2 {
			continue
		}
		for id, score := range idx.matchTerm(c, field, candidate, boost, fuzzyPenalty[dist]) {
			if score > out[id] {
				out[id] = score
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// matchPhrase requires every term in the field; when strict, terms must
// additionally be position-adjacent in order. Multi-term bare clauses
// score as a loose conjunction.
func (idx *Index) matchPhrase(c *corpus, field *fieldIndex, terms []string, boost float64, strict bool) map[int64]float64 {
	// start from the first term's docs, then narrow
	first := field.postings[terms[0]]
	if len(first) == 0 {
		return nil
	}
	out := make(map[int64]float64)
	avg := field.avgLen()

docLoop:
	for id := range first {
		score := 0.0
		for _, term := range terms {
			positions := field.postings[term][id]
			if len(positions) == 0 {
				continue docLoop
			}
			score += bm25(len(positions), field.docLen[id], avg, idf(c.size(), len(field.postings[term])))
		}
		if strict && !adjacent(field, terms, id) {
			continue
		}
		out[id] = score * boost
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// adjacent reports whether the terms occur consecutively, in order, in
// the document.
func adjacent(field *fieldIndex, terms []string, docID int64) bool {
	for _, start := range field.postings[terms[0]][docID] {
		ok := true
		for i := 1; i < len(terms); i++ {
			if !containsPos(field.postings[terms[i]][docID], start+i) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func containsPos(positions []int, want int) bool {
	for _, p := range positions {
		if p == want {
			return true
		}
	}
	return false
}

func idf(corpusSize, docFreq int) float64 {
	return math.Log(1 + (float64(corpusSize)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

func bm25(tf, docLen int, avgLen, idf float64) float64 {
	if avgLen == 0 {
		return 0
	}
	f := float64(tf)
	return idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*float64(docLen)/avgLen))
}

// Holder publishes the active index; Swap replaces it atomically so
// readers always see a complete index.
type Holder struct {
	mu  sync.RWMutex
	idx *Index
}

// NewHolder creates a Holder, optionally seeded with an index.
func NewHolder(idx *Index) *Holder {
	return &Holder{idx: idx}
}

// Get returns the active index, which may be nil before the first swap.
func (h *Holder) Get() *Index {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idx
}

// Swap publishes a new index and returns the previous one.
func (h *Holder) Swap(idx *Index) *Index {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.idx
	h.idx = idx
	return old
}
