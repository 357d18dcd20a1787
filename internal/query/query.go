// Package query translates raw search strings into structured queries and
// proposes alternatives when a search comes back thin. Parsing never
// fails: uninterpretable input degrades to a bag of terms with a warning.
package query

import (
	"fmt"
	"sort"
	"strings"
)

// WarningParseFallback is recorded when the parser degrades the input to a
// bag of terms.
const WarningParseFallback = "query_parse_fallback"

// Fields accepted in field:value clauses.
var knownFields = map[string]bool{
	"path": true, "method": true, "tag": true, "auth": true,
	"param": true, "response": true, "status": true,
}

// Clause is one matchable unit of a query.
type Clause struct {
	// Text is the clause value: a single term or the phrase body.
	Text string
	// Phrase marks a double-quoted clause matched by term adjacency.
	Phrase bool
	// Field scopes the clause to one document field; empty means the
	// default searchable text.
	Field string
	// Fuzzy enables edit-distance matching for a term clause.
	Fuzzy bool
}

// Query is the structured form of a raw search string. Groups are ANDed;
// clauses within a group are ORed. MustNot clauses exclude documents.
type Query struct {
	Raw      string
	Groups   [][]Clause
	MustNot  []Clause
	Fallback bool
}

// IsEmpty reports whether the query matches nothing at all.
func (q *Query) IsEmpty() bool {
	return len(q.Groups) == 0 && len(q.MustNot) == 0
}

// FieldClauses returns the clauses scoped to fields, in order.
func (q *Query) FieldClauses() []Clause {
	var out []Clause
	for _, group := range q.Groups {
		for _, c := range group {
			if c.Field != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// Parse builds a structured query. The returned warnings belong in the
// response metadata.
func Parse(raw string) (*Query, []string) {
	tokens, err := lex(raw)
	if err == nil {
		q, perr := build(raw, tokens)
		if perr == nil {
			return q, nil
		}
		err = perr
	}

	// degrade to a bag of terms
	q := &Query{Raw: raw, Fallback: true}
	for _, word := range strings.Fields(raw) {
		word = strings.Trim(word, `"~`)
		if word == "" || isOperator(word) {
			continue
		}
		q.Groups = append(q.Groups, []Clause{{Text: word}})
	}
	return q, []string{WarningParseFallback}
}

func isOperator(word string) bool {
	return word == "AND" || word == "OR" || word == "NOT"
}

// token is one lexed unit: a word, a quoted phrase, or an operator.
type token struct {
	text   string
	phrase bool
}

// lex splits the raw input into tokens, honoring double quotes both as
// phrase delimiters and inside field:value clauses.
func lex(raw string) ([]token, error) {
	var tokens []token
	runes := []rune(raw)
	i := 0
	for i < len(runes) {
		switch {
		case runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n':
			i++
		case runes[i] == '"':
			end := indexRune(runes, i+1, '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated phrase")
			}
			tokens = append(tokens, token{text: string(runes[i+1 : end]), phrase: true})
			i = end + 1
		default:
			start := i
			quoted := false
			for i < len(runes) {
				if runes[i] == '"' {
					quoted = !quoted
				} else if !quoted && (runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n') {
					break
				}
				i++
			}
			if quoted {
				return nil, fmt.Errorf("unterminated phrase")
			}
			tokens = append(tokens, token{text: string(runes[start:i])})
		}
	}
	return tokens, nil
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// build assembles the clause structure from lexed tokens. AND starts a new
// group (as does plain adjacency), OR joins the previous group, NOT sends
// the next clause to MustNot.
func build(raw string, tokens []token) (*Query, error) {
	q := &Query{Raw: raw}
	negateNext := false
	joinNext := false

	for idx, tok := range tokens {
		if !tok.phrase && isOperator(tok.text) {
			switch tok.text {
			case "AND":
				if idx == 0 || idx == len(tokens)-1 {
					return nil, fmt.Errorf("dangling AND")
				}
				// implicit joiner; nothing to do
			case "OR":
				if idx == 0 || idx == len(tokens)-1 || len(q.Groups) == 0 {
					return nil, fmt.Errorf("dangling OR")
				}
				joinNext = true
			case "NOT":
				if idx == len(tokens)-1 {
					return nil, fmt.Errorf("dangling NOT")
				}
				negateNext = true
			}
			continue
		}

		clause, err := parseClause(tok)
		if err != nil {
			return nil, err
		}

		switch {
		case negateNext:
			q.MustNot = append(q.MustNot, clause)
			negateNext = false
		case joinNext:
			last := len(q.Groups) - 1
			q.Groups[last] = append(q.Groups[last], clause)
			joinNext = false
		default:
			q.Groups = append(q.Groups, []Clause{clause})
		}
	}
	return q, nil
}

// parseClause interprets one token as a phrase, a field:value clause, or a
// bare term with optional trailing fuzzy marker.
func parseClause(tok token) (Clause, error) {
	if tok.phrase {
		if strings.TrimSpace(tok.text) == "" {
			return Clause{}, fmt.Errorf("empty phrase")
		}
		return Clause{Text: tok.text, Phrase: true}, nil
	}

	text := tok.text
	var field string
	if colon := strings.IndexByte(text, ':'); colon > 0 {
		name := text[:colon]
		if !knownFields[name] {
			return Clause{}, fmt.Errorf("unknown field %q", name)
		}
		field = name
		text = text[colon+1:]
		if text == "" {
			return Clause{}, fmt.Errorf("field %q has no value", name)
		}
	}

	phrase := false
	if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) && len(text) > 1 {
		text = strings.Trim(text, `"`)
		phrase = true
	}

	fuzzy := false
	if !phrase && strings.HasSuffix(text, "~") {
		fuzzy = true
		text = strings.TrimSuffix(text, "~")
	}
	if strings.TrimSpace(text) == "" {
		return Clause{}, fmt.Errorf("empty clause")
	}
	return Clause{Text: text, Phrase: phrase, Field: field, Fuzzy: fuzzy}, nil
}

// Restrictiveness order used when proposing to drop a field filter: the
// most specific filters come first.
var fieldRestrictiveness = []string{"status", "response", "param", "auth", "method", "tag", "path"}

// Vocabulary exposes the index vocabulary to the suggester: term to
// document frequency.
type Vocabulary map[string]int

// Suggest proposes up to five alternatives when a search returned fewer
// than five hits: spelling corrections against the vocabulary, dropping
// the most restrictive field filter, and switching the search mode.
func Suggest(q *Query, hitCount int, vocab Vocabulary, mode string) []Suggestion {
	if hitCount >= 5 {
		return nil
	}

	var out []Suggestion
	for _, group := range q.Groups {
		for _, c := range group {
			if c.Phrase || c.Field != "" {
				continue
			}
			term := strings.ToLower(c.Text)
			if vocab[term] > 0 {
				continue
			}
			if corrected, ok := bestCorrection(term, vocab); ok {
				out = append(out, Suggestion{
					Type:   SuggestionSpelling,
					Value:  corrected,
					Reason: fmt.Sprintf("no match for %q; closest indexed term", c.Text),
				})
			}
		}
	}

	if dropped, rest, ok := dropMostRestrictive(q); ok {
		out = append(out, Suggestion{
			Type:   SuggestionGeneralization,
			Value:  rest,
			Reason: fmt.Sprintf("drop the %s filter to widen the search", dropped),
		})
	}

	other := "schemas"
	if mode == "schemas" {
		other = "endpoints"
	}
	out = append(out, Suggestion{
		Type:   SuggestionCrossModal,
		Value:  other,
		Reason: fmt.Sprintf("search %s for the same terms", other),
	})

	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// Suggestion mirrors the response suggestion shape without importing the
// response types.
type Suggestion struct {
	Type   string
	Value  string
	Reason string
}

// Suggestion types.
const (
	SuggestionSpelling       = "spelling"
	SuggestionGeneralization = "generalization"
	SuggestionCrossModal     = "cross_modal"
)

// bestCorrection finds the highest-frequency vocabulary term within edit
// distance two of term.
func bestCorrection(term string, vocab Vocabulary) (string, bool) {
	type candidate struct {
		term string
		dist int
		freq int
	}
	var candidates []candidate
	for v, freq := range vocab {
		if d := EditDistance(term, v, 2); d <= 2 && d > 0 {
			candidates = append(candidates, candidate{term: v, dist: d, freq: freq})
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].term < candidates[j].term
	})
	return candidates[0].term, true
}

// dropMostRestrictive rebuilds the query text without its most
// restrictive field filter.
func dropMostRestrictive(q *Query) (field, rest string, ok bool) {
	fields := q.FieldClauses()
	if len(fields) == 0 {
		return "", "", false
	}
	for _, candidate := range fieldRestrictiveness {
		for _, c := range fields {
			if c.Field != candidate {
				continue
			}
			drop := c.Field + ":" + c.Text
			parts := strings.Fields(q.Raw)
			var kept []string
			removed := false
			for _, p := range parts {
				if !removed && strings.TrimSuffix(p, "~") == drop {
					removed = true
					continue
				}
				kept = append(kept, p)
			}
			return c.Field, strings.Join(kept, " "), true
		}
	}
	return "", "", false
}

// EditDistance computes the Levenshtein distance between a and b, giving
// up early (returning max+1) once the distance exceeds max.
func EditDistance(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la-lb > max || lb-la > max {
		return max + 1
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
