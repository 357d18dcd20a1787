package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareTerms(t *testing.T) {
	q, warnings := Parse("user authentication")
	require.Empty(t, warnings)
	assert.False(t, q.Fallback)
	require.Len(t, q.Groups, 2)
	assert.Equal(t, Clause{Text: "user"}, q.Groups[0][0])
	assert.Equal(t, Clause{Text: "authentication"}, q.Groups[1][0])
}

func TestParsePhrase(t *testing.T) {
	q, warnings := Parse(`"create user" account`)
	require.Empty(t, warnings)
	require.Len(t, q.Groups, 2)
	assert.Equal(t, Clause{Text: "create user", Phrase: true}, q.Groups[0][0])
}

func TestParseFieldClauses(t *testing.T) {
	q, warnings := Parse(`method:POST path:"/api/v1/users" status:404`)
	require.Empty(t, warnings)
	require.Len(t, q.Groups, 3)
	assert.Equal(t, Clause{Text: "POST", Field: "method"}, q.Groups[0][0])
	assert.Equal(t, Clause{Text: "/api/v1/users", Field: "path", Phrase: true}, q.Groups[1][0])
	assert.Equal(t, Clause{Text: "404", Field: "status"}, q.Groups[2][0])
}

func TestParseFuzzy(t *testing.T) {
	q, warnings := Parse("usres~ param:lmit~")
	require.Empty(t, warnings)
	require.Len(t, q.Groups, 2)
	assert.Equal(t, Clause{Text: "usres", Fuzzy: true}, q.Groups[0][0])
	assert.Equal(t, Clause{Text: "lmit", Field: "param", Fuzzy: true}, q.Groups[1][0])
}

func TestParseBooleanOperators(t *testing.T) {
	q, warnings := Parse("users AND create OR update NOT deprecated")
	require.Empty(t, warnings)
	require.Len(t, q.Groups, 2)
	assert.Equal(t, "users", q.Groups[0][0].Text)
	// OR joins the previous group
	require.Len(t, q.Groups[1], 2)
	assert.Equal(t, "create", q.Groups[1][0].Text)
	assert.Equal(t, "update", q.Groups[1][1].Text)
	require.Len(t, q.MustNot, 1)
	assert.Equal(t, "deprecated", q.MustNot[0].Text)
}

func TestParseOperatorsAreCaseSensitive(t *testing.T) {
	q, warnings := Parse("users and orders")
	require.Empty(t, warnings)
	// lowercase "and" is an ordinary term
	assert.Len(t, q.Groups, 3)
}

func TestParseFallbackOnUnknownField(t *testing.T) {
	q, warnings := Parse("verb:POST users")
	require.Equal(t, []string{WarningParseFallback}, warnings)
	assert.True(t, q.Fallback)
	// the whole input degrades to a bag of terms
	require.Len(t, q.Groups, 2)
	assert.Equal(t, "verb:POST", q.Groups[0][0].Text)
	assert.Equal(t, "users", q.Groups[1][0].Text)
}

func TestParseFallbackOnUnterminatedPhrase(t *testing.T) {
	q, warnings := Parse(`"create user`)
	require.Equal(t, []string{WarningParseFallback}, warnings)
	assert.True(t, q.Fallback)
	require.Len(t, q.Groups, 2)
	assert.Equal(t, "create", q.Groups[0][0].Text)
	assert.Equal(t, "user", q.Groups[1][0].Text)
}

func TestParseFallbackOnDanglingOperator(t *testing.T) {
	q, warnings := Parse("users AND")
	require.Equal(t, []string{WarningParseFallback}, warnings)
	require.Len(t, q.Groups, 1)
	assert.Equal(t, "users", q.Groups[0][0].Text)
}

func TestParseEmpty(t *testing.T) {
	q, warnings := Parse("")
	require.Empty(t, warnings)
	assert.True(t, q.IsEmpty())
}

func TestFieldClauses(t *testing.T) {
	q, _ := Parse("users method:GET tag:admin")
	fields := q.FieldClauses()
	require.Len(t, fields, 2)
	assert.Equal(t, "method", fields[0].Field)
	assert.Equal(t, "tag", fields[1].Field)
}

func TestSuggestSkippedWhenEnoughHits(t *testing.T) {
	q, _ := Parse("users")
	assert.Nil(t, Suggest(q, 5, Vocabulary{"users": 3}, "endpoints"))
}

func TestSuggestSpelling(t *testing.T) {
	q, _ := Parse("usres")
	vocab := Vocabulary{"users": 10, "user": 2, "orders": 4}

	suggestions := Suggest(q, 0, vocab, "endpoints")
	require.NotEmpty(t, suggestions)
	assert.Equal(t, SuggestionSpelling, suggestions[0].Type)
	// highest-frequency candidate within edit distance two wins
	assert.Equal(t, "users", suggestions[0].Value)
}

func TestSuggestGeneralizationDropsMostRestrictive(t *testing.T) {
	q, _ := Parse("users tag:admin status:404")

	suggestions := Suggest(q, 1, Vocabulary{"users": 3}, "endpoints")
	var generalization *Suggestion
	for i := range suggestions {
		if suggestions[i].Type == SuggestionGeneralization {
			generalization = &suggestions[i]
			break
		}
	}
	require.NotNil(t, generalization)
	// status outranks tag in restrictiveness, so it is dropped first
	assert.Equal(t, "users tag:admin", generalization.Value)
	assert.Contains(t, generalization.Reason, "status")
}

func TestSuggestCrossModal(t *testing.T) {
	q, _ := Parse("user")

	suggestions := Suggest(q, 0, Vocabulary{"user": 1}, "endpoints")
	var crossModal *Suggestion
	for i := range suggestions {
		if suggestions[i].Type == SuggestionCrossModal {
			crossModal = &suggestions[i]
			break
		}
	}
	require.NotNil(t, crossModal)
	assert.Equal(t, "schemas", crossModal.Value)

	suggestions = Suggest(q, 0, Vocabulary{"user": 1}, "schemas")
	assert.Equal(t, "endpoints", suggestions[len(suggestions)-1].Value)
}

func TestSuggestCap(t *testing.T) {
	q, _ := Parse("usres ordres pymnts acounts tag:x status:500")
	vocab := Vocabulary{"users": 5, "orders": 4, "payments": 3, "accounts": 2}

	suggestions := Suggest(q, 0, vocab, "endpoints")
	assert.LessOrEqual(t, len(suggestions), 5)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, EditDistance("users", "users", 2))
	assert.Equal(t, 1, EditDistance("users", "user", 2))
	assert.Equal(t, 2, EditDistance("usres", "users", 2))
	// early exit once the bound is exceeded
	assert.Equal(t, 3, EditDistance("users", "payments", 2))
}
