package cypher_test

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql/cypher"
)

func TestParse_Clauses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{"create", "CREATE (a:Person {name: 'Alice'})-[:KNOWS]->(b:Person {name: 'Bob'})"},
		{"match return", "MATCH (a:Person) WHERE a.age > 18 RETURN a.name"},
		{"optional match", "MATCH (a) OPTIONAL MATCH (a)-[:KNOWS]->(b) RETURN a, b"},
		{"merge", "MERGE (a:Person {id: $id}) ON CREATE SET a.created = true"},
		{"unwind", "UNWIND [1, 2, 3] AS x RETURN x"},
		{"with", "MATCH (a) WITH a.name AS name WHERE name IS NOT NULL RETURN name"},
		{"union", "MATCH (a:Person) RETURN a.name UNION MATCH (b:Company) RETURN b.name"},
		{"call", "CALL db.labels() YIELD label RETURN label"},
		{"delete", "MATCH (a) DETACH DELETE a"},
		{"case", "RETURN CASE WHEN 1 > 0 THEN 'pos' ELSE 'neg' END"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q, err := cypher.Parse(tt.query)
			require.NoError(t, err)
			assert.NotEmpty(t, q.Clauses)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := cypher.Parse("MATCH (a RETURN a")
	require.Error(t, err)

	var parseErr *cypher.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.NotZero(t, parseErr.Line)
}

func TestParse_CreatePattern(t *testing.T) {
	t.Parallel()

	q, err := cypher.Parse("CREATE (a:Person {name: 'Alice'})-[:KNOWS]->(b:Person)")
	require.NoError(t, err)
	require.Len(t, q.Clauses, 1)

	create, ok := q.Clauses[0].(*cypher.CreateClause)
	require.True(t, ok, "expected *CreateClause, got %T", q.Clauses[0])
	require.Len(t, create.Pattern.Parts, 1)

	el := create.Pattern.Parts[0].Element
	assert.Equal(t, "a", el.Node.Variable)
	assert.Equal(t, []string{"Person"}, el.Node.Labels)
	require.Len(t, el.Chain, 1)
	assert.Equal(t, []string{"KNOWS"}, el.Chain[0].Edge.Types)
	assert.Equal(t, cypher.DirRight, el.Chain[0].Edge.Direction)
	assert.Equal(t, "b", el.Chain[0].Node.Variable)
}

// ignorePositions discards Position fields from the diff: two distinct
// parses of equivalent source shouldn't be compared on offsets, only
// on AST shape.
var positionType = reflect.TypeOf(cypher.Position{})

var ignorePositions = cmp.FilterPath(
	func(p cmp.Path) bool { return p.Last().Type() == positionType },
	cmp.Ignore(),
)

func TestParse_Deterministic(t *testing.T) {
	t.Parallel()

	const src = "MATCH (a:Person)-[:KNOWS]->(b:Person) WHERE a.age > 18 RETURN a.name AS name ORDER BY name LIMIT 5"

	q1, err := cypher.Parse(src)
	require.NoError(t, err)
	q2, err := cypher.Parse(src)
	require.NoError(t, err)

	if diff := cmp.Diff(q1, q2, ignorePositions); diff != "" {
		t.Errorf("parsing the same source twice produced different ASTs (-first +second):\n%s", diff)
	}
}
