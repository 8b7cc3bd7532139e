package translate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/translate"
)

func mustParse(t *testing.T, src string) *cypher.Query {
	t.Helper()
	q, err := cypher.Parse(src)
	require.NoError(t, err)
	return q
}

func TestTranslate_CreateNode(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "CREATE (a:Person {name: 'Alice'})")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	require.Len(t, plan.Statements, 1)
	assert.Contains(t, plan.Statements[0].SQL, "INSERT INTO nodes")
	assert.Equal(t, []any{`["Person"]`, `{"name":"Alice"}`}, plan.Statements[0].Params[1:])
}

func TestTranslate_CreateRelationship(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "CREATE (a:P {n:'A'})-[:K]->(b:P {n:'B'})")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	require.Len(t, plan.Statements, 3)
	assert.Contains(t, plan.Statements[2].SQL, "INSERT INTO edges")
}

func TestTranslate_MatchReturn(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:Person {name: 'Alice'}) RETURN a.name AS n")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	require.Len(t, plan.Statements, 1)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "FROM nodes n0")
	assert.Contains(t, sql, "EXISTS (SELECT 1 FROM json_each(n0.label) WHERE value = ?)")
	assert.Contains(t, sql, "WHERE")
	assert.Equal(t, []string{"n"}, plan.Columns)
}

func TestTranslate_RelationshipJoin(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:P)-[:K]->(b:P) RETURN a.name, b.name")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "JOIN edges e1 ON e1.source_id = n0.id")
	assert.Contains(t, sql, "AND e1.type = ?")
	assert.Contains(t, sql, "JOIN nodes n2 ON e1.target_id = n2.id")
	assert.Equal(t, []string{"a_name", "b_name"}, plan.Columns)
}

func TestTranslate_OptionalMatch(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:P) OPTIONAL MATCH (a)-[:K]->(b:Q) RETURN a, b")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "LEFT JOIN edges")
	assert.Contains(t, sql, "LEFT JOIN nodes")
}

func TestTranslate_Unwind(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "UNWIND [1,2,3] AS x RETURN x")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.Statements[0].SQL, "json_each(")
	assert.Equal(t, []string{"x"}, plan.Columns)
}

func TestTranslate_VariableLengthPath(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:P)-[:K*1..3]->(b:P) RETURN a, b")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "WITH RECURSIVE")
	assert.Contains(t, sql, "UNION ALL")
}

func TestTranslate_OrderByLimitSkip(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:P) RETURN a.name ORDER BY a.name DESC SKIP 1 LIMIT 10")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	sql := plan.Statements[0].SQL
	assert.Contains(t, sql, "ORDER BY")
	assert.Contains(t, sql, "DESC")
	assert.Contains(t, sql, "LIMIT 10")
	assert.Contains(t, sql, "OFFSET 1")
}

func TestTranslate_ParameterCountMatchesPlaceholders(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:Person {name: $name}) WHERE a.age > $age RETURN a.name")
	plan, err := translate.Translate(q, map[string]any{"name": "Alice", "age": int64(18)})
	require.NoError(t, err)

	placeholders := 0
	for _, stmt := range plan.Statements {
		for _, c := range stmt.SQL {
			if c == '?' {
				placeholders++
			}
		}
		assert.Equal(t, placeholders, len(stmt.Params), "placeholder count must equal parameter list length")
	}
}

// TestTranslate_ParameterOrderMatchesPlaceholderPosition asserts that each
// "?" binds the value whose source expression occupies that same textual
// position, not merely that the two lists are the same length. The select
// list here is compiled last among MATCH/WHERE/RETURN but appears first in
// the assembled SQL, so a naive clause-order param list would bind the
// RETURN item's placeholder to the MATCH pattern's first bound value.
func TestTranslate_ParameterOrderMatchesPlaceholderPosition(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (n:Person {name: $name}) RETURN n.name, $status AS status")
	plan, err := translate.Translate(q, map[string]any{"name": "Alice", "status": "active"})
	require.NoError(t, err)
	require.Len(t, plan.Statements, 1)

	sql := plan.Statements[0].SQL
	selectEnd := strings.Index(sql, " FROM ")
	require.Greater(t, selectEnd, 0, "expected a FROM clause: %s", sql)

	selectList := sql[:selectEnd]
	rest := sql[selectEnd:]
	assert.Equal(t, 1, strings.Count(selectList, "?"), "the select list should bind exactly status's placeholder")
	assert.Equal(t, 2, strings.Count(rest, "?"), "the FROM/WHERE tail should bind the label and name placeholders")

	require.Equal(t, []any{"active", "Person", "Alice"}, plan.Statements[0].Params)
}

func TestTranslate_Deterministic(t *testing.T) {
	t.Parallel()

	src := "MATCH (a:P {k: $v}) RETURN a.name ORDER BY a.name LIMIT 5"
	params := map[string]any{"v": int64(1)}

	q1 := mustParse(t, src)
	plan1, err := translate.Translate(q1, params)
	require.NoError(t, err)

	q2 := mustParse(t, src)
	plan2, err := translate.Translate(q2, params)
	require.NoError(t, err)

	require.Len(t, plan1.Statements, len(plan2.Statements))
	for i := range plan1.Statements {
		assert.Equal(t, plan1.Statements[i].SQL, plan2.Statements[i].SQL)
		assert.Equal(t, plan1.Statements[i].Params, plan2.Statements[i].Params)
	}
}

func TestTranslate_EmptyInList(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "MATCH (a:P) WHERE a.k IN [] RETURN a")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.Statements[0].SQL, "1=0")
}

func TestTranslate_UnknownProcedure(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "CALL db.unknownThing() YIELD x RETURN x")
	_, err := translate.Translate(q, nil)
	require.Error(t, err)
	var unsupported *translate.UnsupportedFeatureError
	require.ErrorAs(t, err, &unsupported)
}

func TestTranslate_CallLabels(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "CALL db.labels() YIELD label RETURN label")
	plan, err := translate.Translate(q, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.Statements[0].SQL, "json_each(nodes.label)")
	assert.Equal(t, []string{"label"}, plan.Columns)
}

func TestEncodeLabelArray(t *testing.T) {
	t.Parallel()

	got, err := translate.EncodeLabelArray([]string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, `["A","B"]`, got)

	got, err = translate.EncodeLabelArray(nil)
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)
}

func TestNormalizeLabels(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Person", translate.NormalizeLabels([]any{"Person"}))
	assert.Equal(t, []any{"A", "B"}, translate.NormalizeLabels([]any{"A", "B"}))
	assert.Equal(t, "not-a-list", translate.NormalizeLabels("not-a-list"))
}

func TestUnionLabels(t *testing.T) {
	t.Parallel()

	got := translate.UnionLabels([]string{"A"}, []string{"B", "A"})
	assert.Equal(t, []string{"A", "B"}, got)
}
