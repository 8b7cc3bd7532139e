package cyql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql"
	"github.com/rlch/cyql/store"
)

// newTestEngine opens a fresh in-memory SQLite-backed engine per test.
func newTestEngine(t *testing.T) *cyql.Engine {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return cyql.New(db, nil, nil)
}

func TestEngine_CreateRelationshipThenReturn(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (a:P {name:'A'})-[:K]->(b:P {name:'B'}) RETURN a.name, b.name", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "A", resp.Data[0]["a_name"])
	assert.Equal(t, "B", resp.Data[0]["b_name"])
	assert.Equal(t, 1, resp.Meta.Count)
}

func TestEngine_MatchRelationshipReturnsSingleLabel(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (a:P {name:'A'})-[:K]->(b:P {name:'B'})", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	resp = e.Execute(ctx, "MATCH (a:P {name:'A'})-[:K]->(b) RETURN labels(b), b.name", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "P", resp.Data[0]["labels"])
	assert.Equal(t, "B", resp.Data[0]["b_name"])
}

func TestEngine_UnwindCreate(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "UNWIND [1,2,3] AS i CREATE (:N {i:i}) RETURN count(*) AS c", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 1)
	assert.EqualValues(t, 3, resp.Data[0]["c"])

	resp = e.Execute(ctx, "MATCH (n:N) WHERE n.i IN [1,3] RETURN n.i ORDER BY n.i", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 2)
	assert.EqualValues(t, 1, resp.Data[0]["n_i"])
	assert.EqualValues(t, 3, resp.Data[1]["n_i"])
}

func TestEngine_MergeOnCreateOnMatch(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	const q = "MERGE (u:User {id:'x'}) ON CREATE SET u.c=1 ON MATCH SET u.c=u.c+1 RETURN u.c"

	resp := e.Execute(ctx, q, nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 1, resp.Data[0]["u_c"])

	resp = e.Execute(ctx, q, nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 2, resp.Data[0]["u_c"])

	resp = e.Execute(ctx, q, nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 3, resp.Data[0]["u_c"])
}

func TestEngine_DetachDeleteRemovesIncidentEdges(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (a:P {n:'A'})-[:K]->(b:P {n:'B'})", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	resp = e.Execute(ctx, "MATCH (a:P {n:'A'}) DETACH DELETE a", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	resp = e.Execute(ctx, "MATCH (n:P) RETURN n.n", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "B", resp.Data[0]["n_n"])
}

func TestEngine_NonDetachDeleteWithIncidentEdgeFails(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (a:P {n:'A'})-[:K]->(b:P {n:'B'})", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	resp = e.Execute(ctx, "MATCH (a:P {n:'A'}) DELETE a", nil)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)

	resp = e.Execute(ctx, "MATCH (n:P) RETURN count(n) AS c", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 2, resp.Data[0]["c"])
}

func TestEngine_VariableLengthPath(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, `
		CREATE (a:P {name:'A'})-[:K]->(b:P {name:'B'})-[:K]->(c:P {name:'C'})-[:K]->(d:P {name:'D'})
	`, nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	resp = e.Execute(ctx, "MATCH (a:P {name:'A'})-[:K*1..3]->(b:P) RETURN b.name ORDER BY b.name", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 3)
	names := []any{resp.Data[0]["b_name"], resp.Data[1]["b_name"], resp.Data[2]["b_name"]}
	assert.ElementsMatch(t, []any{"B", "C", "D"}, names)
}

func TestEngine_SetThenAggregateReturnUsesGeneralMultiphase(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (:P {n:'A'}), (:P {n:'B'})", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	// SET referencing the matched variable forces the general
	// multi-phase fallback; its RETURN then aggregates over every
	// captured row rather than once per row.
	resp = e.Execute(ctx, "MATCH (n:P) SET n.touched = true RETURN count(n) AS c", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	require.Len(t, resp.Data, 1)
	assert.EqualValues(t, 2, resp.Data[0]["c"])
}

func TestEngine_ParseErrorCarriesPosition(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "MATCH (a RETURN a", nil)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.NotZero(t, *resp.Error.Line)
}

func TestEngine_TransactionRollsBackOnError(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Execute(ctx, "CREATE (a:P {n:'A'})-[:K]->(b:P {n:'B'})", nil)
	require.True(t, resp.Success, "%+v", resp.Error)

	// a's incident edge makes this non-DETACH delete fail; storage
	// contents must be unchanged afterward.
	resp = e.Execute(ctx, "MATCH (a:P {n:'A'}) DELETE a", nil)
	require.False(t, resp.Success)

	resp = e.Execute(ctx, "MATCH (n:P) RETURN count(n) AS c", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 2, resp.Data[0]["c"])

	resp = e.Execute(ctx, "MATCH ()-[r:K]->() RETURN count(r) AS c", nil)
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.EqualValues(t, 1, resp.Data[0]["c"])
}
