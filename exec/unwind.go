package exec

import (
	"context"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/store"
)

// runUnwindMutate iterates the Cartesian product of all UNWIND sources in
// process; for each tuple it runs the CREATE or MERGE pattern with the
// UNWIND variables bound, counting rows and optionally synthesizing a
// RETURN.
func runUnwindMutate(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	var unwinds []*cypher.UnwindClause
	var create *cypher.CreateClause
	var merge *cypher.MergeClause
	var ret *cypher.ReturnClause

	for _, c := range q.Clauses {
		switch cl := c.(type) {
		case *cypher.UnwindClause:
			unwinds = append(unwinds, cl)
		case *cypher.CreateClause:
			create = cl
		case *cypher.MergeClause:
			merge = cl
		case *cypher.ReturnClause:
			ret = cl
		}
	}

	base := newEnv(params)
	tuples, err := cartesianProduct(unwinds, base)
	if err != nil {
		return nil, nil, err
	}

	var resultRows []map[string]any
	var cols []string
	for _, en := range tuples {
		switch {
		case create != nil:
			if err := createPattern(ctx, db, create.Pattern, en); err != nil {
				return nil, nil, err
			}
		case merge != nil:
			if _, err := mergeOne(ctx, db, merge, en); err != nil {
				return nil, nil, err
			}
		}
		if ret != nil && !isCountStar(ret.Body) {
			c, row, err := projectRow(ret.Body, en)
			if err != nil {
				return nil, nil, err
			}
			cols = c
			resultRows = append(resultRows, row)
		}
	}

	if ret != nil && isCountStar(ret.Body) {
		cols, resultRows = countStarResult(ret.Body, len(tuples))
	}

	return cols, resultRows, nil
}

// cartesianProduct evaluates every UNWIND source once against base and
// returns one child environment per tuple, in left-to-right iteration
// order over the declared UNWIND clauses.
func cartesianProduct(unwinds []*cypher.UnwindClause, base *env) ([]*env, error) {
	envs := []*env{base}
	for _, u := range unwinds {
		listVal, err := eval(u.Expr, base)
		if err != nil {
			return nil, err
		}
		items, ok := listVal.([]any)
		if !ok {
			return nil, &cyerr.TypeError{Msg: "UNWIND requires a list expression"}
		}
		var next []*env
		for _, parent := range envs {
			for _, item := range items {
				child := parent.child()
				child.vars[u.Alias] = item
				next = append(next, child)
			}
		}
		envs = next
	}
	return envs, nil
}

func isCountStar(body *cypher.ProjectionBody) bool {
	if body.Star || len(body.Items) != 1 {
		return false
	}
	fn, ok := body.Items[0].Expr.(*cypher.FunctionCallExpr)
	return ok && fn.CountAll
}

func countStarResult(body *cypher.ProjectionBody, n int) ([]string, []map[string]any) {
	name := body.Items[0].Alias
	if name == "" {
		name = "count"
	}
	return []string{name}, []map[string]any{{name: int64(n)}}
}
