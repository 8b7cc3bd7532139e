package exec

import (
	"context"

	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/store"
	"github.com/rlch/cyql/translate"
)

// runGeneralMultiphase is the fallback strategy for any query shape the
// more specific strategies don't cover, including a standalone CREATE
// that references its own variables in a later SET/RETURN: translate the
// leading read clauses plus a synthetic RETURN that projects every
// variable a later clause needs, run it once, then for each row execute
// the trailing CREATE/SET/REMOVE/MERGE/DELETE/RETURN clauses in process
// against that row's captured bindings.
func runGeneralMultiphase(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	splitIdx := firstMutationIndex(q.Clauses)
	leading := q.Clauses[:splitIdx]
	trailing := q.Clauses[splitIdx:]

	phaseRows, err := runLeadingPhase(ctx, db, leading, params)
	if err != nil {
		return nil, nil, err
	}

	var cols []string
	var out []map[string]any
	envs := make([]*env, 0, len(phaseRows))
	var aggregateReturn *cypher.ReturnClause

	for _, row := range phaseRows {
		en := newEnv(params)
		for k, v := range row {
			en.vars[k] = v
		}
		envs = append(envs, en)

		for _, c := range trailing {
			switch cl := c.(type) {
			case *cypher.CreateClause:
				if err := createPattern(ctx, db, cl.Pattern, en); err != nil {
					return nil, nil, err
				}
			case *cypher.SetClause:
				if err := applySet(ctx, db, cl, en); err != nil {
					return nil, nil, err
				}
			case *cypher.RemoveClause:
				if err := applyRemove(ctx, db, cl, en); err != nil {
					return nil, nil, err
				}
			case *cypher.MergeClause:
				if _, err := mergeOne(ctx, db, cl, en); err != nil {
					return nil, nil, err
				}
			case *cypher.DeleteClause:
				if err := applyDelete(ctx, db, cl, en); err != nil {
					return nil, nil, err
				}
			case *cypher.ReturnClause:
				if !cl.Body.Star && returnHasAggregate(cl.Body) {
					// Defer: this must see every row's bindings at once,
					// computed once after the loop, not per row.
					aggregateReturn = cl
					continue
				}
				c, r, err := projectRow(cl.Body, en)
				if err != nil {
					return nil, nil, err
				}
				cols = c
				out = append(out, r)
			}
		}
	}

	if aggregateReturn != nil {
		c, r, err := projectAggregateRow(aggregateReturn.Body, envs)
		if err != nil {
			return nil, nil, err
		}
		cols = c
		out = []map[string]any{r}
	}

	return cols, out, nil
}

// returnHasAggregate reports whether any RETURN projection item contains
// an aggregate function call.
func returnHasAggregate(body *cypher.ProjectionBody) bool {
	for _, item := range body.Items {
		if containsAggregate(item.Expr) {
			return true
		}
	}
	return false
}

// firstMutationIndex returns the index of the first top-level CREATE,
// SET, DELETE, REMOVE, or MERGE clause. If there are no leading read
// clauses (a standalone CREATE), index 0 degenerates to a single
// synthetic row with no bindings — strategy 5's starting point.
func firstMutationIndex(clauses []cypher.Clause) int {
	for i, c := range clauses {
		switch c.(type) {
		case *cypher.CreateClause, *cypher.SetClause, *cypher.DeleteClause, *cypher.RemoveClause, *cypher.MergeClause:
			return i
		}
	}
	return len(clauses)
}

// runLeadingPhase translates the read-only clauses preceding the first
// mutation as a single SELECT, projecting every variable (or WITH-
// aliased projection) later clauses will need, and returns one captured
// binding map per matched row.
func runLeadingPhase(ctx context.Context, db store.Storage, leading []cypher.Clause, params map[string]any) ([]map[string]any, error) {
	if len(leading) == 0 {
		return []map[string]any{{}}, nil
	}

	var body *cypher.ProjectionBody
	if w, ok := leading[len(leading)-1].(*cypher.WithClause); ok {
		body = w.Body
	} else {
		body = &cypher.ProjectionBody{Star: true}
	}
	synthetic := append(append([]cypher.Clause{}, leading...), &cypher.ReturnClause{Body: body})

	plan, err := translate.Translate(&cypher.Query{Clauses: synthetic}, params)
	if err != nil {
		return nil, err
	}
	rows, err := runPlan(ctx, db, plan)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}
