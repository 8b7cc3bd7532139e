package exec

import (
	"context"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/store"
	"github.com/rlch/cyql/translate"
)

// runWithPhase translates and runs the leading MATCH/WHERE/WITH clauses
// (through and including withIdx) as a single SELECT, returning the one
// row of projected WITH aliases as an environment — the "collect phase"
// the collect+unwind and collect+delete strategies share, since the
// target dialect forbids aggregates directly inside json_each.
func runWithPhase(ctx context.Context, db store.Storage, clauses []cypher.Clause, withIdx int, params map[string]any) (*env, error) {
	withClause := clauses[withIdx].(*cypher.WithClause)
	synthetic := append(append([]cypher.Clause{}, clauses[:withIdx]...), &cypher.ReturnClause{Body: withClause.Body})

	plan, err := translate.Translate(&cypher.Query{Clauses: synthetic}, params)
	if err != nil {
		return nil, err
	}
	rows, err := runPlan(ctx, db, plan)
	if err != nil {
		return nil, err
	}

	en := newEnv(params)
	if len(rows) > 0 {
		for k, v := range rows[0] {
			en.vars[k] = v
		}
	} else {
		for _, col := range plan.Columns {
			en.vars[col] = nil
		}
	}
	return en, nil
}

// runCollectUnwind runs the collect phase once, then iterates the
// decoded list in process, evaluating the remaining clauses (typically
// just a terminal RETURN) per element.
func runCollectUnwind(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	withIdx, alias, ok := findCollectWith(q.Clauses)
	if !ok {
		return nil, nil, unsupported("collect+unwind strategy requires a WITH collect(...) AS alias")
	}
	base, err := runWithPhase(ctx, db, q.Clauses, withIdx, params)
	if err != nil {
		return nil, nil, err
	}

	var unwindIdx int = -1
	for i := withIdx + 1; i < len(q.Clauses); i++ {
		if u, ok := q.Clauses[i].(*cypher.UnwindClause); ok {
			if v, ok := u.Expr.(*cypher.VariableExpr); ok && v.Name == alias {
				unwindIdx = i
				break
			}
		}
	}
	if unwindIdx == -1 {
		return nil, nil, unsupported("collect+unwind strategy could not locate the UNWIND over %s", alias)
	}
	unwindClause := q.Clauses[unwindIdx].(*cypher.UnwindClause)

	listVal, _ := base.vars[alias].([]any)

	var ret *cypher.ReturnClause
	for _, c := range q.Clauses[unwindIdx+1:] {
		if r, ok := c.(*cypher.ReturnClause); ok {
			ret = r
		}
	}

	var cols []string
	var rows []map[string]any
	for _, item := range listVal {
		child := base.child()
		child.vars[unwindClause.Alias] = item
		if ret == nil {
			continue
		}
		c, row, err := projectRow(ret.Body, child)
		if err != nil {
			return nil, nil, err
		}
		cols = c
		rows = append(rows, row)
	}
	return cols, rows, nil
}

// runCollectDelete runs the collect phase once, resolves the DELETE's
// index expression in process (supporting negative indices), then
// deletes the selected row.
func runCollectDelete(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	withIdx, alias, ok := findCollectWith(q.Clauses)
	if !ok {
		return nil, nil, unsupported("collect+delete strategy requires a WITH collect(...) AS alias")
	}
	base, err := runWithPhase(ctx, db, q.Clauses, withIdx, params)
	if err != nil {
		return nil, nil, err
	}

	var del *cypher.DeleteClause
	for _, c := range q.Clauses[withIdx+1:] {
		if d, ok := c.(*cypher.DeleteClause); ok {
			del = d
		}
	}
	if del == nil {
		return nil, nil, unsupported("collect+delete strategy could not locate the DELETE over %s", alias)
	}

	listVal, _ := base.vars[alias].([]any)

	for _, expr := range del.Exprs {
		idxExpr, ok := expr.(*cypher.IndexExpr)
		if !ok {
			continue
		}
		v, err := eval(idxExpr.Index, base)
		if err != nil {
			return nil, nil, err
		}
		i, ok := toInt(v)
		if !ok {
			return nil, nil, &cyerr.TypeError{Msg: "DELETE index must be an integer"}
		}
		if i < 0 {
			i += len(listVal)
		}
		if i < 0 || i >= len(listVal) {
			return nil, nil, &cyerr.TypeError{Msg: "DELETE index out of range"}
		}
		item, ok := listVal[i].(map[string]any)
		if !ok {
			return nil, nil, &cyerr.TypeError{Msg: "DELETE requires a node or relationship"}
		}
		singleton := base.child()
		singleton.vars["__target__"] = item
		deleteClause := &cypher.DeleteClause{Detach: del.Detach, Exprs: []cypher.Expression{&cypher.VariableExpr{Name: "__target__"}}}
		if err := applyDelete(ctx, db, deleteClause, singleton); err != nil {
			return nil, nil, err
		}
	}

	return nil, nil, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case int:
		return t, true
	}
	return 0, false
}
