// Package exec orchestrates single-phase and multi-phase execution
// strategies over a translated query: it dispatches specialized handlers
// for shapes standard SQL translation cannot faithfully express, runs
// SQL against the storage contract, and synthesizes result rows when a
// strategy bypasses the translator.
package exec

import (
	"context"
	"fmt"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/result"
	"github.com/rlch/cyql/store"
	"github.com/rlch/cyql/translate"
)

// Run executes a parsed query against db (already scoped to the single
// transaction the whole query runs inside) and returns its RETURN
// column names plus formatted record rows. A query with no RETURN/CALL
// yields no columns and no rows.
func Run(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	if len(q.Unions) > 0 {
		return runUnion(ctx, db, q, params)
	}

	switch {
	case isUnwindMutate(q):
		return runUnwindMutate(ctx, db, q, params)
	case isCollectUnwind(q):
		return runCollectUnwind(ctx, db, q, params)
	case isCollectDelete(q):
		return runCollectDelete(ctx, db, q, params)
	case isStandaloneMerge(q):
		return runStandaloneMerge(ctx, db, q, params)
	case needsGeneralMultiphase(q):
		return runGeneralMultiphase(ctx, db, q, params)
	default:
		return runStandard(ctx, db, q, params)
	}
}

// runStandard runs the plain single-SQL-statement-per-clause path:
// translate the whole query, execute every statement in order, and
// format the rows of whichever statement carries the result columns.
func runStandard(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	plan, err := translate.Translate(q, params)
	if err != nil {
		return nil, nil, err
	}
	rows, err := runPlan(ctx, db, plan)
	if err != nil {
		return nil, nil, err
	}
	return plan.Columns, rows, nil
}

// runPlan executes every statement of a Plan in order and returns the
// formatted rows of the last statement that produced any columns.
func runPlan(ctx context.Context, db store.Storage, plan *translate.Plan) ([]map[string]any, error) {
	var rawRows []map[string]any
	for _, stmt := range plan.Statements {
		res, err := db.Execute(ctx, stmt.SQL, stmt.Params)
		if err != nil {
			return nil, toStorageError(err)
		}
		if len(res.Rows) > 0 || len(plan.Columns) > 0 {
			rawRows = make([]map[string]any, len(res.Rows))
			for i, r := range res.Rows {
				rawRows[i] = r.Values
			}
		}
	}
	return result.FormatRows(plan.Columns, rawRows), nil
}

func toStorageError(err error) error {
	if _, ok := err.(*cyerr.StorageError); ok {
		return err
	}
	return &cyerr.StorageError{Msg: err.Error(), Err: err}
}

// runUnion translates and runs each arm in its own translator context,
// concatenating rows; columns come from the left side.
func runUnion(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	cols, rows, err := Run(ctx, db, &cypher.Query{Clauses: q.Clauses}, params)
	if err != nil {
		return nil, nil, err
	}
	for _, arm := range q.Unions {
		_, armRows, err := Run(ctx, db, &cypher.Query{Clauses: arm.Clauses}, params)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, armRows...)
	}
	return cols, rows, nil
}

// clauseKinds classifies a clause list by the presence of each clause
// type, driving the strategy-dispatch checks in strategy.go.
type clauseKinds struct {
	hasMatch  bool
	hasWith   bool
	hasUnwind bool
	hasCreate bool
	hasSet    bool
	hasDelete bool
	hasRemove bool
	hasMerge  bool
}

func classify(clauses []cypher.Clause) clauseKinds {
	var k clauseKinds
	for _, c := range clauses {
		switch c.(type) {
		case *cypher.MatchClause:
			k.hasMatch = true
		case *cypher.WithClause:
			k.hasWith = true
		case *cypher.UnwindClause:
			k.hasUnwind = true
		case *cypher.CreateClause:
			k.hasCreate = true
		case *cypher.SetClause:
			k.hasSet = true
		case *cypher.DeleteClause:
			k.hasDelete = true
		case *cypher.RemoveClause:
			k.hasRemove = true
		case *cypher.MergeClause:
			k.hasMerge = true
		}
	}
	return k
}

func (k clauseKinds) mutates() bool {
	return k.hasCreate || k.hasSet || k.hasDelete || k.hasRemove || k.hasMerge
}

func unsupported(format string, args ...any) error {
	return &cyerr.UnsupportedFeatureError{Msg: fmt.Sprintf(format, args...)}
}
