package translate

import (
	"fmt"
	"strings"

	"github.com/rlch/cyql/cypher"
)

// Statement is one parameterized SQL statement plus its positional
// parameter values, assembled in the exact order their placeholders
// appear in the final SQL string.
type Statement struct {
	SQL    string
	Params []any
}

// Plan is the translator's output: an ordered statement list plus the
// RETURN column names.
type Plan struct {
	Statements []Statement
	Columns    []string
}

// Translate lowers a parsed query into a Plan for the standard
// single-statement translation path: MATCH/OPTIONAL MATCH/UNWIND/WITH
// feeding a single terminal RETURN, or a standalone CREATE, or a
// CALL procedure. The executor (package exec) is responsible for
// recognizing queries that need a multi-phase strategy instead and
// never calls this function for them.
func Translate(q *cypher.Query, paramValues map[string]any) (*Plan, error) {
	ctx := NewContext(paramValues)
	plan := &Plan{}

	for i, clause := range q.Clauses {
		switch cl := clause.(type) {
		case *cypher.MatchClause:
			if err := ctx.registerPattern(cl.Pattern, cl.Optional); err != nil {
				return nil, err
			}
			if cl.Where != nil {
				where, err := ctx.compileWhere(cl.Where, cl.Optional)
				if err != nil {
					return nil, err
				}
				ctx.addWhere(where)
			}
		case *cypher.UnwindClause:
			if err := ctx.applyUnwind(cl); err != nil {
				return nil, err
			}
		case *cypher.WithClause:
			if err := ctx.applyWith(cl); err != nil {
				return nil, err
			}
		case *cypher.CreateClause:
			stmts, err := ctx.compileCreate(cl.Pattern)
			if err != nil {
				return nil, err
			}
			plan.Statements = append(plan.Statements, stmts...)
		case *cypher.CallClause:
			stmt, cols, err := ctx.compileCall(cl)
			if err != nil {
				return nil, err
			}
			if i == len(q.Clauses)-1 {
				plan.Statements = append(plan.Statements, *stmt)
				plan.Columns = cols
				continue
			}
			// Later clauses read the yielded column from the procedure's
			// SELECT, bound as a subquery source.
			src := Expr{SQL: fmt.Sprintf("(%s) __call__", stmt.SQL), Params: stmt.Params}
			if ctx.FromClause.SQL == "" {
				ctx.FromClause = src
			} else {
				ctx.JoinClauses = append(ctx.JoinClauses, Expr{SQL: "CROSS JOIN " + src.SQL, Params: src.Params})
			}
			ctx.Variables[cols[0]] = VarInfo{Kind: VarScalar, Alias: "__call__." + quoteIdent(cols[0])}
			ctx.VarOrder = append(ctx.VarOrder, cols[0])
		case *cypher.ReturnClause:
			stmt, cols, err := ctx.compileReturn(cl.Body)
			if err != nil {
				return nil, err
			}
			plan.Statements = append(plan.Statements, *stmt)
			plan.Columns = cols
		default:
			return nil, &UnsupportedFeatureError{Msg: fmt.Sprintf("clause %T is not handled by standard translation", clause)}
		}
	}

	return plan, nil
}

// compileWhere wraps an OPTIONAL MATCH's WHERE so outer-joined NULL rows
// survive: "(<optional_var>.id IS NULL OR <cond>)". For required MATCH
// the condition is used as-is.
func (c *TranslatorContext) compileWhere(where cypher.Expression, optional bool) (Expr, error) {
	e, err := c.CompileExpr(where, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	if !optional {
		return e, nil
	}
	optVar := firstOptionalAlias(c)
	if optVar == "" {
		return e, nil
	}
	return Expr{SQL: fmt.Sprintf("(%s.id IS NULL OR %s)", optVar, e.SQL), Params: e.Params}, nil
}

func firstOptionalAlias(c *TranslatorContext) string {
	for alias, p := range c.AliasPatterns {
		if p.Optional {
			return alias
		}
	}
	return ""
}

// applyUnwind registers an UNWIND source as a CROSS JOIN json_each,
// binding the produced element as a scalar variable.
func (c *TranslatorContext) applyUnwind(cl *cypher.UnwindClause) error {
	e, err := c.CompileExpr(cl.Expr, PosScalar)
	if err != nil {
		return err
	}
	alias := c.freshAlias("u")
	if c.FromClause.SQL == "" {
		c.FromClause = Expr{SQL: fmt.Sprintf("json_each(%s) %s", e.SQL, alias), Params: e.Params}
	} else {
		c.JoinClauses = append(c.JoinClauses, Expr{SQL: fmt.Sprintf("CROSS JOIN json_each(%s) %s", e.SQL, alias), Params: e.Params})
	}
	c.Variables[cl.Alias] = VarInfo{Kind: VarScalar, Alias: alias + ".value"}
	c.VarOrder = append(c.VarOrder, cl.Alias)
	return nil
}

// applyWith records the WITH clause's projections as named aliases,
// folds its WHERE into the running WHERE set, and carries its
// DISTINCT/ORDER BY/SKIP/LIMIT forward for the next RETURN to inherit if
// it doesn't specify its own.
func (c *TranslatorContext) applyWith(cl *cypher.WithClause) error {
	if !cl.Body.Star {
		newAliases := map[string]cypher.Expression{}
		for _, item := range cl.Body.Items {
			name := item.Alias
			if name == "" {
				if v, ok := item.Expr.(*cypher.VariableExpr); ok {
					name = v.Name
				} else {
					return &UnsupportedFeatureError{Msg: "WITH projection item requires an alias"}
				}
			}
			newAliases[name] = item.Expr
		}
		c.WithAliases = newAliases
	}
	c.Distinct = c.Distinct || cl.Body.Distinct
	if len(cl.Body.OrderBy) > 0 {
		c.OrderBy = nil
		for _, o := range cl.Body.OrderBy {
			e, err := c.CompileExpr(o.Expr, PosScalar)
			if err != nil {
				return err
			}
			c.OrderBy = append(c.OrderBy, OrderFragment{SQL: e.SQL, Desc: o.Desc, Params: e.Params})
		}
	}
	if cl.Body.Skip != nil {
		e, err := c.CompileExpr(cl.Body.Skip, PosScalar)
		if err != nil {
			return err
		}
		c.Skip = &e
	}
	if cl.Body.Limit != nil {
		e, err := c.CompileExpr(cl.Body.Limit, PosScalar)
		if err != nil {
			return err
		}
		c.Limit = &e
	}
	if cl.Where != nil {
		e, err := c.CompileExpr(cl.Where, PosScalar)
		if err != nil {
			return err
		}
		c.addWhere(e)
	}
	return nil
}

// aggregateFunctionNames are the RETURN/WITH projection functions that
// collapse multiple rows into one, triggering implicit GROUP BY over the
// remaining non-aggregated select-list expressions.
var aggregateFunctionNames = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

// containsAggregate reports whether e is, or contains, a call to one of
// aggregateFunctionNames.
func containsAggregate(e cypher.Expression) bool {
	switch n := e.(type) {
	case *cypher.FunctionCallExpr:
		if n.CountAll || aggregateFunctionNames[strings.ToLower(n.Name)] {
			return true
		}
		for _, a := range n.Args {
			if containsAggregate(a) {
				return true
			}
		}
	case *cypher.BinaryExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *cypher.UnaryExpr:
		return containsAggregate(n.Operand)
	case *cypher.ComparisonExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *cypher.InExpr:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case *cypher.CaseExpr:
		if n.Input != nil && containsAggregate(n.Input) {
			return true
		}
		for _, w := range n.Whens {
			if containsAggregate(w.When) || containsAggregate(w.Then) {
				return true
			}
		}
		if n.Else != nil {
			return containsAggregate(n.Else)
		}
	case *cypher.ObjectExpr:
		for _, entry := range n.Entries {
			if containsAggregate(entry.Value) {
				return true
			}
		}
	case *cypher.ListExpr:
		for _, item := range n.Items {
			if containsAggregate(item) {
				return true
			}
		}
	case *cypher.IndexExpr:
		return containsAggregate(n.Target)
	case *cypher.PropertyExpr:
		return containsAggregate(n.Target)
	}
	return false
}

// compileReturn assembles the terminal SELECT: SELECT list, FROM, JOINs,
// WHERE, GROUP BY, ORDER BY, LIMIT, and OFFSET, in that order. GROUP BY is
// emitted whenever an aggregate function appears alongside a
// non-aggregated expression in the select list, grouping by every
// non-aggregated expression.
func (c *TranslatorContext) compileReturn(body *cypher.ProjectionBody) (*Statement, []string, error) {
	var selectList []string
	var columns []string
	var selectParams []any
	var groupByParts []string
	var groupByParams []any
	hasAggregate := false

	if body.Star {
		for _, name := range c.VarOrder {
			e, err := c.CompileExpr(&cypher.VariableExpr{Name: name}, PosValue)
			if err != nil {
				return nil, nil, err
			}
			selectList = append(selectList, fmt.Sprintf("%s AS %s", e.SQL, quoteIdent(name)))
			selectParams = append(selectParams, e.Params...)
			columns = append(columns, name)
		}
	} else {
		for _, item := range body.Items {
			if containsAggregate(item.Expr) {
				hasAggregate = true
			}
		}
		for _, item := range body.Items {
			e, err := c.CompileExpr(item.Expr, PosValue)
			if err != nil {
				return nil, nil, err
			}
			colName := item.Alias
			if colName == "" {
				colName = syntheticColumnName(item.Expr)
			}
			selectList = append(selectList, fmt.Sprintf("%s AS %s", e.SQL, quoteIdent(colName)))
			selectParams = append(selectParams, e.Params...)
			columns = append(columns, colName)
			if hasAggregate && !containsAggregate(item.Expr) {
				groupByParts = append(groupByParts, e.SQL)
				groupByParams = append(groupByParams, e.Params...)
			}
		}
	}

	distinct := ""
	if c.Distinct || body.Distinct {
		distinct = "DISTINCT "
	}

	var b strings.Builder
	var params []any
	if len(c.RecursiveCTEs) > 0 {
		b.WriteString("WITH RECURSIVE ")
		cteTexts := make([]string, 0, len(c.RecursiveCTEs))
		for _, cte := range c.RecursiveCTEs {
			cteTexts = append(cteTexts, cte.SQL)
			params = append(params, cte.Params...)
		}
		b.WriteString(strings.Join(cteTexts, ", "))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "SELECT %s%s", distinct, strings.Join(selectList, ", "))
	params = append(params, selectParams...)
	if c.FromClause.SQL != "" {
		b.WriteString(" FROM " + c.FromClause.SQL)
		params = append(params, c.FromClause.Params...)
	}
	for _, j := range c.JoinClauses {
		b.WriteString(" " + j.SQL)
		params = append(params, j.Params...)
	}
	if len(c.WhereClauses) > 0 {
		whereTexts := make([]string, 0, len(c.WhereClauses))
		for _, w := range c.WhereClauses {
			whereTexts = append(whereTexts, w.SQL)
		}
		b.WriteString(" WHERE " + strings.Join(whereTexts, " AND "))
		for _, w := range c.WhereClauses {
			params = append(params, w.Params...)
		}
	}
	if len(groupByParts) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(groupByParts, ", "))
		params = append(params, groupByParams...)
	}

	orderBy := c.OrderBy
	skip, limit := c.Skip, c.Limit
	if len(body.OrderBy) > 0 {
		orderBy = nil
		for _, o := range body.OrderBy {
			e, err := c.CompileExpr(o.Expr, PosScalar)
			if err != nil {
				return nil, nil, err
			}
			orderBy = append(orderBy, OrderFragment{SQL: e.SQL, Desc: o.Desc, Params: e.Params})
		}
	}
	if body.Skip != nil {
		e, err := c.CompileExpr(body.Skip, PosScalar)
		if err != nil {
			return nil, nil, err
		}
		skip = &e
	}
	if body.Limit != nil {
		e, err := c.CompileExpr(body.Limit, PosScalar)
		if err != nil {
			return nil, nil, err
		}
		limit = &e
	}

	if len(orderBy) > 0 {
		parts := make([]string, 0, len(orderBy))
		for _, o := range orderBy {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.SQL+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
		for _, o := range orderBy {
			params = append(params, o.Params...)
		}
	}
	if limit != nil {
		b.WriteString(" LIMIT " + limit.SQL)
		params = append(params, limit.Params...)
	}
	if skip != nil {
		if limit == nil {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET " + skip.SQL)
		params = append(params, skip.Params...)
	}

	return &Statement{SQL: b.String(), Params: params}, columns, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// syntheticColumnName builds the var_prop / fn-style name for unaliased
// RETURN items.
func syntheticColumnName(e cypher.Expression) string {
	switch n := e.(type) {
	case *cypher.VariableExpr:
		return n.Name
	case *cypher.PropertyExpr:
		if root, path, ok := resolvePropertyPath(n); ok {
			return root.Name + strings.ReplaceAll(path, ".", "_")
		}
	case *cypher.FunctionCallExpr:
		return strings.ToLower(n.Name)
	}
	return "expr"
}
