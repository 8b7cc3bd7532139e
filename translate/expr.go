package translate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rlch/cyql/cypher"
)

// Position selects which of the two property-access operators to emit:
// the JSON-preserving `->` for SELECT-list positions (so
// booleans/objects survive untouched) versus the scalar-coercing
// json_extract for WHERE/ORDER BY/arithmetic positions (so comparisons
// and arithmetic see a SQL scalar).
type Position int

const (
	PosValue Position = iota
	PosScalar
)

// CompileExpr lowers a parsed expression to a SQL fragment plus the
// parameter values it references, in the given position.
func (c *TranslatorContext) CompileExpr(e cypher.Expression, pos Position) (Expr, error) {
	switch n := e.(type) {
	case *cypher.Literal:
		return c.compileLiteral(n)
	case *cypher.ParamExpr:
		v, ok := c.ParamValues[n.Name]
		if !ok {
			return Expr{}, &NameError{Msg: fmt.Sprintf("undefined parameter $%s", n.Name)}
		}
		var params []any
		return Expr{SQL: pushParam(&params, v), Params: params}, nil
	case *cypher.VariableExpr:
		return c.compileVariable(n.Name, pos)
	case *cypher.PropertyExpr:
		return c.compileProperty(n, pos)
	case *cypher.FunctionCallExpr:
		return c.compileFunctionCall(n, pos)
	case *cypher.BinaryExpr:
		return c.compileBinary(n, pos)
	case *cypher.UnaryExpr:
		return c.compileUnary(n, pos)
	case *cypher.ComparisonExpr:
		return c.compileComparison(n)
	case *cypher.InExpr:
		return c.compileIn(n)
	case *cypher.CaseExpr:
		return c.compileCase(n, pos)
	case *cypher.ObjectExpr:
		return c.compileObject(n)
	case *cypher.ListExpr:
		return c.compileList(n, pos)
	case *cypher.ListComprehension:
		return c.compileListComprehension(n)
	case *cypher.ListPredicate:
		return c.compileListPredicate(n)
	case *cypher.IndexExpr:
		return c.compileIndex(n, pos)
	case *cypher.LabelsExpr:
		return c.compileLabelsCheck(n)
	case *cypher.ExistsExpr:
		return c.compileExists(n)
	case *cypher.PathExpr:
		return c.compilePathRef(n, pos)
	default:
		return Expr{}, &UnsupportedFeatureError{Msg: fmt.Sprintf("unsupported expression %T", e)}
	}
}

func (c *TranslatorContext) compileLiteral(l *cypher.Literal) (Expr, error) {
	var params []any
	switch l.Kind {
	case cypher.LitNull:
		return Expr{SQL: "NULL"}, nil
	case cypher.LitBool:
		return Expr{SQL: pushParam(&params, l.Bool), Params: params}, nil
	case cypher.LitInt:
		return Expr{SQL: pushParam(&params, l.Int), Params: params}, nil
	case cypher.LitFloat:
		return Expr{SQL: pushParam(&params, l.Flt), Params: params}, nil
	case cypher.LitString:
		return Expr{SQL: pushParam(&params, l.Str), Params: params}, nil
	default:
		return Expr{}, &TypeError{Msg: "unknown literal kind"}
	}
}

// compileVariable resolves a bare variable reference: a bound node/edge
// materializes as a json_object of its columns, a scalar binding as its
// SQL expression, a path as its path object, and a name introduced by a
// preceding WITH as the expression it aliases; any other name is an
// unbound-name error.
func (c *TranslatorContext) compileVariable(name string, pos Position) (Expr, error) {
	v, ok := c.Variables[name]
	if !ok {
		if expr, ok := c.WithAliases[name]; ok {
			return c.CompileExpr(expr, pos)
		}
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown variable %q", name)}
	}
	switch v.Kind {
	case VarScalar:
		return Expr{SQL: v.Alias}, nil
	case VarNode:
		sql := fmt.Sprintf("json_object('id',%s.id,'label',%s.label,'properties',%s.properties)", v.Alias, v.Alias, v.Alias)
		return Expr{SQL: sql}, nil
	case VarEdge:
		sql := fmt.Sprintf("json_object('id',%[1]s.id,'type',%[1]s.type,'source_id',%[1]s.source_id,'target_id',%[1]s.target_id,'properties',%[1]s.properties)", v.Alias)
		return Expr{SQL: sql}, nil
	case VarPath:
		return c.compilePathValue(name)
	default:
		return Expr{}, &TypeError{Msg: "unknown variable kind"}
	}
}

func (c *TranslatorContext) compilePathValue(name string) (Expr, error) {
	p, ok := c.PathExprs[name]
	if !ok {
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown path variable %q", name)}
	}
	if p.CTEName != "" {
		sql := fmt.Sprintf("json_object('nodes',json_array(%s.id,%s.id),'length',%s.depth)", p.SourceAlias, p.TargetAlias, p.CTEName)
		return Expr{SQL: sql}, nil
	}
	var edgeParts []string
	for _, alias := range p.EdgeAliases {
		edgeParts = append(edgeParts, fmt.Sprintf("json_object('id',%[1]s.id,'type',%[1]s.type,'source_id',%[1]s.source_id,'target_id',%[1]s.target_id,'properties',%[1]s.properties)", alias))
	}
	sql := fmt.Sprintf("json_object('nodes',json_array(%s.id,%s.id),'edges',json_array(%s),'length',%d)",
		p.SourceAlias, p.TargetAlias, strings.Join(edgeParts, ","), len(p.EdgeAliases))
	return Expr{SQL: sql}, nil
}

func (c *TranslatorContext) compilePathRef(n *cypher.PathExpr, pos Position) (Expr, error) {
	return c.compilePathValue(n.Name)
}

// resolvePropertyPath walks a left-nested PropertyExpr chain down to its
// root variable, accumulating a JSON pointer path ($.a.b.c).
func resolvePropertyPath(e cypher.Expression) (root *cypher.VariableExpr, path string, ok bool) {
	switch n := e.(type) {
	case *cypher.VariableExpr:
		return n, "", true
	case *cypher.PropertyExpr:
		r, p, ok := resolvePropertyPath(n.Target)
		if !ok {
			return nil, "", false
		}
		return r, p + "." + n.Property, true
	default:
		return nil, "", false
	}
}

func (c *TranslatorContext) compileProperty(n *cypher.PropertyExpr, pos Position) (Expr, error) {
	root, path, ok := resolvePropertyPath(n)
	if !ok {
		return Expr{}, &UnsupportedFeatureError{Msg: "property access target is not a simple variable chain"}
	}
	v, ok := c.Variables[root.Name]
	if !ok {
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown variable %q", root.Name)}
	}
	if v.Kind == VarPath {
		return Expr{}, &TypeError{Msg: "paths have no properties"}
	}
	jsonPath := "'$" + path + "'"
	switch pos {
	case PosValue:
		return Expr{SQL: fmt.Sprintf("%s.properties -> %s", v.Alias, jsonPath)}, nil
	default:
		return Expr{SQL: fmt.Sprintf("json_extract(%s.properties, %s)", v.Alias, jsonPath)}, nil
	}
}

func (c *TranslatorContext) compileBinary(n *cypher.BinaryExpr, pos Position) (Expr, error) {
	switch n.Op {
	case cypher.OpAnd, cypher.OpOr, cypher.OpXor:
		l, err := c.CompileExpr(n.Left, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		r, err := c.CompileExpr(n.Right, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		sqlOp := map[cypher.BinaryOp]string{cypher.OpAnd: "AND", cypher.OpOr: "OR"}[n.Op]
		params := mergeParams(l, r)
		if n.Op == cypher.OpXor {
			return Expr{SQL: fmt.Sprintf("((%s) IS NOT (%s))", l.SQL, r.SQL), Params: params}, nil
		}
		return Expr{SQL: fmt.Sprintf("(%s %s %s)", l.SQL, sqlOp, r.SQL), Params: params}, nil
	}

	if n.Op == cypher.OpAdd {
		if isListLike(n.Left) && isListLike(n.Right) {
			l, err := c.CompileExpr(n.Left, PosScalar)
			if err != nil {
				return Expr{}, err
			}
			r, err := c.CompileExpr(n.Right, PosScalar)
			if err != nil {
				return Expr{}, err
			}
			sql := fmt.Sprintf("(SELECT json_group_array(value) FROM (SELECT value FROM json_each(%s) UNION ALL SELECT value FROM json_each(%s)))", l.SQL, r.SQL)
			return Expr{SQL: sql, Params: mergeParams(l, r)}, nil
		}
	}

	l, err := c.CompileExpr(n.Left, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	r, err := c.CompileExpr(n.Right, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	params := mergeParams(l, r)
	ops := map[cypher.BinaryOp]string{
		cypher.OpAdd: "+", cypher.OpSub: "-", cypher.OpMul: "*",
		cypher.OpDiv: "/", cypher.OpMod: "%",
	}
	if n.Op == cypher.OpPow {
		return Expr{SQL: fmt.Sprintf("pow(%s, %s)", l.SQL, r.SQL), Params: params}, nil
	}
	op, ok := ops[n.Op]
	if !ok {
		return Expr{}, &UnsupportedFeatureError{Msg: "unsupported binary operator"}
	}
	return Expr{SQL: fmt.Sprintf("(%s %s %s)", l.SQL, op, r.SQL), Params: params}, nil
}

// mergeParams concatenates each fragment's Params in the order the
// fragments' SQL text appears, so a combinator's result carries every
// bound value positioned to match its placeholder in the assembled text.
func mergeParams(exprs ...Expr) []any {
	var params []any
	for _, e := range exprs {
		params = append(params, e.Params...)
	}
	return params
}

// repeatParams repeats p n times, for templates that splice the same
// compiled fragment into the SQL text more than once (each splice needs
// its own copy of the bound values behind that fragment's placeholders).
func repeatParams(p []any, n int) []any {
	if len(p) == 0 {
		return nil
	}
	var out []any
	for i := 0; i < n; i++ {
		out = append(out, p...)
	}
	return out
}

func isListLike(e cypher.Expression) bool {
	switch e.(type) {
	case *cypher.ListExpr, *cypher.ListComprehension:
		return true
	default:
		return false
	}
}

func (c *TranslatorContext) compileUnary(n *cypher.UnaryExpr, pos Position) (Expr, error) {
	operand, err := c.CompileExpr(n.Operand, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	switch n.Op {
	case cypher.UnaryNeg:
		return Expr{SQL: fmt.Sprintf("(-(%s))", operand.SQL), Params: operand.Params}, nil
	case cypher.UnaryPos:
		return operand, nil
	case cypher.UnaryNot:
		return Expr{SQL: fmt.Sprintf("(NOT (%s))", operand.SQL), Params: operand.Params}, nil
	default:
		return Expr{}, &UnsupportedFeatureError{Msg: "unsupported unary operator"}
	}
}

func (c *TranslatorContext) compileComparison(n *cypher.ComparisonExpr) (Expr, error) {
	if n.Op == cypher.CmpIsNull || n.Op == cypher.CmpIsNotNull {
		l, err := c.CompileExpr(n.Left, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		if n.Op == cypher.CmpIsNull {
			return Expr{SQL: fmt.Sprintf("(%s IS NULL)", l.SQL), Params: l.Params}, nil
		}
		return Expr{SQL: fmt.Sprintf("(%s IS NOT NULL)", l.SQL), Params: l.Params}, nil
	}
	l, err := c.CompileExpr(n.Left, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	r, err := c.CompileExpr(n.Right, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	params := mergeParams(l, r)
	switch n.Op {
	case cypher.CmpContains:
		return Expr{SQL: fmt.Sprintf("(%s LIKE '%%' || %s || '%%')", l.SQL, r.SQL), Params: params}, nil
	case cypher.CmpStartsWith:
		return Expr{SQL: fmt.Sprintf("(%s LIKE %s || '%%')", l.SQL, r.SQL), Params: params}, nil
	case cypher.CmpEndsWith:
		return Expr{SQL: fmt.Sprintf("(%s LIKE '%%' || %s)", l.SQL, r.SQL), Params: params}, nil
	}
	ops := map[cypher.CompareOp]string{
		cypher.CmpEq: "=", cypher.CmpNeq: "<>", cypher.CmpLt: "<",
		cypher.CmpGt: ">", cypher.CmpLtEq: "<=", cypher.CmpGtEq: ">=",
	}
	op, ok := ops[n.Op]
	if !ok {
		return Expr{}, &UnsupportedFeatureError{Msg: "unsupported comparison operator"}
	}
	return Expr{SQL: fmt.Sprintf("(%s %s %s)", l.SQL, op, r.SQL), Params: params}, nil
}

func (c *TranslatorContext) compileIn(n *cypher.InExpr) (Expr, error) {
	l, err := c.CompileExpr(n.Left, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	if list, ok := n.Right.(*cypher.ListExpr); ok {
		if len(list.Items) == 0 {
			return Expr{SQL: "1=0"}, nil
		}
		parts := make([]string, 0, len(list.Items))
		params := append([]any{}, l.Params...)
		for _, item := range list.Items {
			ie, err := c.CompileExpr(item, PosScalar)
			if err != nil {
				return Expr{}, err
			}
			parts = append(parts, ie.SQL)
			params = append(params, ie.Params...)
		}
		return Expr{SQL: fmt.Sprintf("(%s IN (%s))", l.SQL, strings.Join(parts, ", ")), Params: params}, nil
	}
	r, err := c.CompileExpr(n.Right, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	return Expr{SQL: fmt.Sprintf("(%s IN (SELECT value FROM json_each(%s)))", l.SQL, r.SQL), Params: mergeParams(l, r)}, nil
}

func (c *TranslatorContext) compileCase(n *cypher.CaseExpr, pos Position) (Expr, error) {
	var b strings.Builder
	var params []any
	b.WriteString("CASE")
	if n.Input != nil {
		e, err := c.CompileExpr(n.Input, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		b.WriteString(" " + e.SQL)
		params = append(params, e.Params...)
	}
	for _, w := range n.Whens {
		when, err := c.CompileExpr(w.When, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		then, err := c.CompileExpr(w.Then, pos)
		if err != nil {
			return Expr{}, err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", when.SQL, then.SQL)
		params = append(params, when.Params...)
		params = append(params, then.Params...)
	}
	if n.Else != nil {
		els, err := c.CompileExpr(n.Else, pos)
		if err != nil {
			return Expr{}, err
		}
		b.WriteString(" ELSE " + els.SQL)
		params = append(params, els.Params...)
	}
	b.WriteString(" END")
	return Expr{SQL: b.String(), Params: params}, nil
}

func (c *TranslatorContext) compileObject(n *cypher.ObjectExpr) (Expr, error) {
	var b strings.Builder
	var params []any
	b.WriteString("json_object(")
	for i, entry := range n.Entries {
		if i > 0 {
			b.WriteString(", ")
		}
		val, err := c.CompileExpr(entry.Value, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		fmt.Fprintf(&b, "%s, %s", pushParam(&params, entry.Key), val.SQL)
		params = append(params, val.Params...)
	}
	b.WriteString(")")
	return Expr{SQL: b.String(), Params: params}, nil
}

func (c *TranslatorContext) compileList(n *cypher.ListExpr, pos Position) (Expr, error) {
	var b strings.Builder
	var params []any
	b.WriteString("json_array(")
	for i, item := range n.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		e, err := c.CompileExpr(item, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		b.WriteString(e.SQL)
		params = append(params, e.Params...)
	}
	b.WriteString(")")
	return Expr{SQL: b.String(), Params: params}, nil
}

// compileListComprehension implements [x IN L WHERE c | m] as a
// json_group_array subquery over json_each.
func (c *TranslatorContext) compileListComprehension(n *cypher.ListComprehension) (Expr, error) {
	source, err := c.CompileExpr(n.Source, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	sub := newAliasScope(c, n.Var, "__lc__")
	defer sub.release()

	mapExpr := n.Map
	if mapExpr == nil {
		mapExpr = &cypher.VariableExpr{Name: n.Var}
	}
	m, err := c.CompileExpr(mapExpr, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	var where string
	var filterParams []any
	if n.Filter != nil {
		f, err := c.CompileExpr(n.Filter, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		where = " WHERE " + f.SQL
		filterParams = f.Params
	}
	sql := fmt.Sprintf("(SELECT json_group_array(%s) FROM json_each(%s) AS __lc__%s)", m.SQL, source.SQL, where)
	params := append(append(append([]any{}, m.Params...), source.Params...), filterParams...)
	return Expr{SQL: sql, Params: params}, nil
}

func (c *TranslatorContext) compileListPredicate(n *cypher.ListPredicate) (Expr, error) {
	source, err := c.CompileExpr(n.Source, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	sub := newAliasScope(c, n.Var, "__lp__")
	defer sub.release()

	f, err := c.CompileExpr(n.Filter, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	params := mergeParams(source, f)
	switch n.Kind {
	case cypher.PredAll:
		return Expr{SQL: fmt.Sprintf("((SELECT COUNT(*) FROM json_each(%s) AS __lp__ WHERE NOT(%s)) = 0)", source.SQL, f.SQL), Params: params}, nil
	case cypher.PredAny:
		return Expr{SQL: fmt.Sprintf("(EXISTS(SELECT 1 FROM json_each(%s) AS __lp__ WHERE %s))", source.SQL, f.SQL), Params: params}, nil
	case cypher.PredNone:
		return Expr{SQL: fmt.Sprintf("(NOT EXISTS(SELECT 1 FROM json_each(%s) AS __lp__ WHERE %s))", source.SQL, f.SQL), Params: params}, nil
	case cypher.PredSingle:
		return Expr{SQL: fmt.Sprintf("((SELECT COUNT(*) FROM json_each(%s) AS __lp__ WHERE %s) = 1)", source.SQL, f.SQL), Params: params}, nil
	default:
		return Expr{}, &UnsupportedFeatureError{Msg: "unsupported list predicate"}
	}
}

// aliasScope temporarily binds a comprehension/predicate loop variable to
// a synthetic `__lc__.value` scalar so nested CompileExpr calls resolve it
// like any other variable, then restores the prior binding on release.
type aliasScope struct {
	ctx  *TranslatorContext
	name string
	prev VarInfo
	had  bool
}

func newAliasScope(ctx *TranslatorContext, name, loopAlias string) *aliasScope {
	prev, had := ctx.Variables[name]
	ctx.Variables[name] = VarInfo{Kind: VarScalar, Alias: loopAlias + ".value"}
	return &aliasScope{ctx: ctx, name: name, prev: prev, had: had}
}

func (s *aliasScope) release() {
	if s.had {
		s.ctx.Variables[s.name] = s.prev
	} else {
		delete(s.ctx.Variables, s.name)
	}
}

func (c *TranslatorContext) compileIndex(n *cypher.IndexExpr, pos Position) (Expr, error) {
	target, err := c.CompileExpr(n.Target, PosScalar)
	if err != nil {
		return Expr{}, err
	}
	if !n.IsSlice {
		idx, err := c.CompileExpr(n.Index, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json_extract(%s, '$[' || (%s) || ']')", target.SQL, idx.SQL), Params: mergeParams(target, idx)}, nil
	}
	start := "0"
	var startParams []any
	if n.Start != nil {
		s, err := c.CompileExpr(n.Start, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		start = s.SQL
		startParams = s.Params
	}
	// end defaults to re-embedding target.SQL a second time, so its
	// placeholders (if any) must be bound again here.
	end := fmt.Sprintf("json_array_length(%s)", target.SQL)
	endParams := append([]any{}, target.Params...)
	if n.End != nil {
		e, err := c.CompileExpr(n.End, PosScalar)
		if err != nil {
			return Expr{}, err
		}
		end = e.SQL
		endParams = e.Params
	}
	sql := fmt.Sprintf("(SELECT json_group_array(value) FROM json_each(%s) WHERE key >= (%s) AND key < (%s))", target.SQL, start, end)
	params := append(append(append([]any{}, target.Params...), startParams...), endParams...)
	return Expr{SQL: sql, Params: params}, nil
}

func (c *TranslatorContext) compileLabelsCheck(n *cypher.LabelsExpr) (Expr, error) {
	v, ok := n.Target.(*cypher.VariableExpr)
	if !ok {
		return Expr{}, &UnsupportedFeatureError{Msg: "label check target must be a variable"}
	}
	info, ok := c.Variables[v.Name]
	if !ok {
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown variable %q", v.Name)}
	}
	var parts []string
	var params []any
	for _, label := range n.Labels {
		parts = append(parts, fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.label) WHERE value = %s)", info.Alias, pushParam(&params, label)))
	}
	return Expr{SQL: "(" + strings.Join(parts, " AND ") + ")", Params: params}, nil
}

func (c *TranslatorContext) compileExists(n *cypher.ExistsExpr) (Expr, error) {
	sql, params, err := c.compileExistsPattern(n.Pattern)
	if err != nil {
		return Expr{}, err
	}
	return Expr{SQL: sql, Params: params}, nil
}

// compileFunctionCall dispatches the subset of Cypher's function
// library this engine implements as SQL.
func (c *TranslatorContext) compileFunctionCall(n *cypher.FunctionCallExpr, pos Position) (Expr, error) {
	name := strings.ToLower(n.Name)
	if n.CountAll {
		return Expr{SQL: "COUNT(*)"}, nil
	}
	// A path variable parses as a plain VariableExpr; the path functions
	// resolve it through PathExprs.
	if (name == "length" || name == "nodes" || name == "relationships") && len(n.Args) == 1 {
		if v, ok := n.Args[0].(*cypher.VariableExpr); ok {
			if info, bound := c.Variables[v.Name]; bound && info.Kind == VarPath {
				n = &cypher.FunctionCallExpr{Name: n.Name, Args: []cypher.Expression{&cypher.PathExpr{Name: v.Name}}}
			}
		}
	}
	arg := func(i int) (Expr, error) {
		if i >= len(n.Args) {
			return Expr{}, &TypeError{Msg: fmt.Sprintf("%s: missing argument %d", name, i)}
		}
		return c.CompileExpr(n.Args[i], PosScalar)
	}

	switch name {
	case "id":
		v, err := c.resolveAliasArg(n.Args[0])
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: v + ".id"}, nil
	case "labels":
		v, err := c.resolveAliasArg(n.Args[0])
		if err != nil {
			return Expr{}, err
		}
		if pos == PosValue {
			// Projected labels follow the label normalization: a single
			// label comes back as its bare string, any other array whole.
			return Expr{SQL: fmt.Sprintf("(CASE json_array_length(%[1]s.label) WHEN 1 THEN json_quote(json_extract(%[1]s.label,'$[0]')) ELSE json(%[1]s.label) END)", v)}, nil
		}
		return Expr{SQL: fmt.Sprintf("json(%s.label)", v)}, nil
	case "type":
		v, err := c.resolveAliasArg(n.Args[0])
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: v + ".type"}, nil
	case "properties":
		v, err := c.resolveAliasArg(n.Args[0])
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json(%s.properties)", v)}, nil
	case "keys":
		v, err := c.resolveAliasArg(n.Args[0])
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("(SELECT json_group_array(key) FROM json_each(%s.properties))", v)}, nil
	case "count", "sum", "avg", "min", "max":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		sqlName := strings.ToUpper(name)
		if n.Distinct {
			return Expr{SQL: fmt.Sprintf("%s(DISTINCT %s)", sqlName, a.SQL), Params: a.Params}, nil
		}
		return Expr{SQL: fmt.Sprintf("%s(%s)", sqlName, a.SQL), Params: a.Params}, nil
	case "collect":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		if n.Distinct {
			return Expr{SQL: fmt.Sprintf("json(group_concat(DISTINCT json_quote(%s)))", a.SQL), Params: a.Params}, nil
		}
		return Expr{SQL: fmt.Sprintf("json_group_array(%s)", a.SQL), Params: a.Params}, nil
	case "percentiledisc", "percentilecont":
		return c.compilePercentile(n, name == "percentilecont")
	case "size":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json_array_length(%s)", a.SQL), Params: a.Params}, nil
	case "head":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json_extract(%s,'$[0]')", a.SQL), Params: a.Params}, nil
	case "last":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json_extract(%s,'$[#-1]')", a.SQL), Params: a.Params}, nil
	case "tail":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("json_remove(%s,'$[0]')", a.SQL), Params: a.Params}, nil
	case "range":
		return c.compileRange(n)
	case "split":
		return c.compileSplit(n)
	case "toupper":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("upper(%s)", a.SQL), Params: a.Params}, nil
	case "tolower":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("lower(%s)", a.SQL), Params: a.Params}, nil
	case "trim":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("trim(%s)", a.SQL), Params: a.Params}, nil
	case "ltrim":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("ltrim(%s)", a.SQL), Params: a.Params}, nil
	case "rtrim":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("rtrim(%s)", a.SQL), Params: a.Params}, nil
	case "length":
		return c.compileLength(n)
	case "substring":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		start, err := arg(1)
		if err != nil {
			return Expr{}, err
		}
		if len(n.Args) > 2 {
			ln, err := arg(2)
			if err != nil {
				return Expr{}, err
			}
			return Expr{SQL: fmt.Sprintf("substr(%s, (%s)+1, %s)", a.SQL, start.SQL, ln.SQL), Params: mergeParams(a, start, ln)}, nil
		}
		return Expr{SQL: fmt.Sprintf("substr(%s, (%s)+1)", a.SQL, start.SQL), Params: mergeParams(a, start)}, nil
	case "replace":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		from, err := arg(1)
		if err != nil {
			return Expr{}, err
		}
		to, err := arg(2)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("replace(%s, %s, %s)", a.SQL, from.SQL, to.SQL), Params: mergeParams(a, from, to)}, nil
	case "left":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		ln, err := arg(1)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("substr(%s, 1, %s)", a.SQL, ln.SQL), Params: mergeParams(a, ln)}, nil
	case "right":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		ln, err := arg(1)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("substr(%s, -(%s))", a.SQL, ln.SQL), Params: mergeParams(a, ln)}, nil
	case "reverse":
		return c.compileReverse(n)
	case "tostring":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		sql := fmt.Sprintf("(CASE typeof(%[1]s) WHEN 'integer' THEN CAST(%[1]s AS TEXT) WHEN 'real' THEN CAST(%[1]s AS TEXT) WHEN 'null' THEN NULL ELSE CASE WHEN %[1]s IN (1,0) THEN %[1]s ELSE CAST(%[1]s AS TEXT) END END)", a.SQL)
		return Expr{SQL: sql, Params: repeatParams(a.Params, 6)}, nil
	case "tointeger":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		sql := fmt.Sprintf("(CASE WHEN typeof(%[1]s) IN ('integer','real') THEN CAST(%[1]s AS INTEGER) WHEN %[1]s GLOB '-[0-9]*' OR %[1]s GLOB '[0-9]*' THEN CAST(%[1]s AS INTEGER) ELSE NULL END)", a.SQL)
		return Expr{SQL: sql, Params: repeatParams(a.Params, 5)}, nil
	case "tofloat":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		sql := fmt.Sprintf("(CASE WHEN typeof(%[1]s) IN ('integer','real') THEN CAST(%[1]s AS REAL) WHEN %[1]s GLOB '-[0-9]*.[0-9]*' OR %[1]s GLOB '[0-9]*.[0-9]*' OR %[1]s GLOB '-[0-9]*' OR %[1]s GLOB '[0-9]*' THEN CAST(%[1]s AS REAL) ELSE NULL END)", a.SQL)
		return Expr{SQL: sql, Params: repeatParams(a.Params, 7)}, nil
	case "toboolean":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("(CASE lower(CAST(%[1]s AS TEXT)) WHEN 'true' THEN 1 WHEN 'false' THEN 0 ELSE NULL END)", a.SQL), Params: a.Params}, nil
	case "coalesce":
		parts := make([]string, 0, len(n.Args))
		var params []any
		for i := range n.Args {
			a, err := arg(i)
			if err != nil {
				return Expr{}, err
			}
			parts = append(parts, a.SQL)
			params = append(params, a.Params...)
		}
		return Expr{SQL: fmt.Sprintf("coalesce(%s)", strings.Join(parts, ", ")), Params: params}, nil
	case "abs":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("abs(%s)", a.SQL), Params: a.Params}, nil
	case "round":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("round(%s)", a.SQL), Params: a.Params}, nil
	case "floor":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("floor(%s)", a.SQL), Params: a.Params}, nil
	case "ceil":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("ceil(%s)", a.SQL), Params: a.Params}, nil
	case "sqrt":
		a, err := arg(0)
		if err != nil {
			return Expr{}, err
		}
		return Expr{SQL: fmt.Sprintf("sqrt(%s)", a.SQL), Params: a.Params}, nil
	case "rand":
		return Expr{SQL: "(abs(random()) / 9223372036854775808.0)"}, nil
	case "timestamp":
		return Expr{SQL: "(CAST(strftime('%s','now') AS INTEGER) * 1000)"}, nil
	case "date":
		return Expr{SQL: "date('now')"}, nil
	case "datetime":
		return Expr{SQL: "datetime('now')"}, nil
	case "nodes":
		return c.compileNodesOf(n)
	case "relationships":
		return c.compileRelationshipsOf(n)
	default:
		return Expr{}, &UnsupportedFeatureError{Msg: fmt.Sprintf("unknown function %s()", n.Name)}
	}
}

func (c *TranslatorContext) resolveAliasArg(e cypher.Expression) (string, error) {
	v, ok := e.(*cypher.VariableExpr)
	if !ok {
		return "", &TypeError{Msg: "expected a variable argument"}
	}
	info, ok := c.Variables[v.Name]
	if !ok {
		return "", &NameError{Msg: fmt.Sprintf("unknown variable %q", v.Name)}
	}
	return info.Alias, nil
}

func (c *TranslatorContext) compileLength(n *cypher.FunctionCallExpr) (Expr, error) {
	if len(n.Args) != 1 {
		return Expr{}, &TypeError{Msg: "length() takes exactly one argument"}
	}
	if v, ok := n.Args[0].(*cypher.PathExpr); ok {
		p, ok := c.PathExprs[v.Name]
		if !ok {
			return Expr{}, &NameError{Msg: fmt.Sprintf("unknown path variable %q", v.Name)}
		}
		if p.CTEName != "" {
			return Expr{SQL: p.CTEName + ".depth"}, nil
		}
		return Expr{SQL: strconv.Itoa(len(p.EdgeAliases))}, nil
	}
	a, err := c.CompileExpr(n.Args[0], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	return Expr{SQL: fmt.Sprintf("length(%s)", a.SQL), Params: a.Params}, nil
}

func (c *TranslatorContext) compileNodesOf(n *cypher.FunctionCallExpr) (Expr, error) {
	v, ok := n.Args[0].(*cypher.PathExpr)
	if !ok {
		return Expr{}, &TypeError{Msg: "nodes() expects a path variable"}
	}
	p, ok := c.PathExprs[v.Name]
	if !ok {
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown path variable %q", v.Name)}
	}
	sql := fmt.Sprintf("json_array(json_object('id',%s.id,'label',%s.label,'properties',%s.properties),json_object('id',%s.id,'label',%s.label,'properties',%s.properties))",
		p.SourceAlias, p.SourceAlias, p.SourceAlias, p.TargetAlias, p.TargetAlias, p.TargetAlias)
	return Expr{SQL: sql}, nil
}

func (c *TranslatorContext) compileRelationshipsOf(n *cypher.FunctionCallExpr) (Expr, error) {
	v, ok := n.Args[0].(*cypher.PathExpr)
	if !ok {
		return Expr{}, &TypeError{Msg: "relationships() expects a path variable"}
	}
	p, ok := c.PathExprs[v.Name]
	if !ok {
		return Expr{}, &NameError{Msg: fmt.Sprintf("unknown path variable %q", v.Name)}
	}
	if p.CTEName != "" {
		return Expr{}, &UnsupportedFeatureError{Msg: "relationships() over a variable-length path is not materialized"}
	}
	var parts []string
	for _, alias := range p.EdgeAliases {
		parts = append(parts, fmt.Sprintf("json_object('id',%[1]s.id,'type',%[1]s.type,'source_id',%[1]s.source_id,'target_id',%[1]s.target_id,'properties',%[1]s.properties)", alias))
	}
	return Expr{SQL: "json_array(" + strings.Join(parts, ",") + ")"}, nil
}

func (c *TranslatorContext) compileRange(n *cypher.FunctionCallExpr) (Expr, error) {
	if len(n.Args) < 2 {
		return Expr{}, &TypeError{Msg: "range() requires at least 2 arguments"}
	}
	start, err := c.CompileExpr(n.Args[0], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	end, err := c.CompileExpr(n.Args[1], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	step := "1"
	var stepParams []any
	if len(n.Args) > 2 {
		s, err := c.CompileExpr(n.Args[2], PosScalar)
		if err != nil {
			return Expr{}, err
		}
		step = s.SQL
		stepParams = s.Params
	}
	sql := fmt.Sprintf(`(WITH RECURSIVE __range__(v) AS (
  SELECT %s
  UNION ALL
  SELECT v + (%s) FROM __range__ WHERE v + (%s) <= (%s)
) SELECT json_group_array(v) FROM __range__)`, start.SQL, step, step, end.SQL)
	// step is spliced in twice above, so its params are bound twice.
	params := append(append(append(append([]any{}, start.Params...), stepParams...), stepParams...), end.Params...)
	return Expr{SQL: sql, Params: params}, nil
}

func (c *TranslatorContext) compileSplit(n *cypher.FunctionCallExpr) (Expr, error) {
	if len(n.Args) != 2 {
		return Expr{}, &TypeError{Msg: "split() requires exactly 2 arguments"}
	}
	str, err := c.CompileExpr(n.Args[0], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	delim, err := c.CompileExpr(n.Args[1], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	sql := fmt.Sprintf(`(WITH RECURSIVE __split__(rest, piece) AS (
  SELECT (%[1]s) || (%[2]s), NULL
  UNION ALL
  SELECT substr(rest, instr(rest, %[2]s) + length(%[2]s)),
         substr(rest, 1, instr(rest, %[2]s) - 1)
  FROM __split__ WHERE instr(rest, %[2]s) > 0
) SELECT json_group_array(piece) FROM __split__ WHERE piece IS NOT NULL)`, str.SQL, delim.SQL)
	params := append(append([]any{}, str.Params...), repeatParams(delim.Params, 5)...)
	return Expr{SQL: sql, Params: params}, nil
}

func (c *TranslatorContext) compileReverse(n *cypher.FunctionCallExpr) (Expr, error) {
	a, err := c.CompileExpr(n.Args[0], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	sql := fmt.Sprintf(`(WITH RECURSIVE __rev__(src, i, out) AS (
  SELECT (%[1]s), length(%[1]s), ''
  UNION ALL
  SELECT src, i-1, out || substr(src, i, 1) FROM __rev__ WHERE i > 0
) SELECT out FROM __rev__ ORDER BY i LIMIT 1)`, a.SQL)
	return Expr{SQL: sql, Params: repeatParams(a.Params, 2)}, nil
}

// compilePercentile implements percentileDisc/percentileCont: aggregate
// the column into a sorted JSON array once, then index into it with a
// correlated subquery.
func (c *TranslatorContext) compilePercentile(n *cypher.FunctionCallExpr, cont bool) (Expr, error) {
	if len(n.Args) != 2 {
		return Expr{}, &TypeError{Msg: "percentile functions require 2 arguments"}
	}
	x, err := c.CompileExpr(n.Args[0], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	p, err := c.CompileExpr(n.Args[1], PosScalar)
	if err != nil {
		return Expr{}, err
	}
	arr := fmt.Sprintf("(SELECT json_group_array(v) FROM (SELECT (%s) AS v ORDER BY v))", x.SQL)
	if cont {
		sql := fmt.Sprintf(`(WITH __a__ AS (SELECT %s AS arr), __n__ AS (SELECT json_array_length(arr) AS n FROM __a__)
SELECT
  json_extract((SELECT arr FROM __a__), '$[' || CAST(floor((%s)*(n-1)) AS INTEGER) || ']') * (1 - ((%s)*(n-1) - floor((%s)*(n-1))))
  + json_extract((SELECT arr FROM __a__), '$[' || CAST(ceil((%s)*(n-1)) AS INTEGER) || ']') * (((%s)*(n-1) - floor((%s)*(n-1))))
FROM __n__)`, arr, p.SQL, p.SQL, p.SQL, p.SQL, p.SQL, p.SQL)
		params := append(append([]any{}, x.Params...), repeatParams(p.Params, 6)...)
		return Expr{SQL: sql, Params: params}, nil
	}
	sql := fmt.Sprintf(`(WITH __a__ AS (SELECT %s AS arr), __n__ AS (SELECT json_array_length(arr) AS n FROM __a__)
SELECT json_extract((SELECT arr FROM __a__), '$[' || CAST(round((%s)*(n-1)) AS INTEGER) || ']') FROM __n__)`, arr, p.SQL)
	params := append(append([]any{}, x.Params...), p.Params...)
	return Expr{SQL: sql, Params: params}, nil
}
