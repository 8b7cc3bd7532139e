// Package translate lowers a parsed Cypher AST into an ordered list of
// parameterized SQL statements against the nodes/edges JSON-blob schema.
package translate

import (
	"fmt"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
)

// Error-taxonomy aliases so this package's call sites read naturally
// (&NameError{...}) while the concrete types live in cyerr, which keeps
// cypher/translate/exec/store free of an import cycle back through the
// repo root's errors.go.
type (
	NameError                = cyerr.NameError
	TypeError                = cyerr.TypeError
	UnsupportedFeatureError   = cyerr.UnsupportedFeatureError
	ConstraintViolationError = cyerr.ConstraintViolationError
	StorageError             = cyerr.StorageError
)

// VarKind classifies what a Cypher variable is bound to.
type VarKind int

const (
	VarNode VarKind = iota
	VarEdge
	VarPath
	// VarScalar binds a name directly to a SQL scalar expression (used for
	// list-comprehension and list-predicate loop variables), bypassing the
	// node/edge json_object materialization compileVariable otherwise does.
	VarScalar
)

// VarInfo records the SQL alias a Cypher variable resolves to.
type VarInfo struct {
	Kind  VarKind
	Alias string
}

// AliasPattern is the per-alias bookkeeping: label, property filters,
// and optionality recorded against a single pattern
// occurrence rather than scattered dynamic keys on a shared bag.
type AliasPattern struct {
	Alias      string
	Labels     []string // node label filter, or edge type filter (len<=1 typically)
	Properties *cypher.ObjectExpr
	Optional   bool
	IsEdge     bool
}

// PathInfo records a bound path variable's shape so nodes(p)/relationships(p)/
// length(p) can resolve against it later.
type PathInfo struct {
	Variable    string
	SourceAlias string
	TargetAlias string
	CTEName     string // non-empty for variable-length paths
	Fixed       bool   // true for a fixed-length chain
	EdgeAliases []string
}

// UnwindInfo is one registered UNWIND clause.
type UnwindInfo struct {
	Alias    string
	ListExpr Expr
}

// TranslatorContext accumulates the SQL fragments and alias bookkeeping
// built up while walking a query's clauses, as plain named fields rather
// than a dynamic-key map.
type TranslatorContext struct {
	Variables    map[string]VarInfo
	AliasCounter int
	ParamValues  map[string]any

	AliasPatterns map[string]*AliasPattern
	PathExprs     map[string]*PathInfo
	UnwindClauses []*UnwindInfo
	WithAliases   map[string]cypher.Expression

	// SQL assembly buffers, built up clause by clause. Each fragment
	// carries its own bound parameter values alongside its SQL text, so
	// the final Statement.Params can be assembled by walking these
	// buffers in the same order their text is written to the final
	// query, instead of accumulating a single clause-order list that
	// drifts out of sync with where its placeholders actually land.
	FromClause    Expr
	JoinClauses   []Expr
	WhereClauses  []Expr
	RecursiveCTEs []Expr

	Distinct bool
	OrderBy  []OrderFragment
	Skip     *Expr
	Limit    *Expr

	VarOrder []string // insertion order of bound variables, for RETURN *
}

// OrderFragment is one compiled ORDER BY member.
type OrderFragment struct {
	SQL    string
	Desc   bool
	Params []any
}

// Expr is a compiled expression: its SQL text plus the bound parameter
// values it references, kept together so callers never have to reconcile
// two parallel lists by hand.
type Expr struct {
	SQL    string
	Params []any
}

// NewContext returns an empty TranslatorContext seeded with the caller's
// parameter bindings.
func NewContext(paramValues map[string]any) *TranslatorContext {
	return &TranslatorContext{
		Variables:     map[string]VarInfo{},
		ParamValues:   paramValues,
		AliasPatterns: map[string]*AliasPattern{},
		PathExprs:     map[string]*PathInfo{},
		WithAliases:   map[string]cypher.Expression{},
	}
}

// freshAlias allocates the next n{i} or e{i} alias.
func (c *TranslatorContext) freshAlias(prefix string) string {
	alias := fmt.Sprintf("%s%d", prefix, c.AliasCounter)
	c.AliasCounter++
	return alias
}

// resolveOrBind returns the existing alias for a named variable, or
// allocates and records a new one.
func (c *TranslatorContext) resolveOrBind(name string, kind VarKind, prefix string) (string, bool) {
	if name == "" {
		alias := c.freshAlias(prefix)
		return alias, true
	}
	if v, ok := c.Variables[name]; ok {
		return v.Alias, false
	}
	alias := c.freshAlias(prefix)
	c.Variables[name] = VarInfo{Kind: kind, Alias: alias}
	c.VarOrder = append(c.VarOrder, name)
	return alias, true
}

// pushParam appends v to params and returns its SQL placeholder. Callers
// building a compiled fragment collect every value they bind this way
// into that fragment's own Params slice, so the value always travels
// with the placeholder that reads it.
func pushParam(params *[]any, v any) string {
	*params = append(*params, v)
	return "?"
}

func (c *TranslatorContext) addWhere(e Expr) {
	if e.SQL == "" {
		return
	}
	c.WhereClauses = append(c.WhereClauses, e)
}
