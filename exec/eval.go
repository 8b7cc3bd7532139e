package exec

import (
	"fmt"
	"strings"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
)

// env is the in-process binding environment a multi-phase strategy
// evaluates expressions against: Cypher variable name -> Go value
// (typically a captured node/edge map, or a scalar for an UNWIND
// element), plus the query's parameter values.
type env struct {
	vars   map[string]any
	params map[string]any
}

func newEnv(params map[string]any) *env {
	return &env{vars: map[string]any{}, params: params}
}

func (e *env) child() *env {
	vars := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return &env{vars: vars, params: e.params}
}

// eval evaluates a static/bound expression to a Go value. It covers the
// subset multi-phase strategies need: literals, parameters, variables,
// property access on captured maps, object/list construction, basic
// arithmetic, AND/OR/NOT, and a few functions — enough to build property
// maps and RETURN rows without a SQL round trip. Comparison, IN, CASE and
// the other expression kinds are not evaluated here; they return an
// UnsupportedFeatureError.
func eval(e cypher.Expression, en *env) (any, error) {
	switch n := e.(type) {
	case *cypher.Literal:
		switch n.Kind {
		case cypher.LitNull:
			return nil, nil
		case cypher.LitBool:
			return n.Bool, nil
		case cypher.LitInt:
			return n.Int, nil
		case cypher.LitFloat:
			return n.Flt, nil
		case cypher.LitString:
			return n.Str, nil
		}
		return nil, &cyerr.TypeError{Msg: "unknown literal kind"}

	case *cypher.ParamExpr:
		v, ok := en.params[n.Name]
		if !ok {
			return nil, &cyerr.NameError{Msg: fmt.Sprintf("undefined parameter $%s", n.Name)}
		}
		return v, nil

	case *cypher.VariableExpr:
		v, ok := en.vars[n.Name]
		if !ok {
			return nil, &cyerr.NameError{Msg: fmt.Sprintf("undefined variable %s", n.Name)}
		}
		return v, nil

	case *cypher.PropertyExpr:
		root, err := eval(n.Target, en)
		if err != nil {
			return nil, err
		}
		return propertyOf(root, n.Property), nil

	case *cypher.ObjectExpr:
		m := map[string]any{}
		for _, entry := range n.Entries {
			v, err := eval(entry.Value, en)
			if err != nil {
				return nil, err
			}
			m[entry.Key] = v
		}
		return m, nil

	case *cypher.ListExpr:
		items := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := eval(item, en)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case *cypher.UnaryExpr:
		v, err := eval(n.Operand, en)
		if err != nil {
			return nil, err
		}
		return evalUnary(n.Op, v)

	case *cypher.BinaryExpr:
		l, err := eval(n.Left, en)
		if err != nil {
			return nil, err
		}
		r, err := eval(n.Right, en)
		if err != nil {
			return nil, err
		}
		return evalBinary(n.Op, l, r)

	case *cypher.FunctionCallExpr:
		return evalFunction(n, en)

	default:
		return nil, &cyerr.UnsupportedFeatureError{Msg: fmt.Sprintf("expression %T is not supported in this execution phase", e)}
	}
}

// propertyOf reads a property off a captured node/edge map (a formatted
// result row, decodeRow, or a node/edge this package just inserted) or a
// plain map[string]any.
func propertyOf(v any, prop string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if props, ok := m["properties"].(map[string]any); ok {
		if val, ok := props[prop]; ok {
			return val
		}
	}
	return m[prop]
}

func evalUnary(op cypher.UnaryOp, v any) (any, error) {
	switch op {
	case cypher.UnaryNot:
		b, _ := v.(bool)
		return !b, nil
	case cypher.UnaryNeg:
		switch t := v.(type) {
		case int64:
			return -t, nil
		case float64:
			return -t, nil
		}
	case cypher.UnaryPos:
		return v, nil
	}
	return nil, &cyerr.TypeError{Msg: "invalid operand for unary operator"}
}

func evalBinary(op cypher.BinaryOp, l, r any) (any, error) {
	if op == cypher.OpAnd {
		lb, _ := l.(bool)
		rb, _ := r.(bool)
		return lb && rb, nil
	}
	if op == cypher.OpOr {
		lb, _ := l.(bool)
		rb, _ := r.(bool)
		return lb || rb, nil
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		if op == cypher.OpAdd {
			if ls, ok := l.(string); ok {
				if rs, ok := r.(string); ok {
					return ls + rs, nil
				}
			}
		}
		return nil, &cyerr.TypeError{Msg: "arithmetic operands must be numeric"}
	}

	switch op {
	case cypher.OpAdd:
		return foldNumeric(l, r, lf+rf), nil
	case cypher.OpSub:
		return foldNumeric(l, r, lf-rf), nil
	case cypher.OpMul:
		return foldNumeric(l, r, lf*rf), nil
	case cypher.OpDiv:
		return lf / rf, nil
	case cypher.OpMod:
		return int64(lf) % int64(rf), nil
	case cypher.OpPow:
		result := 1.0
		for i := 0; i < int(rf); i++ {
			result *= lf
		}
		return result, nil
	}
	return nil, &cyerr.UnsupportedFeatureError{Msg: "unsupported binary operator"}
}

// foldNumeric keeps integer results as int64 when both operands were
// integers, mirroring Cypher's numeric type preservation.
func foldNumeric(l, r any, f float64) any {
	_, li := l.(int64)
	_, ri := r.(int64)
	if li && ri {
		return int64(f)
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

func evalFunction(n *cypher.FunctionCallExpr, en *env) (any, error) {
	name := strings.ToLower(n.Name)
	switch name {
	case "id":
		v, err := eval(n.Args[0], en)
		if err != nil {
			return nil, err
		}
		if m, ok := v.(map[string]any); ok {
			return m["id"], nil
		}
		return nil, &cyerr.TypeError{Msg: "id() requires a node or relationship"}
	case "labels":
		v, err := eval(n.Args[0], en)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, &cyerr.TypeError{Msg: "labels() requires a node"}
		}
		return m["label"], nil
	case "type":
		v, err := eval(n.Args[0], en)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, &cyerr.TypeError{Msg: "type() requires a relationship"}
		}
		return m["type"], nil
	case "properties":
		v, err := eval(n.Args[0], en)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, &cyerr.TypeError{Msg: "properties() requires a node or relationship"}
		}
		return m["properties"], nil
	case "coalesce":
		for _, arg := range n.Args {
			v, err := eval(arg, en)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	default:
		return nil, &cyerr.UnsupportedFeatureError{Msg: fmt.Sprintf("function %s() is not supported once a multi-phase strategy has captured its rows", n.Name)}
	}
}

// aggregateFunctionNames are the RETURN projection functions a general
// multi-phase strategy must compute over the full set of captured rows
// rather than one row at a time.
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
	case *cypher.PropertyExpr:
		return containsAggregate(n.Target)
	}
	return false
}

// evalAggregate computes one of aggregateFunctionNames over envs, the full
// set of rows a general multi-phase strategy captured before running its
// trailing clauses — the aggregate itself must see every row at once, not
// one row per call the way eval/evalFunction otherwise evaluates.
func evalAggregate(n *cypher.FunctionCallExpr, envs []*env) (any, error) {
	name := strings.ToLower(n.Name)
	if n.CountAll {
		return int64(len(envs)), nil
	}
	if len(n.Args) != 1 {
		return nil, &cyerr.TypeError{Msg: fmt.Sprintf("%s() requires exactly one argument", n.Name)}
	}

	var values []any
	for _, en := range envs {
		v, err := eval(n.Args[0], en)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}

	switch name {
	case "count":
		return int64(len(values)), nil
	case "collect":
		if values == nil {
			values = []any{}
		}
		return values, nil
	case "sum":
		var total float64
		allInt := true
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				return nil, &cyerr.TypeError{Msg: "sum() requires numeric values"}
			}
			if _, ok := v.(float64); ok {
				allInt = false
			}
			total += f
		}
		if allInt {
			return int64(total), nil
		}
		return total, nil
	case "avg":
		if len(values) == 0 {
			return nil, nil
		}
		var total float64
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				return nil, &cyerr.TypeError{Msg: "avg() requires numeric values"}
			}
			total += f
		}
		return total / float64(len(values)), nil
	case "min", "max":
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		bestF, _ := toFloat(best)
		for _, v := range values[1:] {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			if (name == "min" && f < bestF) || (name == "max" && f > bestF) {
				best, bestF = v, f
			}
		}
		return best, nil
	}
	return nil, &cyerr.UnsupportedFeatureError{Msg: fmt.Sprintf("aggregate function %s() is not supported", n.Name)}
}
