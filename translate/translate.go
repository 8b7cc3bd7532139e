package translate

import (
	"encoding/json"
	"fmt"

	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/idgen"
)

// compileCreate lowers a CREATE pattern to INSERT statements. Property
// maps must be statically evaluable (literals, parameters, and nested
// literal structures) since each INSERT's values are bound directly
// rather than projected through a SELECT.
func (c *TranslatorContext) compileCreate(pattern *cypher.Pattern) ([]Statement, error) {
	var stmts []Statement
	localIDs := map[string]string{}

	for _, part := range pattern.Parts {
		el := part.Element
		srcID, err := c.materializeCreateNode(el.Node, localIDs, &stmts)
		if err != nil {
			return nil, err
		}
		prevID := srcID
		for _, link := range el.Chain {
			tgtID, err := c.materializeCreateNode(link.Node, localIDs, &stmts)
			if err != nil {
				return nil, err
			}
			edgeID := idgen.New()
			edgeType := ""
			if len(link.Edge.Types) > 0 {
				edgeType = link.Edge.Types[0]
			}
			props, err := c.evalPropertiesJSON(link.Edge.Properties)
			if err != nil {
				return nil, err
			}
			source, target := prevID, tgtID
			if link.Edge.Direction == cypher.DirLeft {
				source, target = tgtID, prevID
			}
			stmts = append(stmts, Statement{
				SQL:    "INSERT INTO edges(id,type,source_id,target_id,properties) VALUES(?,?,?,?,?)",
				Params: []any{edgeID, edgeType, source, target, props},
			})
			prevID = tgtID
		}
	}
	return stmts, nil
}

// materializeCreateNode emits an INSERT for a node pattern the first time
// its variable is seen within this CREATE, reusing the generated id for
// later references to the same variable within the same pattern.
func (c *TranslatorContext) materializeCreateNode(n *cypher.NodePattern, localIDs map[string]string, stmts *[]Statement) (string, error) {
	if n.Variable != "" {
		if id, ok := localIDs[n.Variable]; ok {
			return id, nil
		}
	}
	id := idgen.New()
	labelJSON, err := EncodeLabelArray(n.Labels)
	if err != nil {
		return "", err
	}
	propsJSON, err := c.evalPropertiesJSON(n.Properties)
	if err != nil {
		return "", err
	}
	*stmts = append(*stmts, Statement{
		SQL:    "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
		Params: []any{id, labelJSON, propsJSON},
	})
	if n.Variable != "" {
		localIDs[n.Variable] = id
	}
	return id, nil
}

// evalPropertiesJSON statically evaluates a property map expression (nil,
// an ObjectExpr, or a ParamExpr resolving to a map) to its JSON text.
func (c *TranslatorContext) evalPropertiesJSON(e cypher.Expression) (string, error) {
	if e == nil {
		return "{}", nil
	}
	v, err := c.evalStatic(e)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// evalStatic evaluates an expression to a Go value at translate time.
// Only literals, parameters, and literal list/object structures are
// supported — CREATE/MERGE property maps must be statically known.
func (c *TranslatorContext) evalStatic(e cypher.Expression) (any, error) {
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
		return nil, &TypeError{Msg: "unknown literal kind"}
	case *cypher.ParamExpr:
		v, ok := c.ParamValues[n.Name]
		if !ok {
			return nil, &NameError{Msg: fmt.Sprintf("undefined parameter $%s", n.Name)}
		}
		return v, nil
	case *cypher.ObjectExpr:
		m := map[string]any{}
		for _, entry := range n.Entries {
			v, err := c.evalStatic(entry.Value)
			if err != nil {
				return nil, err
			}
			m[entry.Key] = v
		}
		return m, nil
	case *cypher.ListExpr:
		items := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := c.evalStatic(item)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case *cypher.UnaryExpr:
		if n.Op == cypher.UnaryNeg {
			v, err := c.evalStatic(n.Operand)
			if err != nil {
				return nil, err
			}
			switch t := v.(type) {
			case int64:
				return -t, nil
			case float64:
				return -t, nil
			}
		}
		return nil, &UnsupportedFeatureError{Msg: "property value must be a literal or parameter"}
	default:
		return nil, &UnsupportedFeatureError{Msg: "property value must be a literal or parameter"}
	}
}

// compileCall lowers the two built-in procedures this engine recognizes
// (db.labels and db.relationshipTypes). Any other procedure name is a
// structured UnsupportedFeatureError.
func (c *TranslatorContext) compileCall(cl *cypher.CallClause) (*Statement, []string, error) {
	var sql, defaultCol string
	switch cl.Procedure {
	case "db.labels":
		sql = "SELECT DISTINCT json_each.value AS label FROM nodes, json_each(nodes.label) WHERE json_each.value IS NOT NULL AND json_each.value <> ''"
		defaultCol = "label"
	case "db.relationshipTypes":
		sql = "SELECT DISTINCT type FROM edges WHERE type IS NOT NULL AND type <> ''"
		defaultCol = "type"
	default:
		return nil, nil, &UnsupportedFeatureError{Msg: fmt.Sprintf("unsupported procedure %s()", cl.Procedure)}
	}

	col := defaultCol
	if len(cl.Yield) == 1 {
		col = cl.Yield[0].Name
		alias := col
		if cl.Yield[0].Alias != "" {
			alias = cl.Yield[0].Alias
		}
		sql = fmt.Sprintf("SELECT %s AS %s FROM (%s)", quoteIdent(defaultCol), quoteIdent(alias), sql)
		col = alias
	}

	var params []any
	if cl.Where != nil {
		whereCtx := NewContext(c.ParamValues)
		whereCtx.Variables[col] = VarInfo{Kind: VarScalar, Alias: quoteIdent(col)}
		w, err := whereCtx.CompileExpr(cl.Where, PosScalar)
		if err != nil {
			return nil, nil, err
		}
		sql = fmt.Sprintf("SELECT * FROM (%s) WHERE %s", sql, w.SQL)
		params = w.Params
	}

	return &Statement{SQL: sql, Params: params}, []string{col}, nil
}
