package translate

import (
	"fmt"
	"strings"

	"github.com/rlch/cyql/cypher"
)

// registerPattern assigns aliases to every node/edge occurrence in a
// pattern and appends the corresponding FROM/JOIN fragments and filter
// predicates.
func (c *TranslatorContext) registerPattern(pattern *cypher.Pattern, optional bool) error {
	for _, part := range pattern.Parts {
		if err := c.registerPatternPart(part, optional); err != nil {
			return err
		}
	}
	return nil
}

func (c *TranslatorContext) registerPatternPart(part *cypher.PatternPart, optional bool) error {
	el := part.Element
	firstAlias, firstNew, err := c.bindNode(el.Node)
	if err != nil {
		return err
	}
	if firstNew {
		c.attachNodeSource(firstAlias, el.Node, optional)
	} else if err := c.attachNodeFilters(firstAlias, el.Node, optional, true); err != nil {
		return err
	}

	prevAlias := firstAlias
	var edgeAliases []string
	cteName := ""
	for _, link := range el.Chain {
		edgeAlias, targetAlias, isVarLength, err := c.attachChainLink(prevAlias, link, optional)
		if err != nil {
			return err
		}
		if isVarLength {
			cteName = edgeAlias
		} else {
			edgeAliases = append(edgeAliases, edgeAlias)
		}
		prevAlias = targetAlias
	}

	if part.Variable != "" {
		c.PathExprs[part.Variable] = &PathInfo{
			Variable:    part.Variable,
			SourceAlias: firstAlias,
			TargetAlias: prevAlias,
			CTEName:     cteName,
			Fixed:       cteName == "",
			EdgeAliases: edgeAliases,
		}
		c.Variables[part.Variable] = VarInfo{Kind: VarPath, Alias: ""}
	}
	return nil
}

// bindNode resolves or allocates an alias for a node pattern, returning
// whether this occurrence is the one introducing the alias.
func (c *TranslatorContext) bindNode(n *cypher.NodePattern) (alias string, isNew bool, err error) {
	if n.Variable != "" {
		if v, ok := c.Variables[n.Variable]; ok {
			return v.Alias, false, nil
		}
	}
	alias = c.freshAlias("n")
	if n.Variable != "" {
		c.Variables[n.Variable] = VarInfo{Kind: VarNode, Alias: alias}
		c.VarOrder = append(c.VarOrder, n.Variable)
	}
	c.AliasPatterns[alias] = &AliasPattern{Alias: alias, Labels: n.Labels, Properties: asObject(n.Properties)}
	return alias, true, nil
}

func asObject(e cypher.Expression) *cypher.ObjectExpr {
	if o, ok := e.(*cypher.ObjectExpr); ok {
		return o
	}
	return nil
}

// attachNodeSource wires a freshly-bound node alias into FROM (first
// pattern occurrence) or a join-less LEFT JOIN (subsequent/optional
// standalone node patterns with no edges).
func (c *TranslatorContext) attachNodeSource(alias string, n *cypher.NodePattern, optional bool) {
	if c.FromClause.SQL == "" && !optional {
		c.FromClause = Expr{SQL: fmt.Sprintf("nodes %s", alias)}
	} else {
		join := fmt.Sprintf("LEFT JOIN nodes %s ON 1=1", alias)
		c.JoinClauses = append(c.JoinClauses, Expr{SQL: join})
	}
	c.attachNodeFilters(alias, n, optional, false)
}

// attachNodeFilters compiles the label/property filters for a node
// pattern occurrence. For an optional pattern the filters move into the
// preceding JOIN's ON clause (so outer-joined NULL rows survive); for a
// required pattern they go to WHERE.
func (c *TranslatorContext) attachNodeFilters(alias string, n *cypher.NodePattern, optional, alreadyBound bool) error {
	var preds []string
	var predParams []any
	for _, label := range n.Labels {
		preds = append(preds, fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.label) WHERE value = %s)", alias, pushParam(&predParams, label)))
	}
	if obj := asObject(n.Properties); obj != nil {
		for _, entry := range obj.Entries {
			val, err := c.CompileExpr(entry.Value, PosScalar)
			if err != nil {
				return err
			}
			preds = append(preds, fmt.Sprintf("json_extract(%s.properties,'$.%s') = %s", alias, entry.Key, val.SQL))
			predParams = append(predParams, val.Params...)
		}
	}
	if len(preds) == 0 {
		return nil
	}
	joined := strings.Join(preds, " AND ")
	e := Expr{SQL: joined, Params: predParams}
	if optional && !alreadyBound {
		c.appendToLastJoinON(e)
		return nil
	}
	c.addWhere(e)
	return nil
}

// appendToLastJoinON folds an extra predicate into the most recently
// appended JOIN's ON clause.
func (c *TranslatorContext) appendToLastJoinON(pred Expr) {
	if len(c.JoinClauses) == 0 {
		c.addWhere(pred)
		return
	}
	i := len(c.JoinClauses) - 1
	c.JoinClauses[i] = Expr{
		SQL:    c.JoinClauses[i].SQL + " AND " + pred.SQL,
		Params: append(append([]any{}, c.JoinClauses[i].Params...), pred.Params...),
	}
}

// attachChainLink wires one -[edge]-> node hop onto the previous alias.
// Returns the edge alias (or CTE name for variable-length hops), the new
// current alias, and whether this hop was variable-length.
func (c *TranslatorContext) attachChainLink(prevAlias string, link cypher.PatternChainLink, optional bool) (edgeAlias, nextAlias string, varLength bool, err error) {
	edge := link.Edge
	if edge.Variable_ {
		nextAlias, cteName, err := c.attachVariableLengthEdge(prevAlias, edge, link.Node, optional)
		return cteName, nextAlias, true, err
	}

	eAlias := c.freshAlias("e")
	if edge.Variable != "" {
		c.Variables[edge.Variable] = VarInfo{Kind: VarEdge, Alias: eAlias}
		c.VarOrder = append(c.VarOrder, edge.Variable)
	}
	c.AliasPatterns[eAlias] = &AliasPattern{Alias: eAlias, Labels: edge.Types, Properties: asObject(edge.Properties), IsEdge: true}

	tgtAlias, tgtNew, err := c.bindNode(link.Node)
	if err != nil {
		return "", "", false, err
	}

	srcCol, tgtCol := "source_id", "target_id"
	if edge.Direction == cypher.DirLeft {
		srcCol, tgtCol = "target_id", "source_id"
	}

	joinKind := "JOIN"
	if optional {
		joinKind = "LEFT JOIN"
	}
	var edgeParams []any
	edgeJoin := fmt.Sprintf("%s edges %s ON %s.%s = %s.id", joinKind, eAlias, eAlias, srcCol, prevAlias)
	if len(edge.Types) == 1 {
		edgeJoin += fmt.Sprintf(" AND %s.type = %s", eAlias, pushParam(&edgeParams, edge.Types[0]))
	}
	if obj := asObject(edge.Properties); obj != nil {
		for _, entry := range obj.Entries {
			val, err := c.CompileExpr(entry.Value, PosScalar)
			if err != nil {
				return "", "", false, err
			}
			edgeJoin += fmt.Sprintf(" AND json_extract(%s.properties,'$.%s') = %s", eAlias, entry.Key, val.SQL)
			edgeParams = append(edgeParams, val.Params...)
		}
	}
	c.JoinClauses = append(c.JoinClauses, Expr{SQL: edgeJoin, Params: edgeParams})

	if tgtNew {
		nodeJoin := fmt.Sprintf("%s nodes %s ON %s.%s = %s.id", joinKind, tgtAlias, eAlias, tgtCol, tgtAlias)
		c.JoinClauses = append(c.JoinClauses, Expr{SQL: nodeJoin})
		if err := c.attachNodeFilters(tgtAlias, link.Node, optional, false); err != nil {
			return "", "", false, err
		}
	} else {
		c.appendToLastJoinON(Expr{SQL: fmt.Sprintf("%s.%s = %s.id", eAlias, tgtCol, tgtAlias)})
	}

	return eAlias, tgtAlias, false, nil
}

// compileExistsPattern lowers EXISTS{pattern} to a correlated EXISTS
// subquery, supporting the common one-hop case.
func (c *TranslatorContext) compileExistsPattern(pattern *cypher.Pattern) (string, []any, error) {
	if len(pattern.Parts) != 1 {
		return "", nil, &UnsupportedFeatureError{Msg: "EXISTS supports a single pattern part"}
	}
	el := pattern.Parts[0].Element
	if len(el.Chain) != 1 {
		return "", nil, &UnsupportedFeatureError{Msg: "EXISTS supports a single-hop relationship pattern"}
	}
	srcAlias, err := c.resolveExistingNodeAlias(el.Node)
	if err != nil {
		return "", nil, err
	}
	link := el.Chain[0]
	edge := link.Edge
	srcCol, tgtCol := "source_id", "target_id"
	if edge.Direction == cypher.DirLeft {
		srcCol, tgtCol = "target_id", "source_id"
	}
	var params []any
	sql := fmt.Sprintf("EXISTS(SELECT 1 FROM edges __ex__ WHERE __ex__.%s = %s.id", srcCol, srcAlias)
	if len(edge.Types) == 1 {
		sql += fmt.Sprintf(" AND __ex__.type = %s", pushParam(&params, edge.Types[0]))
	}
	if len(link.Node.Labels) > 0 {
		sql += " AND EXISTS(SELECT 1 FROM nodes __tgt__ WHERE __tgt__.id = __ex__." + tgtCol
		for _, label := range link.Node.Labels {
			sql += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM json_each(__tgt__.label) WHERE value = %s)", pushParam(&params, label))
		}
		sql += ")"
	}
	sql += ")"
	return sql, params, nil
}

func (c *TranslatorContext) resolveExistingNodeAlias(n *cypher.NodePattern) (string, error) {
	if n.Variable == "" {
		return "", &UnsupportedFeatureError{Msg: "EXISTS pattern source must reference a bound variable"}
	}
	v, ok := c.Variables[n.Variable]
	if !ok {
		return "", &NameError{Msg: fmt.Sprintf("unknown variable %q in EXISTS pattern", n.Variable)}
	}
	return v.Alias, nil
}
