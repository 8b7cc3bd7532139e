package translate

import (
	"fmt"

	"github.com/rlch/cyql/cypher"
)

// attachVariableLengthEdge lowers a *min..max relationship hop to a
// recursive CTE shape. It returns the target node's alias (joined on the
// CTE's end_id; intermediate nodes/edges are not materialized) and the
// CTE's name (so length(p) and nodes(p) can reference it).
func (c *TranslatorContext) attachVariableLengthEdge(prevAlias string, edge *cypher.EdgePattern, targetNode *cypher.NodePattern, optional bool) (nextAlias, cteName string, err error) {
	minHops := 1
	maxHops := 10
	if edge.MinHops != nil {
		minHops = *edge.MinHops
	}
	if edge.MaxHops != nil {
		maxHops = *edge.MaxHops
	}

	cteName = c.freshAlias("path")
	srcCol, tgtCol := "source_id", "target_id"
	if edge.Direction == cypher.DirLeft {
		srcCol, tgtCol = "target_id", "source_id"
	}

	var cteParams []any
	var typeFilterBase, typeFilterRec string
	if len(edge.Types) == 1 {
		typeFilterBase = fmt.Sprintf(" AND type = %s", pushParam(&cteParams, edge.Types[0]))
	}
	maxHopsPlaceholder := pushParam(&cteParams, maxHops)
	if len(edge.Types) == 1 {
		typeFilterRec = fmt.Sprintf(" AND type = %s", pushParam(&cteParams, edge.Types[0]))
	}

	cte := fmt.Sprintf(`%s(start_id,end_id,depth) AS (
  SELECT %s,%s,1 FROM edges WHERE 1=1%s
  UNION ALL
  SELECT p.start_id,e.%s,p.depth+1
  FROM %s p JOIN edges e ON p.end_id=e.%s
  WHERE p.depth < %s%s
)`, cteName, srcCol, tgtCol, typeFilterBase, tgtCol, cteName, srcCol, maxHopsPlaceholder, typeFilterRec)

	c.RecursiveCTEs = append(c.RecursiveCTEs, Expr{SQL: cte, Params: cteParams})

	targetAlias, targetNew, err := c.bindNode(targetNode)
	if err != nil {
		return "", "", err
	}

	joinKind := "JOIN"
	if optional {
		joinKind = "LEFT JOIN"
	}
	c.JoinClauses = append(c.JoinClauses,
		Expr{SQL: fmt.Sprintf("%s %s ON %s.start_id = %s.id", joinKind, cteName, cteName, prevAlias)})
	if targetNew {
		c.JoinClauses = append(c.JoinClauses,
			Expr{SQL: fmt.Sprintf("%s nodes %s ON %s.end_id = %s.id", joinKind, targetAlias, cteName, targetAlias)})
		if err := c.attachNodeFilters(targetAlias, targetNode, optional, false); err != nil {
			return "", "", err
		}
	} else {
		c.appendToLastJoinON(Expr{SQL: fmt.Sprintf("%s.end_id = %s.id", cteName, targetAlias)})
	}
	var minParams []any
	c.addWhere(Expr{SQL: fmt.Sprintf("%s.depth >= %s", cteName, pushParam(&minParams, minHops)), Params: minParams})

	return targetAlias, cteName, nil
}
