package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/idgen"
	"github.com/rlch/cyql/result"
	"github.com/rlch/cyql/store"
	"github.com/rlch/cyql/translate"
)

// runStandaloneMerge handles a MERGE with no preceding MATCH/UNWIND/WITH:
// find the pattern by its label and property filters; on a hit run ON
// MATCH SET, on a miss insert and run
// ON CREATE SET. A relationship pattern finds-or-creates both endpoints
// first, then finds-or-creates the edge between them.
func runStandaloneMerge(ctx context.Context, db store.Storage, q *cypher.Query, params map[string]any) ([]string, []map[string]any, error) {
	var mergeClause *cypher.MergeClause
	var ret *cypher.ReturnClause
	for _, c := range q.Clauses {
		switch cl := c.(type) {
		case *cypher.MergeClause:
			mergeClause = cl
		case *cypher.ReturnClause:
			ret = cl
		}
	}

	en := newEnv(params)
	created, err := mergeOne(ctx, db, mergeClause, en)
	if err != nil {
		return nil, nil, err
	}

	if ret == nil {
		return nil, nil, nil
	}
	cols, row, err := projectRow(ret.Body, en)
	if err != nil {
		return nil, nil, err
	}
	_ = created
	return cols, []map[string]any{row}, nil
}

// mergeOne finds or creates cl's pattern, runs the matching ON CREATE/ON
// MATCH SET action, and returns whether a new row was created.
func mergeOne(ctx context.Context, db store.Storage, cl *cypher.MergeClause, en *env) (bool, error) {
	el := cl.Pattern.Element

	srcID, srcMap, srcCreated, err := findOrCreateNode(ctx, db, el.Node, en)
	if err != nil {
		return false, err
	}
	if el.Node.Variable != "" {
		en.vars[el.Node.Variable] = srcMap
	}

	created := srcCreated
	var finalMap map[string]any = srcMap

	if len(el.Chain) > 0 {
		link := el.Chain[0]
		tgtID, tgtMap, tgtCreated, err := findOrCreateNode(ctx, db, link.Node, en)
		if err != nil {
			return false, err
		}
		if link.Node.Variable != "" {
			en.vars[link.Node.Variable] = tgtMap
		}
		created = created || tgtCreated

		edgeMap, edgeCreated, err := findOrCreateEdge(ctx, db, link.Edge, srcID, tgtID, en)
		if err != nil {
			return false, err
		}
		if link.Edge.Variable != "" {
			en.vars[link.Edge.Variable] = edgeMap
		}
		created = created || edgeCreated
		finalMap = edgeMap
	}

	for _, action := range cl.Actions {
		if (action.OnCreate && created) || (action.OnMatch && !created) {
			if err := applySet(ctx, db, action.Set, en); err != nil {
				return false, err
			}
		}
	}
	_ = finalMap
	return created, nil
}

// findOrCreateNode locates a node by n's label+property filters, or
// inserts a new one if none matches.
func findOrCreateNode(ctx context.Context, db store.Storage, n *cypher.NodePattern, en *env) (string, map[string]any, bool, error) {
	if n.Variable != "" {
		if v, ok := en.vars[n.Variable]; ok {
			m, ok := v.(map[string]any)
			if !ok {
				return "", nil, false, &cyerr.TypeError{Msg: fmt.Sprintf("%s is not a node", n.Variable)}
			}
			id, _ := m["id"].(string)
			return id, m, false, nil
		}
	}

	props, err := evalPropertyMap(n.Properties, en)
	if err != nil {
		return "", nil, false, err
	}

	sql := "SELECT id, label, properties FROM nodes n WHERE 1=1"
	var sqlParams []any
	for _, label := range n.Labels {
		sql += " AND EXISTS (SELECT 1 FROM json_each(n.label) WHERE value = ?)"
		sqlParams = append(sqlParams, label)
	}
	for k, v := range props {
		sql += " AND json_extract(n.properties, '$." + k + "') = ?"
		sqlParams = append(sqlParams, v)
	}

	res, err := db.Execute(ctx, sql, sqlParams)
	if err != nil {
		return "", nil, false, toStorageError(err)
	}
	if len(res.Rows) > 0 {
		row := res.Rows[0]
		id, _ := row.Get("id").(string)
		m := decodeRow(row.Values)
		return id, m, false, nil
	}

	id := idgen.New()
	labelJSON, err := translate.EncodeLabelArray(n.Labels)
	if err != nil {
		return "", nil, false, err
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", nil, false, err
	}
	if _, err := db.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
		[]any{id, labelJSON, string(propsJSON)}); err != nil {
		return "", nil, false, toStorageError(err)
	}
	labelAny := make([]any, len(n.Labels))
	for i, l := range n.Labels {
		labelAny[i] = l
	}
	m := map[string]any{"id": id, "label": translate.NormalizeLabels(labelAny), "properties": props}
	return id, m, true, nil
}

// findOrCreateEdge locates an edge of the same (source,target,type,
// properties) triple, or inserts one if none matches.
func findOrCreateEdge(ctx context.Context, db store.Storage, edge *cypher.EdgePattern, srcID, tgtID string, en *env) (map[string]any, bool, error) {
	source, target := srcID, tgtID
	if edge.Direction == cypher.DirLeft {
		source, target = tgtID, srcID
	}
	edgeType := ""
	if len(edge.Types) > 0 {
		edgeType = edge.Types[0]
	}
	props, err := evalPropertyMap(edge.Properties, en)
	if err != nil {
		return nil, false, err
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, false, err
	}

	res, err := db.Execute(ctx, "SELECT id, type, source_id, target_id, properties FROM edges WHERE type = ? AND source_id = ? AND target_id = ? AND properties = ?",
		[]any{edgeType, source, target, string(propsJSON)})
	if err != nil {
		return nil, false, toStorageError(err)
	}
	if len(res.Rows) > 0 {
		return decodeRow(res.Rows[0].Values), false, nil
	}

	id := idgen.New()
	if _, err := db.Execute(ctx, "INSERT INTO edges(id,type,source_id,target_id,properties) VALUES(?,?,?,?,?)",
		[]any{id, edgeType, source, target, string(propsJSON)}); err != nil {
		return nil, false, toStorageError(err)
	}
	return map[string]any{"id": id, "type": edgeType, "source_id": source, "target_id": target, "properties": props}, true, nil
}

// decodeRow deep-parses a raw storage row's JSON-text cells (label,
// properties) into Go values, for use as an in-process node/edge map.
func decodeRow(raw map[string]any) map[string]any {
	m := make(map[string]any, len(raw))
	for k, v := range raw {
		m[k] = result.FormatValue(v)
	}
	return m
}

// projectRow evaluates a RETURN/WITH projection body against en,
// producing one output row.
func projectRow(body *cypher.ProjectionBody, en *env) ([]string, map[string]any, error) {
	if body.Star {
		var cols []string
		row := map[string]any{}
		for name, v := range en.vars {
			cols = append(cols, name)
			row[name] = v
		}
		return cols, row, nil
	}
	cols := make([]string, 0, len(body.Items))
	row := map[string]any{}
	for _, item := range body.Items {
		v, err := eval(item.Expr, en)
		if err != nil {
			return nil, nil, err
		}
		name := item.Alias
		if name == "" {
			name = syntheticColumnName(item.Expr)
		}
		cols = append(cols, name)
		row[name] = v
	}
	return cols, row, nil
}

// projectAggregateRow is projectRow's counterpart for a RETURN body that
// contains an aggregate: non-aggregate items are read from the first
// captured row (an ungrouped aggregate collapses every row into one), and
// aggregate items are computed once over the full envs set.
func projectAggregateRow(body *cypher.ProjectionBody, envs []*env) ([]string, map[string]any, error) {
	first := newEnv(nil)
	if len(envs) > 0 {
		first = envs[0]
	}
	cols := make([]string, 0, len(body.Items))
	row := map[string]any{}
	for _, item := range body.Items {
		var v any
		var err error
		if fn, ok := item.Expr.(*cypher.FunctionCallExpr); ok && (fn.CountAll || aggregateFunctionNames[strings.ToLower(fn.Name)]) {
			v, err = evalAggregate(fn, envs)
		} else {
			v, err = eval(item.Expr, first)
		}
		if err != nil {
			return nil, nil, err
		}
		name := item.Alias
		if name == "" {
			name = syntheticColumnName(item.Expr)
		}
		cols = append(cols, name)
		row[name] = v
	}
	return cols, row, nil
}

func syntheticColumnName(e cypher.Expression) string {
	switch n := e.(type) {
	case *cypher.VariableExpr:
		return n.Name
	case *cypher.PropertyExpr:
		if root, ok := n.Target.(*cypher.VariableExpr); ok {
			return root.Name + "_" + n.Property
		}
	case *cypher.FunctionCallExpr:
		return n.Name
	}
	return "expr"
}
