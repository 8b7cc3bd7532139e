package exec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rlch/cyql/cyerr"
	"github.com/rlch/cyql/cypher"
	"github.com/rlch/cyql/idgen"
	"github.com/rlch/cyql/store"
	"github.com/rlch/cyql/translate"
)

// createPattern executes a CREATE pattern against db using the bindings
// already present in en (for a `(a)-[:T]->(b)` where a was matched
// earlier, its id is reused rather than re-inserted), recording every
// newly created node/edge back into en under its variable name.
func createPattern(ctx context.Context, db store.Storage, pattern *cypher.Pattern, en *env) error {
	for _, part := range pattern.Parts {
		el := part.Element
		srcID, srcMap, err := materializeNode(ctx, db, el.Node, en)
		if err != nil {
			return err
		}
		prevID, prevMap := srcID, srcMap
		for _, link := range el.Chain {
			tgtID, tgtMap, err := materializeNode(ctx, db, link.Node, en)
			if err != nil {
				return err
			}
			source, target := prevID, tgtID
			if link.Edge.Direction == cypher.DirLeft {
				source, target = tgtID, prevID
			}
			props, err := evalPropertyMap(link.Edge.Properties, en)
			if err != nil {
				return err
			}
			edgeType := ""
			if len(link.Edge.Types) > 0 {
				edgeType = link.Edge.Types[0]
			}
			edgeID := idgen.New()
			propsJSON, err := json.Marshal(props)
			if err != nil {
				return err
			}
			if _, err := db.Execute(ctx, "INSERT INTO edges(id,type,source_id,target_id,properties) VALUES(?,?,?,?,?)",
				[]any{edgeID, edgeType, source, target, string(propsJSON)}); err != nil {
				return toStorageError(err)
			}
			edgeMap := map[string]any{"id": edgeID, "type": edgeType, "source_id": source, "target_id": target, "properties": props}
			if link.Edge.Variable != "" {
				en.vars[link.Edge.Variable] = edgeMap
			}
			prevID, prevMap = tgtID, tgtMap
			_ = prevMap
		}
	}
	return nil
}

// materializeNode inserts a fresh node unless its variable is already
// bound in en (an already-matched or already-created alias), in which
// case its existing id/map is reused.
func materializeNode(ctx context.Context, db store.Storage, n *cypher.NodePattern, en *env) (string, map[string]any, error) {
	if n.Variable != "" {
		if v, ok := en.vars[n.Variable]; ok {
			if m, ok := v.(map[string]any); ok {
				id, _ := m["id"].(string)
				return id, m, nil
			}
		}
	}
	props, err := evalPropertyMap(n.Properties, en)
	if err != nil {
		return "", nil, err
	}
	id := idgen.New()
	labelJSON, err := translate.EncodeLabelArray(n.Labels)
	if err != nil {
		return "", nil, err
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", nil, err
	}
	if _, err := db.Execute(ctx, "INSERT INTO nodes(id,label,properties) VALUES(?,?,?)",
		[]any{id, labelJSON, string(propsJSON)}); err != nil {
		return "", nil, toStorageError(err)
	}
	labelAny := make([]any, len(n.Labels))
	for i, l := range n.Labels {
		labelAny[i] = l
	}
	m := map[string]any{"id": id, "label": translate.NormalizeLabels(labelAny), "properties": props}
	if n.Variable != "" {
		en.vars[n.Variable] = m
	}
	return id, m, nil
}

func evalPropertyMap(e cypher.Expression, en *env) (map[string]any, error) {
	if e == nil {
		return map[string]any{}, nil
	}
	v, err := eval(e, en)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &cyerr.TypeError{Msg: "property map expression did not evaluate to an object"}
	}
	return m, nil
}

// applySet applies a SET clause's items against en, writing through to
// the backing table for each item's target variable.
func applySet(ctx context.Context, db store.Storage, cl *cypher.SetClause, en *env) error {
	for _, item := range cl.Items {
		if err := applySetItem(ctx, db, item, en); err != nil {
			return err
		}
	}
	return nil
}

func applySetItem(ctx context.Context, db store.Storage, item *cypher.SetItem, en *env) error {
	target, ok := en.vars[item.Variable]
	if !ok {
		return &cyerr.NameError{Msg: fmt.Sprintf("undefined variable %s in SET", item.Variable)}
	}
	m, ok := target.(map[string]any)
	if !ok {
		return &cyerr.TypeError{Msg: fmt.Sprintf("%s is not a node or relationship", item.Variable)}
	}
	id, _ := m["id"].(string)
	table := tableFor(m)
	props, _ := m["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}

	switch item.Kind {
	case cypher.SetProperty:
		val, err := eval(item.Expr, en)
		if err != nil {
			return err
		}
		if val == nil {
			delete(props, item.Property)
		} else {
			props[item.Property] = val
		}

	case cypher.SetVariable:
		val, err := eval(item.Expr, en)
		if err != nil {
			return err
		}
		newProps, ok := val.(map[string]any)
		if !ok {
			return &cyerr.TypeError{Msg: "SET v = expr requires expr to be an object"}
		}
		if item.Merge {
			for k, v := range newProps {
				if v == nil {
					delete(props, k)
				} else {
					props[k] = v
				}
			}
		} else {
			props = map[string]any{}
			for k, v := range newProps {
				if v != nil {
					props[k] = v
				}
			}
		}

	case cypher.SetLabels:
		existing := labelsOf(m)
		updated := translate.UnionLabels(existing, item.Labels)
		labelAny := make([]any, len(updated))
		for i, l := range updated {
			labelAny[i] = l
		}
		m["label"] = translate.NormalizeLabels(labelAny)
		labelJSON, err := translate.EncodeLabelArray(updated)
		if err != nil {
			return err
		}
		if _, err := db.Execute(ctx, fmt.Sprintf("UPDATE %s SET label = ? WHERE id = ?", table), []any{labelJSON, id}); err != nil {
			return toStorageError(err)
		}
		return nil
	}

	m["properties"] = props
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := db.Execute(ctx, fmt.Sprintf("UPDATE %s SET properties = ? WHERE id = ?", table), []any{string(propsJSON), id}); err != nil {
		return toStorageError(err)
	}
	return nil
}

// applyRemove applies a REMOVE clause's items against en (the dual of
// SET: drops labels or a single property).
func applyRemove(ctx context.Context, db store.Storage, cl *cypher.RemoveClause, en *env) error {
	for _, item := range cl.Items {
		target, ok := en.vars[item.Variable]
		if !ok {
			return &cyerr.NameError{Msg: fmt.Sprintf("undefined variable %s in REMOVE", item.Variable)}
		}
		m, ok := target.(map[string]any)
		if !ok {
			return &cyerr.TypeError{Msg: fmt.Sprintf("%s is not a node or relationship", item.Variable)}
		}
		id, _ := m["id"].(string)
		table := tableFor(m)

		switch item.Kind {
		case cypher.RemoveLabels:
			existing := labelsOf(m)
			updated := translate.RemoveLabels(existing, item.Labels)
			labelAny := make([]any, len(updated))
			for i, l := range updated {
				labelAny[i] = l
			}
			m["label"] = translate.NormalizeLabels(labelAny)
			labelJSON, err := translate.EncodeLabelArray(updated)
			if err != nil {
				return err
			}
			if _, err := db.Execute(ctx, fmt.Sprintf("UPDATE %s SET label = ? WHERE id = ?", table), []any{labelJSON, id}); err != nil {
				return toStorageError(err)
			}
		case cypher.RemoveProperty:
			props, _ := m["properties"].(map[string]any)
			if props != nil {
				delete(props, item.Property)
			}
			propsJSON, err := json.Marshal(props)
			if err != nil {
				return err
			}
			if _, err := db.Execute(ctx, fmt.Sprintf("UPDATE %s SET properties = ? WHERE id = ?", table), []any{string(propsJSON), id}); err != nil {
				return toStorageError(err)
			}
		}
	}
	return nil
}

// applyDelete applies a DELETE clause against en: DETACH removes incident
// edges first; a non-detach node delete with incident edges fails with
// ConstraintViolation.
func applyDelete(ctx context.Context, db store.Storage, cl *cypher.DeleteClause, en *env) error {
	for _, expr := range cl.Exprs {
		v, err := eval(expr, en)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return &cyerr.TypeError{Msg: "DELETE requires a node or relationship"}
		}
		id, _ := m["id"].(string)
		table := tableFor(m)

		if table == "nodes" {
			if cl.Detach {
				if _, err := db.Execute(ctx, "DELETE FROM edges WHERE source_id = ? OR target_id = ?", []any{id, id}); err != nil {
					return toStorageError(err)
				}
			} else {
				res, err := db.Execute(ctx, "SELECT id FROM edges WHERE source_id = ? OR target_id = ? LIMIT 1", []any{id, id})
				if err != nil {
					return toStorageError(err)
				}
				if len(res.Rows) > 0 {
					return &cyerr.ConstraintViolationError{Msg: fmt.Sprintf("node %s still has incident edges", id)}
				}
			}
		}

		if _, err := db.Execute(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), []any{id}); err != nil {
			return toStorageError(err)
		}
	}
	return nil
}

func tableFor(m map[string]any) string {
	if _, ok := m["source_id"]; ok {
		return "edges"
	}
	return "nodes"
}

func labelsOf(m map[string]any) []string {
	switch v := m["label"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			out[i], _ = x.(string)
		}
		return out
	}
	return nil
}
