package exec

import "github.com/rlch/cyql/cypher"

// isUnwindMutate recognizes `UNWIND ... CREATE [RETURN ...]` and
// `UNWIND ... MERGE [RETURN ...]`: no MATCH or WITH precedes the
// mutation, so every tuple of the UNWIND source(s) can be iterated in
// process with a fresh CREATE/MERGE per tuple.
func isUnwindMutate(q *cypher.Query) bool {
	k := classify(q.Clauses)
	return k.hasUnwind && (k.hasCreate || k.hasMerge) && !k.hasMatch && !k.hasWith && !k.hasSet && !k.hasDelete && !k.hasRemove
}

// isCollectUnwind recognizes `MATCH ... WITH collect(x) AS L UNWIND L
// RETURN ...`: the dialect forbids aggregates inside json_each, so the
// collect phase runs as a plain SELECT and the UNWIND iterates the
// decoded list in process.
func isCollectUnwind(q *cypher.Query) bool {
	idx, alias, ok := findCollectWith(q.Clauses)
	if !ok {
		return false
	}
	for _, c := range q.Clauses[idx+1:] {
		if u, ok := c.(*cypher.UnwindClause); ok {
			if v, ok := u.Expr.(*cypher.VariableExpr); ok && v.Name == alias {
				return true
			}
		}
	}
	return false
}

// isCollectDelete recognizes `MATCH ... WITH collect(x) AS L [DETACH]
// DELETE L[expr]`: resolve the collected id list in process, evaluate
// the index, then delete the selected row.
func isCollectDelete(q *cypher.Query) bool {
	idx, alias, ok := findCollectWith(q.Clauses)
	if !ok {
		return false
	}
	for _, c := range q.Clauses[idx+1:] {
		if d, ok := c.(*cypher.DeleteClause); ok {
			for _, e := range d.Exprs {
				if referencesIndexedVariable(e, alias) {
					return true
				}
			}
		}
	}
	return false
}

func referencesIndexedVariable(e cypher.Expression, alias string) bool {
	idx, ok := e.(*cypher.IndexExpr)
	if !ok {
		return false
	}
	v, ok := idx.Target.(*cypher.VariableExpr)
	return ok && v.Name == alias
}

// findCollectWith locates the first WITH clause containing a `collect(x)
// AS alias` projection item.
func findCollectWith(clauses []cypher.Clause) (idx int, alias string, ok bool) {
	for i, c := range clauses {
		w, isWith := c.(*cypher.WithClause)
		if !isWith {
			continue
		}
		for _, item := range w.Body.Items {
			if fn, ok := item.Expr.(*cypher.FunctionCallExpr); ok && isCollectCall(fn) && item.Alias != "" {
				return i, item.Alias, true
			}
		}
	}
	return 0, "", false
}

func isCollectCall(fn *cypher.FunctionCallExpr) bool {
	return len(fn.Name) == 7 && (fn.Name == "collect" || fn.Name == "Collect" || fn.Name == "COLLECT")
}

// isStandaloneMerge recognizes a MERGE with no preceding MATCH/UNWIND/
// WITH and no other mutating clause: find the pattern by its
// label+property filters, run ON CREATE/ON MATCH SET, and handle
// relationship MERGE by finding-or-creating both endpoints first.
func isStandaloneMerge(q *cypher.Query) bool {
	k := classify(q.Clauses)
	return k.hasMerge && !k.hasMatch && !k.hasUnwind && !k.hasWith && !k.hasCreate && !k.hasSet && !k.hasDelete && !k.hasRemove
}

// needsGeneralMultiphase is the fallback for everything else that
// mutates: a MATCH precedes CREATE/SET/DELETE/MERGE/REMOVE referencing
// matched variables, or a standalone CREATE is followed by SET/RETURN
// referencing the newly created variables — standard translation cannot
// express either since CREATE never registers its variables as a
// FROM/JOIN source.
func needsGeneralMultiphase(q *cypher.Query) bool {
	return classify(q.Clauses).mutates()
}
