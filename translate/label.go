package translate

import "encoding/json"

// EncodeLabelArray marshals a label list the way nodes.label is stored:
// always a JSON array, even for a single label (e.g. ["X"]).
func EncodeLabelArray(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NormalizeLabels collapses a single-element label array to its bare
// element and passes everything else through. It operates on
// already-decoded values (called from the result
// formatter, not from SQL).
func NormalizeLabels(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if len(arr) == 1 {
		return arr[0]
	}
	return arr
}

// UnionLabels merges an existing label list with additions, de-duplicated
// and order-preserving (first occurrence wins), for `SET n:L1:L2`.
func UnionLabels(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	out := make([]string, 0, len(existing)+len(additions))
	for _, l := range existing {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range additions {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// RemoveLabels returns existing minus removals, order-preserving.
func RemoveLabels(existing, removals []string) []string {
	drop := make(map[string]bool, len(removals))
	for _, l := range removals {
		drop[l] = true
	}
	out := make([]string, 0, len(existing))
	for _, l := range existing {
		if !drop[l] {
			out = append(out, l)
		}
	}
	return out
}
