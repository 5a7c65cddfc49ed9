package model

import "sort"

// CanonicalRowStrings returns the canonical-string form of every live,
// visible row in rows, sorted — content order, not RowID order, so two
// schedules that assign RowIDs in a different order but end up with
// the same set of rows collapse to the same fingerprint fragment, per
// spec.md §3 "Canonicalization".
func CanonicalRowStrings(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.CanonicalString()
	}
	sort.Strings(out)
	return out
}
