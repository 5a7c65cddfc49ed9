package model

import (
	"sort"
	"strings"
)

// RowID opaquely and uniquely names a live or tombstoned row within a
// table. Assigned from a dense per-table counter; never reused, per
// spec.md §3.
type RowID uint64

// Row is an unordered mapping from column name to Value. Rows are not
// positional: two rows are equal when their attribute maps are equal,
// per spec.md §3.
type Row map[string]Value

// Clone returns a shallow copy safe to mutate independently of r.
// Values are immutable, so a shallow map copy is a full deep copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal compares two rows by attribute map, per spec.md §3.
func (r Row) Equal(other Row) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Project extracts cols, in order, as a Tuple Value — the shape used
// for unique-index keys and for the single/multi-column select
// projection collapse the original implementation performs
// (sql_interpreter.rs::Row::to_value: a single selected column yields
// the bare scalar, more than one yields a Tuple).
func (r Row) Project(cols []string) Value {
	if len(cols) == 1 {
		return r[cols[0]]
	}
	vals := make([]Value, len(cols))
	for i, c := range cols {
		vals[i] = r[c]
	}
	return Tuple(vals...)
}

// SortedColumns returns the row's column names in deterministic order,
// used by internal/trace to render a row's fields in a stable sequence
// and by CanonicalString to canonicalize row content.
func (r Row) SortedColumns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// CanonicalString renders a row as a column-sorted "col:value, ..."
// string, used both for trace output and as the leaf of the
// visited-set fingerprint (spec.md §3 "Canonicalization").
func (r Row) CanonicalString() string {
	cols := r.SortedColumns()
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + ":" + r[c].String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
