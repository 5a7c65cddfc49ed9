package model

import "github.com/entremets/entremets/internal/ordset"

// UniqueIndex is a non-empty tuple of column names that must project to
// distinct values across a table's live rows, per spec.md §3.
type UniqueIndex struct {
	Columns []string
}

// ForeignKey ties a column tuple of one table to a (table, column tuple)
// elsewhere, per spec.md §3.
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
}

// VersionedValue is either a live row or a tombstone, per spec.md §3
// "the committed value (possibly a tombstone meaning deleted)".
type VersionedValue struct {
	Tombstone bool
	Row       Row
}

// Cell is the per-row version record described in spec.md §3: a
// committed value and its writer, at most one pending value owned by
// the current lock holder, and the lock itself.
//
// Locked, without Pending set, models a `select ... for update` that
// has not (yet, in this transaction) written the row: spec.md §3
// states plainly that a row has a pending value iff it has a write
// lock, but also that for-update read-intent locks are "treated the
// same as write lock for conflict purposes" without creating a new
// row version. DESIGN.md records the resolution: "has a write lock"
// in the strict sense of "has written" implies Pending != nil; a bare
// for-update hold is lock-only. See DESIGN.md Open Question #1.
type Cell struct {
	Committed    *VersionedValue
	CommittedBy  TxID
	HasCommitted bool

	Pending   *VersionedValue
	PendingBy TxID

	Locked   bool
	LockedBy TxID
}

// Clone deep-copies a cell for world-state snapshotting.
func (c *Cell) Clone() *Cell {
	if c == nil {
		return nil
	}
	out := *c
	if c.Committed != nil {
		v := *c.Committed
		v.Row = c.Committed.Row.Clone()
		out.Committed = &v
	}
	if c.Pending != nil {
		v := *c.Pending
		v.Row = c.Pending.Row.Clone()
		out.Pending = &v
	}
	return &out
}

// Table is a named collection of RowID -> Cell plus its constraints,
// per spec.md §3.
type Table struct {
	Name        string
	Columns     []string
	Cells       *ordset.Map[RowID, *Cell]
	NextRowID   RowID
	Uniques     []UniqueIndex
	ForeignKeys []ForeignKey
}

func NewTable(name string) *Table {
	return &Table{
		Name:  name,
		Cells: ordset.NewMap[RowID, *Cell](),
	}
}

// AllocateRowID hands out the next dense identifier for this table.
// RowIDs are never reused, per spec.md §3.
func (t *Table) AllocateRowID() RowID {
	t.NextRowID++
	return t.NextRowID
}

// WidenColumns folds newly-seen column names into the table's known
// column list, matching the lazy schema-widening the original
// implementation performs on first insert (see DESIGN.md, grounded in
// original_source's sql_interpreter.rs Create/Alter handling).
func (t *Table) WidenColumns(cols []string) {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		seen[c] = true
	}
	for _, c := range cols {
		if !seen[c] {
			t.Columns = append(t.Columns, c)
			seen[c] = true
		}
	}
}

// Clone deep-copies a table for world-state snapshotting during BFS
// successor generation.
func (t *Table) Clone() *Table {
	out := &Table{
		Name:        t.Name,
		Columns:     append([]string(nil), t.Columns...),
		Cells:       ordset.NewMap[RowID, *Cell](),
		NextRowID:   t.NextRowID,
		Uniques:     append([]UniqueIndex(nil), t.Uniques...),
		ForeignKeys: append([]ForeignKey(nil), t.ForeignKeys...),
	}
	t.Cells.ForEach(func(id RowID, c *Cell) {
		out.Cells.Set(id, c.Clone())
	})
	return out
}

// OrderedRowIDs returns the table's row identifiers in ascending
// order, the deterministic iteration spec.md §3 requires before any
// canonicalization collapses symmetric schedules.
func (t *Table) OrderedRowIDs() []RowID {
	return t.Cells.Keys()
}
