package storage

import (
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
)

// VisibleRow pairs a RowID with the value a transaction currently
// observes for it, per spec.md §4.1 `read`.
type VisibleRow struct {
	ID  model.RowID
	Row model.Row
}

// visible computes, for a single cell, what tx sees under
// read-committed: its own pending value if it has one, else the
// committed value, else nothing. Tombstones are surfaced to the caller
// (not filtered here) so callers can distinguish "no row" from "a row
// that is visibly deleted"; VisibleRows and the commit-time parent
// lookup of checkForeignKeyTarget skip them, per spec.md §3's
// visibility invariant.
func visible(c *model.Cell, tx model.TxID) (*model.VersionedValue, bool) {
	if c.Pending != nil && c.PendingBy == tx {
		return c.Pending, true
	}
	if c.HasCommitted {
		return c.Committed, true
	}
	return nil, false
}

// VisibleRows returns every live row of table visible to tx under
// read-committed, ordered by RowID — the deterministic "order the
// rows were selected" spec.md §4.2 requires for `for update` locking
// order. Tombstones are skipped, per spec.md §3.
func (e *Engine) VisibleRows(tx model.TxID, table string) []VisibleRow {
	t, ok := e.Table(table)
	if !ok {
		return nil
	}
	var out []VisibleRow
	for _, id := range t.OrderedRowIDs() {
		c, _ := t.Cells.Get(id)
		v, ok := visible(c, tx)
		if !ok || v.Tombstone {
			continue
		}
		out = append(out, VisibleRow{ID: id, Row: v.Row})
	}
	return out
}

// currentForConstraint is the value a unique-index/foreign-key check
// must consider "currently projected" by a cell: any other
// transaction's in-flight pending value counts, not just the committed
// one, per spec.md §4.1 ("excluding rows whose visible value is a
// tombstone" — visible here meaning this broader constraint sense, not
// per-tx read visibility).
func currentForConstraint(c *model.Cell) (*model.VersionedValue, bool) {
	if c.Pending != nil {
		return c.Pending, true
	}
	if c.HasCommitted {
		return c.Committed, true
	}
	return nil, false
}

func columnsOf(r model.Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	return cols
}

// checkUnique rejects row if any other row currently projects to the
// same tuple for any of table's unique indices, per spec.md §4.1
// `insert`/`update`. except, when hasExcept is set, is the RowID being updated
// (excluded from the scan, since re-checking itself against itself is
// not a violation).
func (e *Engine) checkUnique(table string, row model.Row, except model.RowID, hasExcept bool) error {
	t, ok := e.Table(table)
	if !ok || len(t.Uniques) == 0 {
		return nil
	}
	for _, idx := range t.Uniques {
		candidate := row.Project(idx.Columns)
		var conflict bool
		t.Cells.ForEach(func(id model.RowID, c *model.Cell) {
			if conflict || (hasExcept && id == except) {
				return
			}
			v, ok := currentForConstraint(c)
			if !ok || v.Tombstone {
				return
			}
			if v.Row.Project(idx.Columns).Equal(candidate) {
				conflict = true
			}
		})
		if conflict {
			return errs.Wrapf(errs.ErrConstraintViolation, "unique index on %s%v violated", table, idx.Columns)
		}
	}
	return nil
}

// Insert assigns a fresh RowID, installs a pending value owned by tx,
// and acquires the write lock implicitly (no one else can hold a lock
// on a RowID that did not exist a moment ago). The unique-constraint
// check happens now; foreign-key checks are deferred to Commit, per
// spec.md §4.1 `insert`.
func (e *Engine) Insert(tx model.TxID, table string, row model.Row) (model.RowID, error) {
	if err := e.checkUnique(table, row, 0, false); err != nil {
		return 0, err
	}

	t := e.table(table)
	t.WidenColumns(columnsOf(row))
	id := t.AllocateRowID()
	t.Cells.Set(id, &model.Cell{
		Pending:   &model.VersionedValue{Row: row.Clone()},
		PendingBy: tx,
		Locked:    true,
		LockedBy:  tx,
	})

	if txn, ok := e.Tx(tx); ok {
		txn.WriteLocks[model.RowKey{Table: table, ID: id}] = struct{}{}
	}
	return id, nil
}

// TryLock attempts to acquire the row's single exclusive lock slot for
// tx, used both by plain writes and, one row at a time, by `for
// update` selects (see LockAll for the all-or-nothing variant plain
// update/delete statements need). Re-acquiring a lock tx already holds
// always succeeds.
func (e *Engine) TryLock(tx model.TxID, table string, id model.RowID, readIntent bool) error {
	t, ok := e.Table(table)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "lock: unknown table %s", table)
	}
	c, ok := t.Cells.Get(id)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "lock: unknown row %d in %s", id, table)
	}
	if c.Locked && c.LockedBy == tx {
		return nil
	}
	if c.Locked {
		return &LockConflict{Table: table, Row: id, Waiter: tx, Holder: c.LockedBy}
	}
	c.Locked = true
	c.LockedBy = tx
	if txn, ok := e.Tx(tx); ok {
		key := model.RowKey{Table: table, ID: id}
		if readIntent {
			txn.ReadLocks[key] = struct{}{}
		} else {
			txn.WriteLocks[key] = struct{}{}
		}
	}
	return nil
}

// LockAll acquires the write lock on every id in ids, or none at all:
// plain `update`/`delete` statements are single atomic steps (spec.md
// §4.3 items 1/2) and never leave a partially-locked row set behind
// the way a progressively-locking `for update` select does (see
// DESIGN.md Open Question #2). Returns the first blocking error
// without mutating anything if any row is unavailable.
func (e *Engine) LockAll(tx model.TxID, table string, ids []model.RowID) error {
	t, ok := e.Table(table)
	if !ok {
		return nil
	}
	for _, id := range ids {
		c, ok := t.Cells.Get(id)
		if !ok {
			continue
		}
		if c.Locked && c.LockedBy != tx {
			return &LockConflict{Table: table, Row: id, Waiter: tx, Holder: c.LockedBy}
		}
	}
	for _, id := range ids {
		if err := e.TryLock(tx, table, id, false); err != nil {
			return err
		}
	}
	return nil
}

// WriteRow replaces the pending value of an already-locked row,
// re-checking unique constraints excluding the row itself, per
// spec.md §4.1 `update`.
func (e *Engine) WriteRow(tx model.TxID, table string, id model.RowID, newRow model.Row) error {
	if err := e.checkUnique(table, newRow, id, true); err != nil {
		return err
	}
	t, ok := e.Table(table)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "write: unknown table %s", table)
	}
	c, ok := t.Cells.Get(id)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "write: unknown row %d in %s", id, table)
	}
	t.WidenColumns(columnsOf(newRow))
	c.Pending = &model.VersionedValue{Row: newRow.Clone()}
	c.PendingBy = tx
	return nil
}

// DeleteRow tombstones an already-locked row, per spec.md §4.1 `delete`.
func (e *Engine) DeleteRow(tx model.TxID, table string, id model.RowID) error {
	t, ok := e.Table(table)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "delete: unknown table %s", table)
	}
	c, ok := t.Cells.Get(id)
	if !ok {
		return errs.Wrapf(errs.ErrEvaluation, "delete: unknown row %d in %s", id, table)
	}
	c.Pending = &model.VersionedValue{Tombstone: true}
	c.PendingBy = tx
	return nil
}

// checkForeignKeysAtCommit implements spec.md §4.1 `commit`'s deferred
// validation: every pending non-tombstone row that declares a foreign
// key must find a live committed-or-own-pending parent, and no row
// referenced by an incoming FK may be tombstoned by this transaction
// while a surviving child still points at it.
func (e *Engine) checkForeignKeysAtCommit(tx model.TxID) error {
	var result error
	e.Tables.ForEach(func(tableName string, t *model.Table) {
		if result != nil {
			return
		}
		for _, fk := range t.ForeignKeys {
			t.Cells.ForEach(func(id model.RowID, c *model.Cell) {
				if result != nil {
					return
				}
				if c.Pending == nil || c.PendingBy != tx || c.Pending.Tombstone {
					return
				}
				if result = e.checkForeignKeyTarget(tx, fk, c.Pending.Row); result != nil {
					return
				}
			})
		}
	})
	if result != nil {
		return result
	}

	// Incoming-reference check: a row this transaction is tombstoning
	// must not still be referenced by a live child in any other table.
	e.Tables.ForEach(func(parentName string, parent *model.Table) {
		if result != nil {
			return
		}
		parent.Cells.ForEach(func(id model.RowID, c *model.Cell) {
			if result != nil {
				return
			}
			if c.Pending == nil || c.PendingBy != tx || !c.Pending.Tombstone || c.Committed == nil {
				return
			}
			deletedRow := c.Committed.Row
			e.Tables.ForEach(func(childName string, child *model.Table) {
				if result != nil {
					return
				}
				for _, fk := range child.ForeignKeys {
					if fk.RefTable != parentName {
						continue
					}
					child.Cells.ForEach(func(cid model.RowID, cc *model.Cell) {
						if result != nil {
							return
						}
						v, ok := currentForConstraint(cc)
						if !ok || v.Tombstone {
							return
						}
						if referencesNilColumns(v.Row, fk.Columns) {
							return
						}
						if v.Row.Project(fk.Columns).Equal(deletedRow.Project(fk.RefColumns)) {
							result = errs.Wrapf(errs.ErrConstraintViolation,
								"foreign key %s%v -> %s%v orphaned by delete of row %d",
								childName, fk.Columns, parentName, fk.RefColumns, id)
						}
					})
				}
			})
		})
	})
	return result
}

func (e *Engine) checkForeignKeyTarget(tx model.TxID, fk model.ForeignKey, row model.Row) error {
	if referencesNilColumns(row, fk.Columns) {
		// spec.md §8 invariant 5: "OR is entirely nil" is exempt.
		return nil
	}
	parent, ok := e.Table(fk.RefTable)
	if !ok {
		return errs.Wrapf(errs.ErrConstraintViolation, "foreign key references unknown table %s", fk.RefTable)
	}
	key := row.Project(fk.Columns)
	var found bool
	parent.Cells.ForEach(func(_ model.RowID, c *model.Cell) {
		if found {
			return
		}
		v, ok := visible(c, tx)
		if !ok || v.Tombstone {
			return
		}
		if v.Row.Project(fk.RefColumns).Equal(key) {
			found = true
		}
	})
	if !found {
		return errs.Wrapf(errs.ErrConstraintViolation, "foreign key %v -> %s%v has no parent", fk.Columns, fk.RefTable, fk.RefColumns)
	}
	return nil
}

// referencesNilColumns reports whether every fk column of row is nil,
// the "entirely nil" exemption of spec.md §8 invariant 5.
func referencesNilColumns(row model.Row, cols []string) bool {
	for _, c := range cols {
		if v, ok := row[c]; !ok || !v.IsNil() {
			return false
		}
	}
	return true
}
