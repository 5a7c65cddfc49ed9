package storage

import (
	"fmt"

	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
)

// LockConflict is the structured form of errs.ErrLocked: which row a
// transaction wanted and who currently holds it, so the explorer's
// wait-for graph (spec.md §4.1/§9) can be built directly from the
// error a blocked micro-step produced instead of re-deriving it.
type LockConflict struct {
	Table  string
	Row    model.RowID
	Waiter model.TxID
	Holder model.TxID
}

func (c *LockConflict) Error() string {
	return fmt.Sprintf("row %d of %s locked by tx %d", c.Row, c.Table, c.Holder)
}

// Cause lets github.com/pkg/errors' errors.Is/errors.As see through to
// errs.ErrLocked.
func (c *LockConflict) Cause() error { return errs.ErrLocked }

func (c *LockConflict) Unwrap() error { return errs.ErrLocked }

// Want reports the RowKey this conflict's waiter was blocked on, the
// shape BuildWaitForGraph consumes.
func (c *LockConflict) Want() model.RowKey {
	return model.RowKey{Table: c.Table, ID: c.Row}
}
