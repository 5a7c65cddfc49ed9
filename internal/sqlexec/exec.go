package sqlexec

import (
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

// Exec runs a single top-level or in-transaction SQL statement under
// tx and returns its result Value, per spec.md §4.3 atomic steps 1/2.
// locals carries the process's current variable bindings, consulted
// for $name substitutions inside the statement.
func Exec(engine *storage.Engine, tx model.TxID, stmt specast.Expression, locals map[string]model.Value) (model.Value, error) {
	env := Env{Locals: withTx(locals, tx)}
	return Eval(engine, stmt, env)
}

// withTx returns a copy of locals with the reserved "$$tx" binding set,
// so nested Select/Insert/Update/Delete sub-evaluation (selectTxFromEnv)
// always knows which transaction is reading/writing.
func withTx(locals map[string]model.Value, tx model.TxID) map[string]model.Value {
	out := make(map[string]model.Value, len(locals)+1)
	for k, v := range locals {
		out[k] = v
	}
	out["$$tx"] = model.TxHandle(tx)
	return out
}
