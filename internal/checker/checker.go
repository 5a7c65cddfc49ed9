// Package checker evaluates the temporal properties of spec.md §4.5
// (always/never/eventually) against a database engine and a flattened
// view of every process's local bindings. It is deliberately decoupled
// from internal/explorer.WorldState's concrete shape (taking an engine
// and a locals map instead) so explorer can call back into it for
// always/never checks at every visited node without an import cycle.
package checker

import (
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/sqlexec"
	"github.com/entremets/entremets/internal/storage"
)

// Eval evaluates prop.Expr and returns its boolean value. Named
// transaction bindings (`transaction ... as name`) are process-local in
// the source program but are looked up here in one flattened
// namespace, so a property can refer to any process's named
// transaction by name — see DESIGN.md Open Question #5.
func Eval(engine *storage.Engine, locals map[string]model.Value, prop specast.PropertyExpr) (bool, error) {
	v, err := sqlexec.Eval(engine, prop.Expr, sqlexec.Env{Locals: locals})
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, errs.Wrapf(errs.ErrEvaluation, "property %q did not evaluate to a boolean", prop.Name)
	}
	return b, nil
}

// Holds evaluates prop's temporal operator at a single visited state,
// per spec.md §4.5:
//   - always: violated the moment prop.Expr is false at some state.
//   - never: violated the moment prop.Expr is true at some state.
//   - eventually: a single state is never decisive; the caller
//     (internal/explorer.Explore) tracks satisfaction along each path
//     and reports a violation when it reaches a terminal state whose
//     path never satisfied it.
func Holds(engine *storage.Engine, locals map[string]model.Value, prop specast.PropertyExpr) (violated bool, err error) {
	b, err := Eval(engine, locals, prop)
	if err != nil {
		return false, err
	}
	switch prop.Operator {
	case specast.Always:
		return !b, nil
	case specast.Never:
		return b, nil
	case specast.Eventually:
		return false, nil
	default:
		return false, errs.Wrapf(errs.ErrEvaluation, "unknown property operator")
	}
}
