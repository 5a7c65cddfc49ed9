// Package sqlexec evaluates the SQL statement and scalar-expression
// grammar of spec.md §4.2 against an internal/storage.Engine. It is the
// generalization of mukeshjc/mvcc-isolation's single get/set/delete
// vocabulary into the spec's richer statement set (select/insert/
// update/delete/DDL) and its scalar expression language (arithmetic,
// comparison, logical connectives, membership, tuples, sets,
// aggregates, $variable substitution). The executor is stateless across
// calls: every exported function takes the engine and returns through
// it by mutation, mirroring spec.md §4.2 ("it takes the current world
// state by value and returns the successor" — here "by value" is
// Engine.Clone, performed by the caller, not by sqlexec).
package sqlexec

import (
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

// Env is the evaluation context for a scalar expression: the row in
// scope (nil outside a SQL predicate/projection) and the process-local
// variable bindings $params and bare Vars resolve against.
type Env struct {
	Row    model.Row
	Locals map[string]model.Value
}

// Eval evaluates a scalar expression. engine is consulted by Member
// probes (tx.committed/tx.aborted) and by SQL sub-expressions (select,
// insert, update, delete, DDL), which read or write storage.
func Eval(engine *storage.Engine, expr specast.Expression, env Env) (model.Value, error) {
	switch e := expr.(type) {
	case nil:
		return model.Nil(), nil
	case specast.IntLit:
		return model.Integer(e.Value), nil
	case specast.BoolLit:
		return model.Bool(e.Value), nil
	case specast.NilLit:
		return model.Nil(), nil
	case specast.TupleLit:
		vals, err := evalList(engine, e.Items, env)
		if err != nil {
			return model.Nil(), err
		}
		return model.Tuple(vals...), nil
	case specast.SetLit:
		vals, err := evalList(engine, e.Items, env)
		if err != nil {
			return model.Nil(), err
		}
		return model.Set(vals...), nil
	case specast.Column:
		v, ok := env.Row[e.Name]
		if !ok {
			return model.Nil(), nil
		}
		return v, nil
	case specast.Param:
		v, ok := env.Locals[e.Name]
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "undefined variable $%s", e.Name)
		}
		return v, nil
	case specast.Var:
		v, ok := env.Locals[e.Name]
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "undefined variable %s", e.Name)
		}
		return v, nil
	case specast.Not:
		v, err := Eval(engine, e.Operand, env)
		if err != nil {
			return model.Nil(), err
		}
		b, ok := v.AsBool()
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "not: operand is not a boolean")
		}
		return model.Bool(!b), nil
	case specast.In:
		left, err := Eval(engine, e.Left, env)
		if err != nil {
			return model.Nil(), err
		}
		set, err := Eval(engine, e.Set, env)
		if err != nil {
			return model.Nil(), err
		}
		items, ok := set.AsSet()
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "in: right side is not a set")
		}
		for _, item := range items {
			if item.Equal(left) {
				return model.Bool(true), nil
			}
		}
		return model.Bool(false), nil
	case specast.Member:
		return evalMember(engine, e, env)
	case specast.Binary:
		return evalBinary(engine, e, env)
	case specast.Select:
		return evalSelectExpr(engine, selectTxFromEnv(env), e, env)
	case specast.Insert:
		return evalInsert(engine, selectTxFromEnv(env), e, env)
	case specast.Update:
		return evalUpdate(engine, selectTxFromEnv(env), e, env)
	case specast.Delete:
		return evalDelete(engine, selectTxFromEnv(env), e, env)
	case specast.CreateUniqueIndex, specast.AddForeignKey, specast.AlterTableAddColumn:
		return evalDDL(engine, e)
	default:
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "expression cannot be evaluated in this context: %T", expr)
	}
}

func evalList(engine *storage.Engine, items []specast.Expression, env Env) ([]model.Value, error) {
	out := make([]model.Value, 0, len(items))
	for _, it := range items {
		v, err := Eval(engine, it, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// selectTxFromEnv recovers the reader transaction id for an inline
// select used as a value expression (`let x = (select ... )`), per
// spec.md §4.2: such a select always reads under the caller's own
// transaction id, carried in the env's reserved "$$tx" local by Exec.
func selectTxFromEnv(env Env) model.TxID {
	v, ok := env.Locals["$$tx"]
	if !ok {
		return 0
	}
	if h, ok := v.AsTxHandle(); ok {
		return h
	}
	return 0
}

func evalMember(engine *storage.Engine, e specast.Member, env Env) (model.Value, error) {
	target, err := Eval(engine, e.Target, env)
	if err != nil {
		return model.Nil(), err
	}
	handle, ok := target.AsTxHandle()
	if !ok {
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "member %s: target is not a transaction handle", e.Name)
	}
	tx, ok := engine.Tx(handle)
	if !ok {
		return model.Bool(false), nil
	}
	switch e.Name {
	case "committed":
		return model.Bool(tx.CommittedBool()), nil
	case "aborted":
		return model.Bool(tx.AbortedBool()), nil
	default:
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "unknown transaction member %q", e.Name)
	}
}

func evalBinary(engine *storage.Engine, e specast.Binary, env Env) (model.Value, error) {
	// and/or are short-circuit, per spec.md §4.2.
	if e.Op == specast.OpAnd || e.Op == specast.OpOr {
		left, err := Eval(engine, e.Left, env)
		if err != nil {
			return model.Nil(), err
		}
		lb, ok := left.AsBool()
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "logical operator applied to non-boolean")
		}
		if e.Op == specast.OpAnd && !lb {
			return model.Bool(false), nil
		}
		if e.Op == specast.OpOr && lb {
			return model.Bool(true), nil
		}
		right, err := Eval(engine, e.Right, env)
		if err != nil {
			return model.Nil(), err
		}
		rb, ok := right.AsBool()
		if !ok {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "logical operator applied to non-boolean")
		}
		return model.Bool(rb), nil
	}

	left, err := Eval(engine, e.Left, env)
	if err != nil {
		return model.Nil(), err
	}
	right, err := Eval(engine, e.Right, env)
	if err != nil {
		return model.Nil(), err
	}

	switch e.Op {
	case specast.OpEq:
		return model.Bool(left.Equal(right)), nil
	case specast.OpNeq:
		return model.Bool(!left.Equal(right)), nil
	case specast.OpLt, specast.OpLte, specast.OpGt, specast.OpGte:
		cmp := left.Compare(right)
		switch e.Op {
		case specast.OpLt:
			return model.Bool(cmp < 0), nil
		case specast.OpLte:
			return model.Bool(cmp <= 0), nil
		case specast.OpGt:
			return model.Bool(cmp > 0), nil
		default:
			return model.Bool(cmp >= 0), nil
		}
	}

	li, ok := left.AsInteger()
	if !ok {
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "arithmetic operator applied to non-integer")
	}
	ri, ok := right.AsInteger()
	if !ok {
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "arithmetic operator applied to non-integer")
	}
	switch e.Op {
	case specast.OpAdd:
		return model.Integer(li + ri), nil
	case specast.OpSub:
		return model.Integer(li - ri), nil
	case specast.OpMul:
		return model.Integer(li * ri), nil
	case specast.OpDiv:
		if ri == 0 {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "division by zero")
		}
		return model.Integer(li / ri), nil
	case specast.OpMod:
		if ri == 0 {
			return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "division by zero")
		}
		return model.Integer(li % ri), nil
	default:
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "unknown binary operator")
	}
}
