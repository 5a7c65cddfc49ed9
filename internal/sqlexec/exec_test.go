package sqlexec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

func insertRow(t *testing.T, engine *storage.Engine, tx model.TxID, table string, cols map[string]specast.Expression) {
	var columns []string
	var values []specast.Expression
	for c, v := range cols {
		columns = append(columns, c)
		values = append(values, v)
	}
	_, err := Exec(engine, tx, specast.Insert{Table: table, Rows: []specast.InsertRow{{Columns: columns, Values: values}}}, nil)
	require.NoError(t, err)
}

func TestExecInsertAndSelect(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{
		"id":      specast.IntLit{Value: 1},
		"balance": specast.IntLit{Value: 100},
	})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	v, err := Exec(engine, tx2, specast.Select{
		Items: []specast.SelectItem{{Column: "balance"}},
		From:  "accounts",
	}, nil)
	require.NoError(t, err)
	n, ok := v.AsInteger()
	require.True(t, ok)
	require.Equal(t, int64(100), n)
}

func TestExecSelectMultiRowYieldsSet(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"balance": specast.IntLit{Value: 10}})
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"balance": specast.IntLit{Value: 20}})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	v, err := Exec(engine, tx2, specast.Select{
		Items: []specast.SelectItem{{Column: "balance"}},
		From:  "accounts",
	}, nil)
	require.NoError(t, err)
	set, ok := v.AsSet()
	require.True(t, ok)
	require.ElementsMatch(t, []model.Value{model.Integer(10), model.Integer(20)}, set)
}

func TestExecSelectWhereFilters(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 1}})
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 2}})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	v, err := Exec(engine, tx2, specast.Select{
		Items: []specast.SelectItem{{Column: "id"}},
		From:  "accounts",
		Where: specast.Binary{Op: specast.OpEq, Left: specast.Column{Name: "id"}, Right: specast.IntLit{Value: 2}},
	}, nil)
	require.NoError(t, err)
	n, ok := v.AsInteger()
	require.True(t, ok)
	require.Equal(t, int64(2), n)
}

func TestExecSelectCountStar(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 1}})
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 2}})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	v, err := Exec(engine, tx2, specast.Select{
		Items: []specast.SelectItem{{Count: true, CountStar: true}},
		From:  "accounts",
	}, nil)
	require.NoError(t, err)
	n, ok := v.AsInteger()
	require.True(t, ok)
	require.Equal(t, int64(2), n)
}

func TestExecUpdateWritesMatchingRow(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 1}, "balance": specast.IntLit{Value: 100}})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	_, err := Exec(engine, tx2, specast.Update{
		Table:       "accounts",
		Assignments: []specast.Assignment{{Column: "balance", Value: specast.IntLit{Value: 50}}},
		Where:       specast.Binary{Op: specast.OpEq, Left: specast.Column{Name: "id"}, Right: specast.IntLit{Value: 1}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Commit(tx2))

	tx3 := engine.Begin(model.ReadCommitted)
	rows := engine.VisibleRows(tx3, "accounts")
	require.Equal(t, model.Integer(50), rows[0].Row["balance"])
}

func TestExecDelete(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	insertRow(t, engine, tx, "accounts", map[string]specast.Expression{"id": specast.IntLit{Value: 1}})
	require.NoError(t, engine.Commit(tx))

	tx2 := engine.Begin(model.ReadCommitted)
	_, err := Exec(engine, tx2, specast.Delete{Table: "accounts"}, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Commit(tx2))

	tx3 := engine.Begin(model.ReadCommitted)
	require.Len(t, engine.VisibleRows(tx3, "accounts"), 0)
}

func TestEvalArithmeticAndComparison(t *testing.T) {
	engine := storage.NewEngine()
	v, err := Eval(engine, specast.Binary{Op: specast.OpAdd, Left: specast.IntLit{Value: 2}, Right: specast.IntLit{Value: 3}}, Env{})
	require.NoError(t, err)
	require.Equal(t, model.Integer(5), v)

	v, err = Eval(engine, specast.Binary{Op: specast.OpGt, Left: specast.IntLit{Value: 5}, Right: specast.IntLit{Value: 3}}, Env{})
	require.NoError(t, err)
	require.Equal(t, model.Bool(true), v)
}

func TestEvalDivisionByZero(t *testing.T) {
	engine := storage.NewEngine()
	_, err := Eval(engine, specast.Binary{Op: specast.OpDiv, Left: specast.IntLit{Value: 1}, Right: specast.IntLit{Value: 0}}, Env{})
	require.Error(t, err)
}

func TestEvalLogicalShortCircuit(t *testing.T) {
	engine := storage.NewEngine()
	// right side references an undefined variable; should never be evaluated.
	v, err := Eval(engine, specast.Binary{
		Op:   specast.OpAnd,
		Left: specast.BoolLit{Value: false},
		Right: specast.Var{Name: "undefined"},
	}, Env{})
	require.NoError(t, err)
	require.Equal(t, model.Bool(false), v)
}

func TestEvalInMembership(t *testing.T) {
	engine := storage.NewEngine()
	v, err := Eval(engine, specast.In{
		Left: specast.IntLit{Value: 2},
		Set:  specast.SetLit{Items: []specast.Expression{specast.IntLit{Value: 1}, specast.IntLit{Value: 2}}},
	}, Env{})
	require.NoError(t, err)
	require.Equal(t, model.Bool(true), v)
}

func TestEvalParamSubstitution(t *testing.T) {
	engine := storage.NewEngine()
	v, err := Eval(engine, specast.Param{Name: "amount"}, Env{Locals: map[string]model.Value{"amount": model.Integer(10)}})
	require.NoError(t, err)
	require.Equal(t, model.Integer(10), v)
}

func TestEvalUndefinedParamErrors(t *testing.T) {
	engine := storage.NewEngine()
	_, err := Eval(engine, specast.Param{Name: "missing"}, Env{})
	require.Error(t, err)
}

func TestEvalMemberCommitted(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	require.NoError(t, engine.Commit(tx))

	v, err := Eval(engine, specast.Member{Target: specast.Var{Name: "t"}, Name: "committed"}, Env{
		Locals: map[string]model.Value{"t": model.TxHandle(tx)},
	})
	require.NoError(t, err)
	require.Equal(t, model.Bool(true), v)
}
