package checker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

func TestEvalReturnsBoolean(t *testing.T) {
	engine := storage.NewEngine()
	b, err := Eval(engine, nil, specast.PropertyExpr{Name: "p", Expr: specast.BoolLit{Value: true}})
	require.NoError(t, err)
	require.True(t, b)
}

func TestEvalNonBooleanExpressionErrors(t *testing.T) {
	engine := storage.NewEngine()
	_, err := Eval(engine, nil, specast.PropertyExpr{Name: "p", Expr: specast.IntLit{Value: 1}})
	require.Error(t, err)
}

func TestHoldsAlwaysViolatedWhenFalse(t *testing.T) {
	engine := storage.NewEngine()
	violated, err := Holds(engine, nil, specast.PropertyExpr{
		Name: "p", Operator: specast.Always, Expr: specast.BoolLit{Value: false},
	})
	require.NoError(t, err)
	require.True(t, violated)
}

func TestHoldsAlwaysNotViolatedWhenTrue(t *testing.T) {
	engine := storage.NewEngine()
	violated, err := Holds(engine, nil, specast.PropertyExpr{
		Name: "p", Operator: specast.Always, Expr: specast.BoolLit{Value: true},
	})
	require.NoError(t, err)
	require.False(t, violated)
}

func TestHoldsNeverViolatedWhenTrue(t *testing.T) {
	engine := storage.NewEngine()
	violated, err := Holds(engine, nil, specast.PropertyExpr{
		Name: "p", Operator: specast.Never, Expr: specast.BoolLit{Value: true},
	})
	require.NoError(t, err)
	require.True(t, violated)
}

func TestHoldsEventuallyIsNeverDecisiveAtASingleState(t *testing.T) {
	engine := storage.NewEngine()
	violated, err := Holds(engine, nil, specast.PropertyExpr{
		Name: "p", Operator: specast.Eventually, Expr: specast.BoolLit{Value: false},
	})
	require.NoError(t, err)
	require.False(t, violated, "eventually is accumulated by the explorer across the whole search, not decided per-state")
}

func TestEvalUsesFlattenedLocalsForNamedTransaction(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	require.NoError(t, engine.Commit(tx))

	locals := map[string]model.Value{"t1": model.TxHandle(tx)}
	b, err := Eval(engine, locals, specast.PropertyExpr{
		Name: "p",
		Expr: specast.Member{Target: specast.Var{Name: "t1"}, Name: "committed"},
	})
	require.NoError(t, err)
	require.True(t, b)
}
