package explorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entremets/entremets/internal/interp"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/obslog"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

func countAccounts() specast.Expression {
	return specast.Select{Items: []specast.SelectItem{{Count: true, CountStar: true}}, From: "accounts"}
}

func insertOneRow(col string, v int64) specast.Statement {
	return specast.SQLStmt{Expr: specast.Insert{
		Table: "accounts",
		Rows:  []specast.InsertRow{{Columns: []string{col}, Values: []specast.Expression{specast.IntLit{Value: v}}}},
	}}
}

func TestExploreFindsNoViolationWhenInvariantHolds(t *testing.T) {
	spec := &specast.Spec{
		Processes: []specast.ProcessSpec{
			{Name: "p1", Body: specast.Block{insertOneRow("id", 1)}},
		},
		Properties: []specast.PropertyExpr{
			{Name: "at_most_one_row", Operator: specast.Always,
				Expr: specast.Binary{Op: specast.OpLte, Left: countAccounts(), Right: specast.IntLit{Value: 1}}},
		},
	}
	v, states, err := Explore(spec, Options{Logger: obslog.Noop()})
	require.NoError(t, err)
	require.Nil(t, v)
	require.Positive(t, states)
}

func TestExploreReportsAlwaysViolation(t *testing.T) {
	spec := &specast.Spec{
		Processes: []specast.ProcessSpec{
			{Name: "p1", Body: specast.Block{insertOneRow("id", 1), insertOneRow("id", 2)}},
		},
		Properties: []specast.PropertyExpr{
			{Name: "at_most_one_row", Operator: specast.Always,
				Expr: specast.Binary{Op: specast.OpLte, Left: countAccounts(), Right: specast.IntLit{Value: 1}}},
		},
	}
	v, states, err := Explore(spec, Options{})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, "at_most_one_row", v.Property.Name)
	require.NotEmpty(t, v.Path)
	require.Positive(t, states)
}

func TestExploreEventuallySatisfiedAcrossSearch(t *testing.T) {
	spec := &specast.Spec{
		Processes: []specast.ProcessSpec{
			{Name: "p1", Body: specast.Block{insertOneRow("id", 1)}},
		},
		Properties: []specast.PropertyExpr{
			{Name: "a_row_appears", Operator: specast.Eventually,
				Expr: specast.Binary{Op: specast.OpEq, Left: countAccounts(), Right: specast.IntLit{Value: 1}}},
		},
	}
	v, _, err := Explore(spec, Options{})
	require.NoError(t, err)
	require.Nil(t, v, "eventually should be satisfied once the insert commits")
}

func TestExploreEventuallyNeverSatisfiedIsViolation(t *testing.T) {
	spec := &specast.Spec{
		Processes: []specast.ProcessSpec{
			{Name: "p1", Body: specast.Block{}},
		},
		Properties: []specast.PropertyExpr{
			{Name: "never_happens", Operator: specast.Eventually,
				Expr: specast.Binary{Op: specast.OpEq, Left: countAccounts(), Right: specast.IntLit{Value: 1}}},
		},
	}
	v, _, err := Explore(spec, Options{})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, "never_happens", v.Property.Name)
}

func TestExploreMaxStatesExceeded(t *testing.T) {
	spec := &specast.Spec{
		Processes: []specast.ProcessSpec{
			{Name: "p1", Body: specast.Block{insertOneRow("id", 1)}},
			{Name: "p2", Body: specast.Block{insertOneRow("id", 2)}},
		},
	}
	_, _, err := Explore(spec, Options{MaxStates: 1})
	require.Error(t, err)
}

func TestFingerprintCollapsesCanonicallyEquivalentStates(t *testing.T) {
	e1 := storage.NewEngine()
	tx1 := e1.Begin(model.ReadCommitted)
	_, err := e1.Insert(tx1, "accounts", model.Row{"id": model.Integer(1)})
	require.NoError(t, err)
	require.NoError(t, e1.Commit(tx1))
	ws1 := WorldState{Engine: e1, Processes: []interp.State{interp.NewState(nil)}}

	// Reach the same observable state through an extra, now-irrelevant
	// transaction that began and committed without writing anything.
	e2 := storage.NewEngine()
	noop := e2.Begin(model.ReadCommitted)
	require.NoError(t, e2.Commit(noop))
	tx2 := e2.Begin(model.ReadCommitted)
	_, err = e2.Insert(tx2, "accounts", model.Row{"id": model.Integer(1)})
	require.NoError(t, err)
	require.NoError(t, e2.Commit(tx2))
	ws2 := WorldState{Engine: e2, Processes: []interp.State{interp.NewState(nil)}}

	require.Equal(t, Fingerprint(ws1), Fingerprint(ws2))
}

func TestFingerprintDiffersOnRowContent(t *testing.T) {
	e1 := storage.NewEngine()
	tx1 := e1.Begin(model.ReadCommitted)
	_, err := e1.Insert(tx1, "accounts", model.Row{"id": model.Integer(1)})
	require.NoError(t, err)
	require.NoError(t, e1.Commit(tx1))
	ws1 := WorldState{Engine: e1}

	e2 := storage.NewEngine()
	tx2 := e2.Begin(model.ReadCommitted)
	_, err = e2.Insert(tx2, "accounts", model.Row{"id": model.Integer(2)})
	require.NoError(t, err)
	require.NoError(t, e2.Commit(tx2))
	ws2 := WorldState{Engine: e2}

	require.NotEqual(t, Fingerprint(ws1), Fingerprint(ws2))
}

func TestSuccessorsOfLatchRendezVousRequiresEveryUnfinishedProcess(t *testing.T) {
	engine := storage.NewEngine()
	p1 := interp.NewState(specast.Block{specast.LatchStmt{}, specast.Let{Name: "done", Expr: specast.BoolLit{Value: true}}})
	p2 := interp.NewState(specast.Block{specast.Let{Name: "x", Expr: specast.IntLit{Value: 1}}, specast.LatchStmt{}})
	ws := WorldState{Engine: engine, Processes: []interp.State{p1, p2}}

	// p1 is latch-blocked, p2 is not (it has a let to run first) — no
	// joint latch transition yet, only p2's individual step.
	succ, stuck, err := successorsOf(ws)
	require.NoError(t, err)
	require.Nil(t, stuck)
	require.Len(t, succ, 1)
	require.False(t, succ[0].step.IsLatchRelease)

	ws2 := succ[0].ws
	succ2, stuck2, err := successorsOf(ws2)
	require.NoError(t, err)
	require.Nil(t, stuck2)
	require.Len(t, succ2, 1)
	require.True(t, succ2[0].step.IsLatchRelease)
}

func forUpdateSelect(id int64) specast.Statement {
	return specast.SQLStmt{Expr: specast.Select{
		Items:     []specast.SelectItem{{Wildcard: true}},
		From:      "accounts",
		Where:     specast.Binary{Op: specast.OpEq, Left: specast.Column{Name: "id"}, Right: specast.IntLit{Value: id}},
		ForUpdate: true,
	}}
}

// TestSuccessorsOfDetectsDeadlockAndAbortsHighestTx drives two
// processes by hand into the classic crossed-locks deadlock (p1 holds
// row 1 wanting row 2, p2 holds row 2 wanting row 1) and checks that
// successorsOf's recovery step aborts the higher transaction id.
func TestSuccessorsOfDetectsDeadlockAndAbortsHighestTx(t *testing.T) {
	engine := storage.NewEngine()
	require.NoError(t, runBlock(engine, interp.NewState(specast.Block{insertOneRow("id", 1), insertOneRow("id", 2)})))

	p1Body := specast.Block{specast.TransactionStmt{Isolation: "read_committed", Body: specast.Block{
		forUpdateSelect(1), forUpdateSelect(2),
	}}}
	p2Body := specast.Block{specast.TransactionStmt{Isolation: "read_committed", Body: specast.Block{
		forUpdateSelect(2), forUpdateSelect(1),
	}}}

	p1 := interp.NewState(p1Body)
	p2 := interp.NewState(p2Body)

	step := func(p interp.State) interp.State {
		next, err := interp.Step(engine, p)
		require.NoError(t, err)
		return next
	}

	p1 = step(p1) // enter transaction
	p2 = step(p2) // enter transaction
	p1 = step(p1) // lock row 1, succeeds
	p2 = step(p2) // lock row 2, succeeds

	ws := WorldState{Engine: engine, Processes: []interp.State{p1, p2}}
	succ, stuck, err := successorsOf(ws)
	require.NoError(t, err)
	require.Nil(t, stuck)
	require.Len(t, succ, 1)
	require.True(t, succ[0].step.IsDeadlock)
	require.Len(t, succ[0].step.DeadlockVictims, 1)

	victim := succ[0].step.DeadlockVictims[0]
	require.True(t, victim == p1.TxID || victim == p2.TxID)
	if p1.TxID > p2.TxID {
		require.Equal(t, p1.TxID, victim)
	} else {
		require.Equal(t, p2.TxID, victim)
	}
}

// TestSuccessorsOfReportsStuckDeadlockWhenHolderNeverEntersGraph drives
// the case the wait-for-graph cycle search cannot see: p1 parks at a
// `latch` statement inside an open transaction while still holding row
// 1's lock (a latch-blocked process is skipped entirely when building
// the blocked set, per spec.md §4.3 atomic step 8 treating latch and
// lock waits as distinct admissibility checks), and p2 blocks wanting
// row 1. p1's tx never becomes a wait-for-graph node, so FindCycle
// reports no cycle even though the state is permanently stuck — the
// "otherwise" branch of spec.md §4.4/§7's deadlock rule.
func TestSuccessorsOfReportsStuckDeadlockWhenHolderNeverEntersGraph(t *testing.T) {
	engine := storage.NewEngine()
	require.NoError(t, runBlock(engine, interp.NewState(specast.Block{insertOneRow("id", 1)})))

	p1Body := specast.Block{specast.TransactionStmt{Isolation: "read_committed", Body: specast.Block{
		forUpdateSelect(1), specast.LatchStmt{},
	}}}
	p2Body := specast.Block{specast.TransactionStmt{Isolation: "read_committed", Body: specast.Block{
		forUpdateSelect(1),
	}}}

	p1 := interp.NewState(p1Body)
	p2 := interp.NewState(p2Body)

	step := func(p interp.State) interp.State {
		next, err := interp.Step(engine, p)
		require.NoError(t, err)
		return next
	}

	p1 = step(p1) // enter transaction
	p1 = step(p1) // lock row 1, succeeds
	p2 = step(p2) // enter transaction

	ws := WorldState{Engine: engine, Processes: []interp.State{p1, p2}}
	succ, stuck, err := successorsOf(ws)
	require.NoError(t, err)
	require.Empty(t, succ)
	require.Len(t, stuck, 1)
	require.Equal(t, p2.TxID, stuck[0].TxID)
	require.Equal(t, model.RowKey{Table: "accounts", ID: 1}, stuck[0].Awaited)
	require.Empty(t, stuck[0].Held) // p2 is blocked before acquiring anything itself
}
