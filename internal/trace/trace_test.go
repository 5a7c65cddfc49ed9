package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entremets/entremets/internal/explorer"
	"github.com/entremets/entremets/internal/interp"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

func TestRenderIncludesPropertyAndSteps(t *testing.T) {
	engine := storage.NewEngine()
	tx := engine.Begin(model.ReadCommitted)
	_, err := engine.Insert(tx, "accounts", model.Row{"id": model.Integer(1)})
	require.NoError(t, err)
	require.NoError(t, engine.Commit(tx))

	initial := explorer.WorldState{Engine: storage.NewEngine()}
	final := explorer.WorldState{Engine: engine, Processes: []interp.State{interp.NewState(specast.Block{})}}

	v := &explorer.Violation{
		Property: specast.PropertyExpr{Name: "at_most_one_row", Operator: specast.Always},
		Path: []explorer.Step{
			{Label: "Process p1: sql", ProcessIndex: 0},
		},
		States: []explorer.WorldState{initial, final},
	}

	out := Render(v)
	require.Contains(t, out, "at_most_one_row")
	require.Contains(t, out, "always")
	require.Contains(t, out, "Process p1: sql")
	require.Contains(t, out, "table accounts")
	require.Contains(t, out, "committed(by tx")
}

func TestRenderDeadlockStepLabel(t *testing.T) {
	v := &explorer.Violation{
		Property: specast.PropertyExpr{Name: "no_deadlock", Operator: specast.Never},
		Path: []explorer.Step{
			{Label: "Deadlock detected: tx 2 aborted", ProcessIndex: -1, IsDeadlock: true, DeadlockVictims: []model.TxID{2}},
		},
		States: []explorer.WorldState{
			{Engine: storage.NewEngine()},
			{Engine: storage.NewEngine()},
		},
	}
	out := Render(v)
	require.True(t, strings.Contains(out, "Deadlock detected"))
}

func TestRenderDeadlockLeafHeaderAndParticipants(t *testing.T) {
	v := &explorer.Violation{
		DeadlockLeaf: []explorer.DeadlockParticipant{
			{TxID: 2, Held: nil, Awaited: model.RowKey{Table: "accounts", ID: 1}},
		},
		States: []explorer.WorldState{{Engine: storage.NewEngine()}},
	}
	out := Render(v)
	require.Contains(t, out, "System ran into a deadlock:")
	require.Contains(t, out, "tx 2")
	require.Contains(t, out, "accounts[1]")
	require.NotContains(t, out, "violated")
}
