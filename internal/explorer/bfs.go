package explorer

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/entremets/entremets/internal/checker"
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/interp"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/obslog"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

// Options bounds a single Explore call, per spec.md §4.4/§9.
type Options struct {
	// MaxStates caps the number of distinct (post-canonicalization)
	// states visited before exploration gives up, the safety valve
	// spec.md §9 requires against runaway state spaces. Zero means the
	// package default (DefaultMaxStates).
	MaxStates int

	// Logger receives per-state exploration progress and structured
	// error fields (state index, property name). Nil falls back to a
	// no-op logger, so callers that don't care about progress (tests)
	// can leave it unset.
	Logger *zap.Logger
}

// DefaultMaxStates is used when Options.MaxStates is zero.
const DefaultMaxStates = 200000

// Step records one transition on a counter-example path, per spec.md
// §6's trace format.
type Step struct {
	Label           string
	ProcessIndex    int  // -1 for latch-release/deadlock-recovery steps not attributable to one process
	IsLatchRelease  bool
	IsDeadlock      bool
	DeadlockVictims []model.TxID
}

// Violation is a counter-example: either a property that failed, or
// (when DeadlockLeaf is non-empty) the stuck-deadlock leaf of spec.md
// §4.4/§7 — every live process blocked on a lock, but the wait-for
// graph has no cycle. Property and DeadlockLeaf are mutually
// exclusive; Path and States describe the path from the initial state
// to the offending one in both cases.
type Violation struct {
	Property     specast.PropertyExpr
	DeadlockLeaf []DeadlockParticipant
	Path         []Step
	States       []WorldState // States[i] is the state reached after Path[i]; States[0] is the initial state with no Step
}

// DeadlockParticipant describes one transaction caught in a
// stuck-deadlock leaf: the locks it already holds, and the one it is
// waiting on, per spec.md §6's "one line per cycle participant
// showing held locks and awaited lock."
type DeadlockParticipant struct {
	TxID    model.TxID
	Held    []model.RowKey
	Awaited model.RowKey
}

type node struct {
	ws       WorldState
	parent   int
	step     Step
	hasStep  bool
	eventSat []bool // per spec.Properties index; meaningful only for Eventually operators
	terminal bool   // true once successorsOf(ws) found no admissible next step
}

// Explore runs the bounded BFS of spec.md §4.4 over every interleaving
// of spec's processes, checking every property in spec.Properties at
// every visited state, and returns the first violation found (BFS
// order gives the shortest counter-example) or nil if none is found
// before the search exhausts its frontier, plus the number of distinct
// states visited.
func Explore(spec *specast.Spec, opts Options) (*Violation, int, error) {
	maxStates := opts.MaxStates
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	logger := opts.Logger
	if logger == nil {
		logger = obslog.Noop()
	}

	engine := storage.NewEngine()
	if err := runBlock(engine, interp.NewState(spec.Init)); err != nil {
		logger.Error("init block failed", zap.Error(err))
		return nil, 0, errs.Wrap(err, "init")
	}

	procs := make([]interp.State, len(spec.Processes))
	names := make([]string, len(spec.Processes))
	for i, p := range spec.Processes {
		procs[i] = interp.NewState(p.Body)
		names[i] = p.Name
	}
	root := WorldState{Engine: engine, Processes: procs, Names: names}

	rootEventSat, err := eventuallySatisfiedAt(root, spec.Properties, nil, logger, 0)
	if err != nil {
		return nil, 1, err
	}

	nodes := []node{{ws: root, parent: -1, eventSat: rootEventSat}}
	visited := map[string]int{Fingerprint(root): 0}

	queue := []int{0}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		cur := nodes[idx]

		logger.Debug("visiting state", zap.Int("state_index", idx), zap.Int("states_so_far", len(nodes)))

		locals := cur.ws.MergedLocals()
		for _, prop := range spec.Properties {
			if prop.Operator == specast.Eventually {
				continue
			}
			violated, err := checker.Holds(cur.ws.Engine, locals, prop)
			if err != nil {
				logger.Error("property evaluation failed",
					zap.Int("state_index", idx), zap.String("property", prop.Name), zap.Error(err))
				return nil, len(nodes), err
			}
			if violated {
				logger.Info("property violated", zap.Int("state_index", idx), zap.String("property", prop.Name))
				return buildViolation(nodes, idx, prop), len(nodes), nil
			}
		}

		successors, stuck, err := successorsOf(cur.ws)
		if err != nil {
			logger.Error("successor generation failed", zap.Int("state_index", idx), zap.Error(err))
			return nil, len(nodes), err
		}
		if stuck != nil {
			logger.Info("stuck deadlock leaf reached", zap.Int("state_index", idx), zap.Int("participants", len(stuck)))
			return buildDeadlockViolation(nodes, idx, stuck), len(nodes), nil
		}
		if len(successors) == 0 {
			nodes[idx].terminal = true
		}
		for _, succ := range successors {
			fp := Fingerprint(succ.ws)
			if _, seen := visited[fp]; seen {
				continue
			}
			if len(nodes) >= maxStates {
				logger.Error("max states exceeded", zap.Int("states_so_far", len(nodes)))
				return nil, len(nodes), errs.ErrMaxStatesExceeded
			}
			ni := len(nodes)
			eventSat, err := eventuallySatisfiedAt(succ.ws, spec.Properties, cur.eventSat, logger, ni)
			if err != nil {
				return nil, len(nodes), err
			}
			nodes = append(nodes, node{ws: succ.ws, parent: idx, step: succ.step, hasStep: true, eventSat: eventSat})
			visited[fp] = ni
			queue = append(queue, ni)
		}
	}

	logger.Info("exploration exhausted", zap.Int("states_explored", len(nodes)))

	for pi, prop := range spec.Properties {
		if prop.Operator != specast.Eventually {
			continue
		}
		for idx, n := range nodes {
			if n.terminal && !n.eventSat[pi] {
				return buildViolation(nodes, idx, prop), len(nodes), nil
			}
		}
	}
	return nil, len(nodes), nil
}

// eventuallySatisfiedAt evaluates every `eventually` property against
// ws, OR-ing in whatever parent (the path leading to ws) already
// satisfied. spec.md §4.5 pins `eventually e` as holding "from every
// terminal state" — read as: along the path to each terminal state, e
// must have held at some point. That makes satisfaction a per-path,
// monotone-forward property, not a fact about the visited set as a
// whole: a schedule where every process races straight past e without
// ever making it true must count as a violation even if some other,
// non-racing schedule happens to pass through a state where e holds.
func eventuallySatisfiedAt(ws WorldState, props []specast.PropertyExpr, parent []bool, logger *zap.Logger, idx int) ([]bool, error) {
	sat := make([]bool, len(props))
	var locals map[string]model.Value
	for pi, prop := range props {
		if prop.Operator != specast.Eventually {
			continue
		}
		if parent != nil && parent[pi] {
			sat[pi] = true
			continue
		}
		if locals == nil {
			locals = ws.MergedLocals()
		}
		v, err := checker.Eval(ws.Engine, locals, prop)
		if err != nil {
			logger.Error("property evaluation failed",
				zap.Int("state_index", idx), zap.String("property", prop.Name), zap.Error(err))
			return nil, err
		}
		sat[pi] = v
	}
	return sat, nil
}

func buildViolation(nodes []node, idx int, prop specast.PropertyExpr) *Violation {
	path, states := pathTo(nodes, idx)
	return &Violation{Property: prop, Path: path, States: states}
}

func buildDeadlockViolation(nodes []node, idx int, participants []DeadlockParticipant) *Violation {
	path, states := pathTo(nodes, idx)
	return &Violation{DeadlockLeaf: participants, Path: path, States: states}
}

func pathTo(nodes []node, idx int) ([]Step, []WorldState) {
	var path []Step
	var states []WorldState
	for i := idx; i != -1; i = nodes[i].parent {
		states = append([]WorldState{nodes[i].ws}, states...)
		if nodes[i].hasStep {
			path = append([]Step{nodes[i].step}, path...)
		}
	}
	return path, states
}

type successor struct {
	ws   WorldState
	step Step
}

// successorsOf enumerates every enabled micro-step from ws: one per
// process whose next action can run right now, a single joint
// transition when every unfinished process is blocked at a latch
// (spec.md §4.3 atomic step 8), and deadlock recovery when every
// process is blocked on a row lock held elsewhere in a wait cycle
// (spec.md §4.1/§9). When every admissible process is lock-blocked but
// the wait-for graph has no cycle — e.g. a process parked at a `latch`
// inside an open transaction holds a lock another process wants, so
// the holder's tx never becomes a graph node — successorsOf returns no
// successors AND a non-nil participant list, per spec.md §4.4/§7's
// "stuck deadlock" terminal leaf, distinct from ordinary exhaustion.
func successorsOf(ws WorldState) ([]successor, []DeadlockParticipant, error) {
	var out []successor
	blocked := map[model.TxID]model.RowKey{}
	latchWaiters := 0
	unfinished := 0

	for i, p := range ws.Processes {
		if p.Finished {
			continue
		}
		unfinished++
		if p.NextAction() == interp.ActionLatch {
			latchWaiters++
			continue
		}

		trial := ws.Clone()
		next, err := interp.Step(trial.Engine, trial.Processes[i])
		if err != nil {
			if lc, ok := asLockConflict(err); ok {
				blocked[p.TxID] = lc.Want()
				continue
			}
			return nil, nil, err
		}
		trial.Processes[i] = next
		out = append(out, successor{ws: trial, step: Step{
			Label:        fmt.Sprintf("Process %s: %s", processLabel(ws, i), actionName(p.NextAction())),
			ProcessIndex: i,
		}})
	}

	if unfinished > 0 && latchWaiters == unfinished {
		trial := ws.Clone()
		for i, p := range trial.Processes {
			if p.Finished {
				continue
			}
			next, err := interp.Step(trial.Engine, p)
			if err != nil {
				return nil, nil, err
			}
			trial.Processes[i] = next
		}
		out = append(out, successor{ws: trial, step: Step{Label: "Latch release", ProcessIndex: -1, IsLatchRelease: true}})
	}

	if len(out) == 0 && len(blocked) > 0 {
		graph := ws.Engine.BuildWaitForGraph(blocked)
		if cycle, ok := storage.FindCycle(graph); ok {
			victim := storage.SelectVictim(cycle)
			trial := ws.Clone()
			for i, p := range trial.Processes {
				if p.TxID == victim && p.InTx {
					trial.Processes[i] = interp.ForceAbort(trial.Engine, p)
				}
			}
			out = append(out, successor{ws: trial, step: Step{
				Label:           fmt.Sprintf("Deadlock detected: tx %d aborted", victim),
				ProcessIndex:    -1,
				IsDeadlock:      true,
				DeadlockVictims: []model.TxID{victim},
			}})
		} else {
			return nil, deadlockParticipants(ws, blocked), nil
		}
	}

	return out, nil, nil
}

// deadlockParticipants reports each blocked transaction's held locks
// and awaited lock for a stuck-deadlock leaf's trace, per spec.md §6.
// Iterates blocked's TxIDs in sorted order rather than ranging the
// bare map directly, so the participant list is reproducible across
// runs of the identical spec (see internal/storage/deadlock.go's
// SortedTxIDs for the same discipline applied to cycle search).
func deadlockParticipants(ws WorldState, blocked map[model.TxID]model.RowKey) []DeadlockParticipant {
	out := make([]DeadlockParticipant, 0, len(blocked))
	for _, txID := range storage.SortedTxIDs(blocked) {
		var held []model.RowKey
		if tx, ok := ws.Engine.Tx(txID); ok {
			for rk := range tx.WriteLocks {
				held = append(held, rk)
			}
			for rk := range tx.ReadLocks {
				held = append(held, rk)
			}
			sort.Slice(held, func(i, j int) bool {
				if held[i].Table != held[j].Table {
					return held[i].Table < held[j].Table
				}
				return held[i].ID < held[j].ID
			})
		}
		out = append(out, DeadlockParticipant{TxID: txID, Held: held, Awaited: blocked[txID]})
	}
	return out
}

func processLabel(ws WorldState, i int) string {
	if i < len(ws.Names) && ws.Names[i] != "" {
		return ws.Names[i]
	}
	return fmt.Sprintf("%d", i)
}

func actionName(a interp.Action) string {
	switch a {
	case interp.ActionSQL:
		return "sql"
	case interp.ActionLet:
		return "let"
	case interp.ActionIfCond:
		return "if"
	case interp.ActionEnterBranch:
		return "branch"
	case interp.ActionTxEnter:
		return "begin"
	case interp.ActionTxExit:
		return "commit"
	case interp.ActionAbort:
		return "abort"
	case interp.ActionDone:
		return "finish"
	default:
		return "step"
	}
}

func asLockConflict(err error) (*storage.LockConflict, bool) {
	var lc *storage.LockConflict
	if errors.As(err, &lc) {
		return lc, true
	}
	return nil, false
}

// runBlock runs a one-off process (the init block) to completion,
// sequentially, with no interleaving choices to make.
func runBlock(engine *storage.Engine, state interp.State) error {
	for {
		if state.NextAction() == interp.ActionDone {
			return nil
		}
		next, err := interp.Step(engine, state)
		if err != nil {
			return err
		}
		state = next
	}
}
