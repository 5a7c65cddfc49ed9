// Package interp is the process interpreter of spec.md §4.3: each
// process is an explicit AST (internal/specast) walked by a reified
// program-counter continuation rather than a host goroutine, per
// spec.md §9's explicit rejection of a goroutine-per-process design —
// the explorer needs to fork, inspect, and rewind a process's execution
// position as plain data, which a live Go stack cannot provide.
package interp

import (
	"errors"

	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/sqlexec"
	"github.com/entremets/entremets/internal/storage"
)

// Frame is one level of the reified call stack: a block and the index
// of the next statement inside it. IsTxBody marks a frame pushed by
// entering a transaction, so running off its end triggers an implicit
// commit (atomic step 4 of spec.md §4.3) instead of a silent pop.
type Frame struct {
	Block    specast.Block
	Index    int
	IsTxBody bool
}

// Cursor is the process's reified continuation: a stack of frames,
// innermost last.
type Cursor struct {
	Stack []Frame
}

func (c Cursor) Clone() Cursor {
	out := make([]Frame, len(c.Stack))
	copy(out, c.Stack)
	return Cursor{Stack: out}
}

// State is one process's full local state: its continuation, its
// variable bindings, and whether it is currently inside a transaction.
type State struct {
	Cursor      Cursor
	Locals      map[string]model.Value
	TxID        model.TxID
	InTx        bool
	Finished    bool
	PendingThen *specast.Block // set after an If condition evaluates true, consumed by the branch-entry step
	PendingElse *specast.Block // set after an If condition evaluates false
}

// NewState seeds a process's state with its top-level body as the
// bottom frame of its continuation.
func NewState(body specast.Block) State {
	return State{
		Cursor: Cursor{Stack: []Frame{{Block: body}}},
		Locals: map[string]model.Value{},
	}
}

func (s State) Clone() State {
	locals := make(map[string]model.Value, len(s.Locals))
	for k, v := range s.Locals {
		locals[k] = v
	}
	return State{
		Cursor:      s.Cursor.Clone(),
		Locals:      locals,
		TxID:        s.TxID,
		InTx:        s.InTx,
		Finished:    s.Finished,
		PendingThen: s.PendingThen,
		PendingElse: s.PendingElse,
	}
}

// Action names the kind of atomic step a process is about to take,
// matching the 8 kinds of spec.md §4.3 plus the bookkeeping actions
// (branch entry, implicit transaction exit) that make a structured
// program fit the spec's flat atomic-step model.
type Action uint8

const (
	ActionDone Action = iota
	ActionSQL
	ActionLet
	ActionIfCond
	ActionEnterBranch
	ActionTxEnter
	ActionTxExit
	ActionAbort
	ActionLatch
)

// peekIsTxExit reports whether the process is sitting at an exhausted
// transaction-body frame (NextAction's ActionDone case is ambiguous between
// "process finished" and "transaction body ended"; this resolves it).
func (s State) peekIsTxExit() bool {
	if len(s.Cursor.Stack) == 0 {
		return false
	}
	top := s.Cursor.Stack[len(s.Cursor.Stack)-1]
	return top.IsTxBody && top.Index >= len(top.Block)
}

// NextAction reports the next atomic step a process would take without
// performing it, distinguishing implicit transaction exit (falling off
// the end of a transaction body) from true process completion.
func (s State) NextAction() Action {
	s.popExhaustedNonTxFrames()
	if s.Finished {
		return ActionDone
	}
	if s.PendingThen != nil || s.PendingElse != nil {
		return ActionEnterBranch
	}
	if s.peekIsTxExit() {
		return ActionTxExit
	}
	if len(s.Cursor.Stack) == 0 {
		return ActionDone
	}
	top := s.Cursor.Stack[len(s.Cursor.Stack)-1]
	if top.Index >= len(top.Block) {
		return ActionDone
	}
	switch top.Block[top.Index].(type) {
	case specast.SQLStmt:
		return ActionSQL
	case specast.Let:
		return ActionLet
	case specast.If:
		return ActionIfCond
	case specast.TransactionStmt:
		return ActionTxEnter
	case specast.AbortStmt:
		return ActionAbort
	case specast.LatchStmt:
		return ActionLatch
	default:
		return ActionDone
	}
}

func (s *State) popExhaustedNonTxFrames() {
	for len(s.Cursor.Stack) > 0 {
		top := &s.Cursor.Stack[len(s.Cursor.Stack)-1]
		if top.Index < len(top.Block) || top.IsTxBody {
			return
		}
		s.Cursor.Stack = s.Cursor.Stack[:len(s.Cursor.Stack)-1]
	}
}

// Step performs exactly one atomic step from state and returns the
// resulting state. engine is mutated in place (callers clone the whole
// WorldState, including the engine, before trying a step — spec.md
// §4.2/§4.4).
func Step(engine *storage.Engine, state State) (State, error) {
	state = state.Clone()
	state.popExhaustedNonTxFrames()

	switch state.NextAction() {
	case ActionDone:
		state.Finished = true
		return state, nil

	case ActionEnterBranch:
		var block specast.Block
		if state.PendingThen != nil {
			block = *state.PendingThen
		} else {
			block = *state.PendingElse
		}
		state.PendingThen = nil
		state.PendingElse = nil
		state.Cursor.Stack = append(state.Cursor.Stack, Frame{Block: block})
		return state, nil

	case ActionTxExit:
		if err := engine.Commit(state.TxID); err != nil {
			if errors.Is(err, errs.ErrConstraintViolation) {
				return unwindTxBody(state), nil
			}
			return state, err
		}
		state.InTx = false
		state.TxID = 0
		state.Cursor.Stack = state.Cursor.Stack[:len(state.Cursor.Stack)-1]
		return state, nil

	case ActionSQL:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		stmt := frame.Block[frame.Index].(specast.SQLStmt)
		frame.Index++
		return runSQL(engine, state, stmt.Expr)

	case ActionLet:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		stmt := frame.Block[frame.Index].(specast.Let)
		frame.Index++
		return runLet(engine, state, stmt)

	case ActionIfCond:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		stmt := frame.Block[frame.Index].(specast.If)
		frame.Index++
		return runIf(engine, state, stmt)

	case ActionTxEnter:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		stmt := frame.Block[frame.Index].(specast.TransactionStmt)
		frame.Index++
		return runTxEnter(engine, state, stmt)

	case ActionAbort:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		frame.Index++
		return runAbort(engine, state)

	case ActionLatch:
		frame := &state.Cursor.Stack[len(state.Cursor.Stack)-1]
		frame.Index++
		return state, nil

	default:
		state.Finished = true
		return state, nil
	}
}

func runSQL(engine *storage.Engine, state State, expr specast.Expression) (State, error) {
	tx := state.TxID
	autocommit := !state.InTx
	if autocommit {
		tx = engine.Begin(model.ReadCommitted)
	}
	_, err := sqlexec.Exec(engine, tx, expr, state.Locals)
	if err != nil {
		engine.Abort(tx)
		if errors.Is(err, errs.ErrConstraintViolation) {
			if autocommit {
				return state, nil
			}
			return unwindTxBody(state), nil
		}
		return state, err
	}
	if autocommit {
		if err := engine.Commit(tx); err != nil {
			if errors.Is(err, errs.ErrConstraintViolation) {
				return state, nil
			}
			return state, err
		}
	}
	return state, nil
}

func runLet(engine *storage.Engine, state State, stmt specast.Let) (State, error) {
	tx := state.TxID
	autocommit := !state.InTx
	if autocommit {
		tx = engine.Begin(model.ReadCommitted)
	}
	v, err := sqlexec.Exec(engine, tx, stmt.Expr, state.Locals)
	if err != nil {
		engine.Abort(tx)
		if errors.Is(err, errs.ErrConstraintViolation) {
			if autocommit {
				return state, nil
			}
			return unwindTxBody(state), nil
		}
		return state, err
	}
	if autocommit {
		if err := engine.Commit(tx); err != nil {
			if errors.Is(err, errs.ErrConstraintViolation) {
				return state, nil
			}
			return state, err
		}
	}
	state.Locals[stmt.Name] = v
	return state, nil
}

func runIf(engine *storage.Engine, state State, stmt specast.If) (State, error) {
	v, err := sqlexec.Eval(engine, stmt.Cond, sqlexec.Env{Locals: state.Locals})
	if err != nil {
		return state, err
	}
	b, ok := v.AsBool()
	if !ok {
		b = false
	}
	if b {
		then := stmt.Then
		state.PendingThen = &then
	} else {
		els := stmt.Else
		state.PendingElse = &els
	}
	return state, nil
}

func runTxEnter(engine *storage.Engine, state State, stmt specast.TransactionStmt) (State, error) {
	tx := engine.Begin(model.ReadCommitted)
	state.TxID = tx
	state.InTx = true
	if stmt.HasName {
		state.Locals[stmt.Name] = model.TxHandle(tx)
	}
	state.Cursor.Stack = append(state.Cursor.Stack, Frame{Block: stmt.Body, IsTxBody: true})
	return state, nil
}

func runAbort(engine *storage.Engine, state State) (State, error) {
	return ForceAbort(engine, state), nil
}

// unwindTxBody pops the continuation out of the innermost transaction
// body and clears the transaction-in-progress bookkeeping, without
// touching the storage layer — used both by an explicit abort (which
// aborts the engine transaction first) and by a failed commit (where
// storage.Engine.Commit has already aborted internally).
func unwindTxBody(state State) State {
	if !state.InTx {
		return state
	}
	state.InTx = false
	state.TxID = 0
	for len(state.Cursor.Stack) > 0 && !state.Cursor.Stack[len(state.Cursor.Stack)-1].IsTxBody {
		state.Cursor.Stack = state.Cursor.Stack[:len(state.Cursor.Stack)-1]
	}
	if len(state.Cursor.Stack) > 0 {
		state.Cursor.Stack = state.Cursor.Stack[:len(state.Cursor.Stack)-1]
	}
	return state
}

// ForceAbort aborts state's current transaction (if any) at the
// storage layer and unwinds its continuation out of the transaction
// body, the same terminal effect an explicit `abort` statement has.
// Exported so internal/explorer can apply it to a deadlock victim,
// whose process did not itself reach an AbortStmt.
func ForceAbort(engine *storage.Engine, state State) State {
	state = state.Clone()
	if state.InTx {
		engine.Abort(state.TxID)
	}
	return unwindTxBody(state)
}
