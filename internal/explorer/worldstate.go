// Package explorer owns the reachable-state search of spec.md §4.4: a
// WorldState composed from internal/storage and internal/interp (which
// must not import each other, see DESIGN.md), BFS over the micro-step
// transition relation, canonical fingerprinting for the visited set,
// latch rendez-vous transitions, and deadlock detection/recovery.
package explorer

import (
	"github.com/entremets/entremets/internal/interp"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/storage"
)

// WorldState is one node of the reachable-state graph: the database
// (tables + transactions) and every process's local continuation, per
// spec.md §3/§4.4.
type WorldState struct {
	Engine    *storage.Engine
	Processes []interp.State
	Names     []string // process names, for trace rendering; parallel to Processes
}

// Clone deep-copies a WorldState, the unit of work tried speculatively
// for every candidate micro-step during BFS successor generation.
func (w WorldState) Clone() WorldState {
	procs := make([]interp.State, len(w.Processes))
	for i, p := range w.Processes {
		procs[i] = p.Clone()
	}
	return WorldState{
		Engine:    w.Engine.Clone(),
		Processes: procs,
		Names:     w.Names,
	}
}

// AllFinished reports whether every process has run off the end of its
// program.
func (w WorldState) AllFinished() bool {
	for _, p := range w.Processes {
		if !p.Finished {
			return false
		}
	}
	return true
}

// MergedLocals flattens every process's local bindings into one
// namespace, the lookup scope internal/checker evaluates property
// expressions against (named transaction handles in particular — see
// DESIGN.md Open Question #5).
func (w WorldState) MergedLocals() map[string]model.Value {
	out := map[string]model.Value{}
	for _, p := range w.Processes {
		for k, v := range p.Locals {
			out[k] = v
		}
	}
	return out
}
