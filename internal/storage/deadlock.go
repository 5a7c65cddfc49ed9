package storage

import (
	"sort"

	"github.com/entremets/entremets/internal/model"
)

// LockHolder reports which transaction, if any, currently holds the
// row's lock.
func (e *Engine) LockHolder(table string, id model.RowID) (model.TxID, bool) {
	t, ok := e.Table(table)
	if !ok {
		return 0, false
	}
	c, ok := t.Cells.Get(id)
	if !ok || !c.Locked {
		return 0, false
	}
	return c.LockedBy, true
}

// BuildWaitForGraph builds the wait-for adjacency map described in
// spec.md §4.1/§9: an edge tx -> holder for every transaction in
// waiting that wants a row some other running transaction currently
// holds. Represented as an adjacency map rebuilt on demand rather than
// maintained incrementally, per spec.md §9 "Cyclic references" — the
// graph is small and dense enough that recomputation is cheap and
// avoids any persistent cyclic ownership in the data model.
func (e *Engine) BuildWaitForGraph(waiting map[model.TxID]model.RowKey) map[model.TxID]map[model.TxID]struct{} {
	graph := make(map[model.TxID]map[model.TxID]struct{}, len(waiting))
	for tx, want := range waiting {
		holder, ok := e.LockHolder(want.Table, want.ID)
		if !ok || holder == tx {
			continue
		}
		if graph[tx] == nil {
			graph[tx] = make(map[model.TxID]struct{})
		}
		graph[tx][holder] = struct{}{}
	}
	return graph
}

// FindCycle searches the wait-for graph for a cycle, per spec.md §4.1
// and §9 — ported from original_source's state.rs find_deadlocks,
// which walks each node's wait-edges with a worklist and reports the
// first repeated node it revisits. Both the start-node order and each
// node's adjacency order are taken over sorted TxID slices rather than
// ranging the bare maps directly, so the result is reproducible across
// runs of the identical spec per spec.md §4.1's "a tie-break that is
// reproducible" — matching state.rs's own stable `for i in
// 0..self.processes.len()` iteration instead of Go's randomized map
// order.
func FindCycle(graph map[model.TxID]map[model.TxID]struct{}) ([]model.TxID, bool) {
	for _, start := range SortedTxIDs(graph) {
		visited := make(map[model.TxID]bool)
		order := []model.TxID{}
		queue := []model.TxID{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				for i, id := range order {
					if id == cur {
						return order[i:], true
					}
				}
				return order, true
			}
			visited[cur] = true
			order = append(order, cur)
			for _, next := range SortedTxIDs(graph[cur]) {
				queue = append(queue, next)
			}
		}
	}
	return nil, false
}

// SortedTxIDs returns m's keys in ascending order, for callers that
// need a deterministic substitute for Go's randomized map iteration.
func SortedTxIDs[V any](m map[model.TxID]V) []model.TxID {
	out := make([]model.TxID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SelectVictim picks the deterministic deadlock victim: the highest
// transaction id among the cycle's participants, per spec.md §4.1/§9.
func SelectVictim(cycle []model.TxID) model.TxID {
	var victim model.TxID
	for _, id := range cycle {
		if id > victim {
			victim = id
		}
	}
	return victim
}
