// Package trace renders a counter-example produced by internal/explorer
// into the human-readable format of spec.md §6: the initial state, then
// one block per step naming the process and action, the local state
// after the step, and a full table dump.
package trace

import (
	"fmt"
	"strings"

	"github.com/entremets/entremets/internal/explorer"
	"github.com/entremets/entremets/internal/model"
)

// Render formats v as a counter-example trace, per spec.md §6. A
// stuck-deadlock leaf (v.DeadlockLeaf non-empty) gets the header
// "System ran into a deadlock:" with one line per participant showing
// its held locks and awaited lock, in place of the usual property
// header; everything else (initial state, per-step dumps) is shared.
func Render(v *explorer.Violation) string {
	var b strings.Builder

	if len(v.DeadlockLeaf) > 0 {
		b.WriteString("System ran into a deadlock:\n")
		for _, p := range v.DeadlockLeaf {
			fmt.Fprintf(&b, "  tx %d holds %s, awaits %s\n", p.TxID, rowKeysString(p.Held), rowKeyString(p.Awaited))
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "Property %q (%s) violated\n\n", v.Property.Name, v.Property.Operator)
	}

	if len(v.States) > 0 {
		b.WriteString("Initial state:\n")
		writeTables(&b, v.States[0])
		b.WriteString("\n")
	}

	for i, step := range v.Path {
		if step.IsDeadlock {
			fmt.Fprintf(&b, "Step %d: Deadlock detected — %s\n", i+1, step.Label)
		} else if step.IsLatchRelease {
			fmt.Fprintf(&b, "Step %d: %s\n", i+1, step.Label)
		} else {
			fmt.Fprintf(&b, "Step %d: %s\n", i+1, step.Label)
		}

		if i+1 < len(v.States) {
			state := v.States[i+1]
			writeLocalState(&b, state, step.ProcessIndex)
			writeTables(&b, state)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeLocalState(b *strings.Builder, ws explorer.WorldState, idx int) {
	if idx < 0 || idx >= len(ws.Processes) {
		return
	}
	p := ws.Processes[idx]
	b.WriteString("  Local State {")
	first := true
	for k, v := range p.Locals {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(b, "%s: %s", k, v.String())
	}
	b.WriteString("}\n")
}

func writeTables(b *strings.Builder, ws explorer.WorldState) {
	for _, name := range ws.Engine.Tables.Keys() {
		t, _ := ws.Engine.Tables.Get(name)
		fmt.Fprintf(b, "  table %s:\n", name)
		for _, id := range t.Cells.Keys() {
			c, _ := t.Cells.Get(id)
			fmt.Fprintf(b, "    row %d: %s\n", id, cellString(c))
		}
	}
}

func rowKeyString(rk model.RowKey) string {
	return fmt.Sprintf("%s[%d]", rk.Table, rk.ID)
}

func rowKeysString(rks []model.RowKey) string {
	if len(rks) == 0 {
		return "nothing"
	}
	parts := make([]string, len(rks))
	for i, rk := range rks {
		parts[i] = rowKeyString(rk)
	}
	return strings.Join(parts, ", ")
}

func cellString(c *model.Cell) string {
	var parts []string
	if c.HasCommitted {
		if c.Committed.Tombstone {
			parts = append(parts, fmt.Sprintf("committed(by tx %d)=<deleted>", c.CommittedBy))
		} else {
			parts = append(parts, fmt.Sprintf("committed(by tx %d)=%s", c.CommittedBy, c.Committed.Row.CanonicalString()))
		}
	}
	if c.Pending != nil {
		if c.Pending.Tombstone {
			parts = append(parts, fmt.Sprintf("pending(tx %d)=<deleted>", c.PendingBy))
		} else {
			parts = append(parts, fmt.Sprintf("pending(tx %d)=%s", c.PendingBy, c.Pending.Row.CanonicalString()))
		}
	}
	if c.Locked {
		parts = append(parts, fmt.Sprintf("locked-by=tx %d", c.LockedBy))
	}
	return strings.Join(parts, " ")
}
