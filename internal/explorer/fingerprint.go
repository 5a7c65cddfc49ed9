package explorer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/entremets/entremets/internal/interp"
	"github.com/entremets/entremets/internal/model"
)

// Fingerprint is the canonicalized string form of a WorldState used as
// the visited-set key, per spec.md §3 "Canonicalization": table
// contents collapse to content order (not RowID order), and
// transaction ids are renumbered so that two schedules which
// interleaved the same operations differently still collapse to one
// node.
//
// Canonical tx numbering here is assigned by first appearance while
// walking this WorldState (see canonicalTxIDs), not by transaction id
// itself: two paths that opened a different number of now-irrelevant
// (committed, unlocked, unreferenced) transactions before reaching an
// observationally identical state must still fingerprint identically.
// See DESIGN.md Open Question #4.
func Fingerprint(ws WorldState) string {
	canon := canonicalTxIDs(ws)

	var b strings.Builder
	for _, name := range ws.Engine.Tables.Keys() {
		t, _ := ws.Engine.Tables.Get(name)
		b.WriteString(name)
		b.WriteByte('|')
		rows := make([]string, 0, t.Cells.Len())
		t.Cells.ForEach(func(_ model.RowID, c *model.Cell) {
			rows = append(rows, cellFingerprint(c, canon))
		})
		sort.Strings(rows)
		b.WriteString(strings.Join(rows, ";"))
		b.WriteByte('\n')
	}

	for i, p := range ws.Processes {
		b.WriteString(fmt.Sprintf("p%d:%s\n", i, processFingerprint(p, canon)))
	}
	return b.String()
}

func cellFingerprint(c *model.Cell, canon map[model.TxID]int) string {
	parts := make([]string, 0, 4)
	if c.HasCommitted {
		// Which transaction committed this value is not part of
		// observable MVCC state once committed — visibility depends
		// only on HasCommitted, never on CommittedBy — so it is
		// deliberately left out of the fingerprint and out of
		// canonicalTxIDs. Including it would make the fingerprint
		// depend on begin-order history, defeating the point of
		// canonicalization.
		parts = append(parts, "c="+versionedString(c.Committed))
	}
	if c.Pending != nil {
		parts = append(parts, "pend="+versionedString(c.Pending)+"@"+strconv.Itoa(canon[c.PendingBy]))
	}
	if c.Locked {
		parts = append(parts, "lock@"+strconv.Itoa(canon[c.LockedBy]))
	}
	return strings.Join(parts, ",")
}

func versionedString(v *model.VersionedValue) string {
	if v.Tombstone {
		return "<deleted>"
	}
	return v.Row.CanonicalString()
}

func processFingerprint(p interp.State, canon map[model.TxID]int) string {
	var b strings.Builder
	b.WriteString(cursorFingerprint(p))
	if p.InTx {
		b.WriteString(",tx=")
		b.WriteString(strconv.Itoa(canon[p.TxID]))
	}
	if p.Finished {
		b.WriteString(",done")
	}
	names := make([]string, 0, len(p.Locals))
	for n := range p.Locals {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		b.WriteString(",")
		b.WriteString(n)
		b.WriteString("=")
		b.WriteString(localString(p.Locals[n], canon))
	}
	return b.String()
}

func localString(v model.Value, canon map[model.TxID]int) string {
	if h, ok := v.AsTxHandle(); ok {
		return "tx#" + strconv.Itoa(canon[h])
	}
	return v.String()
}

// cursorFingerprint renders a process's reified continuation as the
// sequence of (block-level index, transaction-frame marker) pairs —
// the program counter the explorer is fanning out on.
func cursorFingerprint(p interp.State) string {
	parts := make([]string, 0, len(p.Cursor.Stack))
	for _, f := range p.Cursor.Stack {
		marker := "b"
		if f.IsTxBody {
			marker = "t"
		}
		parts = append(parts, fmt.Sprintf("%s%d", marker, f.Index))
	}
	if p.PendingThen != nil {
		parts = append(parts, "then")
	}
	if p.PendingElse != nil {
		parts = append(parts, "else")
	}
	return strings.Join(parts, ".")
}

// canonicalTxIDs assigns dense canonical ids to every transaction id
// still observationally relevant to ws, in a deterministic order:
// lock/pending holders within tables (table name order, then row id
// order), then each process's in-flight transaction and any
// tx-handle-valued local (process index order, then local name order).
func canonicalTxIDs(ws WorldState) map[model.TxID]int {
	canon := map[model.TxID]int{}
	next := 1
	assign := func(id model.TxID) {
		if id == 0 {
			return
		}
		if _, ok := canon[id]; !ok {
			canon[id] = next
			next++
		}
	}

	for _, name := range ws.Engine.Tables.Keys() {
		t, _ := ws.Engine.Tables.Get(name)
		for _, id := range t.Cells.Keys() {
			c, _ := t.Cells.Get(id)
			if c.Locked {
				assign(c.LockedBy)
			}
			if c.Pending != nil {
				assign(c.PendingBy)
			}
		}
	}

	for _, p := range ws.Processes {
		if p.InTx {
			assign(p.TxID)
		}
		names := make([]string, 0, len(p.Locals))
		for n := range p.Locals {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if h, ok := p.Locals[n].AsTxHandle(); ok {
				assign(h)
			}
		}
	}
	return canon
}
