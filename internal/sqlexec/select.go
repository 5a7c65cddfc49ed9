package sqlexec

import (
	"sort"

	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

// evalSelectExpr runs a select statement under tx and returns its
// result as a single Value: the aggregate scalar for count(*)/count(col),
// the bare projected scalar or Tuple when exactly one row matches, or a
// Set of row Tuples/scalars otherwise — mirroring sql_interpreter.rs's
// Row::to_value collapse (single column in a row yields a bare scalar)
// applied a second time at the whole-result level (a single matching
// row yields that row's value directly, never a singleton Set). This
// is what lets `let a = select age from users where id = 1` bind a
// plain integer usable in arithmetic.
//
// `for update` locking is acquired progressively, one row at a time in
// selection order, via storage.Engine.TryLock — see DESIGN.md Open
// Question #2 for why this differs from update/delete's all-or-nothing
// LockAll.
func evalSelectExpr(engine *storage.Engine, tx model.TxID, sel specast.Select, env Env) (model.Value, error) {
	rows := engine.VisibleRows(tx, sel.From)

	matched := make([]storage.VisibleRow, 0, len(rows))
	for _, r := range rows {
		rowEnv := Env{Row: r.Row, Locals: env.Locals}
		if sel.Where != nil {
			v, err := Eval(engine, sel.Where, rowEnv)
			if err != nil {
				return model.Nil(), err
			}
			b, ok := v.AsBool()
			if !ok || !b {
				continue
			}
		}
		matched = append(matched, r)
	}

	if len(sel.OrderBy) > 0 {
		sortRows(matched, sel.OrderBy)
	}

	if sel.Offset > 0 {
		if sel.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[sel.Offset:]
		}
	}
	if sel.HasLimit && sel.Limit < len(matched) {
		matched = matched[:sel.Limit]
	}

	if isAggregate(sel.Items) {
		return evalAggregate(sel.Items[0], matched)
	}

	if sel.ForUpdate {
		for _, r := range matched {
			if err := engine.TryLock(tx, sel.From, r.ID, true); err != nil {
				return model.Nil(), err
			}
		}
	}

	wildcard := isWildcard(sel.Items)
	cols := projectionColumns(sel.Items)
	values := make([]model.Value, 0, len(matched))
	for _, r := range matched {
		if wildcard {
			values = append(values, r.Row.Project(r.Row.SortedColumns()))
		} else {
			values = append(values, r.Row.Project(cols))
		}
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return model.Set(values...), nil
}

func isWildcard(items []specast.SelectItem) bool {
	return len(items) == 1 && items[0].Wildcard
}

func isAggregate(items []specast.SelectItem) bool {
	return len(items) == 1 && items[0].Count
}

func evalAggregate(item specast.SelectItem, rows []storage.VisibleRow) (model.Value, error) {
	if item.CountStar {
		return model.Integer(int64(len(rows))), nil
	}
	var n int64
	for _, r := range rows {
		if v, ok := r.Row[item.Column]; ok && !v.IsNil() {
			n++
		}
	}
	return model.Integer(n), nil
}

func projectionColumns(items []specast.SelectItem) []string {
	cols := make([]string, 0, len(items))
	for _, it := range items {
		cols = append(cols, it.Column)
	}
	return cols
}

func sortRows(rows []storage.VisibleRow, order []specast.OrderItem) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range order {
			vi := rows[i].Row[ord.Column]
			vj := rows[j].Row[ord.Column]
			cmp := vi.Compare(vj)
			if cmp == 0 {
				continue
			}
			if ord.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
