package sqlexec

import (
	"github.com/entremets/entremets/internal/errs"
	"github.com/entremets/entremets/internal/model"
	"github.com/entremets/entremets/internal/specast"
	"github.com/entremets/entremets/internal/storage"
)

func evalInsert(engine *storage.Engine, tx model.TxID, ins specast.Insert, env Env) (model.Value, error) {
	var ids []model.Value
	for _, row := range ins.Rows {
		r := model.Row{}
		for i, col := range row.Columns {
			v, err := Eval(engine, row.Values[i], env)
			if err != nil {
				return model.Nil(), err
			}
			r[col] = v
		}
		id, err := engine.Insert(tx, ins.Table, r)
		if err != nil {
			return model.Nil(), err
		}
		ids = append(ids, model.Integer(int64(id)))
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	return model.Set(ids...), nil
}

// evalUpdate matches every visible row against Where, locks the whole
// matching set atomically via storage.Engine.LockAll, then writes new
// values — spec.md §4.3's atomic-step treatment of `update`.
func evalUpdate(engine *storage.Engine, tx model.TxID, upd specast.Update, env Env) (model.Value, error) {
	rows := engine.VisibleRows(tx, upd.Table)
	var ids []model.RowID
	matched := map[model.RowID]model.Row{}
	for _, r := range rows {
		rowEnv := Env{Row: r.Row, Locals: env.Locals}
		if upd.Where != nil {
			v, err := Eval(engine, upd.Where, rowEnv)
			if err != nil {
				return model.Nil(), err
			}
			b, ok := v.AsBool()
			if !ok || !b {
				continue
			}
		}
		ids = append(ids, r.ID)
		matched[r.ID] = r.Row
	}

	if err := engine.LockAll(tx, upd.Table, ids); err != nil {
		return model.Nil(), err
	}

	var n int64
	for _, id := range ids {
		rowEnv := Env{Row: matched[id], Locals: env.Locals}
		newRow := matched[id].Clone()
		for _, a := range upd.Assignments {
			v, err := Eval(engine, a.Value, rowEnv)
			if err != nil {
				return model.Nil(), err
			}
			newRow[a.Column] = v
		}
		if err := engine.WriteRow(tx, upd.Table, id, newRow); err != nil {
			return model.Nil(), err
		}
		n++
	}
	return model.Integer(n), nil
}

// evalDelete is the delete counterpart of evalUpdate: lock the whole
// matching set atomically, then tombstone each row.
func evalDelete(engine *storage.Engine, tx model.TxID, del specast.Delete, env Env) (model.Value, error) {
	rows := engine.VisibleRows(tx, del.Table)
	var ids []model.RowID
	for _, r := range rows {
		rowEnv := Env{Row: r.Row, Locals: env.Locals}
		if del.Where != nil {
			v, err := Eval(engine, del.Where, rowEnv)
			if err != nil {
				return model.Nil(), err
			}
			b, ok := v.AsBool()
			if !ok || !b {
				continue
			}
		}
		ids = append(ids, r.ID)
	}

	if err := engine.LockAll(tx, del.Table, ids); err != nil {
		return model.Nil(), err
	}

	for _, id := range ids {
		if err := engine.DeleteRow(tx, del.Table, id); err != nil {
			return model.Nil(), err
		}
	}
	return model.Integer(int64(len(ids))), nil
}

func evalDDL(engine *storage.Engine, stmt specast.Expression) (model.Value, error) {
	switch s := stmt.(type) {
	case specast.CreateUniqueIndex:
		engine.CreateUniqueIndex(s.Table, s.Columns)
		return model.Nil(), nil
	case specast.AddForeignKey:
		engine.AddForeignKey(s.Table, s.Columns, s.RefTable, s.RefColumns)
		return model.Nil(), nil
	case specast.AlterTableAddColumn:
		engine.AlterTableAddColumn(s.Table, s.Columns)
		return model.Nil(), nil
	default:
		return model.Nil(), errs.Wrapf(errs.ErrEvaluation, "not a DDL statement: %T", stmt)
	}
}
