package storage

import "github.com/entremets/entremets/internal/model"

// CreateUniqueIndex registers a unique index on table, per spec.md
// §4.1 `create_unique_index`. DDL is only executed under `init`.
func (e *Engine) CreateUniqueIndex(table string, columns []string) {
	t := e.table(table)
	t.Uniques = append(t.Uniques, model.UniqueIndex{Columns: columns})
}

// AddForeignKey registers an outgoing foreign key from table, per
// spec.md §4.1 `add_foreign_key`. DDL is only executed under `init`.
func (e *Engine) AddForeignKey(table string, columns []string, refTable string, refColumns []string) {
	t := e.table(table)
	t.ForeignKeys = append(t.ForeignKeys, model.ForeignKey{
		Columns:    columns,
		RefTable:   refTable,
		RefColumns: refColumns,
	})
}

// AlterTableAddColumn widens table's known column list, per spec.md
// §4.1 `alter_table_add_column`. DDL is only executed under `init`.
func (e *Engine) AlterTableAddColumn(table string, columns []string) {
	e.table(table).WidenColumns(columns)
}
