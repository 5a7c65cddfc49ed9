package specast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSONBasicSpec(t *testing.T) {
	data := []byte(`{
		"init": [
			{"kind": "sql", "expr": {"kind": "create_unique_index", "table": "accounts", "columns": ["id"]}}
		],
		"processes": [
			{"name": "t1", "body": [
				{"kind": "transaction", "isolation": "read_committed", "body": [
					{"kind": "sql", "expr": {"kind": "insert", "table": "accounts", "rows": [
						{"columns": ["id"], "values": [{"kind": "int", "int": 1}]}
					]}}
				]}
			]}
		],
		"properties": [
			{"name": "no_dupes", "operator": "always", "expr": {"kind": "bool", "bool": true}}
		]
	}`)

	spec, err := DecodeJSON(data)
	require.NoError(t, err)
	require.Len(t, spec.Init, 1)
	require.Len(t, spec.Processes, 1)
	require.Equal(t, "t1", spec.Processes[0].Name)
	require.Len(t, spec.Properties, 1)
	require.Equal(t, Always, spec.Properties[0].Operator)
}

func TestDecodeJSONAlterTableAddColumn(t *testing.T) {
	data := []byte(`{
		"init": [
			{"kind": "sql", "expr": {"kind": "alter_table_add_column", "table": "accounts", "columns": ["balance"]}}
		]
	}`)

	spec, err := DecodeJSON(data)
	require.NoError(t, err)
	require.Len(t, spec.Init, 1)

	stmt, ok := spec.Init[0].(SQLStmt)
	require.True(t, ok)
	alter, ok := stmt.Expr.(AlterTableAddColumn)
	require.True(t, ok)
	require.Equal(t, "accounts", alter.Table)
	require.Equal(t, []string{"balance"}, alter.Columns)
}

func TestDecodeJSONIfStatement(t *testing.T) {
	data := []byte(`{
		"processes": [
			{"name": "p", "body": [
				{"kind": "if", "cond": {"kind": "bool", "bool": true},
				 "then": [{"kind": "abort"}],
				 "else": [{"kind": "latch"}]}
			]}
		]
	}`)
	spec, err := DecodeJSON(data)
	require.NoError(t, err)
	stmt, ok := spec.Processes[0].Body[0].(If)
	require.True(t, ok)
	require.Len(t, stmt.Then, 1)
	require.Len(t, stmt.Else, 1)
}

func TestDecodeJSONUnknownStatementKindErrors(t *testing.T) {
	data := []byte(`{"processes": [{"name": "p", "body": [{"kind": "bogus"}]}]}`)
	_, err := DecodeJSON(data)
	require.Error(t, err)
}

func TestDecodeJSONUnknownOperatorErrors(t *testing.T) {
	data := []byte(`{"properties": [{"name": "x", "operator": "sometimes", "expr": {"kind": "bool", "bool": true}}]}`)
	_, err := DecodeJSON(data)
	require.Error(t, err)
}

func TestDecodeJSONSelectWithLimit(t *testing.T) {
	data := []byte(`{
		"processes": [
			{"name": "p", "body": [
				{"kind": "let", "name": "x", "expr": {
					"kind": "select",
					"select_items": [{"wildcard": true}],
					"from": "accounts",
					"limit": 1
				}}
			]}
		]
	}`)
	spec, err := DecodeJSON(data)
	require.NoError(t, err)
	letStmt, ok := spec.Processes[0].Body[0].(Let)
	require.True(t, ok)
	sel, ok := letStmt.Expr.(Select)
	require.True(t, ok)
	require.True(t, sel.HasLimit)
	require.Equal(t, 1, sel.Limit)
}
