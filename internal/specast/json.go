package specast

import (
	"encoding/json"

	"github.com/entremets/entremets/internal/errs"
)

// DecodeJSON parses the minimal textual fixture format cmd/entremets
// takes as its positional argument: a JSON tree whose nodes are tagged
// by a "kind" field. It exists to exercise the checker end-to-end
// without writing the DSL's own lexer/parser, which spec.md §1 places
// out of scope; it is not, and does not claim to be, the surface
// syntax.
func DecodeJSON(data []byte) (*Spec, error) {
	var raw struct {
		Init       []json.RawMessage `json:"init"`
		Processes  []rawProcess      `json:"processes"`
		Properties []rawProperty     `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(err, "decode spec json")
	}

	spec := &Spec{}
	init, err := decodeBlock(raw.Init)
	if err != nil {
		return nil, err
	}
	spec.Init = init

	for _, p := range raw.Processes {
		body, err := decodeBlock(p.Body)
		if err != nil {
			return nil, err
		}
		spec.Processes = append(spec.Processes, ProcessSpec{Name: p.Name, Body: body})
	}

	for _, p := range raw.Properties {
		expr, err := decodeExpr(p.Expr)
		if err != nil {
			return nil, err
		}
		op, err := decodeOperator(p.Operator)
		if err != nil {
			return nil, err
		}
		spec.Properties = append(spec.Properties, PropertyExpr{Name: p.Name, Operator: op, Expr: expr})
	}
	return spec, nil
}

type rawProcess struct {
	Name string            `json:"name"`
	Body []json.RawMessage `json:"body"`
}

type rawProperty struct {
	Name     string          `json:"name"`
	Operator string          `json:"operator"`
	Expr     json.RawMessage `json:"expr"`
}

func decodeOperator(s string) (PropertyOperator, error) {
	switch s {
	case "always":
		return Always, nil
	case "never":
		return Never, nil
	case "eventually":
		return Eventually, nil
	default:
		return 0, errs.Wrapf(errs.ErrParse, "unknown property operator %q", s)
	}
}

func decodeBlock(raw []json.RawMessage) (Block, error) {
	var out Block
	for _, r := range raw {
		stmt, err := decodeStmt(r)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

type node struct {
	Kind string `json:"kind"`

	// Statement fields.
	Expr      json.RawMessage   `json:"expr"`
	Name      string            `json:"name"`
	Cond      json.RawMessage   `json:"cond"`
	Then      []json.RawMessage `json:"then"`
	Else      []json.RawMessage `json:"else"`
	Isolation string            `json:"isolation"`
	HasName   bool              `json:"has_name"`
	Body      []json.RawMessage `json:"body"`

	// Expression fields.
	Value   json.RawMessage   `json:"value"`
	Items   []json.RawMessage `json:"items"`
	Left    json.RawMessage   `json:"left"`
	Right   json.RawMessage   `json:"right"`
	Operand json.RawMessage   `json:"operand"`
	Set     json.RawMessage   `json:"set"`
	Target  json.RawMessage   `json:"target"`
	Member  string            `json:"member"`
	Op      string            `json:"op"`
	Int     int64             `json:"int"`
	Bool    bool              `json:"bool"`

	// SQL fields.
	Table       string          `json:"table"`
	Columns     []string        `json:"columns"`
	RefTable    string          `json:"ref_table"`
	RefColumns  []string        `json:"ref_columns"`
	From        string          `json:"from"`
	Where       json.RawMessage `json:"where"`
	SelectItems []rawSelectItem `json:"select_items"`
	OrderBy     []rawOrderItem  `json:"order_by"`
	Limit       *int            `json:"limit"`
	Offset      int             `json:"offset"`
	ForUpdate   bool            `json:"for_update"`
	Rows        []rawInsertRow  `json:"rows"`
	Assignments []rawAssignment `json:"assignments"`
}

type rawSelectItem struct {
	Column    string `json:"column"`
	Wildcard  bool   `json:"wildcard"`
	Count     bool   `json:"count"`
	CountStar bool   `json:"count_star"`
}

type rawOrderItem struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

type rawInsertRow struct {
	Columns []string          `json:"columns"`
	Values  []json.RawMessage `json:"values"`
}

type rawAssignment struct {
	Column string          `json:"column"`
	Value  json.RawMessage `json:"value"`
}

func decodeStmt(raw json.RawMessage) (Statement, error) {
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errs.Wrap(err, "decode statement")
	}
	switch n.Kind {
	case "sql":
		expr, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return SQLStmt{Expr: expr}, nil
	case "let":
		expr, err := decodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return Let{Name: n.Name, Expr: expr}, nil
	case "if":
		cond, err := decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		thenBlock, err := decodeBlock(n.Then)
		if err != nil {
			return nil, err
		}
		elseBlock, err := decodeBlock(n.Else)
		if err != nil {
			return nil, err
		}
		return If{Cond: cond, Then: thenBlock, Else: elseBlock}, nil
	case "transaction":
		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}
		return TransactionStmt{Isolation: n.Isolation, Name: n.Name, HasName: n.HasName, Body: body}, nil
	case "abort":
		return AbortStmt{}, nil
	case "latch":
		return LatchStmt{}, nil
	default:
		return nil, errs.Wrapf(errs.ErrParse, "unknown statement kind %q", n.Kind)
	}
}

func decodeExpr(raw json.RawMessage) (Expression, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, errs.Wrap(err, "decode expression")
	}
	switch n.Kind {
	case "int":
		return IntLit{Value: n.Int}, nil
	case "bool":
		return BoolLit{Value: n.Bool}, nil
	case "nil":
		return NilLit{}, nil
	case "tuple":
		items, err := decodeExprList(n.Items)
		if err != nil {
			return nil, err
		}
		return TupleLit{Items: items}, nil
	case "set":
		items, err := decodeExprList(n.Items)
		if err != nil {
			return nil, err
		}
		return SetLit{Items: items}, nil
	case "column":
		return Column{Name: n.Name}, nil
	case "param":
		return Param{Name: n.Name}, nil
	case "var":
		return Var{Name: n.Name}, nil
	case "binary":
		op, err := decodeBinaryOp(n.Op)
		if err != nil {
			return nil, err
		}
		left, err := decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return Binary{Op: op, Left: left, Right: right}, nil
	case "not":
		operand, err := decodeExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	case "in":
		left, err := decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		set, err := decodeExpr(n.Set)
		if err != nil {
			return nil, err
		}
		return In{Left: left, Set: set}, nil
	case "member":
		target, err := decodeExpr(n.Target)
		if err != nil {
			return nil, err
		}
		return Member{Target: target, Name: n.Member}, nil
	case "select":
		return decodeSelect(n)
	case "insert":
		return decodeInsert(n)
	case "update":
		return decodeUpdate(n)
	case "delete":
		where, err := decodeExpr(n.Where)
		if err != nil {
			return nil, err
		}
		return Delete{Table: n.Table, Where: where}, nil
	case "create_unique_index":
		return CreateUniqueIndex{Table: n.Table, Columns: n.Columns}, nil
	case "add_foreign_key":
		return AddForeignKey{Table: n.Table, Columns: n.Columns, RefTable: n.RefTable, RefColumns: n.RefColumns}, nil
	case "alter_table_add_column":
		return AlterTableAddColumn{Table: n.Table, Columns: n.Columns}, nil
	default:
		return nil, errs.Wrapf(errs.ErrParse, "unknown expression kind %q", n.Kind)
	}
}

func decodeExprList(raw []json.RawMessage) ([]Expression, error) {
	var out []Expression
	for _, r := range raw {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeBinaryOp(s string) (BinaryOp, error) {
	switch s {
	case "+":
		return OpAdd, nil
	case "-":
		return OpSub, nil
	case "*":
		return OpMul, nil
	case "/":
		return OpDiv, nil
	case "%":
		return OpMod, nil
	case "=":
		return OpEq, nil
	case "<>":
		return OpNeq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "and":
		return OpAnd, nil
	case "or":
		return OpOr, nil
	default:
		return 0, errs.Wrapf(errs.ErrParse, "unknown binary operator %q", s)
	}
}

func decodeSelect(n node) (Expression, error) {
	where, err := decodeExpr(n.Where)
	if err != nil {
		return nil, err
	}
	items := make([]SelectItem, 0, len(n.SelectItems))
	for _, it := range n.SelectItems {
		items = append(items, SelectItem{Column: it.Column, Wildcard: it.Wildcard, Count: it.Count, CountStar: it.CountStar})
	}
	orderBy := make([]OrderItem, 0, len(n.OrderBy))
	for _, o := range n.OrderBy {
		orderBy = append(orderBy, OrderItem{Column: o.Column, Descending: o.Descending})
	}
	sel := Select{Items: items, From: n.From, Where: where, OrderBy: orderBy, ForUpdate: n.ForUpdate, Offset: n.Offset}
	if n.Limit != nil {
		sel.Limit = *n.Limit
		sel.HasLimit = true
	}
	return sel, nil
}

func decodeInsert(n node) (Expression, error) {
	rows := make([]InsertRow, 0, len(n.Rows))
	for _, r := range n.Rows {
		values, err := decodeExprList(r.Values)
		if err != nil {
			return nil, err
		}
		rows = append(rows, InsertRow{Columns: r.Columns, Values: values})
	}
	return Insert{Table: n.Table, Rows: rows}, nil
}

func decodeUpdate(n node) (Expression, error) {
	where, err := decodeExpr(n.Where)
	if err != nil {
		return nil, err
	}
	assigns := make([]Assignment, 0, len(n.Assignments))
	for _, a := range n.Assignments {
		v, err := decodeExpr(a.Value)
		if err != nil {
			return nil, err
		}
		assigns = append(assigns, Assignment{Column: a.Column, Value: v})
	}
	return Update{Table: n.Table, Assignments: assigns, Where: where}, nil
}
