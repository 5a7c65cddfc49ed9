package model

import (
	"fmt"
	"sort"
	"strings"
)

// Kind tags the variant held by a Value, per spec.md §3.
type Kind uint8

const (
	KindNil Kind = iota
	KindInteger
	KindBool
	KindTuple
	KindSet
	KindTxHandle
)

// TxID is a dense, small, monotonically assigned transaction identifier.
type TxID uint32

// Value is the tagged-variant SQL scalar: {Integer, Bool, Nil, Tuple,
// Set, TxHandle}, per spec.md §3. Duplicates are permitted in a Set
// unless it is explicitly compared as a set-of-tuples for result
// equality (see Value.Equal).
type Value struct {
	kind    Kind
	integer int64
	boolean bool
	tuple   []Value
	set     []Value
	tx      TxID
}

func Nil() Value              { return Value{kind: KindNil} }
func Integer(i int64) Value   { return Value{kind: KindInteger, integer: i} }
func Bool(b bool) Value       { return Value{kind: KindBool, boolean: b} }
func Tuple(vs ...Value) Value { return Value{kind: KindTuple, tuple: vs} }
func Set(vs ...Value) Value   { return Value{kind: KindSet, set: vs} }
func TxHandle(id TxID) Value  { return Value{kind: KindTxHandle, tx: id} }

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.integer, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

func (v Value) AsTuple() ([]Value, bool) {
	if v.kind != KindTuple {
		return nil, false
	}
	return v.tuple, true
}

func (v Value) AsSet() ([]Value, bool) {
	if v.kind != KindSet {
		return nil, false
	}
	return v.set, true
}

func (v Value) AsTxHandle() (TxID, bool) {
	if v.kind != KindTxHandle {
		return 0, false
	}
	return v.tx, true
}

// Equal implements SQL-value equality. Tuple equality is positional.
// Set equality treats both sides as multisets of their canonical
// string form, so {1,2} == {2,1} and a set-of-tuples literal compares
// unordered, matching the property checker's use of set literals as
// "one of these states" assertions (spec.md §8, scenarios S4/S5).
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindInteger:
		return v.integer == other.integer
	case KindBool:
		return v.boolean == other.boolean
	case KindTxHandle:
		return v.tx == other.tx
	case KindTuple:
		if len(v.tuple) != len(other.tuple) {
			return false
		}
		for i := range v.tuple {
			if !v.tuple[i].Equal(other.tuple[i]) {
				return false
			}
		}
		return true
	case KindSet:
		return equalMultiset(v.set, other.set)
	default:
		return false
	}
}

func equalMultiset(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	astr := make([]string, len(a))
	bstr := make([]string, len(b))
	for i := range a {
		astr[i] = a[i].String()
	}
	for i := range b {
		bstr[i] = b[i].String()
	}
	sort.Strings(astr)
	sort.Strings(bstr)
	for i := range astr {
		if astr[i] != bstr[i] {
			return false
		}
	}
	return true
}

// Compare orders two Values for `order by`. The receiver's kind picks
// the rule: Integers compare numerically, Tuples element by element and
// then by length, and every other kind compares the String() forms.
// Mixed kinds are not rejected and never panic.
func (v Value) Compare(other Value) int {
	switch v.kind {
	case KindInteger:
		switch {
		case v.integer < other.integer:
			return -1
		case v.integer > other.integer:
			return 1
		default:
			return 0
		}
	case KindTuple:
		for i := 0; i < len(v.tuple) && i < len(other.tuple); i++ {
			if c := v.tuple[i].Compare(other.tuple[i]); c != 0 {
				return c
			}
		}
		return len(v.tuple) - len(other.tuple)
	default:
		return strings.Compare(v.String(), other.String())
	}
}

// String renders a Value the way internal/trace needs for counter
// example dumps and the way test failures need for readable diffs.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInteger:
		return fmt.Sprintf("%d", v.integer)
	case KindBool:
		return fmt.Sprintf("%t", v.boolean)
	case KindTxHandle:
		return fmt.Sprintf("tx#%d", v.tx)
	case KindTuple:
		parts := make([]string, len(v.tuple))
		for i, e := range v.tuple {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindSet:
		parts := make([]string, len(v.set))
		for i, e := range v.set {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "?"
	}
}
