package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueEqualSetIsUnordered(t *testing.T) {
	a := Set(Integer(1), Integer(2))
	b := Set(Integer(2), Integer(1))
	require.True(t, a.Equal(b))
}

func TestValueEqualSetOfTuples(t *testing.T) {
	a := Set(Tuple(Integer(1), Integer(2)), Tuple(Integer(3), Integer(4)))
	b := Set(Tuple(Integer(3), Integer(4)), Tuple(Integer(1), Integer(2)))
	require.True(t, a.Equal(b))
}

func TestValueEqualDifferentKinds(t *testing.T) {
	require.False(t, Integer(1).Equal(Bool(true)))
	require.False(t, Nil().Equal(Integer(0)))
}

func TestValueCompareIntegers(t *testing.T) {
	require.Equal(t, -1, Integer(1).Compare(Integer(2)))
	require.Equal(t, 1, Integer(2).Compare(Integer(1)))
	require.Equal(t, 0, Integer(2).Compare(Integer(2)))
}

func TestValueCompareTuplesLexicographic(t *testing.T) {
	a := Tuple(Integer(1), Integer(9))
	b := Tuple(Integer(1), Integer(2))
	require.True(t, a.Compare(b) > 0)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "nil", Nil().String())
	require.Equal(t, "42", Integer(42).String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "(1, 2)", Tuple(Integer(1), Integer(2)).String())
	require.Equal(t, "{1, 2}", Set(Integer(1), Integer(2)).String())
	require.Equal(t, "tx#3", TxHandle(3).String())
}

func TestValueAccessors(t *testing.T) {
	i, ok := Integer(5).AsInteger()
	require.True(t, ok)
	require.Equal(t, int64(5), i)

	_, ok = Bool(true).AsInteger()
	require.False(t, ok)

	b, ok := Bool(true).AsBool()
	require.True(t, ok)
	require.True(t, b)

	tup, ok := Tuple(Integer(1)).AsTuple()
	require.True(t, ok)
	require.Len(t, tup, 1)

	set, ok := Set(Integer(1)).AsSet()
	require.True(t, ok)
	require.Len(t, set, 1)

	h, ok := TxHandle(7).AsTxHandle()
	require.True(t, ok)
	require.Equal(t, TxID(7), h)
}
