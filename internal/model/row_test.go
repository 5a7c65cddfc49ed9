package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRowProjectSingleColumnCollapsesToScalar(t *testing.T) {
	r := Row{"id": Integer(1), "name": Integer(2)}
	v := r.Project([]string{"id"})
	require.Equal(t, KindInteger, v.Kind())
}

func TestRowProjectMultiColumnIsTuple(t *testing.T) {
	r := Row{"id": Integer(1), "name": Integer(2)}
	v := r.Project([]string{"id", "name"})
	tup, ok := v.AsTuple()
	require.True(t, ok)
	require.Equal(t, []Value{Integer(1), Integer(2)}, tup)
}

func TestRowEqual(t *testing.T) {
	a := Row{"x": Integer(1)}
	b := Row{"x": Integer(1)}
	c := Row{"x": Integer(2)}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestRowCloneIsIndependent(t *testing.T) {
	a := Row{"x": Integer(1)}
	b := a.Clone()
	b["x"] = Integer(2)
	require.Equal(t, Integer(1), a["x"])
}

func TestRowCanonicalStringSortsColumns(t *testing.T) {
	r := Row{"b": Integer(2), "a": Integer(1)}
	require.Equal(t, "(a:1, b:2)", r.CanonicalString())
}

func TestCanonicalRowStringsSortsByContent(t *testing.T) {
	rows := []Row{
		{"id": Integer(2)},
		{"id": Integer(1)},
	}
	out := CanonicalRowStrings(rows)
	require.Equal(t, []string{"(id:1)", "(id:2)"}, out)
}
