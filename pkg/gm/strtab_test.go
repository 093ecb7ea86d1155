package gm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringTableLookup(t *testing.T) {
	t.Parallel()

	st := BuildStringTable("foo", "bar")
	require.Equal(t, StringTable("foo\x00bar\x00"), st)

	tests := []struct {
		off  uint32
		want string
	}{
		{0, "foo"},
		{1, "oo"},
		{3, ""},
		{4, "bar"},
		{8, ""},
	}
	for _, tt := range tests {
		got, err := st.Lookup(tt.off)
		require.NoError(t, err, "offset %d", tt.off)
		require.Equal(t, tt.want, got, "offset %d", tt.off)
	}

	_, err := st.Lookup(9)
	require.Error(t, err)
}

func TestStringTableUnterminatedTail(t *testing.T) {
	t.Parallel()

	st := StringTable("ab\x00cd")
	s, err := st.Lookup(3)
	require.NoError(t, err)
	require.Equal(t, "cd", s)
	require.Equal(t, []StringEntry{{0, "ab"}, {3, "cd"}}, st.Strings())
}

func TestStringTableFind(t *testing.T) {
	t.Parallel()

	st := BuildStringTable("foo", "bar", "foo", "xbaz")
	off, ok := st.Find("foo")
	require.True(t, ok)
	require.Equal(t, uint32(0), off)

	// only present as the tail of "xbaz"
	off, ok = st.Find("baz")
	require.True(t, ok)
	require.Equal(t, uint32(13), off)

	_, ok = st.Find("qux")
	require.False(t, ok)
}

func TestUnionStringTables(t *testing.T) {
	t.Parallel()

	u := unionStringTables(BuildStringTable("foo", "bar"), BuildStringTable("baz", "foo"))
	require.Equal(t, StringTable("foo\x00bar\x00baz\x00foo\x00"), u)

	off, ok := newStringIndex(u).find([]byte("foo"))
	require.True(t, ok)
	require.Equal(t, uint32(0), off)

	// a missing final NUL is supplied so the patch strings stay separate
	u = unionStringTables(StringTable("a\x00b"), StringTable("c\x00"))
	require.Equal(t, StringTable("a\x00b\x00c\x00"), u)
}

func TestStringIndexPrefersWholeStrings(t *testing.T) {
	t.Parallel()

	// "foo" also appears as the tail of "xfoo" at offset 1
	idx := newStringIndex(StringTable("xfoo\x00F\x00foo\x00F\x00"))
	off, ok := idx.find([]byte("foo"))
	require.True(t, ok)
	require.Equal(t, uint32(7), off)

	s, err := idx.table.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, "foo", s)
}
