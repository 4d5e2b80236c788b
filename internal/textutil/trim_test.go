package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"  a   b  ", "a b", true},
		{"", "", false},
		{" \t\n ", "", false},
		{"Lionel\n\t  Messi", "Lionel Messi", true},
		{" x ", "x", true},
		{"plain", "plain", true},
	}
	for _, tc := range cases {
		got, ok := Trim(tc.in)
		assert.Equal(t, tc.wantOK, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestTrimPtr(t *testing.T) {
	_, ok := TrimPtr(nil)
	assert.False(t, ok)

	s := "  x  y "
	got, ok := TrimPtr(&s)
	require.True(t, ok)
	assert.Equal(t, "x y", got)

	blank := " \t\n"
	_, ok = TrimPtr(&blank)
	assert.False(t, ok)
}

func TestTrimAll(t *testing.T) {
	in := []string{" a ", "  ", "b\n c", ""}

	kept := TrimAll(in, false)
	assert.Equal(t, []string{"a", "", "b c", ""}, kept)

	filtered := TrimAll(in, true)
	assert.Equal(t, []string{"a", "b c"}, filtered)

	empty := TrimAll(nil, true)
	require.NotNil(t, empty)
	assert.Len(t, empty, 0)
}
