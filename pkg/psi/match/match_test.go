package match_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/match"
)

func elems(t *testing.T, g group.Group, ids ...string) []group.Element {
	t.Helper()
	out := make([]group.Element, len(ids))
	for i, id := range ids {
		e, err := g.HashToElement([]byte(id))
		require.NoError(t, err)
		out[i] = e
	}
	return out
}

func TestIntersect(t *testing.T) {
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)

	cases := []struct {
		name string
		z    []string
		zp   []string
		want []int
	}{
		{"partial", []string{"a", "b", "c"}, []string{"b", "c", "d"}, []int{0, 1}},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, []int{}},
		{"full", []string{"a", "b"}, []string{"b", "a"}, []int{0, 1}},
		{"empty z", nil, []string{"a"}, []int{}},
		{"empty z prime", []string{"a"}, nil, []int{}},
		// Every W-side occurrence counts once, V-side duplicates do not
		// multiply matches.
		{"w duplicates", []string{"a"}, []string{"a", "x", "a"}, []int{0, 2}},
		{"v duplicates", []string{"a", "a", "a"}, []string{"a"}, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := match.Intersect(elems(t, g, tc.z...), elems(t, g, tc.zp...))
			require.Equal(t, tc.want, got.Indices)
			require.LessOrEqual(t, got.Size(), len(tc.zp))
		})
	}
}

func TestIntersectUsesEncodings(t *testing.T) {
	g, err := group.New(group.Secp256k1)
	require.NoError(t, err)
	a := elems(t, g, "a")[0]
	parsed, err := g.ParseElement(a.Bytes())
	require.NoError(t, err)

	got := match.Intersect([]group.Element{a}, []group.Element{parsed})
	require.Equal(t, []int{0}, got.Indices)
}
