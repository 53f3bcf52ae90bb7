package blind_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-psi-go/internal/drbg"
	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/blind"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
)

func identifiers(n int) [][]byte {
	ids := make([][]byte, n)
	for i := range ids {
		ids[i] = []byte(fmt.Sprintf("id-%04d", i))
	}
	return ids
}

func TestDoubleBlindingAgreesAcrossParties(t *testing.T) {
	ctx := context.Background()
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)

	k1, err := g.RandomScalar(drbg.NewString("k1"))
	require.NoError(t, err)
	k2, err := g.RandomScalar(drbg.NewString("k2"))
	require.NoError(t, err)

	p1 := blind.New(g, drbg.NewString("p1"), blind.WithWorkers(4))
	p2 := blind.New(g, drbg.NewString("p2"), blind.WithWorkers(3))
	ids := identifiers(150)

	x, perm1, err := p1.BlindOwn(ctx, ids, k1)
	require.NoError(t, err)
	z, err := p2.BlindReceived(ctx, x, k2)
	require.NoError(t, err)

	y, perm2, err := p2.BlindOwn(ctx, ids, k2)
	require.NoError(t, err)
	zPrime, err := p1.BlindReceived(ctx, y, k1)
	require.NoError(t, err)

	byInput := make(map[int][]byte, len(ids))
	for i, e := range z {
		byInput[perm1[i]] = e.Bytes()
	}
	for i, e := range zPrime {
		want := byInput[perm2[i]]
		wantElem, err := g.ParseElement(want)
		require.NoError(t, err)
		if !g.Equal(e, wantElem) {
			t.Fatalf("identifier %d blinded differently by the two paths", perm2[i])
		}
	}
}

func TestBlindOwnPermutation(t *testing.T) {
	ctx := context.Background()
	g, err := group.New(group.Secp256k1)
	require.NoError(t, err)
	k, err := g.RandomScalar(drbg.NewString("k"))
	require.NoError(t, err)
	ids := identifiers(20)

	plain := blind.New(g, drbg.NewString("order"), blind.WithShuffle(false))
	ordered, perm, err := plain.BlindOwn(ctx, ids, k)
	require.NoError(t, err)
	require.Equal(t, blind.Identity(len(ids)), perm)

	shuffled, perm, err := blind.New(g, drbg.NewString("order")).BlindOwn(ctx, ids, k)
	require.NoError(t, err)
	require.NotEqual(t, blind.Identity(len(ids)), perm)
	for i, e := range shuffled {
		require.True(t, g.Equal(e, ordered[perm[i]]))
	}
}

func TestBlindReceivedSizeLimit(t *testing.T) {
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)
	k, err := g.RandomScalar(drbg.NewString("k"))
	require.NoError(t, err)
	b := blind.New(g, drbg.NewString("limit"), blind.WithMaxSetSize(3))

	elems := make([]group.Element, 4)
	if _, err := b.BlindReceived(context.Background(), elems, k); !errors.Is(err, psi.ErrSizeLimitExceeded) {
		t.Fatalf("expected ErrSizeLimitExceeded, got %v", err)
	}
	if _, _, err := b.BlindOwn(context.Background(), identifiers(4), k); !errors.Is(err, psi.ErrSizeLimitExceeded) {
		t.Fatalf("expected ErrSizeLimitExceeded, got %v", err)
	}
}

func TestBlindHonorsCancellation(t *testing.T) {
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)
	k, err := g.RandomScalar(drbg.NewString("k"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = blind.New(g, drbg.NewString("cancel")).BlindOwn(ctx, identifiers(10), k)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlindEmptySet(t *testing.T) {
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)
	k, err := g.RandomScalar(drbg.NewString("k"))
	require.NoError(t, err)
	out, perm, err := blind.New(g, drbg.NewString("empty")).BlindOwn(context.Background(), nil, k)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, perm)
}

func TestPermutationIsBijective(t *testing.T) {
	for _, n := range []int{0, 1, 2, 17, 1000} {
		perm, err := blind.Permutation(drbg.NewString("perm"), n)
		require.NoError(t, err)
		sorted := append(make([]int, 0, n), perm...)
		sort.Ints(sorted)
		require.Equal(t, blind.Identity(n), sorted)
	}

	a, err := blind.Permutation(drbg.NewString("same"), 50)
	require.NoError(t, err)
	b, err := blind.Permutation(drbg.NewString("same"), 50)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestPermute(t *testing.T) {
	got := blind.Permute([]int{2, 0, 1}, []string{"a", "b", "c"})
	require.Equal(t, []string{"c", "a", "b"}, got)
}

func TestParseRejectsInvalidElement(t *testing.T) {
	g, err := group.New(group.Ristretto255)
	require.NoError(t, err)
	h, err := g.HashToElement([]byte("ok"))
	require.NoError(t, err)
	b := blind.New(g, drbg.NewString("parse"), blind.WithWorkers(2))

	parsed, err := b.Parse(context.Background(), blind.Encode([]group.Element{h}))
	require.NoError(t, err)
	require.True(t, g.Equal(h, parsed[0]))

	_, err = b.Parse(context.Background(), [][]byte{h.Bytes(), make([]byte, 32)})
	require.ErrorIs(t, err, psi.ErrMalformedMessage)
}
