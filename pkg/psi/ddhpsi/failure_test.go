package ddhpsi_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-psi-go/internal/drbg"
	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/blind"
	"github.com/coinbase/cb-psi-go/pkg/psi/ddhpsi"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/mocknet"
	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

var names = [2]string{"p1", "p2"}

func jobs(t *testing.T) (*psi.Job2P, *psi.Job2P, *mocknet.Endpoint, *mocknet.Endpoint) {
	t.Helper()
	ep1, ep2 := mocknet.New().Pair()
	j1, err := psi.NewJob2P(ep1, psi.RoleP1, names)
	require.NoError(t, err)
	j2, err := psi.NewJob2P(ep2, psi.RoleP2, names)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = j1.Close()
		_ = j2.Close()
	})
	return j1, j2, ep1, ep2
}

func backends(t *testing.T, cfg psi.Config) ddhpsi.Backends {
	t.Helper()
	b, err := ddhpsi.Setup(cfg)
	require.NoError(t, err)
	return b
}

func TestSilentPeerTimesOut(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	cfg.RoundTimeout = 50 * time.Millisecond

	t.Run("party1", func(t *testing.T) {
		j1, _, _, _ := jobs(t)
		p1, err := ddhpsi.NewParty1(cfg, backends(t, cfg), seeded("silent/p1")...)
		require.NoError(t, err)
		res, err := p1.Run(context.Background(), j1, psi.StringIdentifiers([]string{"a"}))
		require.Nil(t, res)
		require.ErrorIs(t, err, psi.ErrTimeout)
		require.Equal(t, ddhpsi.StateFailed, p1.State())
		require.False(t, p1.HoldsSecrets())
	})
	t.Run("party2", func(t *testing.T) {
		_, j2, _, _ := jobs(t)
		p2, err := ddhpsi.NewParty2(cfg, backends(t, cfg), seeded("silent/p2")...)
		require.NoError(t, err)
		res, err := p2.Run(context.Background(), j2, records("a", 1))
		require.Nil(t, res)
		require.ErrorIs(t, err, psi.ErrTimeout)
		require.Equal(t, ddhpsi.StateFailed, p2.State())
		require.False(t, p2.HoldsSecrets())
	})
}

func TestMalformedRound1AbortsPeer(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	cfg.RoundTimeout = 5 * time.Second
	_, j2, ep1, _ := jobs(t)
	ctx := context.Background()

	require.NoError(t, ep1.Send(ctx, psi.RoleP2.ID(), []byte{psi.WireVersion, byte(wire.TypeRound1), 0x01, 0xde, 0xad}))

	p2, err := ddhpsi.NewParty2(cfg, backends(t, cfg), seeded("malformed/p2")...)
	require.NoError(t, err)
	_, err = p2.Run(ctx, j2, records("a", 1))
	require.ErrorIs(t, err, psi.ErrMalformedMessage)
	require.Equal(t, ddhpsi.StateFailed, p2.State())
	require.False(t, p2.HoldsSecrets())

	frame, err := ep1.Receive(ctx, psi.RoleP2.ID())
	require.NoError(t, err)
	typ, err := wire.PeekType(frame)
	require.NoError(t, err)
	require.Equal(t, wire.TypeAbort, typ)
	a, err := wire.UnmarshalAbort(frame)
	require.NoError(t, err)
	require.Equal(t, psi.ErrMalformedMessage.Error(), a.Reason)
}

func TestLocalFailureReachesPeer(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	j1, j2, _, _ := jobs(t)
	b := backends(t, cfg)

	p1, err := ddhpsi.NewParty1(cfg, b, seeded("abort/p1")...)
	require.NoError(t, err)
	p2, err := ddhpsi.NewParty2(cfg, b, seeded("abort/p2")...)
	require.NoError(t, err)

	var err1, err2 error
	var wg sync.WaitGroup
	wg.Go(func() { _, err1 = p1.Run(context.Background(), j1, [][]byte{[]byte("ok"), {}}) })
	wg.Go(func() { _, err2 = p2.Run(context.Background(), j2, records("ok", 1)) })
	wg.Wait()

	require.ErrorIs(t, err1, psi.ErrInvalidInput)
	require.ErrorIs(t, err2, psi.ErrPeerAborted)
	require.Equal(t, ddhpsi.StateFailed, p1.State())
	require.Equal(t, ddhpsi.StateFailed, p2.State())
	require.False(t, p2.HoldsSecrets())
}

func TestReceivedSetAboveLimit(t *testing.T) {
	big := testConfig("ristretto255", "elgamal-ristretto255")
	small := big
	small.MaxSetSize = 2
	b := backends(t, big)
	j1, j2, _, _ := jobs(t)

	p1, err := ddhpsi.NewParty1(big, b, seeded("limit/p1")...)
	require.NoError(t, err)
	p2, err := ddhpsi.NewParty2(small, b, seeded("limit/p2")...)
	require.NoError(t, err)

	var err1, err2 error
	var wg sync.WaitGroup
	wg.Go(func() { _, err1 = p1.Run(context.Background(), j1, psi.StringIdentifiers([]string{"a", "b", "c"})) })
	wg.Go(func() { _, err2 = p2.Run(context.Background(), j2, records("a", 1)) })
	wg.Wait()

	require.ErrorIs(t, err2, psi.ErrSizeLimitExceeded)
	require.ErrorIs(t, err1, psi.ErrPeerAborted)
}

func TestGroupMismatchIsMalformed(t *testing.T) {
	cfg1 := testConfig("secp256k1", "elgamal-ristretto255")
	cfg2 := testConfig("ristretto255", "elgamal-ristretto255")
	j1, j2, _, _ := jobs(t)

	p1, err := ddhpsi.NewParty1(cfg1, backends(t, cfg1), seeded("mismatch/p1")...)
	require.NoError(t, err)
	p2, err := ddhpsi.NewParty2(cfg2, backends(t, cfg2), seeded("mismatch/p2")...)
	require.NoError(t, err)

	var err1, err2 error
	var wg sync.WaitGroup
	wg.Go(func() { _, err1 = p1.Run(context.Background(), j1, psi.StringIdentifiers([]string{"a"})) })
	wg.Go(func() { _, err2 = p2.Run(context.Background(), j2, records("a", 1)) })
	wg.Wait()

	require.ErrorIs(t, err2, psi.ErrMalformedMessage)
	require.ErrorIs(t, err1, psi.ErrPeerAborted)
}

// A peer claiming more matches than Party 2's records allow is rejected
// before decryption.
func TestInflatedIntersectionRejected(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	b := backends(t, cfg)
	_, j2, ep1, _ := jobs(t)
	ctx := context.Background()

	p2, err := ddhpsi.NewParty2(cfg, b, seeded("inflated/p2")...)
	require.NoError(t, err)
	var err2 error
	var wg sync.WaitGroup
	wg.Go(func() { _, err2 = p2.Run(ctx, j2, records("a", 1, "b", 2)) })

	k, err := b.Group.RandomScalar(drbg.NewString("forger"))
	require.NoError(t, err)
	x, _, err := blind.New(b.Group, drbg.NewString("forger")).BlindOwn(ctx, psi.StringIdentifiers([]string{"a"}), k)
	require.NoError(t, err)
	frame, err := (&wire.Round1{Group: group.Ristretto255, Elements: blind.Encode(x)}).Marshal()
	require.NoError(t, err)
	require.NoError(t, ep1.Send(ctx, psi.RoleP2.ID(), frame))

	data, err := ep1.Receive(ctx, psi.RoleP2.ID())
	require.NoError(t, err)
	m2, err := wire.UnmarshalRound2(data, wire.Limits{MaxSetSize: 10})
	require.NoError(t, err)

	// |V| = 1 and W has no duplicates, so at most one match is possible.
	frame, err = (&wire.Round3{IntersectionSize: 2, Sum: m2.Ciphertexts[0]}).Marshal()
	require.NoError(t, err)
	require.NoError(t, ep1.Send(ctx, psi.RoleP2.ID(), frame))
	wg.Wait()

	require.ErrorIs(t, err2, psi.ErrMalformedMessage)
	require.False(t, p2.HoldsSecrets())
}

func TestSessionIsSingleUse(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	b := backends(t, cfg)
	j1, j2, _, _ := jobs(t)

	p1, err := ddhpsi.NewParty1(cfg, b, seeded("once/p1")...)
	require.NoError(t, err)
	p2, err := ddhpsi.NewParty2(cfg, b, seeded("once/p2")...)
	require.NoError(t, err)
	require.Equal(t, ddhpsi.StateInit, p1.State())

	var err1, err2 error
	var wg sync.WaitGroup
	wg.Go(func() { _, err1 = p1.Run(context.Background(), j1, psi.StringIdentifiers([]string{"a"})) })
	wg.Go(func() { _, err2 = p2.Run(context.Background(), j2, records("a", 1)) })
	wg.Wait()
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, ddhpsi.StateDone, p1.State())
	require.Equal(t, ddhpsi.StateDone, p2.State())
	require.False(t, p1.HoldsSecrets())
	require.False(t, p2.HoldsSecrets())

	_, err = p1.Run(context.Background(), j1, psi.StringIdentifiers([]string{"a"}))
	if !errors.Is(err, psi.ErrSessionUsed) {
		t.Fatalf("expected ErrSessionUsed, got %v", err)
	}
	require.Equal(t, ddhpsi.StateDone, p1.State())
}

func TestRoleMismatch(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	j1, _, _, _ := jobs(t)
	p2, err := ddhpsi.NewParty2(cfg, backends(t, cfg), seeded("role")...)
	require.NoError(t, err)
	_, err = p2.Run(context.Background(), j1, records("a", 1))
	require.ErrorIs(t, err, psi.ErrSetup)
	require.Equal(t, ddhpsi.StateFailed, p2.State())
}

func TestUndecryptableValuesRejectedBeforeRound1(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	cfg.RoundTimeout = 5 * time.Second
	cases := []struct {
		name string
		w    []psi.Record
	}{
		{"negative value", records("a", -5)},
		{"sum past bound", records("a", 600000, "b", 600000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, j2, ep1, _ := jobs(t)
			tr := new(ddhpsi.Transcript)
			p2, err := ddhpsi.NewParty2(cfg, backends(t, cfg), append(seeded("range/p2"), ddhpsi.WithTranscript(tr))...)
			require.NoError(t, err)

			ctx := context.Background()
			res, err := p2.Run(ctx, j2, tc.w)
			require.Nil(t, res)
			require.ErrorIs(t, err, psi.ErrInvalidInput)
			require.Equal(t, ddhpsi.StateFailed, p2.State())
			require.False(t, p2.HoldsSecrets())
			require.Zero(t, tr.Len())

			frame, err := ep1.Receive(ctx, psi.RoleP2.ID())
			require.NoError(t, err)
			a, err := wire.UnmarshalAbort(frame)
			require.NoError(t, err)
			require.Equal(t, psi.ErrInvalidInput.Error(), a.Reason)
		})
	}
}

func TestUndecryptableValuesFailBothParties(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	_, err := ddhpsi.RunLocal(context.Background(), cfg,
		psi.StringIdentifiers([]string{"a"}), records("a", -5),
		seeded("range/local/p1"), seeded("range/local/p2"))
	require.ErrorIs(t, err, psi.ErrInvalidInput)
}
