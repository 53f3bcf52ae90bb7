package ddhpsi_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coinbase/cb-psi-go/internal/drbg"
	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/ddhpsi"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

type backendCase struct {
	group, encryption string
}

var backendCases = []backendCase{
	{"ristretto255", "paillier"},
	{"ristretto255", "elgamal-ristretto255"},
	{"secp256k1", "paillier"},
	{"secp256k1", "elgamal-ristretto255"},
}

func (c backendCase) name() string { return c.group + "/" + c.encryption }

func testConfig(group, encryption string) psi.Config {
	cfg := psi.DefaultConfig()
	cfg.Group = group
	cfg.Encryption = encryption
	cfg.PaillierBits = 1024
	cfg.ElGamalMaxPlaintext = 1 << 20
	cfg.RoundTimeout = 30 * time.Second
	cfg.Workers = 4
	return cfg
}

func seeded(label string) []ddhpsi.Option {
	return []ddhpsi.Option{
		ddhpsi.WithRand(drbg.NewString(label)),
		ddhpsi.WithLogger(logging.Discard()),
	}
}

func records(pairs ...any) []psi.Record {
	out := make([]psi.Record, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, psi.Record{Identifier: []byte(pairs[i].(string)), Value: int64(pairs[i+1].(int))})
	}
	return out
}

func runLocal(t *testing.T, cfg psi.Config, v []string, w []psi.Record) *ddhpsi.LocalResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := ddhpsi.RunLocal(ctx, cfg, psi.StringIdentifiers(v), w, seeded(t.Name()+"/p1"), seeded(t.Name()+"/p2"))
	require.NoError(t, err)
	require.NotNil(t, res.Party1)
	require.NotNil(t, res.Party2)
	require.Equal(t, res.Party2.IntersectionSize, res.Party1.IntersectionSize)
	return res
}

func TestAttributionExample(t *testing.T) {
	for _, bc := range backendCases {
		t.Run(bc.name(), func(t *testing.T) {
			res := runLocal(t, testConfig(bc.group, bc.encryption),
				[]string{"apple", "banana", "cherry"},
				records("apple", 10, "banana", 20, "date", 30))
			require.Equal(t, 2, res.Party2.IntersectionSize)
			require.Equal(t, int64(30), res.Party2.IntersectionSum.Int64())
		})
	}
}

func TestEdgeCases(t *testing.T) {
	cases := []struct {
		name     string
		v        []string
		w        []psi.Record
		wantSize int
		wantSum  int64
	}{
		{"empty v", nil, records("a", 1, "b", 2), 0, 0},
		{"empty w", []string{"a", "b"}, nil, 0, 0},
		{"both empty", nil, nil, 0, 0},
		{"disjoint", []string{"a", "b"}, records("c", 3, "d", 4), 0, 0},
		{"full", []string{"a", "b", "c"}, records("c", 3, "a", 1, "b", 2), 3, 6},
		{"w duplicates count each", []string{"a"}, records("a", 5, "a", 7, "b", 1), 2, 12},
		{"v duplicates count once", []string{"a", "a", "a"}, records("a", 5), 1, 5},
	}
	for _, bc := range backendCases[:2] {
		for _, tc := range cases {
			t.Run(bc.name()+"/"+tc.name, func(t *testing.T) {
				res := runLocal(t, testConfig(bc.group, bc.encryption), tc.v, tc.w)
				require.Equal(t, tc.wantSize, res.Party2.IntersectionSize)
				require.Equal(t, tc.wantSum, res.Party2.IntersectionSum.Int64())
			})
		}
	}
}

func TestMatchesPlaintextReference(t *testing.T) {
	rng := drbg.NewString("reference-sets")
	var buf [3]byte
	var v []string
	for i := 0; i < 120; i++ {
		_, _ = rng.Read(buf[:1])
		v = append(v, fmt.Sprintf("user-%d", int(buf[0])))
	}
	var w []psi.Record
	for i := 0; i < 150; i++ {
		_, _ = rng.Read(buf[:])
		w = append(w, psi.Record{
			Identifier: []byte(fmt.Sprintf("user-%d", int(buf[0]))),
			Value:      int64(buf[1])*256 + int64(buf[2]) - 20000,
		})
	}
	want := ddhpsi.Expected(psi.StringIdentifiers(v), w)

	res := runLocal(t, testConfig("ristretto255", "paillier"), v, w)
	require.Equal(t, want.IntersectionSize, res.Party2.IntersectionSize)
	require.Zero(t, want.IntersectionSum.Cmp(res.Party2.IntersectionSum),
		"sum %s, want %s", res.Party2.IntersectionSum, want.IntersectionSum)
}

func TestExponentsAreFreshPerSession(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	v := psi.StringIdentifiers([]string{"a", "b", "c"})
	w := records("b", 2, "c", 3)

	var frames [][]byte
	for i := 0; i < 2; i++ {
		tr := new(ddhpsi.Transcript)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		res, err := ddhpsi.RunLocal(ctx, cfg, v, w,
			[]ddhpsi.Option{ddhpsi.WithTranscript(tr), ddhpsi.WithLogger(logging.Discard())},
			[]ddhpsi.Option{ddhpsi.WithLogger(logging.Discard())})
		cancel()
		require.NoError(t, err)
		require.Equal(t, 2, res.Party2.IntersectionSize)
		require.Equal(t, int64(5), res.Party2.IntersectionSum.Int64())
		require.Equal(t, 3, tr.Len())
		frames = append(frames, tr.Frame(wire.TypeRound1))
	}
	require.NotEqual(t, frames[0], frames[1], "message 1 repeated across sessions")
}

func TestSeededRunsReplay(t *testing.T) {
	cfg := testConfig("secp256k1", "elgamal-ristretto255")
	v := psi.StringIdentifiers([]string{"x", "y", "z"})
	w := records("y", 9)

	run := func() []byte {
		tr := new(ddhpsi.Transcript)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, err := ddhpsi.RunLocal(ctx, cfg, v, w,
			append(seeded("replay/p1"), ddhpsi.WithTranscript(tr)),
			seeded("replay/p2"))
		require.NoError(t, err)
		return tr.Frame(wire.TypeRound1)
	}
	require.Equal(t, run(), run())
}

func TestStaticKeySurvivesSessions(t *testing.T) {
	cfg := testConfig("ristretto255", "paillier")
	b, err := ddhpsi.Setup(cfg)
	require.NoError(t, err)
	sk, err := b.Scheme.GenerateKey(drbg.NewString("static"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		res, err := ddhpsi.RunLocal(ctx, cfg,
			psi.StringIdentifiers([]string{"a"}), records("a", 4),
			seeded(fmt.Sprintf("static/%d/p1", i)),
			append(seeded(fmt.Sprintf("static/%d/p2", i)), ddhpsi.WithStaticKey(sk)))
		cancel()
		require.NoError(t, err)
		require.Equal(t, int64(4), res.Party2.IntersectionSum.Int64())
	}

	c, err := sk.Public().Encrypt(drbg.NewString("after"), big.NewInt(11))
	require.NoError(t, err)
	m, err := sk.Decrypt(c)
	require.NoError(t, err, "static key must not be zeroized by sessions")
	require.Equal(t, int64(11), m.Int64())
}

func TestStaticKeySchemeMismatch(t *testing.T) {
	cfg := testConfig("ristretto255", "paillier")
	b, err := ddhpsi.Setup(cfg)
	require.NoError(t, err)

	eg := testConfig("ristretto255", "elgamal-ristretto255")
	other, err := ddhpsi.Setup(eg)
	require.NoError(t, err)
	sk, err := other.Scheme.GenerateKey(drbg.NewString("mismatch"))
	require.NoError(t, err)

	_, err = ddhpsi.NewParty2(cfg, b, ddhpsi.WithStaticKey(sk))
	require.ErrorIs(t, err, psi.ErrSetup)
}

func TestSetupRejectsUnknownBackends(t *testing.T) {
	cfg := testConfig("p-256", "paillier")
	_, err := ddhpsi.Setup(cfg)
	require.ErrorIs(t, err, psi.ErrSetup)

	cfg = testConfig("ristretto255", "rsa")
	_, err = ddhpsi.Setup(cfg)
	require.ErrorIs(t, err, psi.ErrSetup)
}

func TestPartyTwoLearnsPeerSetSize(t *testing.T) {
	cfg := testConfig("ristretto255", "elgamal-ristretto255")
	res := runLocal(t, cfg, []string{"a", "b", "b", "c"}, records("b", 7))
	require.Equal(t, 4, res.Party2.PeerSetSize)
	require.Equal(t, 4, ddhpsi.Expected(psi.StringIdentifiers([]string{"a", "b", "b", "c"}), nil).PeerSetSize)
}
