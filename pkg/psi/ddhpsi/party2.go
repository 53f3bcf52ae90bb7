package ddhpsi

import (
	"context"
	"math/big"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/blind"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

// Party2 holds the valued records W and the decryption key. It learns |J|
// and Σ_{j∈J} t_j.
type Party2 struct {
	*session
}

// Result is what Party 2 learns.
type Result struct {
	IntersectionSize int
	IntersectionSum  *big.Int
	// PeerSetSize is |V|, which message 1 reveals.
	PeerSetSize int
}

// NewParty2 returns a single-use Party 2 session.
func NewParty2(cfg psi.Config, b Backends, opts ...Option) (*Party2, error) {
	s, err := newSession(cfg, b, psi.RoleP2, opts)
	if err != nil {
		return nil, err
	}
	if sk := s.opts.staticKey; sk != nil && sk.Public().Scheme() != b.Scheme.ID() {
		return nil, psi.Errorf("ddhpsi.NewParty2", psi.ErrSetup, "static key is for %s, session uses %s", sk.Public().Scheme(), b.Scheme.ID())
	}
	return &Party2{session: s}, nil
}

// Run executes the protocol as Party 2 over job.
func (p *Party2) Run(ctx context.Context, job *psi.Job2P, records []psi.Record) (res *Result, err error) {
	if err := p.begin(job); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			res = nil
		}
		p.finish(ctx, job, err)
	}()

	if err := psi.ValidateRecords(records, p.cfg.MaxSetSize); err != nil {
		return nil, err
	}
	k2, err := p.sampleExponent()
	if err != nil {
		return nil, err
	}
	sk, err := p.loadKey()
	if err != nil {
		return nil, err
	}
	pk := sk.Public()
	if err := pk.CheckPlaintexts(recordValues(records)); err != nil {
		return nil, err
	}
	p.log.Info(ctx, "session started", "peer", job.PeerName(), "set_size", len(records),
		logging.Redacted("exponent"), logging.Redacted("decryption_key"))

	data, err := p.receive(ctx, job, wire.TypeRound1)
	if err != nil {
		return nil, err
	}
	m1, err := wire.UnmarshalRound1(data, p.limits())
	if err != nil {
		return nil, err
	}
	if err := p.checkGroup("ddhpsi.Party2.round1", m1.Group); err != nil {
		return nil, err
	}
	x, err := p.blinder.Parse(ctx, m1.Elements)
	if err != nil {
		return nil, classify("ddhpsi.Party2.round1", psi.ErrMalformedMessage, err)
	}
	p.advance(ctx, StateR1Sent, "received_x", len(x))

	out, err := p.round2(ctx, x, records, k2, pk)
	if err != nil {
		return nil, err
	}
	frame, err := out.Marshal()
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party2.round2", psi.ErrSetup, err)
	}
	if err := p.send(ctx, job, wire.TypeRound2, frame); err != nil {
		return nil, err
	}
	p.advance(ctx, StateR2Sent, "sent_y", len(out.Blinded))

	data, err = p.receive(ctx, job, wire.TypeRound3)
	if err != nil {
		return nil, err
	}
	p.advance(ctx, StateR3Sent)
	m3, err := wire.UnmarshalRound3(data)
	if err != nil {
		return nil, err
	}
	bound := maxIntersection(records, len(x))
	if m3.IntersectionSize > uint64(bound) {
		return nil, psi.Errorf("ddhpsi.Party2.round3", psi.ErrMalformedMessage, "claimed intersection %d exceeds bound %d", m3.IntersectionSize, bound)
	}
	c, err := pk.ParseCiphertext(m3.Sum)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party2.round3", psi.ErrMalformedMessage, err)
	}
	sum, err := sk.Decrypt(c)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party2.round3", psi.ErrDecryption, err)
	}
	p.log.Info(ctx, "session complete", "intersection_size", m3.IntersectionSize)
	return &Result{IntersectionSize: int(m3.IntersectionSize), IntersectionSum: sum, PeerSetSize: len(x)}, nil
}

// loadKey installs the session key pair: the static key when configured,
// otherwise a fresh one.
func (p *Party2) loadKey() (he.PrivateKey, error) {
	if sk := p.opts.staticKey; sk != nil {
		p.mu.Lock()
		p.sk, p.static = sk, true
		p.mu.Unlock()
		return sk, nil
	}
	sk, err := p.b.Scheme.GenerateKey(p.opts.rand)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party2.keygen", psi.ErrSetup, err)
	}
	p.mu.Lock()
	p.sk = sk
	p.mu.Unlock()
	return sk, nil
}

// round2 computes Z = shuffle(X^k2) and, concurrently, Y = shuffle(H(W)^k2)
// with C encrypted in Y's order.
func (p *Party2) round2(ctx context.Context, x []group.Element, records []psi.Record, k2 group.Scalar, pk he.PublicKey) (*wire.Round2, error) {
	const op = "ddhpsi.Party2.round2"
	var (
		z   []group.Element
		y   []group.Element
		cts []he.Ciphertext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raised, err := p.blinder.BlindReceived(gctx, x, k2)
		if err != nil {
			return err
		}
		perm, err := p.blinder.Order(len(raised))
		if err != nil {
			return err
		}
		z = blind.Permute(perm, raised)
		return nil
	})
	g.Go(func() error {
		blinded, perm, err := p.blinder.BlindOwn(gctx, psi.Identifiers(records), k2)
		if err != nil {
			return err
		}
		enc, err := p.encryptValues(gctx, pk, blind.Permute(perm, records))
		if err != nil {
			return err
		}
		y, cts = blinded, enc
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, classify(op, psi.ErrSetup, err)
	}

	raw := make([][]byte, len(cts))
	for i, c := range cts {
		raw[i] = c.Bytes()
	}
	return &wire.Round2{
		Group:         p.b.Group.ID(),
		DoubleBlinded: blind.Encode(z),
		Blinded:       blind.Encode(y),
		Scheme:        p.b.Scheme.ID(),
		PublicKey:     pk.Bytes(),
		Ciphertexts:   raw,
	}, nil
}

func (p *Party2) encryptValues(ctx context.Context, pk he.PublicKey, records []psi.Record) ([]he.Ciphertext, error) {
	out := make([]he.Ciphertext, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism())
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := pk.Encrypt(p.opts.rand, big.NewInt(records[i].Value))
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func recordValues(records []psi.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.Value
	}
	return out
}

// maxIntersection bounds |J| given Party 2's records and the size of Party
// 1's set: each of the m1 identifiers of V can match at most every
// occurrence of one identifier of W, so the bound is the sum of the m1
// largest multiplicities in W. Without duplicates in W it is min(m1, m2).
func maxIntersection(records []psi.Record, m1 int) int {
	counts := make(map[string]int, len(records))
	for _, r := range records {
		counts[string(r.Identifier)]++
	}
	mult := make([]int, 0, len(counts))
	for _, c := range counts {
		mult = append(mult, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(mult)))
	bound := 0
	for i := 0; i < len(mult) && i < m1; i++ {
		bound += mult[i]
	}
	return bound
}
