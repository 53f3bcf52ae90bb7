package ddhpsi

import (
	"context"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/aggregate"
	"github.com/coinbase/cb-psi-go/pkg/psi/blind"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
	"github.com/coinbase/cb-psi-go/pkg/psi/logging"
	"github.com/coinbase/cb-psi-go/pkg/psi/match"
	"github.com/coinbase/cb-psi-go/pkg/psi/wire"
)

// Party1 holds the identifier set V. It learns |J| and nothing about the
// values.
type Party1 struct {
	*session
}

// Party1Result is what Party 1 learns.
type Party1Result struct {
	IntersectionSize int
}

// NewParty1 returns a single-use Party 1 session.
func NewParty1(cfg psi.Config, b Backends, opts ...Option) (*Party1, error) {
	s, err := newSession(cfg, b, psi.RoleP1, opts)
	if err != nil {
		return nil, err
	}
	return &Party1{session: s}, nil
}

// Run executes the protocol as Party 1 over job.
func (p *Party1) Run(ctx context.Context, job *psi.Job2P, ids [][]byte) (res *Party1Result, err error) {
	if err := p.begin(job); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			res = nil
		}
		p.finish(ctx, job, err)
	}()

	if err := psi.ValidateIdentifiers(ids, p.cfg.MaxSetSize); err != nil {
		return nil, err
	}
	k1, err := p.sampleExponent()
	if err != nil {
		return nil, err
	}
	p.log.Info(ctx, "session started", "peer", job.PeerName(), "set_size", len(ids), logging.Redacted("exponent"))

	x, _, err := p.blinder.BlindOwn(ctx, ids, k1)
	if err != nil {
		return nil, classify("ddhpsi.Party1.round1", psi.ErrSetup, err)
	}
	frame, err := (&wire.Round1{Group: p.b.Group.ID(), Elements: blind.Encode(x)}).Marshal()
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party1.round1", psi.ErrSetup, err)
	}
	if err := p.send(ctx, job, wire.TypeRound1, frame); err != nil {
		return nil, err
	}
	p.advance(ctx, StateR1Sent, "sent", len(x))

	data, err := p.receive(ctx, job, wire.TypeRound2)
	if err != nil {
		return nil, err
	}
	m2, err := wire.UnmarshalRound2(data, p.limits())
	if err != nil {
		return nil, err
	}
	in, err := p.parseRound2(ctx, m2, len(x))
	if err != nil {
		return nil, err
	}
	p.advance(ctx, StateR2Sent, "received_z", len(in.z), "received_y", len(in.y))

	zPrime, err := p.blinder.BlindReceived(ctx, in.y, k1)
	if err != nil {
		return nil, classify("ddhpsi.Party1.round3", psi.ErrMalformedMessage, err)
	}
	j := match.Intersect(in.z, zPrime)
	sum, err := aggregate.Sum(ctx, in.pk, p.opts.rand, in.cts, j.Indices, aggregate.WithWorkers(p.cfg.Parallelism()))
	if err != nil {
		return nil, classify("ddhpsi.Party1.round3", psi.ErrMalformedMessage, err)
	}
	frame, err = (&wire.Round3{IntersectionSize: uint64(j.Size()), Sum: sum.Bytes()}).Marshal()
	if err != nil {
		return nil, psi.Wrap("ddhpsi.Party1.round3", psi.ErrSetup, err)
	}
	if err := p.send(ctx, job, wire.TypeRound3, frame); err != nil {
		return nil, err
	}
	p.advance(ctx, StateR3Sent, "intersection_size", j.Size())
	p.log.Info(ctx, "session complete", "intersection_size", j.Size())
	return &Party1Result{IntersectionSize: j.Size()}, nil
}

type round2Input struct {
	z, y []group.Element
	pk   he.PublicKey
	cts  []he.Ciphertext
}

// parseRound2 validates message 2 against what Party 1 sent.
func (p *Party1) parseRound2(ctx context.Context, m *wire.Round2, sent int) (*round2Input, error) {
	const op = "ddhpsi.Party1.parseRound2"
	if err := p.checkGroup(op, m.Group); err != nil {
		return nil, err
	}
	if len(m.DoubleBlinded) != sent {
		return nil, psi.Errorf(op, psi.ErrMalformedMessage, "peer returned %d double-blinded elements for %d sent", len(m.DoubleBlinded), sent)
	}
	if m.Scheme != p.b.Scheme.ID() {
		return nil, psi.Errorf(op, psi.ErrMalformedMessage, "peer uses scheme %s, session uses %s", m.Scheme, p.b.Scheme.ID())
	}
	pk, err := p.b.Scheme.ParsePublicKey(m.PublicKey)
	if err != nil {
		return nil, psi.Wrap(op, psi.ErrMalformedMessage, err)
	}
	z, err := p.blinder.Parse(ctx, m.DoubleBlinded)
	if err != nil {
		return nil, classify(op, psi.ErrMalformedMessage, err)
	}
	y, err := p.blinder.Parse(ctx, m.Blinded)
	if err != nil {
		return nil, classify(op, psi.ErrMalformedMessage, err)
	}
	cts := make([]he.Ciphertext, len(m.Ciphertexts))
	for i, raw := range m.Ciphertexts {
		if cts[i], err = pk.ParseCiphertext(raw); err != nil {
			return nil, psi.Errorf(op, psi.ErrMalformedMessage, "ciphertext %d: %v", i, err)
		}
	}
	return &round2Input{z: z, y: y, pk: pk, cts: cts}, nil
}
