package ddhpsi

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/mocknet"
)

// LocalResult combines both parties' outputs of an in-process run.
type LocalResult struct {
	Party1 *Party1Result
	Party2 *Result
}

// RunLocal runs both roles in this process over an in-memory transport.
// p1 and p2 configure the respective parties.
func RunLocal(ctx context.Context, cfg psi.Config, ids [][]byte, records []psi.Record, p1, p2 []Option) (*LocalResult, error) {
	b, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	party1, err := NewParty1(cfg, b, p1...)
	if err != nil {
		return nil, err
	}
	party2, err := NewParty2(cfg, b, p2...)
	if err != nil {
		return nil, err
	}

	ep1, ep2 := mocknet.New().Pair()
	names := [2]string{"p1", "p2"}
	job1, err := psi.NewJob2PWithContext(ctx, ep1, psi.RoleP1, names)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.RunLocal", psi.ErrSetup, err)
	}
	defer job1.Close()
	job2, err := psi.NewJob2PWithContext(ctx, ep2, psi.RoleP2, names)
	if err != nil {
		return nil, psi.Wrap("ddhpsi.RunLocal", psi.ErrSetup, err)
	}
	defer job2.Close()

	var (
		out        LocalResult
		err1, err2 error
		wg         sync.WaitGroup
	)
	wg.Go(func() { out.Party1, err1 = party1.Run(ctx, job1, ids) })
	wg.Go(func() { out.Party2, err2 = party2.Run(ctx, job2, records) })
	wg.Wait()
	if err := rootCause(err1, err2); err != nil {
		return nil, err
	}
	return &out, nil
}

// rootCause prefers the failure that made the other party abort.
func rootCause(errs ...error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, psi.ErrPeerAborted) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// Expected computes the protocol output in the clear. It is the reference
// the protocol is checked against: every record whose identifier occurs in
// ids counts once.
func Expected(ids [][]byte, records []psi.Record) *Result {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[string(id)] = struct{}{}
	}
	res := &Result{IntersectionSum: new(big.Int), PeerSetSize: len(ids)}
	for _, r := range records {
		if _, ok := set[string(r.Identifier)]; ok {
			res.IntersectionSize++
			res.IntersectionSum.Add(res.IntersectionSum, big.NewInt(r.Value))
		}
	}
	return res
}
