// Package blind turns identifier sets into blinded group elements. Party
// inputs are hashed into the group and raised to the party's secret
// exponent; sets received from the peer are raised again without re-hashing.
package blind

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
)

// minChunk keeps goroutine overhead below the cost of the exponentiations.
const minChunk = 64

// Builder blinds sets for one party in one session.
type Builder struct {
	group      group.Group
	rand       io.Reader
	workers    int
	maxSetSize int
	shuffle    bool
}

type Option func(*Builder)

// WithWorkers bounds the number of concurrent exponentiation goroutines.
func WithWorkers(n int) Option { return func(b *Builder) { b.workers = n } }

// WithMaxSetSize bounds the size of sets accepted by BlindReceived.
func WithMaxSetSize(n int) Option { return func(b *Builder) { b.maxSetSize = n } }

// WithShuffle toggles permuting BlindOwn's output. Shuffling is on by
// default; turning it off leaks input order to the peer.
func WithShuffle(on bool) Option { return func(b *Builder) { b.shuffle = on } }

// New returns a Builder over g drawing permutations from rand.
func New(g group.Group, rand io.Reader, opts ...Option) *Builder {
	b := &Builder{group: g, rand: rand, workers: 1, maxSetSize: psi.DefaultMaxSetSize, shuffle: true}
	for _, o := range opts {
		o(b)
	}
	if b.workers < 1 {
		b.workers = 1
	}
	return b
}

// BlindOwn computes HashToElement(id)^k for every identifier. The result is
// permuted when shuffling is on; perm[i] is the index in ids that produced
// elements[i].
func (b *Builder) BlindOwn(ctx context.Context, ids [][]byte, k group.Scalar) ([]group.Element, []int, error) {
	if len(ids) > b.maxSetSize {
		return nil, nil, psi.Errorf("blind.BlindOwn", psi.ErrSizeLimitExceeded, "%d identifiers exceeds limit %d", len(ids), b.maxSetSize)
	}
	out := make([]group.Element, len(ids))
	err := b.parallel(ctx, len(ids), func(i int) error {
		h, err := b.group.HashToElement(ids[i])
		if err != nil {
			return fmt.Errorf("hash identifier %d: %w", i, err)
		}
		e, err := b.group.Exp(h, k)
		if err != nil {
			return fmt.Errorf("blind identifier %d: %w", i, err)
		}
		out[i] = e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	perm, err := b.Order(len(out))
	if err != nil {
		return nil, nil, err
	}
	return Permute(perm, out), perm, nil
}

// BlindReceived raises every element of a peer set to k, preserving order.
func (b *Builder) BlindReceived(ctx context.Context, elems []group.Element, k group.Scalar) ([]group.Element, error) {
	if len(elems) > b.maxSetSize {
		return nil, psi.Errorf("blind.BlindReceived", psi.ErrSizeLimitExceeded, "%d elements exceeds limit %d", len(elems), b.maxSetSize)
	}
	out := make([]group.Element, len(elems))
	err := b.parallel(ctx, len(elems), func(i int) error {
		e, err := b.group.Exp(elems[i], k)
		if err != nil {
			return fmt.Errorf("blind element %d: %w", i, err)
		}
		out[i] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Parse decodes peer-supplied encodings in parallel. One invalid encoding
// fails the whole set with psi.ErrMalformedMessage.
func (b *Builder) Parse(ctx context.Context, raw [][]byte) ([]group.Element, error) {
	if len(raw) > b.maxSetSize {
		return nil, psi.Errorf("blind.Parse", psi.ErrSizeLimitExceeded, "%d elements exceeds limit %d", len(raw), b.maxSetSize)
	}
	out := make([]group.Element, len(raw))
	err := b.parallel(ctx, len(raw), func(i int) error {
		e, err := b.group.ParseElement(raw[i])
		if err != nil {
			return psi.Wrap("blind.Parse", psi.ErrMalformedMessage, fmt.Errorf("element %d: %w", i, err))
		}
		out[i] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Encode returns the canonical encodings of elems.
func Encode(elems []group.Element) [][]byte {
	out := make([][]byte, len(elems))
	for i, e := range elems {
		out[i] = e.Bytes()
	}
	return out
}

// Order returns a uniform permutation of n when shuffling is on and the
// identity otherwise.
func (b *Builder) Order(n int) ([]int, error) {
	if !b.shuffle {
		return Identity(n), nil
	}
	return Permutation(b.rand, n)
}

// parallel runs fn over [0, n) in contiguous chunks on at most b.workers
// goroutines. The first error cancels the remaining chunks.
func (b *Builder) parallel(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return ctx.Err()
	}
	chunk := (n + b.workers - 1) / b.workers
	if chunk < minChunk {
		chunk = minChunk
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
