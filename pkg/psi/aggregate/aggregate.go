// Package aggregate folds the ciphertexts selected by an intersection into a
// single rerandomized ciphertext of their sum.
package aggregate

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/he"
)

// parallelThreshold is the smallest J worth splitting across goroutines.
const parallelThreshold = 256

type options struct {
	workers int
}

type Option func(*options)

// WithWorkers enables a parallel reduction tree over up to n goroutines.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// Sum returns Rerandomize(Encrypt(0) + Σ_{j∈indices} cts[j]). Exactly one
// rerandomization is applied, after all additions, so the result is
// unlinkable to the inputs. An empty index set yields a fresh encryption of
// zero.
func Sum(ctx context.Context, pk he.PublicKey, rand io.Reader, cts []he.Ciphertext, indices []int, opts ...Option) (he.Ciphertext, error) {
	const op = "aggregate.Sum"
	o := options{workers: 1}
	for _, fn := range opts {
		fn(&o)
	}
	for _, j := range indices {
		if j < 0 || j >= len(cts) {
			return nil, psi.Errorf(op, psi.ErrInvalidInput, "index %d out of range [0, %d)", j, len(cts))
		}
	}

	acc, err := he.Zero(rand, pk)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	partial, err := reduce(ctx, pk, cts, indices, o.workers)
	if err != nil {
		return nil, err
	}
	if partial != nil {
		if acc, err = pk.Add(acc, partial); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	out, err := pk.Rerandomize(rand, acc)
	if err != nil {
		return nil, fmt.Errorf("%s: rerandomize: %w", op, err)
	}
	return out, nil
}

// reduce adds the selected ciphertexts. Addition is associative and
// commutative so chunks can be folded independently.
func reduce(ctx context.Context, pk he.PublicKey, cts []he.Ciphertext, indices []int, workers int) (he.Ciphertext, error) {
	if len(indices) == 0 {
		return nil, ctx.Err()
	}
	if workers <= 1 || len(indices) < parallelThreshold {
		return fold(ctx, pk, cts, indices)
	}

	chunk := (len(indices) + workers - 1) / workers
	partials := make([]he.Ciphertext, (len(indices)+chunk-1)/chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range partials {
		lo := i * chunk
		hi := min(lo+chunk, len(indices))
		g.Go(func() error {
			c, err := fold(gctx, pk, cts, indices[lo:hi])
			if err != nil {
				return err
			}
			partials[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fold(ctx, pk, partials, identity(len(partials)))
}

func fold(ctx context.Context, pk he.PublicKey, cts []he.Ciphertext, indices []int) (he.Ciphertext, error) {
	acc := cts[indices[0]]
	for n, j := range indices[1:] {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var err error
		if acc, err = pk.Add(acc, cts[j]); err != nil {
			return nil, fmt.Errorf("add ciphertext %d: %w", j, err)
		}
	}
	return acc, nil
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
