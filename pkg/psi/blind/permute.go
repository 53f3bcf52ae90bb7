package blind

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Permutation returns a uniform random permutation of [0, n) drawn from rand
// with Fisher-Yates.
func Permutation(rand io.Reader, n int) ([]int, error) {
	perm := Identity(n)
	if n < 2 {
		return perm, nil
	}
	r := bufio.NewReaderSize(rand, 8*min(n, 512))
	for i := n - 1; i > 0; i-- {
		j, err := uniform(r, uint64(i)+1)
		if err != nil {
			return nil, fmt.Errorf("blind: permutation: %w", err)
		}
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm, nil
}

// Identity returns [0, 1, ..., n-1].
func Identity(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

// Permute returns out with out[i] = in[perm[i]].
func Permute[T any](perm []int, in []T) []T {
	out := make([]T, len(perm))
	for i, p := range perm {
		out[i] = in[p]
	}
	return out
}

// uniform samples from [0, bound) by rejection.
func uniform(r io.Reader, bound uint64) (uint64, error) {
	limit := math.MaxUint64 - math.MaxUint64%bound
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return v % bound, nil
		}
	}
}
