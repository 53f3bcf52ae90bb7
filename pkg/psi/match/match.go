// Package match finds the W-side positions whose double-blinded identifiers
// also occur in Party 1's double-blinded set.
package match

import (
	"github.com/coinbase/cb-psi-go/pkg/psi/group"
)

// Result lists matching positions of the W-side set in ascending order.
type Result struct {
	Indices []int
}

// Size is |J|.
func (r Result) Size() int { return len(r.Indices) }

// Intersect indexes z by encoding and looks up every element of zPrime. Each
// zPrime position is reported at most once, however often its value occurs
// in z, so |J| never exceeds len(zPrime).
//
// Equality is decided on canonical encodings only.
func Intersect(z, zPrime []group.Element) Result {
	if len(z) == 0 || len(zPrime) == 0 {
		return Result{Indices: []int{}}
	}
	index := make(map[string]struct{}, len(z))
	for _, e := range z {
		index[string(e.Bytes())] = struct{}{}
	}
	indices := make([]int, 0, min(len(z), len(zPrime)))
	for j, e := range zPrime {
		if _, ok := index[string(e.Bytes())]; ok {
			indices = append(indices, j)
		}
	}
	return Result{Indices: indices}
}
