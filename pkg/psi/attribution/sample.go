package attribution

import (
	"fmt"
	"math/rand/v2"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

// Sample generates a synthetic campaign: viewers ad viewers and purchasers
// purchase records, of which round(purchasers*overlap) belong to viewers.
// Attributed purchases are drawn from [100, 1000], the rest from [50, 500].
func Sample(rng *rand.Rand, viewers, purchasers int, overlap float64) ([][]byte, []psi.Record, error) {
	if viewers < 0 || purchasers < 0 || overlap < 0 || overlap > 1 {
		return nil, nil, psi.Errorf("attribution.Sample", psi.ErrInvalidInput, "invalid sample shape %d/%d/%.2f", viewers, purchasers, overlap)
	}
	attributed := int(float64(purchasers) * overlap)
	if attributed > viewers {
		return nil, nil, psi.Errorf("attribution.Sample", psi.ErrInvalidInput, "%d attributed purchases need at least as many viewers, have %d", attributed, viewers)
	}

	users := make([]string, viewers+purchasers)
	for i := range users {
		users[i] = fmt.Sprintf("user_%06d", i)
	}
	rng.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })

	ids := make([][]byte, viewers)
	for i := range ids {
		ids[i] = []byte(users[i])
	}

	records := make([]psi.Record, 0, purchasers)
	for _, i := range rng.Perm(viewers)[:attributed] {
		records = append(records, psi.Record{Identifier: ids[i], Value: 100 + rng.Int64N(901)})
	}
	for _, u := range users[viewers : viewers+purchasers-attributed] {
		records = append(records, psi.Record{Identifier: []byte(u), Value: 50 + rng.Int64N(451)})
	}
	rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
	return ids, records, nil
}
