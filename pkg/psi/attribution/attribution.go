// Package attribution turns a PSI-sum result into advertising attribution
// metrics. Party 2 (the merchant) holds every input a report needs: the
// size of the advertiser's audience, its own purchase records and the
// protocol result.
package attribution

import (
	"fmt"
	"math/big"

	"github.com/montanaflynn/stats"

	"github.com/coinbase/cb-psi-go/pkg/psi"
	"github.com/coinbase/cb-psi-go/pkg/psi/ddhpsi"
)

// Report summarizes one attribution run.
type Report struct {
	AdViewers       int
	Purchasers      int
	AttributedUsers int

	// AttributionRate is AttributedUsers/AdViewers.
	AttributionRate float64
	// ConversionRate is AttributedUsers/Purchasers.
	ConversionRate float64

	TotalRevenue      *big.Int
	AttributedRevenue *big.Int

	AvgAttributedRevenue float64
	AvgTotalRevenue      float64
	MedianPurchase       float64
	// RevenueLift is AvgAttributedRevenue/AvgTotalRevenue - 1.
	RevenueLift float64
}

// New builds a report for an audience of adViewers identifiers and the
// purchase records that produced res.
func New(adViewers int, purchases []psi.Record, res *ddhpsi.Result) (*Report, error) {
	const op = "attribution.New"
	if res == nil || res.IntersectionSum == nil {
		return nil, psi.Errorf(op, psi.ErrInvalidInput, "missing protocol result")
	}
	if adViewers < 0 {
		return nil, psi.Errorf(op, psi.ErrInvalidInput, "negative audience size %d", adViewers)
	}
	if res.IntersectionSize > len(purchases) {
		return nil, psi.Errorf(op, psi.ErrInvalidInput, "%d attributed users exceeds %d purchases", res.IntersectionSize, len(purchases))
	}

	r := &Report{
		AdViewers:         adViewers,
		Purchasers:        len(purchases),
		AttributedUsers:   res.IntersectionSize,
		TotalRevenue:      new(big.Int),
		AttributedRevenue: new(big.Int).Set(res.IntersectionSum),
	}
	values := make(stats.Float64Data, len(purchases))
	for i, p := range purchases {
		r.TotalRevenue.Add(r.TotalRevenue, big.NewInt(p.Value))
		values[i] = float64(p.Value)
	}

	r.AttributionRate = ratio(r.AttributedUsers, r.AdViewers)
	r.ConversionRate = ratio(r.AttributedUsers, r.Purchasers)
	if r.AttributedUsers > 0 {
		r.AvgAttributedRevenue = mean(r.AttributedRevenue, r.AttributedUsers)
	}
	if len(values) > 0 {
		var err error
		if r.AvgTotalRevenue, err = values.Mean(); err != nil {
			return nil, psi.Wrap(op, psi.ErrInvalidInput, err)
		}
		if r.MedianPurchase, err = values.Median(); err != nil {
			return nil, psi.Wrap(op, psi.ErrInvalidInput, err)
		}
	}
	if r.AvgTotalRevenue > 0 {
		r.RevenueLift = r.AvgAttributedRevenue/r.AvgTotalRevenue - 1
	}
	return r, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func mean(sum *big.Int, n int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(sum), big.NewFloat(float64(n))).Float64()
	return f
}

func (r *Report) String() string {
	return fmt.Sprintf("attributed %d of %d viewers (%.1f%%), conversion %.1f%%, revenue %s of %s, lift %+.1f%%",
		r.AttributedUsers, r.AdViewers, 100*r.AttributionRate, 100*r.ConversionRate,
		r.AttributedRevenue, r.TotalRevenue, 100*r.RevenueLift)
}
