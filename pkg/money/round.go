// Package money implements the two-decimal rounding discipline the loan
// engine uses for every derived monetary figure.
package money

import (
	"math"
	"math/big"
	"strconv"
)

// Round2 rounds v to 2 decimal places, half-away-from-zero. Rounding is done
// on the shortest decimal form of v, so a value such as 1.005, whose binary
// representation lies just below the half cent, still rounds to 1.01.
func Round2(v float64) float64 {
	if v < 0 {
		return -Round2(-v)
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'g', -1, 64))
	if !ok {
		return math.Floor(v*100+0.5) / 100
	}
	r.Mul(r, big.NewRat(100, 1)).Add(r, big.NewRat(1, 2))
	cents, _ := new(big.Float).SetInt(new(big.Int).Quo(r.Num(), r.Denom())).Float64()
	return cents / 100
}
