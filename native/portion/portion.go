// Package portion implements the fixed-point percentage arithmetic used by
// every wishport settlement. All portions are expressed as a numerator over
// BasePortion.
package portion

import (
	"errors"
	"fmt"
	"math/big"
)

// BasePortion is the fixed base denominator for all portion arithmetic.
const BasePortion uint64 = 1_000_000

// ErrInvalidPercentile is returned when a portion exceeds BasePortion.
var ErrInvalidPercentile = errors.New("portion: invalid percentile")

var basePortionBig = new(big.Int).SetUint64(BasePortion)

// Compute returns target*percentile/BasePortion using floor division. The
// percentile must be within [0, BasePortion].
func Compute(target *big.Int, percentile uint64) (*big.Int, error) {
	if percentile > BasePortion {
		return nil, fmt.Errorf("%w: %d exceeds base %d", ErrInvalidPercentile, percentile, BasePortion)
	}
	if target == nil {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(target, new(big.Int).SetUint64(percentile))
	return out.Div(out, basePortionBig), nil
}

// Split carves amount into (fee, refund, net) shares. The fee is taken from
// the gross amount, the refund from the remainder, and the net is the
// remainder minus the refund. Net is always derived by subtraction so the
// three shares sum to the gross amount with no rounding leak.
func Split(amount *big.Int, feePortion, refundPortion uint64) (fee, refund, net *big.Int, err error) {
	fee, err = Compute(amount, feePortion)
	if err != nil {
		return nil, nil, nil, err
	}
	remainder := new(big.Int).Sub(cloneOrZero(amount), fee)
	refund, err = Compute(remainder, refundPortion)
	if err != nil {
		return nil, nil, nil, err
	}
	net = new(big.Int).Sub(remainder, refund)
	return fee, refund, net, nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
