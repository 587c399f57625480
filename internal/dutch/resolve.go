package dutch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ResolvedAmount is one leg of an order evaluated at a point in time.
type ResolvedAmount struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
}

type ResolvedOrder struct {
	Input   ResolvedAmount
	Outputs []ResolvedAmount
}

// Resolve evaluates the order's decay curves at the given timestamp for the
// given filler. The exclusive filler, when set, settles at start amounts up to
// the decay start; everyone else decays linearly between the decay bounds.
func (o *Order) Resolve(at uint64, filler common.Address) ResolvedOrder {
	exclusive := o.ExclusiveFiller != NativeToken && filler == o.ExclusiveFiller && at <= o.DecayStartTime

	resolved := ResolvedOrder{
		Input: ResolvedAmount{
			Token:  o.Input.Token,
			Amount: decay(o.Input.StartAmount, o.Input.EndAmount, at, o.DecayStartTime, o.DecayEndTime),
		},
		Outputs: make([]ResolvedAmount, 0, len(o.Outputs)),
	}
	if exclusive {
		resolved.Input.Amount = new(big.Int).Set(o.Input.StartAmount)
	}

	for _, out := range o.Outputs {
		amount := decay(out.StartAmount, out.EndAmount, at, o.DecayStartTime, o.DecayEndTime)
		if exclusive {
			amount = new(big.Int).Set(out.StartAmount)
		}
		resolved.Outputs = append(resolved.Outputs, ResolvedAmount{
			Token:     out.Token,
			Amount:    amount,
			Recipient: out.Recipient,
		})
	}
	return resolved
}

// decay interpolates linearly between start and end over [decayStart,
// decayEnd], clamped at both bounds. The end bound is checked first, so a
// zero-duration decay resolves to the end amount once the decay moment passes.
// Integer arithmetic only.
func decay(start, end *big.Int, at, decayStart, decayEnd uint64) *big.Int {
	if at >= decayEnd {
		return new(big.Int).Set(end)
	}
	if at <= decayStart {
		return new(big.Int).Set(start)
	}

	elapsed := new(big.Int).SetUint64(at - decayStart)
	duration := new(big.Int).SetUint64(decayEnd - decayStart)

	delta := new(big.Int).Sub(end, start)
	delta.Mul(delta, elapsed)
	delta.Quo(delta, duration)

	return delta.Add(delta, start)
}
