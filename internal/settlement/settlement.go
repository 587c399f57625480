// Package settlement computes the realized input/output amounts of a fill.
// Pure functions only; callers persist the result.
package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dutchx/reconciler-svc/internal/chain"
	"github.com/dutchx/reconciler-svc/internal/data"
	"github.com/dutchx/reconciler-svc/internal/dutch"
)

// Compute pairs the fill's observed transfers with the order's curves.
// resolved must be the order evaluated at the fill's timestamp and filler.
//
// Exact-input orders settle a fixed input amount; ERC-20 output legs come
// from the transfer logs, native legs from the resolved curve (a native
// transfer emits no log). Exact-output orders settle fixed outputs; the
// actual input is read from the input-token transfer leg, and native outputs
// use their start amount since exact-output orders carry no output decay.
func Compute(fill chain.FillInfo, order *dutch.Order, resolved dutch.ResolvedOrder) []data.SettledAmount {
	if order.ExactInput() {
		return computeExactInput(fill, order, resolved)
	}
	return computeExactOutput(fill, order, resolved)
}

func computeExactInput(fill chain.FillInfo, order *dutch.Order, resolved dutch.ResolvedOrder) []data.SettledAmount {
	amountIn := order.Input.StartAmount
	settled := make([]data.SettledAmount, 0, len(fill.Transfers)+len(resolved.Outputs))

	for _, out := range resolved.Outputs {
		if !dutch.IsNative(out.Token) {
			continue
		}
		settled = append(settled, pair(order.Input.Token, amountIn, out.Token, out.Amount))
	}

	for _, t := range fill.Transfers {
		if t.Token == order.Input.Token {
			continue
		}
		settled = append(settled, pair(order.Input.Token, amountIn, t.Token, t.Amount))
	}
	return settled
}

func computeExactOutput(fill chain.FillInfo, order *dutch.Order, resolved dutch.ResolvedOrder) []data.SettledAmount {
	amountIn := resolved.Input.Amount
	for _, t := range fill.Transfers {
		if t.Token == order.Input.Token {
			amountIn = t.Amount
			break
		}
	}

	settled := make([]data.SettledAmount, 0, len(fill.Transfers)+len(order.Outputs))

	for _, out := range order.Outputs {
		if !dutch.IsNative(out.Token) {
			continue
		}
		settled = append(settled, pair(order.Input.Token, amountIn, out.Token, out.StartAmount))
	}

	for _, t := range fill.Transfers {
		if t.Token == order.Input.Token {
			continue
		}
		settled = append(settled, pair(order.Input.Token, amountIn, t.Token, t.Amount))
	}
	return settled
}

func pair(tokenIn common.Address, amountIn *big.Int, tokenOut common.Address, amountOut *big.Int) data.SettledAmount {
	return data.SettledAmount{
		TokenIn:   tokenIn.Hex(),
		AmountIn:  new(big.Int).Set(amountIn),
		TokenOut:  tokenOut.Hex(),
		AmountOut: new(big.Int).Set(amountOut),
	}
}
