// Package status turns an on-chain validation verdict and a fill-event search
// result into the order's next status.
package status

import (
	"github.com/dutchx/reconciler-svc/internal/chain"
	"github.com/dutchx/reconciler-svc/internal/data"
)

// Decision is the outcome of one reconciliation step. When OrderStatus equals
// the order's stored status the write must be skipped entirely.
type Decision struct {
	OrderStatus data.OrderStatus
	// Fill is set when the decision is a fill; settlement is computed from it.
	Fill *chain.FillInfo
	// GetFillLogAttempts carries the fill-search attempt counter into the
	// next check while the order stays open.
	GetFillLogAttempts int
}

// Decide applies the verdict/fill decision table.
//
// An Expired or NonceUsed verdict with no fill found is given one extra
// attempt before going terminal: RPC providers index events with a lag, and a
// fill observed late must win over a premature expiry or cancellation.
func Decide(verdict chain.Verdict, fill *chain.FillInfo, attempts int) Decision {
	switch verdict {
	case chain.VerdictExpired, chain.VerdictNonceUsed:
		if fill != nil {
			return Decision{OrderStatus: data.StatusFilled, Fill: fill}
		}
		if attempts == 0 {
			return Decision{OrderStatus: data.StatusOpen, GetFillLogAttempts: attempts + 1}
		}
		if verdict == chain.VerdictExpired {
			return Decision{OrderStatus: data.StatusExpired}
		}
		return Decision{OrderStatus: data.StatusCancelled}

	case chain.VerdictInsufficientFunds:
		return Decision{OrderStatus: data.StatusInsufficientFunds}

	case chain.VerdictInvalidSignature, chain.VerdictInvalidOrderFields, chain.VerdictUnknownError:
		return Decision{OrderStatus: data.StatusError}

	default:
		// OK or unrecognized: leave open, check again later.
		return Decision{OrderStatus: data.StatusOpen, GetFillLogAttempts: attempts}
	}
}
