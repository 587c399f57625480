package chain

// Verdict is the on-chain validator's classification of an order's current
// redeemability.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictExpired
	VerdictNonceUsed
	VerdictInsufficientFunds
	VerdictInvalidSignature
	VerdictInvalidOrderFields
	VerdictUnknownError
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictExpired:
		return "expired"
	case VerdictNonceUsed:
		return "nonce-used"
	case VerdictInsufficientFunds:
		return "insufficient-funds"
	case VerdictInvalidSignature:
		return "invalid-signature"
	case VerdictInvalidOrderFields:
		return "invalid-order-fields"
	default:
		return "unknown-error"
	}
}
