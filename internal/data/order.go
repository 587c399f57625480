package data

import (
	"math/big"
)

type OrderStatus string

const (
	StatusOpen              OrderStatus = "open"
	StatusFilled            OrderStatus = "filled"
	StatusCancelled         OrderStatus = "cancelled"
	StatusExpired           OrderStatus = "expired"
	StatusError             OrderStatus = "error"
	StatusInsufficientFunds OrderStatus = "insufficient-funds"
)

// Terminal reports whether no further reconciliation may change the status.
func (s OrderStatus) Terminal() bool {
	return s != StatusOpen
}

type OrderType string

const (
	TypeDutch   OrderType = "dutch"
	TypeDutchV2 OrderType = "dutch_v2"
	TypeLimit   OrderType = "limit"
)

// Input is the order's sell leg. Amounts are decimal strings of
// arbitrary-precision integers; decode with big.Int on use.
type Input struct {
	Token       string `json:"token"`
	StartAmount string `json:"startAmount"`
	EndAmount   string `json:"endAmount"`
}

// Output is one buy leg of the order.
type Output struct {
	Token       string `json:"token"`
	StartAmount string `json:"startAmount"`
	EndAmount   string `json:"endAmount"`
	Recipient   string `json:"recipient"`
}

// SettledAmount is one realized input/output pair of a fill.
type SettledAmount struct {
	TokenIn   string   `json:"tokenIn"`
	AmountIn  *big.Int `json:"amountIn"`
	TokenOut  string   `json:"tokenOut"`
	AmountOut *big.Int `json:"amountOut"`
}

// Order is the stored off-chain record of a signed trade order. Identity is
// OrderHash, immutable once created; the row is mutated only through
// UpdateOrderStatus.
type Order struct {
	OrderHash    string      `json:"orderHash"`
	ChainID      uint64      `json:"chainId"`
	Type         OrderType   `json:"type"`
	EncodedOrder string      `json:"encodedOrder"`
	Signature    string      `json:"signature"`
	OrderStatus  OrderStatus `json:"orderStatus"`

	Offerer        string   `json:"offerer"`
	Filler         string   `json:"filler,omitempty"`
	Nonce          string   `json:"nonce"`
	Deadline       uint64   `json:"deadline"`
	DecayStartTime uint64   `json:"decayStartTime"`
	DecayEndTime   uint64   `json:"decayEndTime"`
	Input          Input    `json:"input"`
	Outputs        []Output `json:"outputs"`

	TxHash         string          `json:"txHash,omitempty"`
	FillBlock      uint64          `json:"fillBlock,omitempty"`
	SettledAmounts []SettledAmount `json:"settledAmounts,omitempty"`

	CreatedAt uint64 `json:"createdAt"`
}
