package data

import (
	"gitlab.com/distributed_lab/logan/v3/errors"
)

var (
	// ErrOrderNotFound is returned when the referenced order hash is absent.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidCursor is returned for a cursor that fails to decode or was
	// produced by a different index.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrUnsupportedQuery is returned when the filter combination matches no
	// known secondary index.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// MaxQueryLimit bounds the page size of a single query regardless of what the
// caller asks for.
const MaxQueryLimit uint64 = 50

// Orders is the typed repository over the orders store. It owns index
// selection, cursor encoding and atomic writes; callers never touch the store
// directly.
type Orders interface {
	GetByHash(hash string) (*Order, error)
	GetOrders(limit uint64, filters OrderFilters, cursor string) (QueryResult, error)
	PutOrderAndUpdateNonce(order Order) error
	// UpdateOrderStatus applies the staged transition only while the stored
	// status is still open; a row that already reached a terminal status is
	// left untouched.
	UpdateOrderStatus(hash string, upd OrderUpdate) error
	CountByOffererAndStatus(offerer string, status OrderStatus) (uint64, error)
	DeleteOrders(hashes []string) error
}

// OrderFilters is a sparse filter set for GetOrders. Nil fields are absent.
type OrderFilters struct {
	OrderStatus *OrderStatus
	ChainID     *uint64
	Offerer     *string
	Filler      *string
	OrderHash   *string
	OrderHashes []string
	Desc        bool
}

// QueryResult is one page of orders. Cursor is an opaque, index-scoped
// continuation token; an empty cursor means the page was the last one.
type QueryResult struct {
	Orders []Order
	Cursor string
}

// OrderUpdate is a staged status decision, not yet applied to the store.
type OrderUpdate struct {
	OrderStatus    OrderStatus
	Filler         string
	TxHash         string
	FillBlock      uint64
	SettledAmounts []SettledAmount
}
