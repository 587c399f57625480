package checker

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/distributed_lab/logan/v3"

	"github.com/dutchx/reconciler-svc/internal/chain"
	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/data"
)

type appliedUpdate struct {
	hash string
	upd  data.OrderUpdate
}

type fakeOrders struct {
	orders  map[string]data.Order
	updates []appliedUpdate
}

func newFakeOrders(orders ...data.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[string]data.Order)}
	for _, o := range orders {
		f.orders[o.OrderHash] = o
	}
	return f
}

func (f *fakeOrders) GetByHash(hash string) (*data.Order, error) {
	o, ok := f.orders[hash]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeOrders) GetOrders(limit uint64, filters data.OrderFilters, cursor string) (data.QueryResult, error) {
	var result data.QueryResult
	for _, o := range f.orders {
		if filters.OrderStatus != nil && o.OrderStatus != *filters.OrderStatus {
			continue
		}
		if filters.ChainID != nil && o.ChainID != *filters.ChainID {
			continue
		}
		result.Orders = append(result.Orders, o)
	}
	return result, nil
}

func (f *fakeOrders) PutOrderAndUpdateNonce(order data.Order) error {
	f.orders[order.OrderHash] = order
	return nil
}

func (f *fakeOrders) UpdateOrderStatus(hash string, upd data.OrderUpdate) error {
	o, ok := f.orders[hash]
	if !ok {
		return data.ErrOrderNotFound
	}
	o.OrderStatus = upd.OrderStatus
	f.orders[hash] = o
	f.updates = append(f.updates, appliedUpdate{hash: hash, upd: upd})
	return nil
}

func (f *fakeOrders) CountByOffererAndStatus(string, data.OrderStatus) (uint64, error) {
	return 0, nil
}

func (f *fakeOrders) DeleteOrders(hashes []string) error {
	for _, h := range hashes {
		delete(f.orders, h)
	}
	return nil
}

type fakeClient struct {
	blockNumber uint64
	fills       []chain.FillInfo
	fillsErr    error
	filterCalls int
	fillCalls   int
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return f.blockNumber, nil
}

func (f *fakeClient) FilterFills(context.Context, uint64, uint64, []common.Address) ([]chain.FillRef, error) {
	f.filterCalls++
	refs := make([]chain.FillRef, 0, len(f.fills))
	for _, fill := range f.fills {
		refs = append(refs, fill.FillRef)
	}
	return refs, f.fillsErr
}

func (f *fakeClient) FillInfo(_ context.Context, ref chain.FillRef) (chain.FillInfo, error) {
	f.fillCalls++
	for _, fill := range f.fills {
		if fill.OrderHash == ref.OrderHash {
			return fill, nil
		}
	}
	return chain.FillInfo{FillRef: ref}, nil
}

type fakeValidator struct {
	verdict chain.Verdict
	err     error
}

func (f *fakeValidator) Validate(context.Context, data.Order) (chain.Verdict, error) {
	return f.verdict, f.err
}

type fakeProvider struct {
	client          chain.Client
	validator       chain.Validator
	permitValidator chain.Validator
}

func (f *fakeProvider) Client(uint64) (chain.Client, error) {
	return f.client, nil
}

func (f *fakeProvider) Validator(chainID uint64, permit bool) (chain.Validator, error) {
	if permit && f.permitValidator != nil {
		return f.permitValidator, nil
	}
	return f.validator, nil
}

func testNetworks() config.Networks {
	return config.NewNetworks([]config.Network{{
		ChainID:        1,
		BlockTime:      12 * time.Second,
		LookbackBlocks: 100,
	}})
}

func openOrder() data.Order {
	return data.Order{
		OrderHash:      "0x00000000000000000000000000000000000000000000000000000000000000aa",
		ChainID:        1,
		Type:           data.TypeDutch,
		OrderStatus:    data.StatusOpen,
		Offerer:        "0x0000000000000000000000000000000000000001",
		Nonce:          "42",
		Deadline:       2000,
		DecayStartTime: 1000,
		DecayEndTime:   2000,
		Input: data.Input{
			Token:       "0x0000000000000000000000000000000000000002",
			StartAmount: "500",
			EndAmount:   "500",
		},
		Outputs: []data.Output{{
			Token:       "0x0000000000000000000000000000000000000003",
			StartAmount: "100",
			EndAmount:   "90",
			Recipient:   "0x0000000000000000000000000000000000000004",
		}},
	}
}

func newTestChecker(orders *fakeOrders, provider chain.Provider) *Checker {
	return New(logan.New(), orders, provider, testNetworks())
}

func TestHandleExpiredNoFillFirstAttempt(t *testing.T) {
	order := openOrder()
	orders := newFakeOrders(order)
	provider := &fakeProvider{
		client:    &fakeClient{blockNumber: 5000},
		validator: &fakeValidator{verdict: chain.VerdictExpired},
	}

	result, err := newTestChecker(orders, provider).Handle(context.Background(), order, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, data.StatusOpen, result.OrderStatus)
	assert.Equal(t, 1, result.GetFillLogAttempts)
	// Unchanged status: the write is skipped entirely.
	assert.Empty(t, orders.updates)
}

func TestHandleExpiredNoFillSecondAttempt(t *testing.T) {
	order := openOrder()
	orders := newFakeOrders(order)
	provider := &fakeProvider{
		client:    &fakeClient{blockNumber: 5000},
		validator: &fakeValidator{verdict: chain.VerdictExpired},
	}

	result, err := newTestChecker(orders, provider).Handle(context.Background(), order, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, data.StatusExpired, result.OrderStatus)
	require.Len(t, orders.updates, 1)
	assert.Equal(t, data.StatusExpired, orders.updates[0].upd.OrderStatus)
}

func TestHandleNonceUsedWithFill(t *testing.T) {
	order := openOrder()
	fill := chain.FillInfo{
		FillRef: chain.FillRef{
			OrderHash:   common.HexToHash(order.OrderHash),
			Filler:      common.HexToAddress("0x0000000000000000000000000000000000000009"),
			TxHash:      common.HexToHash("0xbeef"),
			BlockNumber: 4990,
		},
		Timestamp: 1500,
		Transfers: []chain.TokenTransfer{{
			Token:  common.HexToAddress(order.Outputs[0].Token),
			Amount: big.NewInt(1),
		}},
	}

	orders := newFakeOrders(order)
	provider := &fakeProvider{
		client:    &fakeClient{blockNumber: 5000, fills: []chain.FillInfo{fill}},
		validator: &fakeValidator{verdict: chain.VerdictNonceUsed},
	}

	result, err := newTestChecker(orders, provider).Handle(context.Background(), order, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, data.StatusFilled, result.OrderStatus)
	require.Len(t, orders.updates, 1)

	upd := orders.updates[0].upd
	assert.Equal(t, fill.TxHash.Hex(), upd.TxHash)
	assert.Equal(t, uint64(4990), upd.FillBlock)
	assert.Equal(t, fill.Filler.Hex(), upd.Filler)
	require.Len(t, upd.SettledAmounts, 1)
	assert.Zero(t, upd.SettledAmounts[0].AmountOut.Cmp(big.NewInt(1)))
	assert.Zero(t, upd.SettledAmounts[0].AmountIn.Cmp(big.NewInt(500)))
}

func TestHandleOKVerdictSkipsFillSearch(t *testing.T) {
	order := openOrder()
	orders := newFakeOrders(order)
	client := &fakeClient{blockNumber: 5000}
	provider := &fakeProvider{
		client:    client,
		validator: &fakeValidator{verdict: chain.VerdictOK},
	}

	result, err := newTestChecker(orders, provider).Handle(context.Background(), order, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, data.StatusOpen, result.OrderStatus)
	assert.Zero(t, client.filterCalls)
	assert.Zero(t, client.fillCalls)
	assert.Empty(t, orders.updates)
}

func TestCheckChainPrunesDepartedOrders(t *testing.T) {
	order := openOrder()
	orders := newFakeOrders(order)
	provider := &fakeProvider{
		client:    &fakeClient{blockNumber: 5000},
		validator: &fakeValidator{verdict: chain.VerdictOK},
	}

	l := &loop{
		log:      logan.New(),
		orders:   orders,
		networks: testNetworks(),
		cfg:      config.Checker{PollPeriod: 30 * time.Second, BatchSize: 50},
		states:   map[uint64]map[string]*orderState{1: {}},
	}
	l.checker = New(l.log, orders, provider, l.networks)

	// State left behind by an order the reaper resolved between polls.
	l.states[1]["0xgone"] = &orderState{retryCount: 3}

	_, _, err := l.checkChain(context.Background(), 1)
	require.NoError(t, err)

	_, stale := l.states[1]["0xgone"]
	assert.False(t, stale)
	_, tracked := l.states[1][order.OrderHash]
	assert.True(t, tracked)
}

func TestHandleTerminalStatusSticks(t *testing.T) {
	// A terminal order never transitions again even if re-checked.
	order := openOrder()
	order.OrderStatus = data.StatusFilled

	orders := newFakeOrders(order)
	provider := &fakeProvider{
		client:    &fakeClient{blockNumber: 5000},
		validator: &fakeValidator{verdict: chain.VerdictNonceUsed},
	}

	result, err := newTestChecker(orders, provider).Handle(context.Background(), order, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, data.StatusFilled, result.OrderStatus)
	assert.Empty(t, orders.updates)
}
