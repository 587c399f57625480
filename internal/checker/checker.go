// Package checker reconciles individual orders against on-chain truth.
package checker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/chain"
	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/data"
	"github.com/dutchx/reconciler-svc/internal/dutch"
	"github.com/dutchx/reconciler-svc/internal/settlement"
	"github.com/dutchx/reconciler-svc/internal/status"
)

type Checker struct {
	log      *logan.Entry
	orders   data.Orders
	provider chain.Provider
	networks config.Networks
}

func New(log *logan.Entry, orders data.Orders, provider chain.Provider, networks config.Networks) *Checker {
	return &Checker{log: log, orders: orders, provider: provider, networks: networks}
}

// Result is what one reconciliation step decided. The attempt counter is
// carried by the caller between checks, not persisted.
type Result struct {
	OrderStatus        data.OrderStatus
	GetFillLogAttempts int
}

// Handle reconciles one order: validate it on chain, search the scan window
// for a fill when the verdict allows one, decide the next status and persist
// it if it changed. fromBlock overrides the default lookback window start
// when a prior attempt supplied one. At most one repository write happens.
func (c *Checker) Handle(ctx context.Context, order data.Order, attempts int, fromBlock *uint64) (Result, error) {
	// Terminal statuses are final; re-checking one must never move it.
	if order.OrderStatus.Terminal() {
		return Result{OrderStatus: order.OrderStatus}, nil
	}

	network, err := c.networks.Get(order.ChainID)
	if err != nil {
		return Result{}, err
	}

	client, err := c.provider.Client(order.ChainID)
	if err != nil {
		return Result{}, err
	}
	validator, err := c.provider.Validator(order.ChainID, false)
	if err != nil {
		return Result{}, err
	}

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return Result{}, err
	}
	from := uint64(0)
	if currentBlock > network.LookbackBlocks {
		from = currentBlock - network.LookbackBlocks
	}
	if fromBlock != nil {
		from = *fromBlock
	}

	verdict, err := validator.Validate(ctx, order)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to validate order on chain")
	}

	// Only an Expired or NonceUsed verdict can hide a fill; any other verdict
	// makes the event search pointless.
	var fill *chain.FillInfo
	if verdict == chain.VerdictExpired || verdict == chain.VerdictNonceUsed {
		fill, err = c.findFill(ctx, client, order, from, currentBlock, network)
		if err != nil {
			return Result{}, err
		}
	}

	decision := status.Decide(verdict, fill, attempts)
	result := Result{OrderStatus: decision.OrderStatus, GetFillLogAttempts: decision.GetFillLogAttempts}

	// Unchanged status is a no-op: skipping the write keeps downstream change
	// notifications quiet.
	if decision.OrderStatus == order.OrderStatus {
		return result, nil
	}

	upd := data.OrderUpdate{OrderStatus: decision.OrderStatus}
	if decision.Fill != nil {
		upd, err = fillUpdate(order, *decision.Fill)
		if err != nil {
			return Result{}, err
		}
	}
	if err = c.orders.UpdateOrderStatus(order.OrderHash, upd); err != nil {
		return Result{}, errors.Wrap(err, "failed to persist order status")
	}

	if decision.OrderStatus.Terminal() {
		entry := c.log.WithFields(logan.F{
			"order_hash":   order.OrderHash,
			"chain_id":     order.ChainID,
			"order_status": decision.OrderStatus,
		})
		if decision.Fill != nil {
			entry = entry.WithFields(logan.F{
				"tx_hash":    upd.TxHash,
				"fill_block": upd.FillBlock,
				"filler":     upd.Filler,
			})
		}
		entry.Info("order reached terminal state")
	}

	return result, nil
}

func (c *Checker) findFill(ctx context.Context, client chain.Client, order data.Order, from, to uint64, network config.Network) (*chain.FillInfo, error) {
	refs, err := client.FilterFills(ctx, from, to, network.Reactors)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search fill events")
	}

	hash := common.HexToHash(order.OrderHash)
	for _, ref := range refs {
		if ref.OrderHash != hash {
			continue
		}
		fill, err := client.FillInfo(ctx, ref)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch fill info")
		}
		return &fill, nil
	}
	return nil, nil
}

// fillUpdate stages a filled transition: settlement computed from the fill
// event and the order's curves resolved at the fill's timestamp and filler.
func fillUpdate(order data.Order, fill chain.FillInfo) (data.OrderUpdate, error) {
	parsed, err := dutch.FromRecord(order)
	if err != nil {
		return data.OrderUpdate{}, errors.Wrap(err, "failed to decode order record")
	}
	resolved := parsed.Resolve(fill.Timestamp, fill.Filler)

	return data.OrderUpdate{
		OrderStatus:    data.StatusFilled,
		Filler:         fill.Filler.Hex(),
		TxHash:         fill.TxHash.Hex(),
		FillBlock:      fill.BlockNumber,
		SettledAmounts: settlement.Compute(fill, parsed, resolved),
	}, nil
}
