package checker

import (
	"context"
	"sync"
	"time"

	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/running"

	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/data"
	"github.com/dutchx/reconciler-svc/internal/data/pg"
	"github.com/dutchx/reconciler-svc/internal/status"
)

// orderState is the loop's in-memory record of an open order between polls.
type orderState struct {
	attempts   int
	retryCount int
	nextCheck  time.Time
}

type loop struct {
	log      *logan.Entry
	orders   data.Orders
	networks config.Networks
	cfg      config.Checker
	checker  *Checker

	// states is keyed by chain, then order hash; each inner map is touched
	// only by its chain's worker.
	states map[uint64]map[string]*orderState
}

// Run drives the poll loop until the context is cancelled. Each iteration
// pages open orders per chain and reconciles them; a panic or error backs the
// loop off before the next iteration.
func Run(ctx context.Context, cfg config.Config) {
	l := &loop{
		log:      cfg.Log().WithField("service", "checker"),
		orders:   pg.NewOrders(cfg.DB()),
		networks: cfg.Networks(),
		cfg:      cfg.Checker(),
		states:   make(map[uint64]map[string]*orderState),
	}
	for _, network := range l.networks.List {
		l.states[network.ChainID] = make(map[string]*orderState)
	}
	l.checker = New(l.log, l.orders, cfg.ChainCache(), l.networks)

	l.log.Info("order status checker started")
	running.WithBackOff(ctx, l.log, "checker", l.iteration,
		l.cfg.PollPeriod, l.cfg.PollPeriod, time.Hour)
}

func (l *loop) iteration(ctx context.Context) error {
	type chainResult struct {
		chainID   uint64
		succeeded int
		failed    int
		err       error
	}

	// One independent unit of work per chain, joined settle-all: a failing
	// chain never cancels its siblings.
	results := make([]chainResult, len(l.networks.List))
	var wg sync.WaitGroup
	for i, network := range l.networks.List {
		wg.Add(1)
		go func(i int, chainID uint64) {
			defer wg.Done()
			r := chainResult{chainID: chainID}
			r.succeeded, r.failed, r.err = l.checkChain(ctx, chainID)
			results[i] = r
		}(i, network.ChainID)
	}
	wg.Wait()

	for _, r := range results {
		entry := l.log.WithFields(logan.F{
			"chain_id":  r.chainID,
			"succeeded": r.succeeded,
			"failed":    r.failed,
		})
		if r.err != nil {
			entry.WithError(r.err).Error("chain poll failed")
			continue
		}
		entry.Debug("chain poll finished")
	}
	return nil
}

func (l *loop) checkChain(ctx context.Context, chainID uint64) (succeeded, failed int, err error) {
	network, err := l.networks.Get(chainID)
	if err != nil {
		return 0, 0, err
	}

	open := data.StatusOpen
	filters := data.OrderFilters{OrderStatus: &open, ChainID: &chainID}

	page, err := l.orders.GetOrders(l.cfg.BatchSize, filters, "")
	if err != nil {
		return 0, 0, err
	}

	states := l.states[chainID]

	// Orders can leave the open set without this loop seeing a terminal
	// result (reaped, bulk-deleted); their state entries must not pile up.
	current := make(map[string]struct{}, len(page.Orders))
	for _, order := range page.Orders {
		current[order.OrderHash] = struct{}{}
	}
	for hash := range states {
		if _, ok := current[hash]; !ok {
			delete(states, hash)
		}
	}

	now := time.Now()
	for _, order := range page.Orders {
		if ctx.Err() != nil {
			return succeeded, failed, nil
		}

		state, ok := states[order.OrderHash]
		if !ok {
			state = &orderState{}
			states[order.OrderHash] = state
		}
		if now.Before(state.nextCheck) {
			continue
		}

		result, err := l.checker.Handle(ctx, order, state.attempts, nil)
		if err != nil {
			// One order's failure is isolated; the batch goes on.
			l.log.WithError(err).WithField("order_hash", order.OrderHash).
				Error("failed to check order")
			failed++
			continue
		}
		succeeded++

		if result.OrderStatus.Terminal() {
			delete(states, order.OrderHash)
			continue
		}
		state.attempts = result.GetFillLogAttempts
		state.retryCount++
		state.nextCheck = now.Add(status.RetryWait(network.BlockTime, state.retryCount))
	}
	return succeeded, failed, nil
}
