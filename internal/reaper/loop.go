package reaper

import (
	"context"
	"time"

	"gitlab.com/distributed_lab/running"

	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/data/pg"
)

// Run drives the reaper until the context is cancelled: one tick per
// iteration, a fresh sweep after every completed one. An error inside a tick
// keeps the current ChainState and backs the loop off before retrying.
func Run(ctx context.Context, cfg config.Config) {
	log := cfg.Log().WithField("service", "reaper")
	r := New(log, pg.NewOrders(cfg.DB()), cfg.ChainCache(), cfg.Networks(), cfg.Reaper())

	var st *ChainState
	tick := func(ctx context.Context) error {
		if st == nil {
			first := r.networks.List[0].ChainID
			fresh, err := r.NewChainState(ctx, first)
			if err != nil {
				return err
			}
			st = fresh
		}

		next, err := r.Tick(ctx, st)
		if err != nil {
			return err
		}
		st = next

		if st == nil {
			log.Info("sweep finished across all chains")
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.SweepDelay):
			}
		}
		return nil
	}

	log.Info("multi-chain reaper started")
	running.WithBackOff(ctx, log, "reaper", tick,
		r.cfg.TickPeriod, r.cfg.TickPeriod, r.cfg.ErrorPeriod)
}
