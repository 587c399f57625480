// Package reaper periodically re-derives on-chain truth for every unresolved
// order on every configured chain, correcting status drift the per-order
// checker may have missed.
package reaper

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/chain"
	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/data"
	"github.com/dutchx/reconciler-svc/internal/dutch"
	"github.com/dutchx/reconciler-svc/internal/settlement"
)

type Reaper struct {
	log      *logan.Entry
	orders   data.Orders
	provider chain.Provider
	networks config.Networks
	cfg      config.Reaper

	// cursors persists the repository paging position per chain across
	// sweeps, so a sweep resumes where the previous one stopped.
	cursors map[uint64]string
}

func New(log *logan.Entry, orders data.Orders, provider chain.Provider, networks config.Networks, cfg config.Reaper) *Reaper {
	return &Reaper{
		log:      log,
		orders:   orders,
		provider: provider,
		networks: networks,
		cfg:      cfg,
		cursors:  make(map[uint64]string),
	}
}

// NewChainState opens a sweep of the given chain: the scan window covers the
// configured sweep lookback, clamped to the chain's earliest-block floor.
func (r *Reaper) NewChainState(ctx context.Context, chainID uint64) (*ChainState, error) {
	network, err := r.networks.Get(chainID)
	if err != nil {
		return nil, err
	}
	client, err := r.provider.Client(chainID)
	if err != nil {
		return nil, err
	}

	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get current block", logan.F{"chain_id": chainID})
	}

	lookback := uint64(r.cfg.SweepLookback / network.BlockTime)
	earliest := network.EarliestBlock
	if currentBlock > lookback && currentBlock-lookback > earliest {
		earliest = currentBlock - lookback
	}
	return newChainState(chainID, currentBlock, earliest), nil
}

// Tick advances the chain's sweep by exactly one stage. After UPDATE_DB it
// returns the next chain's fresh state, or nil when the sweep covered the
// last configured chain.
func (r *Reaper) Tick(ctx context.Context, st *ChainState) (*ChainState, error) {
	switch st.Stage {
	case StageGetOpenOrders:
		return st, r.getOpenOrders(st)
	case StageProcessBlocks:
		return st, r.processBlocks(ctx, st)
	case StageCheckCancelled:
		return st, r.checkCancelled(ctx, st)
	case StageUpdateDB:
		return r.updateDB(ctx, st)
	default:
		return nil, errors.From(errors.New("unknown reaper stage"), logan.F{"stage": st.Stage})
	}
}

// getOpenOrders pages unresolved orders for the chain, bounded per sweep. The
// repository cursor is kept for the next sweep unless a page came up short,
// which means the chain's open set was exhausted and the next sweep starts
// over.
func (r *Reaper) getOpenOrders(st *ChainState) error {
	open := data.StatusOpen
	filters := data.OrderFilters{OrderStatus: &open, ChainID: &st.ChainID}

	cursor := r.cursors[st.ChainID]
	var garbage []string

	for uint64(len(st.Pending)) < r.cfg.MaxOrdersPerChain {
		page, err := r.orders.GetOrders(data.MaxQueryLimit, filters, cursor)
		if err != nil {
			return errors.Wrap(err, "failed to page open orders", logan.F{"chain_id": st.ChainID})
		}

		for _, order := range page.Orders {
			if _, err := dutch.FromRecord(order); err != nil {
				// Unparseable rows are garbage left by tests or aborted
				// submissions; collect them for deletion instead of retrying
				// them forever.
				r.log.WithError(err).WithField("order_hash", order.OrderHash).
					Warn("dropping undecodable order row")
				garbage = append(garbage, order.OrderHash)
				continue
			}
			st.Pending[order.OrderHash] = order
		}

		cursor = page.Cursor
		if uint64(len(page.Orders)) < data.MaxQueryLimit {
			cursor = ""
			break
		}
		if cursor == "" {
			break
		}
	}
	r.cursors[st.ChainID] = cursor

	if len(garbage) > 0 {
		if err := r.orders.DeleteOrders(garbage); err != nil {
			r.log.WithError(err).Warn("failed to delete garbage order rows")
		}
	}

	st.Stage = StageProcessBlocks
	return nil
}

// processBlocks scans up to RangesPerTick fixed-size block ranges newest to
// oldest for fill events matching pending orders. A range that keeps failing
// is skipped, not fatal; scanning continues with the next one.
func (r *Reaper) processBlocks(ctx context.Context, st *ChainState) error {
	network, err := r.networks.Get(st.ChainID)
	if err != nil {
		return err
	}
	client, err := r.provider.Client(st.ChainID)
	if err != nil {
		return err
	}

	for i := 0; i < r.cfg.RangesPerTick && st.CurrentBlock > st.EarliestBlock; i++ {
		from := st.EarliestBlock
		if st.CurrentBlock > r.cfg.BlockRange && st.CurrentBlock-r.cfg.BlockRange > from {
			from = st.CurrentBlock - r.cfg.BlockRange + 1
		}

		refs, err := r.fetchRefsWithRetry(ctx, client, from, st.CurrentBlock, network.Reactors)
		if err != nil {
			r.log.WithError(err).WithFields(logan.F{
				"chain_id":   st.ChainID,
				"from_block": from,
				"to_block":   st.CurrentBlock,
			}).Error("skipping block range after retries were exhausted")
		} else {
			r.stageFills(ctx, client, st, refs)
		}

		if from <= st.EarliestBlock {
			st.CurrentBlock = st.EarliestBlock
			break
		}
		st.CurrentBlock = from - 1
	}

	if st.CurrentBlock <= st.EarliestBlock {
		st.CurrentBlock = st.EarliestBlock
		st.Stage = StageCheckCancelled
	}
	return nil
}

// fetchRefsWithRetry retries a single range fetch with error-count-weighted
// linear backoff between attempts.
func (r *Reaper) fetchRefsWithRetry(ctx context.Context, client chain.Client, from, to uint64, reactors []common.Address) ([]chain.FillRef, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.RangeRetries; attempt++ {
		refs, err := client.FilterFills(ctx, from, to, reactors)
		if err == nil {
			return refs, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * r.cfg.RetryBackoff):
		}
	}
	return nil, lastErr
}

// stageFills enriches only the references matching a pending order; fills of
// orders this sweep does not track cost no extra RPC calls. An enrichment
// failure leaves the order pending for CHECK_CANCELLED or the next sweep.
func (r *Reaper) stageFills(ctx context.Context, client chain.Client, st *ChainState, refs []chain.FillRef) {
	for _, ref := range refs {
		hash := ref.OrderHash.Hex()

		order, ok := st.Pending[hash]
		if !ok {
			continue
		}

		fill, err := client.FillInfo(ctx, ref)
		if err != nil {
			r.log.WithError(err).WithField("order_hash", hash).
				Error("failed to fetch fill info for pending order")
			continue
		}

		parsed, err := dutch.FromRecord(order)
		if err != nil {
			r.log.WithError(err).WithField("order_hash", hash).
				Error("failed to decode pending order record")
			continue
		}
		resolved := parsed.Resolve(fill.Timestamp, fill.Filler)

		st.Updates[hash] = data.OrderUpdate{
			OrderStatus:    data.StatusFilled,
			Filler:         fill.Filler.Hex(),
			TxHash:         fill.TxHash.Hex(),
			FillBlock:      fill.BlockNumber,
			SettledAmounts: settlement.Compute(fill, parsed, resolved),
		}
		delete(st.Pending, hash)
	}
}

// checkCancelled re-validates every order whose fill was not found. A used
// nonce means the order was cancelled; a passed deadline, checked
// independently of the validator, means it expired. Per-order failures are
// isolated and logged.
func (r *Reaper) checkCancelled(ctx context.Context, st *ChainState) error {
	network, err := r.networks.Get(st.ChainID)
	if err != nil {
		return err
	}

	now := uint64(time.Now().Unix())
	for hash, order := range st.Pending {
		// Restricted-transfer tokens cannot be probed by the default quoting
		// contract; the permit-based validator takes over for those.
		permit := network.Restricted(common.HexToAddress(order.Input.Token))
		validator, err := r.provider.Validator(st.ChainID, permit)
		if err != nil {
			return err
		}

		verdict, err := validator.Validate(ctx, order)
		if err != nil {
			r.log.WithError(err).WithField("order_hash", hash).
				Error("failed to re-validate pending order")
			continue
		}

		switch {
		case verdict == chain.VerdictNonceUsed:
			st.Updates[hash] = data.OrderUpdate{OrderStatus: data.StatusCancelled}
		case order.Deadline < now:
			st.Updates[hash] = data.OrderUpdate{OrderStatus: data.StatusExpired}
		}
	}

	st.Stage = StageUpdateDB
	return nil
}

// updateDB flushes the staged updates, then hands over to the next configured
// chain or, after the last one, reports sweep completion with a nil state.
func (r *Reaper) updateDB(ctx context.Context, st *ChainState) (*ChainState, error) {
	var applied, failed int
	for hash, upd := range st.Updates {
		if err := r.orders.UpdateOrderStatus(hash, upd); err != nil {
			r.log.WithError(err).WithField("order_hash", hash).
				Error("failed to apply staged order update")
			failed++
			continue
		}
		applied++
	}
	r.log.WithFields(logan.F{
		"chain_id": st.ChainID,
		"applied":  applied,
		"failed":   failed,
	}).Info("reaper flushed staged updates")

	next, ok := r.nextChain(st.ChainID)
	if !ok {
		return nil, nil
	}
	return r.NewChainState(ctx, next)
}

func (r *Reaper) nextChain(chainID uint64) (uint64, bool) {
	for i, network := range r.networks.List {
		if network.ChainID == chainID && i+1 < len(r.networks.List) {
			return r.networks.List[i+1].ChainID, true
		}
	}
	return 0, false
}
