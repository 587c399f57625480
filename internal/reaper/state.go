package reaper

import (
	"github.com/dutchx/reconciler-svc/internal/data"
)

// Stage is the reaper's position within one chain's sweep. Stages only move
// forward in the cycle GetOpenOrders -> ProcessBlocks -> CheckCancelled ->
// UpdateDB, except ProcessBlocks may re-enter itself while block ranges
// remain.
type Stage string

const (
	StageGetOpenOrders  Stage = "GET_OPEN_ORDERS"
	StageProcessBlocks  Stage = "PROCESS_BLOCKS"
	StageCheckCancelled Stage = "CHECK_CANCELLED"
	StageUpdateDB       Stage = "UPDATE_DB"
)

// ChainState is the explicit, resumable state of one chain's sweep, threaded
// between ticks by the caller. Plain data on purpose: nothing here hides in a
// closure, so an external scheduler can persist and resume it.
type ChainState struct {
	ChainID uint64
	Stage   Stage

	// CurrentBlock is the scan cursor, monotonically decreasing towards
	// EarliestBlock; EarliestBlock <= CurrentBlock always holds.
	CurrentBlock  uint64
	EarliestBlock uint64

	// Pending holds the orders still unaccounted for, keyed by order hash;
	// hashes leave the set as their fills are found.
	Pending map[string]data.Order
	// Updates are the staged status decisions, merged only in UPDATE_DB.
	Updates map[string]data.OrderUpdate
}

func newChainState(chainID, currentBlock, earliestBlock uint64) *ChainState {
	if earliestBlock > currentBlock {
		earliestBlock = currentBlock
	}
	return &ChainState{
		ChainID:       chainID,
		Stage:         StageGetOpenOrders,
		CurrentBlock:  currentBlock,
		EarliestBlock: earliestBlock,
		Pending:       make(map[string]data.Order),
		Updates:       make(map[string]data.OrderUpdate),
	}
}
