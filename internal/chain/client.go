package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// FillRef is a fill event reference: which order settled, by whom, where.
// Built from the event log alone, no extra RPC calls.
type FillRef struct {
	OrderHash   common.Hash
	Filler      common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

// TokenTransfer is one ERC-20 transfer observed in a fill transaction.
type TokenTransfer struct {
	Token  common.Address
	Amount *big.Int
}

// FillInfo is a reference enriched with the block timestamp and every token
// transfer of the transaction. Native-asset legs do not appear in Transfers.
type FillInfo struct {
	FillRef
	Timestamp uint64
	Transfers []TokenTransfer
}

// Client is the narrow chain-RPC surface the reconciliation core consumes.
// FilterFills is the cheap pass over a block range; FillInfo costs two extra
// RPC calls per reference, so callers enrich only the references they need.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterFills(ctx context.Context, fromBlock, toBlock uint64, reactors []common.Address) ([]FillRef, error)
	FillInfo(ctx context.Context, ref FillRef) (FillInfo, error)
}

var (
	fillTopic     = crypto.Keccak256Hash([]byte("Fill(bytes32,address,address,uint256)"))
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

type client struct {
	eth            *ethclient.Client
	requestTimeout time.Duration
}

func NewClient(eth *ethclient.Client, requestTimeout time.Duration) Client {
	return &client{eth: eth, requestTimeout: requestTimeout}
}

func (c *client) BlockNumber(ctx context.Context) (uint64, error) {
	child, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	n, err := c.eth.BlockNumber(child)
	return n, errors.Wrap(err, "failed to get eth_blockNumber")
}

func (c *client) FilterFills(ctx context.Context, fromBlock, toBlock uint64, reactors []common.Address) ([]FillRef, error) {
	logs, err := c.filterFillLogs(ctx, fromBlock, toBlock, reactors)
	if err != nil {
		return nil, err
	}

	refs := make([]FillRef, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		refs = append(refs, FillRef{
			OrderHash:   l.Topics[1],
			Filler:      common.BytesToAddress(l.Topics[2].Bytes()),
			TxHash:      l.TxHash,
			BlockNumber: l.BlockNumber,
		})
	}
	return refs, nil
}

func (c *client) FillInfo(ctx context.Context, ref FillRef) (FillInfo, error) {
	info := FillInfo{FillRef: ref}

	child, cancel := context.WithTimeout(ctx, c.requestTimeout)
	header, err := c.eth.HeaderByNumber(child, new(big.Int).SetUint64(ref.BlockNumber))
	cancel()
	if err != nil {
		return info, errors.Wrap(err, "failed to get block header", logan.F{"block": ref.BlockNumber})
	}
	info.Timestamp = header.Time

	child, cancel = context.WithTimeout(ctx, c.requestTimeout)
	receipt, err := c.eth.TransactionReceipt(child, ref.TxHash)
	cancel()
	if err != nil {
		return info, errors.Wrap(err, "failed to get fill tx receipt", logan.F{"tx": ref.TxHash.Hex()})
	}
	info.Transfers = extractTransfers(receipt.Logs)

	return info, nil
}

func (c *client) filterFillLogs(ctx context.Context, fromBlock, toBlock uint64, reactors []common.Address) ([]types.Log, error) {
	child, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: reactors,
		Topics:    [][]common.Hash{{fillTopic}},
	}
	logs, err := c.eth.FilterLogs(child, query)
	return logs, errors.Wrap(err, "failed to filter fill logs", logan.F{
		"from_block": fromBlock,
		"to_block":   toBlock,
	})
}

func extractTransfers(logs []*types.Log) []TokenTransfer {
	transfers := make([]TokenTransfer, 0, len(logs))
	for _, l := range logs {
		// An ERC-20 Transfer carries indexed from/to, amount in data.
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic || len(l.Data) == 0 {
			continue
		}
		transfers = append(transfers, TokenTransfer{
			Token:  l.Address,
			Amount: new(big.Int).SetBytes(l.Data),
		})
	}
	return transfers
}
