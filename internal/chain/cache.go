package chain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Provider hands out per-chain clients and validators. The production
// implementation is Cache; tests substitute deterministic fakes.
type Provider interface {
	Client(chainID uint64) (Client, error)
	Validator(chainID uint64, permit bool) (Validator, error)
}

// NetworkSettings is what Cache needs to know about one chain.
type NetworkSettings struct {
	RPC            string
	Quoter         common.Address
	PermitQuoter   common.Address
	RequestTimeout time.Duration
}

// Cache lazily constructs and reuses RPC clients and validators per chain.
// Everything handed out is read-only after construction. Owned by the
// composition root and injected where needed.
type Cache struct {
	mu       sync.Mutex
	networks map[uint64]NetworkSettings

	eth        map[uint64]*ethclient.Client
	clients    map[uint64]Client
	validators map[validatorKey]Validator
}

type validatorKey struct {
	chainID uint64
	permit  bool
}

func NewCache(networks map[uint64]NetworkSettings) *Cache {
	return &Cache{
		networks:   networks,
		eth:        make(map[uint64]*ethclient.Client),
		clients:    make(map[uint64]Client),
		validators: make(map[validatorKey]Validator),
	}
}

func (c *Cache) Client(chainID uint64) (Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[chainID]; ok {
		return cl, nil
	}

	settings, eth, err := c.dial(chainID)
	if err != nil {
		return nil, err
	}

	cl := NewClient(eth, settings.RequestTimeout)
	c.clients[chainID] = cl
	return cl, nil
}

func (c *Cache) Validator(chainID uint64, permit bool) (Validator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := validatorKey{chainID: chainID, permit: permit}
	if v, ok := c.validators[key]; ok {
		return v, nil
	}

	settings, eth, err := c.dial(chainID)
	if err != nil {
		return nil, err
	}

	quoter := settings.Quoter
	if permit {
		quoter = settings.PermitQuoter
	}
	v, err := NewQuoterValidator(eth, quoter, settings.RequestTimeout)
	if err != nil {
		return nil, err
	}

	c.validators[key] = v
	return v, nil
}

// dial must be called with the mutex held.
func (c *Cache) dial(chainID uint64) (NetworkSettings, *ethclient.Client, error) {
	settings, ok := c.networks[chainID]
	if !ok {
		return settings, nil, errors.From(errors.New("chain is not configured"), logan.F{"chain_id": chainID})
	}

	if eth, ok := c.eth[chainID]; ok {
		return settings, eth, nil
	}

	eth, err := ethclient.Dial(settings.RPC)
	if err != nil {
		return settings, nil, errors.Wrap(err, "failed to connect to RPC provider", logan.F{"chain_id": chainID})
	}
	c.eth[chainID] = eth
	return settings, eth, nil
}
