package config

import (
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cast"
	"gitlab.com/distributed_lab/figure/v3"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/chain"
)

const defaultRequestTimeout = 10 * time.Second

// Network is one configured chain: where to query it and how its orders
// settle.
type Network struct {
	ChainID          uint64           `fig:"chain_id,required"`
	RPC              string           `fig:"rpc,required"`
	Reactors         []common.Address `fig:"reactors,required"`
	Quoter           common.Address   `fig:"quoter,required"`
	PermitQuoter     common.Address   `fig:"permit_quoter"`
	BlockTime        time.Duration    `fig:"block_time,required"`
	LookbackBlocks   uint64           `fig:"lookback_blocks,required"`
	EarliestBlock    uint64           `fig:"earliest_block"`
	RestrictedTokens []common.Address `fig:"restricted_tokens"`
	RequestTimeout   time.Duration    `fig:"request_timeout"`
}

// Restricted reports whether the token's transfer is permission-gated, which
// forces the permit-based validator.
func (n Network) Restricted(token common.Address) bool {
	for _, t := range n.RestrictedTokens {
		if t == token {
			return true
		}
	}
	return false
}

type Networks struct {
	List []Network
	byID map[uint64]Network
}

// NewNetworks indexes the configured chains, preserving list order.
func NewNetworks(list []Network) Networks {
	n := Networks{List: list, byID: make(map[uint64]Network, len(list))}
	for _, network := range list {
		n.byID[network.ChainID] = network
	}
	return n
}

func (n Networks) Get(chainID uint64) (Network, error) {
	network, ok := n.byID[chainID]
	if !ok {
		return Network{}, errors.From(errors.New("chain is not configured"), logan.F{"chain_id": chainID})
	}
	return network, nil
}

func (n Networks) ChainSettings() map[uint64]chain.NetworkSettings {
	settings := make(map[uint64]chain.NetworkSettings, len(n.List))
	for _, network := range n.List {
		settings[network.ChainID] = chain.NetworkSettings{
			RPC:            network.RPC,
			Quoter:         network.Quoter,
			PermitQuoter:   network.PermitQuoter,
			RequestTimeout: network.RequestTimeout,
		}
	}
	return settings
}

func (c *config) Networks() Networks {
	return c.networksOnce.Do(func() interface{} {
		var cfg struct {
			List []Network `fig:"list,required"`
		}

		err := figure.Out(&cfg).
			With(figure.BaseHooks, figure.EthereumHooks, networksHook).
			From(kv.MustGetStringMap(c.getter, "networks")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out networks"))
		}
		if len(cfg.List) == 0 {
			panic("at least one network must be configured")
		}

		seen := make(map[uint64]struct{}, len(cfg.List))
		for i, network := range cfg.List {
			if network.RequestTimeout == 0 {
				cfg.List[i].RequestTimeout = defaultRequestTimeout
			}
			if _, ok := seen[network.ChainID]; ok {
				panic(errors.From(errors.New("duplicate chain_id in networks"), logan.F{"chain_id": network.ChainID}))
			}
			seen[network.ChainID] = struct{}{}
		}
		return NewNetworks(cfg.List)
	}).(Networks)
}

var networksHook = figure.Hooks{
	"[]config.Network": func(value interface{}) (reflect.Value, error) {
		slice, err := cast.ToSliceE(value)
		if err != nil {
			return reflect.Value{}, errors.Wrap(err, "expected a slice of networks")
		}

		networks := make([]Network, 0, len(slice))
		for _, raw := range slice {
			rawMap, err := cast.ToStringMapE(raw)
			if err != nil {
				return reflect.Value{}, errors.Wrap(err, "expected a network to be a map")
			}

			var network Network
			err = figure.Out(&network).
				With(figure.BaseHooks, figure.EthereumHooks, addressSliceHook).
				From(rawMap).
				Please()
			if err != nil {
				return reflect.Value{}, errors.Wrap(err, "failed to figure out network")
			}
			networks = append(networks, network)
		}
		return reflect.ValueOf(networks), nil
	},
}

var addressSliceHook = figure.Hooks{
	"[]common.Address": func(value interface{}) (reflect.Value, error) {
		raw, err := cast.ToStringSliceE(value)
		if err != nil {
			return reflect.Value{}, errors.Wrap(err, "expected a slice of addresses")
		}

		addresses := make([]common.Address, 0, len(raw))
		for _, s := range raw {
			if !common.IsHexAddress(s) {
				return reflect.Value{}, errors.From(errors.New("invalid address"), logan.F{"address": s})
			}
			addresses = append(addresses, common.HexToAddress(s))
		}
		return reflect.ValueOf(addresses), nil
	},
}
