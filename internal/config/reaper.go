package config

import (
	"time"

	"gitlab.com/distributed_lab/figure/v3"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Reaper tunes the staged multi-chain sweep.
type Reaper struct {
	TickPeriod  time.Duration `fig:"tick_period"`
	ErrorPeriod time.Duration `fig:"error_period"`
	SweepDelay  time.Duration `fig:"sweep_delay"`

	BlockRange        uint64 `fig:"block_range"`
	RangesPerTick     int    `fig:"ranges_per_tick"`
	MaxOrdersPerChain uint64 `fig:"max_orders_per_chain"`

	RangeRetries int           `fig:"range_retries"`
	RetryBackoff time.Duration `fig:"retry_backoff"`

	SweepLookback time.Duration `fig:"sweep_lookback"`
}

func (c *config) Reaper() Reaper {
	return c.reaperOnce.Do(func() interface{} {
		var cfg Reaper

		err := figure.Out(&cfg).
			From(kv.MustGetStringMap(c.getter, "reaper")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out reaper"))
		}

		if cfg.TickPeriod == 0 {
			cfg.TickPeriod = time.Second
		}
		if cfg.ErrorPeriod == 0 {
			cfg.ErrorPeriod = time.Minute
		}
		if cfg.SweepDelay == 0 {
			cfg.SweepDelay = 5 * time.Minute
		}
		if cfg.BlockRange == 0 {
			cfg.BlockRange = 5000
		}
		if cfg.RangesPerTick == 0 {
			cfg.RangesPerTick = 10
		}
		if cfg.MaxOrdersPerChain == 0 {
			cfg.MaxOrdersPerChain = 250
		}
		if cfg.RangeRetries == 0 {
			cfg.RangeRetries = 3
		}
		if cfg.RetryBackoff == 0 {
			cfg.RetryBackoff = 2 * time.Second
		}
		if cfg.SweepLookback == 0 {
			cfg.SweepLookback = 7 * 24 * time.Hour
		}
		return cfg
	}).(Reaper)
}
