package config

import (
	"time"

	"gitlab.com/distributed_lab/figure/v3"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Checker tunes the per-order poll loop.
type Checker struct {
	PollPeriod time.Duration `fig:"poll_period"`
	BatchSize  uint64        `fig:"batch_size"`
}

func (c *config) Checker() Checker {
	return c.checkerOnce.Do(func() interface{} {
		var cfg Checker

		err := figure.Out(&cfg).
			From(kv.MustGetStringMap(c.getter, "checker")).
			Please()
		if err != nil {
			panic(errors.Wrap(err, "failed to figure out checker"))
		}

		if cfg.PollPeriod == 0 {
			cfg.PollPeriod = 30 * time.Second
		}
		if cfg.BatchSize == 0 {
			cfg.BatchSize = 50
		}
		return cfg
	}).(Checker)
}
