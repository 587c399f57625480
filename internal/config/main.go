package config

import (
	"gitlab.com/distributed_lab/kit/comfig"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/kit/pgdb"

	"github.com/dutchx/reconciler-svc/internal/chain"
)

type Config interface {
	comfig.Logger
	pgdb.Databaser

	Networks() Networks
	Checker() Checker
	Reaper() Reaper
	ChainCache() *chain.Cache
}

type config struct {
	comfig.Logger
	pgdb.Databaser
	getter kv.Getter

	networksOnce comfig.Once
	checkerOnce  comfig.Once
	reaperOnce   comfig.Once
	cacheOnce    comfig.Once
}

func New(getter kv.Getter) Config {
	return &config{
		getter:    getter,
		Databaser: pgdb.NewDatabaser(getter),
		Logger:    comfig.NewLogger(getter, comfig.LoggerOpts{}),
	}
}

func (c *config) ChainCache() *chain.Cache {
	return c.cacheOnce.Do(func() interface{} {
		return chain.NewCache(c.Networks().ChainSettings())
	}).(*chain.Cache)
}
