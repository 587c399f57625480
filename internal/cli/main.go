package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin"
	"gitlab.com/distributed_lab/kit/kv"
	"gitlab.com/distributed_lab/logan/v3"

	"github.com/dutchx/reconciler-svc/internal/checker"
	"github.com/dutchx/reconciler-svc/internal/config"
	"github.com/dutchx/reconciler-svc/internal/reaper"
)

func Run(args []string) bool {
	log := logan.New()

	defer func() {
		if rvr := recover(); rvr != nil {
			log.WithRecover(rvr).Error("app panicked")
		}
	}()

	cfg := config.New(kv.MustFromEnv())
	log = cfg.Log()

	app := kingpin.New("reconciler-svc", "order status reconciliation service")
	runCmd := app.Command("run", "run a service")
	checkerCmd := runCmd.Command("checker", "run the per-order status checker")
	reaperCmd := runCmd.Command("reaper", "run the multi-chain reaper")

	cmd, err := app.Parse(args[1:])
	if err != nil {
		log.WithError(err).Error("failed to parse arguments")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Info("shutdown signal received")
		cancel()
	}()

	switch cmd {
	case checkerCmd.FullCommand():
		checker.Run(ctx, cfg)
	case reaperCmd.FullCommand():
		reaper.Run(ctx, cfg)
	default:
		log.Errorf("unknown command %s", cmd)
		return false
	}

	return true
}
