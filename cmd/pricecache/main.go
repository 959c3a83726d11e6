package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/matrix-tang/ex-rs/internal/app"
	"github.com/matrix-tang/ex-rs/internal/config"
	"github.com/yanun0323/logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("pricecache: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to YAML config (optional, EXRS_* env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling.Enabled {
		stopProfiler, err := startProfiler(cfg.Profiling)
		if err != nil {
			return err
		}
		defer stopProfiler()
	}

	a, err := app.New(ctx, cfg, app.Option{})
	if err != nil {
		return err
	}

	logs.Infof("pricecache starting, ws: %s, rest: %s, lanes: %d, mirror: %t",
		cfg.Feed.WsURL, cfg.Reconcile.RestURL, cfg.Router.Lanes, cfg.Mirror.Enabled)
	return a.Run(ctx)
}
