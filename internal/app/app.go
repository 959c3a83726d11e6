package app

import (
	"context"

	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/config"
	"github.com/matrix-tang/ex-rs/internal/feed"
	"github.com/matrix-tang/ex-rs/internal/ingest/binance"
	"github.com/matrix-tang/ex-rs/internal/mirror"
	"github.com/matrix-tang/ex-rs/internal/obs"
	"github.com/matrix-tang/ex-rs/internal/reconcile"
	"github.com/matrix-tang/ex-rs/internal/router"
	"github.com/matrix-tang/ex-rs/pkg/conn"
	"github.com/matrix-tang/ex-rs/pkg/websocket"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"
)

// Option replaces collaborators that are otherwise built from the config.
type Option struct {
	Dialer  websocket.Dialer
	Fetcher reconcile.DirectoryFetcher
}

// App owns every long-lived component of the process. It is built once and
// handed around explicitly.
type App struct {
	cfg *config.Config

	Cache      *cache.Cache
	Metrics    *obs.Metrics
	Router     *router.Router
	Ticker     *feed.Supervisor
	BookTicker *feed.Supervisor
	Reconciler *reconcile.Reconciler
	Mirror     *mirror.Mirror

	closeSignal chan bool
	closers     []func() error
}

// New wires the components described by cfg. The mirror stores are opened
// here; call Close to release them when Run is not used.
func New(ctx context.Context, cfg *config.Config, opt Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	a := &App{
		cfg:         cfg,
		Cache:       cache.New(),
		Metrics:     obs.NewMetrics(),
		closeSignal: make(chan bool, 2),
	}

	a.Router = router.New(a.Cache, router.Option{
		Lanes:        cfg.Router.Lanes,
		QueueSize:    cfg.Router.QueueSize,
		Overflow:     cfg.Router.OverflowPolicy(),
		BlockTimeout: cfg.Router.BlockTimeout,
		Metrics:      a.Metrics,
	})

	dialer := opt.Dialer
	if dialer == nil {
		dialer = websocket.NewDialer(cfg.Feed.WsURL, websocket.DialOption{
			ReadTimeout: cfg.Feed.ReadTimeout,
		})
	}

	var err error
	a.Ticker, err = feed.New(a.Cache, a.Router, a.feedOption("ticker", dialer, cfg.Feed.TickerStreams))
	if err != nil {
		return nil, err
	}
	if cfg.Feed.BookTickerEnabled {
		a.BookTicker, err = feed.New(a.Cache, nil, a.feedOption("book_ticker", dialer, cfg.Feed.BookTickerStreams))
		if err != nil {
			return nil, err
		}
	}

	fetcher := opt.Fetcher
	if fetcher == nil {
		fetcher = binance.NewClient(cfg.Reconcile.RestURL, cfg.Reconcile.FetchTimeout)
	}
	a.Reconciler, err = reconcile.New(a.Cache, fetcher, reconcile.Option{
		IndexInterval: cfg.Reconcile.IndexInterval,
		SeedInterval:  cfg.Reconcile.SeedInterval,
		Metrics:       a.Metrics,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Mirror.Enabled {
		if err := a.openMirror(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) feedOption(name string, dialer websocket.Dialer, streams []string) feed.Option {
	fc := a.cfg.Feed
	return feed.Option{
		Name:             name,
		Dialer:           dialer,
		Streams:          streams,
		SubscribeTimeout: fc.SubscribeTimeout,
		MaxReconnects:    fc.MaxReconnects,
		Backoff: websocket.Backoff{
			Min:    fc.Backoff.Min,
			Max:    fc.Backoff.Max,
			Factor: fc.Backoff.Factor,
			Jitter: fc.Backoff.Jitter,
		},
		CloseSignal: a.closeSignal,
		Metrics:     a.Metrics,
	}
}

func (a *App) openMirror(ctx context.Context) error {
	mc := a.cfg.Mirror

	var (
		client *conn.Client
		err    error
	)
	switch mc.Driver {
	case conn.DriverPostgres:
		client, err = conn.OpenPostgres(conn.PostgresOption{
			Host:     mc.Postgres.Host,
			Port:     mc.Postgres.Port,
			User:     mc.Postgres.User,
			Password: mc.Postgres.Password,
			Database: mc.Postgres.Database,
			SSLMode:  mc.Postgres.SSLMode,
		})
	default:
		client, err = conn.OpenSQLite(mc.SQLite.Path, nil)
	}
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)

	prices, err := mirror.NewPriceStore(client.DB())
	if err != nil {
		return err
	}

	var assets *mirror.AssetStore
	if mc.Redis.Addr != "" {
		rdb, err := conn.OpenRedis(ctx, conn.RedisOption{
			Addr:     mc.Redis.Addr,
			Password: mc.Redis.Password,
			DB:       mc.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)

		assets, err = mirror.NewAssetStore(rdb, mc.Redis.Prefix)
		if err != nil {
			return err
		}
	}

	a.Mirror, err = mirror.New(a.Cache, mirror.Option{
		Interval: mc.Interval,
		Prices:   prices,
		Assets:   assets,
	})
	return err
}

// Run is the control loop. It warms the cache, primes the reconciler (a
// failed prime is retried by the reconcile loops), starts every component and
// blocks until ctx is done, the process receives a
// shutdown signal, or a supervisor terminates. Resources are released before
// it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if a.Mirror != nil && a.cfg.Mirror.Restore {
		if _, err := a.Mirror.Restore(ctx); err != nil {
			logs.Errorf("restore mirror, err: %+v", err)
		}
	}

	if err := a.Reconciler.Prime(ctx); err != nil {
		logs.Errorf("prime reconciler, retry on next tick, err: %+v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	a.Router.Start(ctx)

	eg.Go(func() error {
		return a.Ticker.Run(ctx)
	})
	if a.BookTicker != nil {
		eg.Go(func() error {
			return a.BookTicker.Run(ctx)
		})
	}
	eg.Go(func() error {
		a.Reconciler.Run(ctx)
		return nil
	})
	if a.Mirror != nil {
		eg.Go(func() error {
			a.Mirror.Run(ctx)
			return nil
		})
	}
	eg.Go(func() error {
		a.Metrics.Run(ctx, a.cfg.Metrics.LogInterval)
		return nil
	})
	eg.Go(func() error {
		select {
		case <-ctx.Done():
		case <-sys.Shutdown():
			logs.Info("shutdown signal received")
		case <-a.closeSignal:
			logs.Warnf("feed closed, shutting down")
		}
		cancel()
		return nil
	})

	err := eg.Wait()
	a.Router.Wait()

	logs.Infof("pricecache stopped, stats: %+v, metrics: %+v", a.Cache.Stats(), a.Metrics.Snapshot())
	return err
}

// Close releases the mirror connections. It is safe to call more than once.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
