package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/internal/obs"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultIndexInterval = 300 * time.Second
	DefaultSeedInterval  = 3 * time.Second
)

// DirectoryFetcher returns the exchange's current symbol directory.
type DirectoryFetcher interface {
	ExchangeInfo(ctx context.Context) ([]model.SymbolInfo, error)
}

// Option configures a Reconciler.
type Option struct {
	IndexInterval time.Duration
	SeedInterval  time.Duration
	Metrics       *obs.Metrics
}

// Reconciler keeps the cache's symbol coverage in line with the directory.
// It only inserts what is missing and never deletes.
type Reconciler struct {
	cache         *cache.Cache
	fetcher       DirectoryFetcher
	indexInterval time.Duration
	seedInterval  time.Duration
	metrics       *obs.Metrics

	primed atomic.Bool
}

func New(c *cache.Cache, fetcher DirectoryFetcher, opt Option) (*Reconciler, error) {
	if c == nil || fetcher == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "new reconciler")
	}

	index := opt.IndexInterval
	if index <= 0 {
		index = DefaultIndexInterval
	}
	seed := opt.SeedInterval
	if seed <= 0 {
		seed = DefaultSeedInterval
	}

	return &Reconciler{
		cache:         c,
		fetcher:       fetcher,
		indexInterval: index,
		seedInterval:  seed,
		metrics:       opt.Metrics,
	}, nil
}

// Prime fetches the directory once and fills both namespaces. Until it
// succeeds, every loop tick primes again instead of running its own pass.
func (r *Reconciler) Prime(ctx context.Context) error {
	dir, err := r.fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "prime reconciler")
	}

	r.prime(dir)
	return nil
}

func (r *Reconciler) prime(dir []model.SymbolInfo) {
	seeded := r.SeedPrices(dir)
	indexed := r.IndexAssets(dir)
	r.primed.Store(true)
	logs.Infof("reconciler primed, symbols: %d, seeded: %d, indexed: %d", len(dir), seeded, indexed)
}

// Primed reports whether a directory fetch has filled both namespaces.
func (r *Reconciler) Primed() bool {
	return r.primed.Load()
}

// Run drives the asset index loop and the price seed loop until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.loop(ctx, "index", r.indexInterval, r.IndexAssets)
	}()

	r.loop(ctx, "seed", r.seedInterval, r.SeedPrices)
	<-done
}

func (r *Reconciler) loop(ctx context.Context, name string, interval time.Duration, apply func([]model.SymbolInfo) int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dir, err := r.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logs.Errorf("reconcile %s, fetch directory, err: %+v", name, err)
				continue
			}
			if !r.primed.Load() {
				r.prime(dir)
				continue
			}
			if n := apply(dir); n > 0 {
				logs.Infof("reconcile %s, added: %d", name, n)
			}
		}
	}
}

func (r *Reconciler) fetch(ctx context.Context) ([]model.SymbolInfo, error) {
	start := time.Now()
	dir, err := r.fetcher.ExchangeInfo(ctx)
	r.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		r.metrics.IncFetchFailure()
		return nil, err
	}
	return dir, nil
}

// SeedPrices inserts a zero-valued PriceState for every symbol not cached yet
// and returns how many were added.
func (r *Reconciler) SeedPrices(dir []model.SymbolInfo) int {
	added := 0
	for _, info := range dir {
		if r.cache.SeedPrice(info.Symbol, model.NewPriceState(info.BaseAsset, info.QuoteAsset)) {
			added++
		}
	}
	r.metrics.AddSeeded(added)
	return added
}

// IndexAssets adds every symbol to the lists of its base and quote assets
// and returns how many asset/symbol pairs were new.
func (r *Reconciler) IndexAssets(dir []model.SymbolInfo) int {
	added := 0
	for _, info := range dir {
		if r.cache.AppendSymbolForAsset(info.BaseAsset, info.Symbol) {
			added++
		}
		if r.cache.AppendSymbolForAsset(info.QuoteAsset, info.Symbol) {
			added++
		}
	}
	r.metrics.AddIndexed(added)
	return added
}
