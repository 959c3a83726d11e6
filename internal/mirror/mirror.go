package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultInterval = 5 * time.Second

	finalFlushTimeout = 5 * time.Second
)

// Option configures a Mirror. Either store may be nil.
type Option struct {
	Interval time.Duration
	Prices   *PriceStore
	Assets   *AssetStore
}

// Mirror copies cache contents into durable stores and can warm the cache
// back up from them. Only records changed since the last flush are written.
type Mirror struct {
	cache    *cache.Cache
	prices   *PriceStore
	assets   *AssetStore
	interval time.Duration

	mu            sync.Mutex
	flushedPrices map[string]model.PriceState
	flushedAssets map[string]int
}

func New(c *cache.Cache, opt Option) (*Mirror, error) {
	if c == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "new mirror")
	}
	if opt.Prices == nil && opt.Assets == nil {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "mirror without store")
	}

	interval := opt.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Mirror{
		cache:         c,
		prices:        opt.Prices,
		assets:        opt.Assets,
		interval:      interval,
		flushedPrices: make(map[string]model.PriceState),
		flushedAssets: make(map[string]int),
	}, nil
}

// Restore loads persisted records into the cache with insert-if-absent
// semantics and returns how many price records were added.
func (m *Mirror) Restore(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	if m.prices != nil {
		prices, err := m.prices.Load(ctx)
		if err != nil {
			return 0, err
		}
		for symbol, p := range prices {
			if m.cache.SeedPrice(symbol, p) {
				restored++
			}
			m.flushedPrices[symbol] = p
		}
	}

	if m.assets != nil {
		assets, err := m.assets.Load(ctx)
		if err != nil {
			return restored, err
		}
		for asset, symbols := range assets {
			for _, symbol := range symbols {
				m.cache.AppendSymbolForAsset(asset, symbol)
			}
		}
	}

	logs.Infof("mirror restored, prices: %d", restored)
	return restored, nil
}

// Flush writes what changed since the previous flush and returns the number
// of price records written.
func (m *Mirror) Flush(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	if m.prices != nil {
		dirty := m.cache.Prices()
		for symbol, p := range dirty {
			if last, ok := m.flushedPrices[symbol]; ok && last.Equal(p) {
				delete(dirty, symbol)
			}
		}
		if err := m.prices.Save(ctx, dirty); err != nil {
			return 0, err
		}
		for symbol, p := range dirty {
			m.flushedPrices[symbol] = p
		}
		written = len(dirty)
	}

	if m.assets != nil {
		// the index only grows and keeps insertion order, so the unflushed
		// part of every list is its tail
		assets := m.cache.Assets()
		for asset, symbols := range assets {
			if n := m.flushedAssets[asset]; n > 0 && n <= len(symbols) {
				assets[asset] = symbols[n:]
			}
			if len(assets[asset]) == 0 {
				delete(assets, asset)
			}
		}
		if err := m.assets.Save(ctx, assets); err != nil {
			return written, err
		}
		for asset, symbols := range assets {
			m.flushedAssets[asset] += len(symbols)
		}
	}

	return written, nil
}

// Run flushes every interval until ctx is done, then flushes once more.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			n, err := m.Flush(flushCtx)
			cancel()
			if err != nil {
				logs.Errorf("mirror final flush, err: %+v", err)
				return
			}
			logs.Infof("mirror final flush, prices: %d", n)
			return
		case <-ticker.C:
			n, err := m.Flush(ctx)
			if err != nil {
				logs.Errorf("mirror flush, err: %+v", err)
				continue
			}
			if n > 0 {
				logs.Debugf("mirror flush, prices: %d", n)
			}
		}
	}
}
