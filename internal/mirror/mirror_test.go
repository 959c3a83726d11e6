package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/pkg/conn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"
)

func newPriceStore(t *testing.T) *PriceStore {
	t.Helper()
	client, err := conn.OpenSQLite(conn.MemorySQLite, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewPriceStore(client.DB())
	require.NoError(t, err)
	return store
}

func newAssetStore(t *testing.T) (*AssetStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewAssetStore(rdb, "TEST:")
	require.NoError(t, err)
	return store, server
}

func loadPrice(t *testing.T, store *PriceStore, symbol string) (model.PriceState, bool) {
	t.Helper()
	all, err := store.Load(context.Background())
	require.NoError(t, err)
	p, ok := all[symbol]
	return p, ok
}

func TestPriceStoreUpsert(t *testing.T) {
	store := newPriceStore(t)
	ctx := context.Background()

	btc := model.PriceState{BaseAsset: "BTC", QuoteAsset: "USDT", Price: decimal.Require("65000.5"), UpdatedAt: 1000}
	require.NoError(t, store.Save(ctx, map[string]model.PriceState{
		"BTCUSDT": btc,
		"ETHUSDT": model.NewPriceState("ETH", "USDT"),
	}))

	got, ok := loadPrice(t, store, "BTCUSDT")
	require.True(t, ok)
	assert.True(t, btc.Equal(got), "got %+v", got)

	btc.Price = decimal.Require("65001")
	btc.UpdatedAt = 2000
	require.NoError(t, store.Save(ctx, map[string]model.PriceState{"BTCUSDT": btc}))

	all, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "65001", all["BTCUSDT"].Price.String())
	assert.Equal(t, int64(2000), all["BTCUSDT"].UpdatedAt)

	_, ok = loadPrice(t, store, "DOGEUSDT")
	assert.False(t, ok)
}

func TestAssetStoreKeepsExistingFields(t *testing.T) {
	store, server := newAssetStore(t)
	ctx := context.Background()

	server.HSet("TEST:BTC", "BTCUSDT", "legacy")
	require.NoError(t, store.Save(ctx, map[string][]string{
		"BTC":  {"BTCUSDT", "BTCEUR"},
		"USDT": {"BTCUSDT"},
	}))

	assert.Equal(t, "legacy", server.HGet("TEST:BTC", "BTCUSDT"))
	assert.Equal(t, "1", server.HGet("TEST:BTC", "BTCEUR"))

	symbols, err := store.Symbols(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCEUR", "BTCUSDT"}, symbols)

	all, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"BTC":  {"BTCEUR", "BTCUSDT"},
		"USDT": {"BTCUSDT"},
	}, all)
}

func TestMirrorFlushWritesOnlyChanges(t *testing.T) {
	prices := newPriceStore(t)
	assets, server := newAssetStore(t)
	ctx := context.Background()

	c := cache.New()
	c.SeedPrice("BTCUSDT", model.NewPriceState("BTC", "USDT"))
	c.SeedPrice("ETHUSDT", model.NewPriceState("ETH", "USDT"))
	c.AppendSymbolForAsset("USDT", "BTCUSDT")

	m, err := New(c, Option{Prices: prices, Assets: assets})
	require.NoError(t, err)

	n, err := m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c.UpdatePrice("BTCUSDT", decimal.NewFromInt(65000), 1000)
	c.AppendSymbolForAsset("USDT", "ETHUSDT")

	n, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := loadPrice(t, prices, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.UpdatedAt)

	keys, err := server.HKeys("TEST:USDT")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, keys)
}

func TestMirrorFlushSameTimestampPriceChange(t *testing.T) {
	prices := newPriceStore(t)
	ctx := context.Background()

	c := cache.New()
	c.SeedPrice("BTCUSDT", model.NewPriceState("BTC", "USDT"))
	c.UpdatePrice("BTCUSDT", decimal.NewFromInt(65000), 1000)

	m, err := New(c, Option{Prices: prices})
	require.NoError(t, err)

	n, err := m.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, res := c.UpdatePrice("BTCUSDT", decimal.NewFromInt(65001), 1000)
	require.Equal(t, cache.Updated, res)

	n, err = m.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := loadPrice(t, prices, "BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "65001", got.Price.String())
}

func TestPriceStoreSkipsCorruptRows(t *testing.T) {
	prices := newPriceStore(t)
	require.NoError(t, prices.db.Create(&PriceRecord{Symbol: "BADUSDT", Value: `{"price":"1.2.3"}`}).Error)
	require.NoError(t, prices.db.Create(&PriceRecord{Symbol: "NOTJSON", Value: `{`}).Error)

	all, err := prices.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMirrorRestore(t *testing.T) {
	prices := newPriceStore(t)
	assets, _ := newAssetStore(t)
	ctx := context.Background()

	require.NoError(t, prices.Save(ctx, map[string]model.PriceState{
		"BTCUSDT": {BaseAsset: "BTC", QuoteAsset: "USDT", Price: decimal.NewFromInt(64000), UpdatedAt: 900},
		"ETHUSDT": {BaseAsset: "ETH", QuoteAsset: "USDT", Price: decimal.NewFromInt(3000), UpdatedAt: 800},
	}))
	require.NoError(t, assets.Save(ctx, map[string][]string{"BTC": {"BTCUSDT"}}))

	c := cache.New()
	live := model.PriceState{BaseAsset: "ETH", QuoteAsset: "USDT", Price: decimal.NewFromInt(3100), UpdatedAt: 1000}
	c.PutPrice("ETHUSDT", live)

	m, err := New(c, Option{Prices: prices, Assets: assets})
	require.NoError(t, err)

	n, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	btc, ok := c.Price("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "64000", btc.Price.String())

	eth, _ := c.Price("ETHUSDT")
	assert.True(t, live.Equal(eth), "restore must not overwrite live records")
	assert.Equal(t, []string{"BTCUSDT"}, c.SymbolsForAsset("BTC"))
}

func TestMirrorRunFinalFlush(t *testing.T) {
	prices := newPriceStore(t)
	c := cache.New()
	c.SeedPrice("BTCUSDT", model.NewPriceState("BTC", "USDT"))

	m, err := New(c, Option{Prices: prices, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop")
	}

	_, ok := loadPrice(t, prices, "BTCUSDT")
	assert.True(t, ok)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(cache.New(), Option{})
	assert.Error(t, err)
	_, err = New(nil, Option{})
	assert.Error(t, err)
}
