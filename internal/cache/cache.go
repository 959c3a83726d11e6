package cache

import (
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/yanun0323/decimal"
)

const defaultShardCount = 32

// Cache is the in-memory latest-state store shared by the feed, the lanes and
// the reconciler. It holds three namespaces: asset -> symbols, symbol -> price
// and symbol -> quote.
//
// Keys are spread over independently locked shards, so writers to different
// symbols never contend on one lock. Every read-check-write on a single key
// happens under that key's shard lock.
type Cache struct {
	shards []*shard
	mask   uint64
}

// New creates a cache with the default shard count.
func New() *Cache {
	return NewWithShards(defaultShardCount)
}

// NewWithShards creates a cache with n shards, rounded up to a power of two.
func NewWithShards(n int) *Cache {
	size := 1
	for size < n {
		size <<= 1
	}

	shards := make([]*shard, size)
	for i := range shards {
		shards[i] = newShard()
	}

	return &Cache{
		shards: shards,
		mask:   uint64(size - 1),
	}
}

func (c *Cache) shardFor(key string) *shard {
	return c.shards[hashString(key)&c.mask]
}

// Price returns the price state of symbol.
func (c *Cache) Price(symbol string) (model.PriceState, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	p, ok := s.prices[symbol]
	s.mu.RUnlock()
	return p, ok
}

// PutPrice replaces the whole price record of symbol.
func (c *Cache) PutPrice(symbol string, p model.PriceState) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.prices[symbol] = p
	s.mu.Unlock()
}

// SeedPrice inserts p only when symbol has no price record yet.
// It reports whether the record was inserted.
func (c *Cache) SeedPrice(symbol string, p model.PriceState) bool {
	s := c.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.prices[symbol]; exists {
		return false
	}

	s.prices[symbol] = p
	return true
}

// UpdateResult tells the caller what UpdatePrice did.
type UpdateResult uint8

const (
	Updated UpdateResult = iota
	UnknownSymbol
	Stale
)

// UpdatePrice replaces price and updated_at of an existing record, keeping the
// asset fields. Updates older than the stored updated_at are rejected.
func (c *Cache) UpdatePrice(symbol string, price decimal.Decimal, updatedAt int64) (model.PriceState, UpdateResult) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.prices[symbol]
	if !exists {
		return model.PriceState{}, UnknownSymbol
	}

	if updatedAt < current.UpdatedAt {
		return current, Stale
	}

	next := model.PriceState{
		BaseAsset:  current.BaseAsset,
		QuoteAsset: current.QuoteAsset,
		Price:      price,
		UpdatedAt:  updatedAt,
	}
	s.prices[symbol] = next
	return next, Updated
}

// Quote returns the latest quote of symbol.
func (c *Cache) Quote(symbol string) (model.QuoteState, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	q, ok := s.quotes[symbol]
	s.mu.RUnlock()
	return q, ok
}

// PutQuote replaces the whole quote record of symbol.
func (c *Cache) PutQuote(symbol string, q model.QuoteState) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.quotes[symbol] = q
	s.mu.Unlock()
}

// SymbolsForAsset returns a copy of the symbols indexed under asset.
func (c *Cache) SymbolsForAsset(asset string) []string {
	s := c.shardFor(asset)
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := s.assets[asset]
	if len(symbols) == 0 {
		return nil
	}

	out := make([]string, len(symbols))
	copy(out, symbols)
	return out
}

// AppendSymbolForAsset adds symbol to the asset's list unless it is already
// there. It reports whether the list changed.
func (c *Cache) AppendSymbolForAsset(asset, symbol string) bool {
	s := c.shardFor(asset)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.assets[asset] {
		if existing == symbol {
			return false
		}
	}

	s.assets[asset] = append(s.assets[asset], symbol)
	return true
}

// Prices returns a point-in-time copy of every price record.
// Each shard is copied under its own lock, so the result is consistent per key
// but not across shards.
func (c *Cache) Prices() map[string]model.PriceState {
	out := make(map[string]model.PriceState)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, v := range s.prices {
			out[k] = v
		}
		s.mu.RUnlock()
	}
	return out
}

// Assets returns a point-in-time copy of the asset index.
func (c *Cache) Assets() map[string][]string {
	out := make(map[string][]string)
	for _, s := range c.shards {
		s.mu.RLock()
		for k, v := range s.assets {
			symbols := make([]string, len(v))
			copy(symbols, v)
			out[k] = symbols
		}
		s.mu.RUnlock()
	}
	return out
}

// Stats counts the entries in each namespace.
type Stats struct {
	Assets int
	Prices int
	Quotes int
}

func (c *Cache) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		s.mu.RLock()
		st.Assets += len(s.assets)
		st.Prices += len(s.prices)
		st.Quotes += len(s.quotes)
		s.mu.RUnlock()
	}
	return st
}
