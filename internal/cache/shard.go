package cache

import (
	"sync"

	"github.com/matrix-tang/ex-rs/internal/model"
)

type shard struct {
	mu     sync.RWMutex
	assets map[string][]string
	prices map[string]model.PriceState
	quotes map[string]model.QuoteState
}

func newShard() *shard {
	return &shard{
		assets: make(map[string][]string),
		prices: make(map[string]model.PriceState),
		quotes: make(map[string]model.QuoteState),
	}
}

// FNV-1a
func hashString(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var hash uint64 = offset64
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}
