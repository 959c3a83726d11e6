package mirror

import (
	"context"
	"sort"
	"strings"

	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

const (
	DefaultAssetPrefix = "EX_ASSET:"

	assetFieldValue = "1"
	scanCount       = 256
)

// AssetStore keeps the asset index as one redis hash per asset:
// prefix+asset -> {symbol: "1"}.
type AssetStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewAssetStore(rdb redis.Cmdable, prefix string) (*AssetStore, error) {
	if rdb == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "new asset store")
	}
	if prefix == "" {
		prefix = DefaultAssetPrefix
	}
	return &AssetStore{rdb: rdb, prefix: prefix}, nil
}

func (s *AssetStore) key(asset string) string {
	return s.prefix + asset
}

// Save adds the given symbols to their asset hashes. Existing fields are left
// untouched.
func (s *AssetStore) Save(ctx context.Context, assets map[string][]string) error {
	if len(assets) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for asset, symbols := range assets {
		for _, symbol := range symbols {
			pipe.HSetNX(ctx, s.key(asset), symbol, assetFieldValue)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "save asset index").With("assets", len(assets))
	}
	return nil
}

// Symbols returns the sorted symbols stored for asset.
func (s *AssetStore) Symbols(ctx context.Context, asset string) ([]string, error) {
	symbols, err := s.rdb.HKeys(ctx, s.key(asset)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "hkeys").With("asset", asset)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Load reads every asset hash under the prefix.
func (s *AssetStore) Load(ctx context.Context) (map[string][]string, error) {
	result := make(map[string][]string)

	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		asset := strings.TrimPrefix(iter.Val(), s.prefix)
		symbols, err := s.Symbols(ctx, asset)
		if err != nil {
			return nil, err
		}
		result[asset] = symbols
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "scan asset index").With("prefix", s.prefix)
	}
	return result, nil
}
