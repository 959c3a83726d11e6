package binance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/yanun0323/errors"
)

const (
	exchangeInfoPath      = "/api/v3/exchangeInfo"
	defaultRequestTimeout = 15 * time.Second
)

// Client talks to the public REST API.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a REST client. An empty baseURL falls back to DefaultRestURL,
// a non-positive timeout to 15 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

type exchangeInfo struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// ExchangeInfo fetches the symbol directory. Entries missing any of symbol,
// base or quote are skipped.
func (c *Client) ExchangeInfo(ctx context.Context) ([]model.SymbolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + exchangeInfoPath
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request").With("url", url)
	}

	resp, err := c.http.Do(r)
	if err != nil {
		return nil, errors.Wrap(exception.ErrDirectoryFetch, "do request").With("url", url).With("cause", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(exception.ErrInResponseError, "unexpected status").With("url", url).With("status", resp.StatusCode)
	}

	var data exchangeInfo
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrap(exception.ErrDirectoryFetch, "decode exchange info").With("cause", err.Error())
	}

	result := make([]model.SymbolInfo, 0, len(data.Symbols))
	for _, s := range data.Symbols {
		if s.Symbol == "" || s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		result = append(result, model.SymbolInfo{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		})
	}
	return result, nil
}
