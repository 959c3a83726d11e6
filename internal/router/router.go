package router

import (
	"context"
	"sync"
	"time"

	"github.com/matrix-tang/ex-rs/internal/cache"
	"github.com/matrix-tang/ex-rs/internal/model"
	"github.com/matrix-tang/ex-rs/internal/obs"
	"github.com/matrix-tang/ex-rs/pkg/exception"
	"github.com/matrix-tang/ex-rs/pkg/queue"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultLanes        = 10
	DefaultQueueSize    = 4096
	DefaultBlockTimeout = 50 * time.Millisecond
)

// Handler consumes one routed event on the given lane.
type Handler func(lane int, ev model.TickerEvent)

// Option configures a Router.
type Option struct {
	Lanes        int
	QueueSize    int
	Overflow queue.OverflowPolicy
	// BlockTimeout bounds Dispatch under OverflowBlock. Non-positive values
	// fall back to DefaultBlockTimeout, so a stalled lane never holds the feed.
	BlockTimeout time.Duration

	// Handler replaces the default cache-inspecting consumer.
	Handler Handler
	Metrics *obs.Metrics
}

// Router fans tick events out to a fixed set of lanes keyed by trade id.
type Router struct {
	cache   *cache.Cache
	lanes   []*Lane
	handler Handler
	metrics *obs.Metrics

	startOnce sync.Once
	wg        sync.WaitGroup
}

// Lane is one sequential consumer with its own bounded queue.
type Lane struct {
	id int
	q  *queue.Queue[model.TickerEvent]
}

// New creates a router with opt.Lanes lanes. The lane count is fixed for the
// lifetime of the router.
func New(c *cache.Cache, opt Option) *Router {
	n := opt.Lanes
	if n <= 0 {
		n = DefaultLanes
	}
	size := opt.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	blockTimeout := opt.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = DefaultBlockTimeout
	}

	r := &Router{
		cache:   c,
		lanes:   make([]*Lane, n),
		handler: opt.Handler,
		metrics: opt.Metrics,
	}
	if r.handler == nil {
		r.handler = r.inspect
	}

	for i := range r.lanes {
		r.lanes[i] = &Lane{
			id: i,
			q: queue.New[model.TickerEvent](queue.Option{
				Capacity:     size,
				Policy:       opt.Overflow,
				BlockTimeout: blockTimeout,
			}),
		}
	}
	return r
}

// Route maps a trade id onto [0, lanes). Negative ids stay in range.
func Route(tradeID int64, lanes int) int {
	n := int64(lanes)
	return int(((tradeID % n) + n) % n)
}

// Route returns the lane index for tradeID.
func (r *Router) Route(tradeID int64) int {
	return Route(tradeID, len(r.lanes))
}

// Len returns the number of lanes.
func (r *Router) Len() int {
	return len(r.lanes)
}

// Lane returns lane i, or nil when out of range.
func (r *Router) Lane(i int) *Lane {
	if i < 0 || i >= len(r.lanes) {
		return nil
	}
	return r.lanes[i]
}

// Dispatch enqueues ev on its lane without waiting for the consumer.
// It returns the lane index together with any enqueue failure.
func (r *Router) Dispatch(ev model.TickerEvent) (int, error) {
	idx := r.Route(ev.TradeID)
	lane := r.lanes[idx]

	dropped := lane.q.Dropped()
	err := lane.q.Push(ev)
	switch {
	case err == nil:
		if lane.q.Dropped() != dropped {
			r.metrics.IncQueueDrop()
		}
		return idx, nil
	case err == queue.ErrQueueClosed:
		r.metrics.IncRouteFailure()
		return idx, errors.Wrap(exception.ErrLaneClosed, "dispatch").
			With("lane", idx).
			With("symbol", ev.Symbol).
			With("trade_id", ev.TradeID)
	default:
		r.metrics.IncQueueDrop()
		return idx, errors.Wrap(err, "dispatch").
			With("lane", idx).
			With("symbol", ev.Symbol).
			With("trade_id", ev.TradeID)
	}
}

// Start launches one consumer goroutine per lane. When ctx is done every
// lane is closed and queued events are abandoned.
func (r *Router) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		for _, lane := range r.lanes {
			r.wg.Add(1)
			go func(lane *Lane) {
				defer r.wg.Done()
				lane.consume(r.handler)
			}(lane)
		}

		go func() {
			<-ctx.Done()
			r.Close()
		}()
	})
}

// Wait blocks until every lane consumer has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close closes every lane.
func (r *Router) Close() {
	for _, lane := range r.lanes {
		lane.Close()
	}
}

// inspect is the default consumer: it reads the symbol's price record and
// the base asset's symbol list and emits them as a debug record.
func (r *Router) inspect(lane int, ev model.TickerEvent) {
	if r.cache == nil {
		return
	}

	price, ok := r.cache.Price(ev.Symbol)
	if !ok {
		logs.Debugf("lane %d, symbol: %s, trade_id: %d, price state: none", lane, ev.Symbol, ev.TradeID)
		return
	}
	symbols := r.cache.SymbolsForAsset(price.BaseAsset)
	logs.Debugf("lane %d, symbol: %s, trade_id: %d, price state: %+v, asset symbols: %v",
		lane, ev.Symbol, ev.TradeID, price, symbols)
}

// ID returns the lane index.
func (l *Lane) ID() int {
	return l.id
}

// Len returns the number of queued events.
func (l *Lane) Len() int {
	return l.q.Len()
}

// Dropped returns the number of events lost to overflow.
func (l *Lane) Dropped() uint64 {
	return l.q.Dropped()
}

// Close stops the lane. Later dispatches to it fail with ErrLaneClosed.
func (l *Lane) Close() {
	l.q.Close()
}

func (l *Lane) consume(handle Handler) {
	for {
		ev, ok := l.q.Pop()
		if !ok {
			return
		}
		handle(l.id, ev)
	}
}
