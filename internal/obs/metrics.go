package obs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/matrix-tang/ex-rs/internal/model/enum"
	"github.com/yanun0323/logs"
)

const maxEventKind = int(enum.EventBookTicker)

// Metrics collects lightweight pipeline counters and latency stats.
type Metrics struct {
	eventCounts [maxEventKind + 1]uint64

	decodeDrops    uint64
	invalidNumbers uint64
	routeFailures  uint64
	queueDrops     uint64
	unknownSymbols uint64
	staleTicks     uint64
	priceUpdates   uint64
	quoteUpdates   uint64
	reconnects     uint64
	fetchFailures  uint64
	seeded         uint64
	indexed        uint64

	eventLatency LatencyStats
	fetchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts    map[enum.EventKind]uint64
	DecodeDrops    uint64
	InvalidNumbers uint64
	RouteFailures  uint64
	QueueDrops     uint64
	UnknownSymbols uint64
	StaleTicks     uint64
	PriceUpdates   uint64
	QuoteUpdates   uint64
	Reconnects     uint64
	FetchFailures  uint64
	Seeded         uint64
	Indexed        uint64
	EventLatency   LatencySnapshot
	FetchLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts a decoded event and tracks wire latency when both
// timestamps (epoch millis) are present.
func (m *Metrics) ObserveEvent(kind enum.EventKind, eventTime, recvTime int64) {
	if m == nil {
		return
	}
	if kind.IsAvailable() {
		atomic.AddUint64(&m.eventCounts[kind], 1)
	}
	if eventTime > 0 && recvTime > 0 {
		delta := recvTime - eventTime
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta) * time.Millisecond)
		}
	}
}

func (m *Metrics) add(counter *uint64, n uint64) {
	if m == nil || n == 0 {
		return
	}
	atomic.AddUint64(counter, n)
}

// IncDecodeDrop records a payload element that could not be decoded.
func (m *Metrics) IncDecodeDrop() {
	if m == nil {
		return
	}
	m.add(&m.decodeDrops, 1)
}

// IncInvalidNumber records a numeric field that defaulted to zero.
func (m *Metrics) IncInvalidNumber() {
	if m == nil {
		return
	}
	m.add(&m.invalidNumbers, 1)
}

// IncRouteFailure records an event that could not be handed to its lane.
func (m *Metrics) IncRouteFailure() {
	if m == nil {
		return
	}
	m.add(&m.routeFailures, 1)
}

// IncQueueDrop records an event lost to lane queue overflow.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	m.add(&m.queueDrops, 1)
}

// IncUnknownSymbol records a tick for a symbol the cache has not seeded yet.
func (m *Metrics) IncUnknownSymbol() {
	if m == nil {
		return
	}
	m.add(&m.unknownSymbols, 1)
}

// IncStaleTick records a tick older than the cached price.
func (m *Metrics) IncStaleTick() {
	if m == nil {
		return
	}
	m.add(&m.staleTicks, 1)
}

// IncPriceUpdate records an applied price write.
func (m *Metrics) IncPriceUpdate() {
	if m == nil {
		return
	}
	m.add(&m.priceUpdates, 1)
}

// IncQuoteUpdate records an applied quote write.
func (m *Metrics) IncQuoteUpdate() {
	if m == nil {
		return
	}
	m.add(&m.quoteUpdates, 1)
}

// IncReconnect records a feed reconnect attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.add(&m.reconnects, 1)
}

// IncFetchFailure records a failed directory fetch.
func (m *Metrics) IncFetchFailure() {
	if m == nil {
		return
	}
	m.add(&m.fetchFailures, 1)
}

// AddSeeded records newly seeded price records.
func (m *Metrics) AddSeeded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.add(&m.seeded, uint64(n))
}

// AddIndexed records newly indexed asset/symbol pairs.
func (m *Metrics) AddIndexed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.add(&m.indexed, uint64(n))
}

// ObserveFetch measures a directory fetch round trip.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[enum.EventKind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[enum.EventKind(i)] = v
		}
	}
	return Snapshot{
		EventCounts:    eventCounts,
		DecodeDrops:    atomic.LoadUint64(&m.decodeDrops),
		InvalidNumbers: atomic.LoadUint64(&m.invalidNumbers),
		RouteFailures:  atomic.LoadUint64(&m.routeFailures),
		QueueDrops:     atomic.LoadUint64(&m.queueDrops),
		UnknownSymbols: atomic.LoadUint64(&m.unknownSymbols),
		StaleTicks:     atomic.LoadUint64(&m.staleTicks),
		PriceUpdates:   atomic.LoadUint64(&m.priceUpdates),
		QuoteUpdates:   atomic.LoadUint64(&m.quoteUpdates),
		Reconnects:     atomic.LoadUint64(&m.reconnects),
		FetchFailures:  atomic.LoadUint64(&m.fetchFailures),
		Seeded:         atomic.LoadUint64(&m.seeded),
		Indexed:        atomic.LoadUint64(&m.indexed),
		EventLatency:   m.eventLatency.Snapshot(),
		FetchLatency:   m.fetchLatency.Snapshot(),
	}
}

// Run logs a snapshot every interval until ctx is done.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Snapshot()
			logs.Infof("metrics, tickers: %d, book_tickers: %d, price_updates: %d, quote_updates: %d, unknown: %d, stale: %d, decode_drops: %d, invalid_numbers: %d, route_failures: %d, queue_drops: %d, reconnects: %d, fetch_failures: %d, event_latency_avg: %s, event_latency_max: %s",
				s.EventCounts[enum.EventTicker], s.EventCounts[enum.EventBookTicker],
				s.PriceUpdates, s.QuoteUpdates, s.UnknownSymbols, s.StaleTicks,
				s.DecodeDrops, s.InvalidNumbers, s.RouteFailures, s.QueueDrops,
				s.Reconnects, s.FetchFailures, s.EventLatency.Avg, s.EventLatency.Max,
			)
		}
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
