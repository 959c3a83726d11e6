package obs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matrix-tang/ex-rs/internal/model/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(enum.EventTicker, 1000, 1005)
	m.ObserveEvent(enum.EventTicker, 1000, 1015)
	m.ObserveEvent(enum.EventBookTicker, 0, 1000)
	m.IncStaleTick()
	m.IncUnknownSymbol()
	m.IncRouteFailure()
	m.AddSeeded(3)
	m.AddSeeded(-1)

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.EventCounts[enum.EventTicker])
	assert.Equal(t, uint64(1), s.EventCounts[enum.EventBookTicker])
	assert.Equal(t, uint64(1), s.StaleTicks)
	assert.Equal(t, uint64(1), s.UnknownSymbols)
	assert.Equal(t, uint64(1), s.RouteFailures)
	assert.Equal(t, uint64(3), s.Seeded)

	require.Equal(t, uint64(2), s.EventLatency.Count)
	assert.Equal(t, 5*time.Millisecond, s.EventLatency.Min)
	assert.Equal(t, 15*time.Millisecond, s.EventLatency.Max)
	assert.Equal(t, 10*time.Millisecond, s.EventLatency.Avg)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncQueueDrop()
	m.ObserveEvent(enum.EventTicker, 1, 2)
	m.ObserveFetch(time.Second)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestObserveEventIgnoresUnknownKind(t *testing.T) {
	m := NewMetrics()
	m.ObserveEvent(enum.EventKind(0), 0, 0)
	m.ObserveEvent(enum.EventKind(200), 0, 0)
	m.ObserveEvent(enum.EventTicker, 0, 0)

	s := m.Snapshot()
	assert.Equal(t, map[enum.EventKind]uint64{enum.EventTicker: 1}, s.EventCounts)
}

func TestLatencyStatsConcurrent(t *testing.T) {
	var l LatencyStats
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Observe(time.Duration(i) * time.Microsecond)
		}(i)
	}
	wg.Wait()

	s := l.Snapshot()
	assert.Equal(t, uint64(50), s.Count)
	assert.Equal(t, time.Microsecond, s.Min)
	assert.Equal(t, 50*time.Microsecond, s.Max)
}

func TestMetricsRunStopsOnCancel(t *testing.T) {
	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("metrics loop did not stop")
	}
}
