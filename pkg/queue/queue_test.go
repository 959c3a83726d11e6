package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int](Option{Capacity: 4, Policy: OverflowDropNewest})
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}
	require.Equal(t, 3, q.Len())

	for i := 1; i <= 3; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestOverflowDropNewest(t *testing.T) {
	q := New[int](Option{Capacity: 2, Policy: OverflowDropNewest})
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	assert.ErrorIs(t, q.Push(3), ErrQueueFull)
	assert.Equal(t, uint64(1), q.Dropped())

	v, _ := q.Pop()
	assert.Equal(t, 1, v)
}

func TestOverflowDropOldest(t *testing.T) {
	q := New[int](Option{Capacity: 2, Policy: OverflowDropOldest})
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	require.NoError(t, q.Push(3))
	assert.Equal(t, uint64(1), q.Dropped())

	v, _ := q.Pop()
	assert.Equal(t, 2, v)
	v, _ = q.Pop()
	assert.Equal(t, 3, v)
}

func TestOverflowBlockWithTimeout(t *testing.T) {
	q := New[int](Option{Capacity: 1, Policy: OverflowBlock, BlockTimeout: 20 * time.Millisecond})
	require.NoError(t, q.Push(1))

	start := time.Now()
	err := q.Push(2)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestOverflowBlockUnblocksOnPop(t *testing.T) {
	q := New[int](Option{Capacity: 1, Policy: OverflowBlock, BlockTimeout: time.Second})
	require.NoError(t, q.Push(1))

	done := make(chan error, 1)
	go func() {
		done <- q.Push(2)
	}()

	time.Sleep(10 * time.Millisecond)
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock")
	}

	v, _ = q.Pop()
	assert.Equal(t, 2, v)
}

func TestCloseReleasesWaiters(t *testing.T) {
	q := New[int](Option{Capacity: 1, Policy: OverflowDropNewest})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := q.Pop()
		assert.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()

	assert.ErrorIs(t, q.Push(1), ErrQueueClosed)
}

func TestParseOverflowPolicy(t *testing.T) {
	testCases := []struct {
		in   string
		want OverflowPolicy
		err  bool
	}{
		{"block", OverflowBlock, false},
		{"drop_newest", OverflowDropNewest, false},
		{"DROP_OLDEST", OverflowDropOldest, false},
		{"", OverflowDropOldest, false},
		{"spill", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOverflowPolicy(tc.in)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
