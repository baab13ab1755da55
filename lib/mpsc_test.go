package lib

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueMPSCOrder(t *testing.T) {
	q := NewQueueMPSC()
	for i := 0; i < 100; i++ {
		require.True(t, q.Push(i))
	}
	require.Equal(t, int64(100), q.Len())

	for i := 0; i < 100; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := q.Pop()
	require.False(t, ok)
	require.Equal(t, int64(0), q.Len())
}

func TestQueueMPSCLimit(t *testing.T) {
	q := NewQueueLimitMPSC(2)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.False(t, q.Push(3))

	q.Pop()
	require.True(t, q.Push(3))
	require.Equal(t, int64(2), q.Limit())
}

func TestQueueMPSCConcurrentProducers(t *testing.T) {
	q := NewQueueMPSC()
	producers := 8
	perProducer := 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	// the single consumer must see every producer's items in that
	// producer's push order
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	count := 0
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		pi := v.([2]int)
		require.Greater(t, pi[1], last[pi[0]])
		last[pi[0]] = pi[1]
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
