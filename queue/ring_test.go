package queue

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := New[int](5)
	require.Equal(t, 8, r.Cap())
}

func TestPushPopFIFOOrder(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, r.TryPush(i))
	}
	require.False(t, r.TryPush(99), "ring should be full")

	for i := 0; i < 4; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := r.TryPop()
	require.False(t, ok, "ring should be empty")
}

func TestPushAfterPopReusesSlot(t *testing.T) {
	r := New[int](2)
	require.True(t, r.TryPush(1))
	require.True(t, r.TryPush(2))
	v, _ := r.TryPop()
	require.Equal(t, 1, v)
	require.True(t, r.TryPush(3))
	v, _ = r.TryPop()
	require.Equal(t, 2, v)
	v, _ = r.TryPop()
	require.Equal(t, 3, v)
}

func TestConcurrentProducersSingleConsumerNoLoss(t *testing.T) {
	const producers = 8
	const perProducer = 2000
	r := New[int](64)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Push(base*perProducer+i, done)
			}
		}(p)
	}

	total := producers * perProducer
	got := make([]int, 0, total)
	for len(got) < total {
		v, ok := r.Pop(done)
		require.True(t, ok)
		got = append(got, v)
	}
	wg.Wait()

	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}
