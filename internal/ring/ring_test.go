package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSPSCPushPopOrder(t *testing.T) {
	rb := NewSPSCRingBuffer[int](4)
	require.Equal(t, 4, rb.Capacity())

	require.NoError(t, rb.Push(1))
	require.NoError(t, rb.Push(2))
	require.NoError(t, rb.Push(3))
	require.NoError(t, rb.Push(4))

	require.ErrorIs(t, rb.Push(5), ErrFull)

	for _, want := range []int{1, 2, 3, 4} {
		got, err := rb.Pop()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := rb.Pop()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestSPSCRoundsCapacityToPowerOfTwo(t *testing.T) {
	rb := NewSPSCRingBuffer[int](5)
	require.Equal(t, 8, rb.Capacity())
}

func TestSPSCConcurrentProducerConsumer(t *testing.T) {
	rb := NewSPSCRingBuffer[int](16)
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for rb.Push(i) == ErrFull {
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			v, err := rb.Pop()
			if err == nil {
				received = append(received, v)
			}
		}
	}()

	wg.Wait()
	for i, v := range received {
		require.Equal(t, i, v)
	}
}

func TestMPMCPushPop(t *testing.T) {
	rb := NewMPMCRingBuffer[int](4)

	require.NoError(t, rb.Push(10))
	require.NoError(t, rb.Push(20))

	v, err := rb.Pop()
	require.NoError(t, err)
	require.Equal(t, 10, v)

	v, err = rb.Pop()
	require.NoError(t, err)
	require.Equal(t, 20, v)

	_, err = rb.Pop()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestMPMCConcurrentProducersConsumers(t *testing.T) {
	rb := NewMPMCRingBuffer[int](64)
	const producers = 4
	const perProducer = 2000
	const total = producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for rb.Push(base+i) == ErrFull {
				}
			}
		}(p * perProducer)
	}

	var mu sync.Mutex
	seen := make(map[int]bool, total)
	var consumerWg sync.WaitGroup
	consumerWg.Add(2)
	for c := 0; c < 2; c++ {
		go func() {
			defer consumerWg.Done()
			for {
				mu.Lock()
				if len(seen) >= total {
					mu.Unlock()
					return
				}
				mu.Unlock()
				v, err := rb.Pop()
				if err == nil {
					mu.Lock()
					seen[v] = true
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	consumerWg.Wait()
	require.Len(t, seen, total)
}
