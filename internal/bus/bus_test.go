package bus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	var got1, got2 []any
	b.Subscribe("t", func(_ context.Context, p any) { got1 = append(got1, p) })
	b.Subscribe("t", func(_ context.Context, p any) { got2 = append(got2, p) })

	b.Publish(context.Background(), "t", 1)
	b.Publish(context.Background(), "t", 2)

	assert.Equal(t, []any{1, 2}, got1)
	assert.Equal(t, []any{1, 2}, got2)
}

func TestPublishToTopicWithoutSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	// Must not panic or block.
	b.Publish(context.Background(), "nobody", "payload")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	var n int
	sub := b.Subscribe("t", func(_ context.Context, _ any) { n++ })
	b.Publish(context.Background(), "t", nil)
	sub.Unsubscribe()
	sub.Unsubscribe() // safe twice
	b.Publish(context.Background(), "t", nil)
	assert.Equal(t, 1, n)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	t.Parallel()
	b := New()
	var survived int
	b.Subscribe("t", func(_ context.Context, _ any) { panic("handler bug") })
	b.Subscribe("t", func(_ context.Context, _ any) { survived++ })

	require.NotPanics(t, func() {
		b.Publish(context.Background(), "t", nil)
		b.Publish(context.Background(), "t", nil)
	})
	assert.Equal(t, 2, survived)
}

func TestPerTopicOrderingUnderConcurrentPublish(t *testing.T) {
	t.Parallel()
	b := New()
	var mu sync.Mutex
	var got []int
	b.Subscribe("t", func(_ context.Context, p any) {
		mu.Lock()
		got = append(got, p.(int))
		mu.Unlock()
	})

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			b.Publish(context.Background(), "t", v)
		}(i)
	}
	wg.Wait()

	// Each publish is delivered exactly once; interleaving order across
	// publishers is unspecified.
	require.Len(t, got, n)
	seen := make(map[int]bool, n)
	for _, v := range got {
		assert.False(t, seen[v])
		seen[v] = true
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	t.Parallel()
	b := New()
	var a, c int
	b.Subscribe("a", func(_ context.Context, _ any) { a++ })
	b.Subscribe("c", func(_ context.Context, _ any) { c++ })
	b.Publish(context.Background(), "a", nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, c)
}
