package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxfn/internal/ir"
)

func evt(symbol string) Event {
	return Event{Stream: "inputStream", Data: ir.IRObject{"symbol": ir.IRString(symbol)}}
}

func symbols(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = string(ev.Data["symbol"].(ir.IRString))
	}
	return out
}

func TestEventQueue_TakeReturnsPendingInOrder(t *testing.T) {
	q := newEventQueue()
	for _, s := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(evt(s)))
	}
	assert.Equal(t, 3, q.Len())

	batch, err := q.take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, symbols(batch))
	assert.Equal(t, 0, q.Len())
}

func TestEventQueue_TakeWaitsForEnqueue(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(evt("late"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, err := q.take(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, symbols(batch))
}

func TestEventQueue_CloseDrainsFirst(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(evt("A"))
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(evt("B")), "enqueue after close")

	batch, err := q.take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, symbols(batch))

	_, err = q.take(context.Background())
	assert.ErrorIs(t, err, errQueueClosed)
}

func TestEventQueue_CloseWakesTake(t *testing.T) {
	q := newEventQueue()

	done := make(chan error, 1)
	go func() {
		_, err := q.take(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("take did not return after close")
	}
}

func TestEventQueue_TakeHonoursContext(t *testing.T) {
	q := newEventQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.take(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(evt(fmt.Sprintf("%d-%03d", p, i)))
			}
		}()
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	// Each producer's events keep their relative order.
	last := make(map[string]string)
	total := 0
	for {
		batch, err := q.take(context.Background())
		if err != nil {
			require.ErrorIs(t, err, errQueueClosed)
			break
		}
		for _, s := range symbols(batch) {
			producer := s[:1]
			assert.Less(t, last[producer], s)
			last[producer] = s
			total++
		}
	}
	assert.Equal(t, producers*perProducer, total)
}
