package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

func stepEvent(command string) Event {
	return stepFinishedEvent(&StepFinished{
		Cell:    pipeline.Cell{OS: "linux", Toolchain: "stable"},
		Phase:   pipeline.PhaseScript,
		Command: command,
		Status:  pipeline.StepOK,
	})
}

func TestEventQueueFIFO(t *testing.T) {
	q := newEventQueue()

	require.True(t, q.Enqueue(stepEvent("first")))
	require.True(t, q.Enqueue(stepEvent("second")))
	require.True(t, q.Enqueue(stepEvent("third")))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"first", "second", "third"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		require.NotNil(t, ev.StepFinished)
		assert.Equal(t, want, ev.StepFinished.Command)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueTryDequeueEmpty(t *testing.T) {
	q := newEventQueue()
	ev, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, Event{}, ev)
}

func TestEventQueueEnqueueAfterClose(t *testing.T) {
	q := newEventQueue()
	q.Close()
	assert.False(t, q.Enqueue(stepEvent("late")))
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueCloseIdempotent(t *testing.T) {
	q := newEventQueue()
	q.Close()
	assert.NotPanics(t, func() { q.Close() })
}

func TestEventQueueDrained(t *testing.T) {
	q := newEventQueue()
	assert.False(t, q.Drained(), "open empty queue is not drained")

	q.Enqueue(stepEvent("pending"))
	q.Close()
	assert.False(t, q.Drained(), "closed queue with events is not drained")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())
}

func TestEventQueueCloseUnblocksWait(t *testing.T) {
	q := newEventQueue()

	done := make(chan struct{})
	go func() {
		<-q.Wait()
		close(done)
	}()

	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}

	// The closed signal channel keeps firing, so a drain loop can
	// keep checking Drained without blocking.
	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait blocked after Close")
	}
}

func TestEventQueueSignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(stepEvent("one"))
	q.Enqueue(stepEvent("two"))

	// Two enqueues leave at most one pending signal; the consumer
	// drains with TryDequeue rather than counting signals.
	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("expected a single coalesced signal")
	default:
	}

	_, ok := q.TryDequeue()
	require.True(t, ok)
	_, ok = q.TryDequeue()
	require.True(t, ok)
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	q := newEventQueue()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(stepEvent(fmt.Sprintf("producer-%d-%d", p, i)))
			}
		}(p)
	}

	done := make(chan int)
	go func() {
		count := 0
		for {
			if _, ok := q.TryDequeue(); ok {
				count++
				continue
			}
			if q.Drained() {
				done <- count
				return
			}
			<-q.Wait()
		}
	}()

	wg.Wait()
	q.Close()

	select {
	case count := <-done:
		assert.Equal(t, producers*perProducer, count)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "cell_started", EventTypeCellStarted.String())
	assert.Equal(t, "step_finished", EventTypeStepFinished.String())
	assert.Equal(t, "cell_finished", EventTypeCellFinished.String())
	assert.Equal(t, "event(99)", EventType(99).String())
}
