package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedEvent(t *testing.T, payload string) Event {
	t.Helper()
	ev, ok := decodeLine([]byte(ipcMarker + payload))
	require.True(t, ok)
	return ev
}

func TestQueueDeliversInArrivalOrder(t *testing.T) {
	q := newEventQueue()
	q.push(queuedEvent(t, `{"data":{"fights":[1]}}`))
	q.push(queuedEvent(t, `{"data":{"actorsString":"x"}}`))
	q.push(queuedEvent(t, `{"data":{"fights":[1,2]}}`))

	ev, ok, _, _ := q.subscribe(HasField("fights"))
	require.True(t, ok)
	res, _ := ev.Field("fights")
	assert.Len(t, res.Array(), 1)

	ev, ok, _, _ = q.subscribe(HasField("fights"))
	require.True(t, ok)
	res, _ = ev.Field("fights")
	assert.Len(t, res.Array(), 2)

	assert.Equal(t, 1, q.len(), "non-matching event should stay queued")
}

func TestQueueWakesWaiterOnMatch(t *testing.T) {
	q := newEventQueue()
	_, ok, w, cancel := q.subscribe(HasField("fights"))
	require.False(t, ok)
	defer cancel()

	go q.push(queuedEvent(t, `{"data":{"fights":[]}}`))

	select {
	case ev, open := <-w.ch:
		require.True(t, open)
		assert.True(t, ev.HasField("fights"))
	case <-time.After(time.Second):
		t.Fatal("waiter never woken")
	}
	assert.Equal(t, 0, q.len(), "delivered event should not also be queued")
}

func TestQueueOldestWaiterWins(t *testing.T) {
	q := newEventQueue()
	_, _, w1, cancel1 := q.subscribe(HasField("fights"))
	defer cancel1()
	_, _, w2, cancel2 := q.subscribe(HasField("fights"))
	defer cancel2()

	q.push(queuedEvent(t, `{"data":{"fights":[]}}`))

	select {
	case <-w1.ch:
	case <-time.After(time.Second):
		t.Fatal("first waiter never woken")
	}
	select {
	case <-w2.ch:
		t.Fatal("second waiter stole the event")
	default:
	}
}

func TestQueueCancelDeregisters(t *testing.T) {
	q := newEventQueue()
	_, ok, w, cancel := q.subscribe(HasField("fights"))
	require.False(t, ok)
	cancel()

	q.push(queuedEvent(t, `{"data":{"fights":[]}}`))

	select {
	case <-w.ch:
		t.Fatal("cancelled waiter received event")
	default:
	}
	assert.Equal(t, 1, q.len(), "event should queue once the waiter is gone")
}

func TestQueueCloseReleasesWaitersAndDropsEvents(t *testing.T) {
	q := newEventQueue()
	_, _, w, _ := q.subscribe(HasField("fights"))
	q.push(queuedEvent(t, `{"data":{"actorsString":"x"}}`))

	q.close()

	_, open := <-w.ch
	assert.False(t, open, "close should release blocked waiters")
	assert.Equal(t, 0, q.len())

	q.push(queuedEvent(t, `{"data":{"fights":[]}}`))
	assert.Equal(t, 0, q.len(), "pushes after close should drop")

	_, ok, w2, _ := q.subscribe(HasField("fights"))
	assert.False(t, ok)
	_, open = <-w2.ch
	assert.False(t, open, "waiters registered after close should be released at once")
}
