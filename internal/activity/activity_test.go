package activity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hbomb79/Tasaveer/internal/activity"
	"github.com/stretchr/testify/assert"
)

type batchRecorder struct {
	sync.Mutex
	batches [][]string
}

func (r *batchRecorder) record(batch []string) {
	r.Lock()
	defer r.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder) all() [][]string {
	r.Lock()
	defer r.Unlock()
	return append([][]string{}, r.batches...)
}

func startAggregator(t *testing.T, interval time.Duration) (*activity.Aggregator, *batchRecorder) {
	t.Helper()
	recorder := &batchRecorder{}
	agg := activity.New(interval, recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return agg, recorder
}

func TestAggregator_IdleFlushesImmediately(t *testing.T) {
	agg, recorder := startAggregator(t, time.Hour)

	agg.Push("one")
	agg.Push("two")
	agg.Sync()

	assert.Equal(t, [][]string{{"one"}, {"two"}}, recorder.all())
	assert.Equal(t, []string{"one", "two"}, agg.Lines())
}

func TestAggregator_ActiveBatchesUntilIdle(t *testing.T) {
	agg, recorder := startAggregator(t, time.Hour)

	agg.SetActive(true)
	agg.Push("a")
	agg.Push("b")
	agg.Push("c")
	agg.Sync()
	assert.Empty(t, recorder.all(), "nothing flushes before the interval elapses")

	agg.SetActive(false)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, recorder.all())
}

func TestAggregator_ActiveFlushesOnInterval(t *testing.T) {
	agg, recorder := startAggregator(t, 20*time.Millisecond)

	agg.SetActive(true)
	agg.Push("x")
	agg.Push("y")

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, []string{"x", "y"}, agg.Lines())
	}, 2*time.Second, 10*time.Millisecond)

	for _, batch := range recorder.all() {
		assert.NotEmpty(t, batch)
	}
}

func TestAggregator_SealDropsLaterLines(t *testing.T) {
	agg, _ := startAggregator(t, time.Hour)

	agg.Push("working")
	agg.Seal("cancelled")
	agg.Push("late output")
	agg.Sync()

	assert.Equal(t, []string{"working", "cancelled"}, agg.Lines())

	agg.Reset()
	agg.Push("fresh")
	agg.Sync()
	assert.Equal(t, []string{"fresh"}, agg.Lines())
}

type fakeSource struct{ ch chan string }

func (f fakeSource) Lines() <-chan string { return f.ch }

func TestAggregator_AttachPreservesOrder(t *testing.T) {
	agg, _ := startAggregator(t, time.Hour)
	source := fakeSource{ch: make(chan string, 10)}
	for _, l := range []string{"1", "2", "3", "4"} {
		source.ch <- l
	}
	close(source.ch)

	<-agg.Attach(source)
	agg.Sync()

	assert.Equal(t, []string{"1", "2", "3", "4"}, agg.Lines())
}

func TestAggregator_Tail(t *testing.T) {
	agg, _ := startAggregator(t, time.Hour)
	for _, l := range []string{"1", "2", "3"} {
		agg.Push(l)
	}
	agg.Sync()

	assert.Equal(t, []string{"2", "3"}, agg.Tail(2))
	assert.Equal(t, []string{"1", "2", "3"}, agg.Tail(10))
}
