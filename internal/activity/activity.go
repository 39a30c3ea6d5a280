package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("Activity")

const (
	DefaultFlushInterval = 100 * time.Millisecond
	inputBufferSize      = 1024
)

/*
 * The aggregator collects user-visible log lines from the orchestrator and
 * from every supervised process. While a pipeline step is running lines are
 * batched and flushed on a fixed interval; otherwise each line is flushed
 * as soon as it arrives.
 */

type (
	// FlushHandler receives each flushed batch, in order. It is called from
	// the aggregator's Run loop and must not block for long.
	FlushHandler func(batch []string)

	// LineSource is anything producing a stream of output lines which is
	// closed once exhausted, such as a supervised process.
	LineSource interface {
		Lines() <-chan string
	}

	messageKind int

	message struct {
		kind   messageKind
		line   string
		active bool
		ack    chan struct{}
	}

	Aggregator struct {
		interval time.Duration
		onFlush  FlushHandler
		in       chan message
		stopped  chan struct{}
		stopOnce sync.Once

		// Only touched by the Run loop
		pending []string
		active  bool
		sealed  bool
		dropped int

		mu      sync.Mutex
		history []string
	}
)

const (
	lineMessage messageKind = iota
	activeMessage
	sealMessage
	resetMessage
	syncMessage
)

func New(interval time.Duration, onFlush FlushHandler) *Aggregator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if onFlush == nil {
		onFlush = func([]string) {}
	}

	return &Aggregator{
		interval: interval,
		onFlush:  onFlush,
		in:       make(chan message, inputBufferSize),
		stopped:  make(chan struct{}),
		pending:  make([]string, 0),
		history:  make([]string, 0),
	}
}

// Push queues a line. It blocks only if the input buffer is full.
func (agg *Aggregator) Push(line string) {
	agg.send(message{kind: lineMessage, line: line})
}

func (agg *Aggregator) Pushf(format string, args ...any) {
	agg.Push(fmt.Sprintf(format, args...))
}

// SetActive switches between batched (active) and immediate flushing.
// Leaving active mode flushes anything pending before returning.
func (agg *Aggregator) SetActive(active bool) {
	agg.call(message{kind: activeMessage, active: active})
}

// Seal appends a final line, flushes, and discards every line pushed
// afterwards until Reset is called.
func (agg *Aggregator) Seal(line string) {
	agg.call(message{kind: sealMessage, line: line})
}

// Reset clears the history and unseals the aggregator, ready for a new run.
func (agg *Aggregator) Reset() {
	agg.call(message{kind: resetMessage})
}

// Sync returns once every message sent before it has been processed.
func (agg *Aggregator) Sync() {
	agg.call(message{kind: syncMessage})
}

// Attach forwards every line from the source in to the aggregator. The
// returned channel is closed once the source is exhausted and all of its
// lines have been queued.
func (agg *Aggregator) Attach(source LineSource) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range source.Lines() {
			agg.Push(line)
		}
	}()

	return done
}

// Lines returns every line flushed since the last Reset.
func (agg *Aggregator) Lines() []string {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	out := make([]string, len(agg.history))
	copy(out, agg.history)
	return out
}

// Tail returns at most n of the most recently flushed lines.
func (agg *Aggregator) Tail(n int) []string {
	lines := agg.Lines()
	if len(lines) <= n {
		return lines
	}

	return lines[len(lines)-n:]
}

func (agg *Aggregator) send(msg message) bool {
	select {
	case agg.in <- msg:
		return true
	case <-agg.stopped:
		return false
	}
}

func (agg *Aggregator) call(msg message) {
	msg.ack = make(chan struct{})
	if !agg.send(msg) {
		return
	}

	select {
	case <-msg.ack:
	case <-agg.stopped:
	}
}

func (agg *Aggregator) handle(msg message) {
	switch msg.kind {
	case lineMessage:
		if agg.sealed {
			agg.dropped++
			return
		}

		agg.pending = append(agg.pending, msg.line)
		if !agg.active {
			agg.flush()
		}
	case activeMessage:
		agg.active = msg.active
		if !agg.active {
			agg.flush()
		}
	case sealMessage:
		if !agg.sealed {
			agg.pending = append(agg.pending, msg.line)
			agg.flush()
			agg.sealed = true
		}
	case resetMessage:
		if agg.dropped > 0 {
			log.Emit(logger.DEBUG, "Discarded %d lines received after log was sealed\n", agg.dropped)
		}

		agg.flush()
		agg.sealed, agg.dropped = false, 0
		agg.mu.Lock()
		agg.history = make([]string, 0)
		agg.mu.Unlock()
	case syncMessage:
	}
}

func (agg *Aggregator) flush() {
	if len(agg.pending) == 0 {
		return
	}

	batch := agg.pending
	agg.pending = make([]string, 0)

	agg.mu.Lock()
	agg.history = append(agg.history, batch...)
	agg.mu.Unlock()

	agg.onFlush(batch)
}
