package activity

import (
	"context"
	"time"

	"github.com/hbomb79/Tasaveer/pkg/logger"
)

// Run is the aggregator's drain loop and the only place its buffer is
// mutated. It must be running for Push and friends to make progress.
func (agg *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(agg.interval)
	defer ticker.Stop()
	defer agg.stopOnce.Do(func() { close(agg.stopped) })

	log.Emit(logger.NEW, "Log aggregator started (flush interval %s)\n", agg.interval)
	for {
		select {
		case msg := <-agg.in:
			agg.handle(msg)
			if msg.ack != nil {
				close(msg.ack)
			}
		case <-ticker.C:
			if agg.active {
				agg.flush()
			}
		case <-ctx.Done():
			agg.drain()
			log.Emit(logger.STOP, "Log aggregator closed\n")
			return nil
		}
	}
}

// drain handles whatever is already queued so that no accepted line is lost
// on shutdown.
func (agg *Aggregator) drain() {
	for {
		select {
		case msg := <-agg.in:
			agg.handle(msg)
			if msg.ack != nil {
				close(msg.ack)
			}
		default:
			agg.flush()
			return
		}
	}
}
