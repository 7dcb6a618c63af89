package bot

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// StartFlushWorker periodically snapshots open participation intervals so a
// crash loses at most one interval of credit.
// Returns a cleanup function to stop the worker gracefully
func (b *Bot) StartFlushWorker(ctx context.Context, interval time.Duration) func() {
	return startFlushWorker(ctx, interval, func() int {
		return b.services.Tracker.Flush(b.services.Clock.Now())
	})
}

func startFlushWorker(ctx context.Context, interval time.Duration, flush func() int) func() {
	ticker := time.NewTicker(interval)
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithField("interval", interval).Info("Participation flush worker started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Participation flush worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Participation flush worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				if open := flush(); open > 0 {
					log.WithField("open_intervals", open).Debug("Flushed open intervals")
				}
			}
		}
	}()

	// Return cleanup function
	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		ticker.Stop()
		close(stopChan)
		<-done
	}
}
