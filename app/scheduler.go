package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sweater-ventures/ventrix/db"
)

// StartRetryScheduler launches the retry loop: every poll interval it asks
// storage for unresolved failed events that are due (retry_time passed,
// retries below the cap) and re-injects them onto the dispatch channel. The
// worker distinguishes these from first attempts by their populated retry
// details.
func StartRetryScheduler(ventrix *Application) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(ventrix.Config.RetryInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Retry scheduler stopped")
				return
			case <-ticker.C:
				requeueFailedEvents(ctx, ventrix)
			}
		}
	}()

	ventrix.SetStopScheduler(func() {
		cancel()
		<-done
	})
}

// requeueFailedEvents re-injects every due failed event. The retry count and
// the next retry_time are advanced before the enqueue: the row stops being
// due the moment it is selected, so a slow worker cannot let the next poll
// enqueue the same event twice, and a row that reaches the cap is terminal no
// matter how the in-flight attempt ends. Backoff is linear:
// now + (retries+1) minutes.
//
// A blocked channel during shutdown abandons the rest of the batch; the
// bumped rows become due again once their new retry_time passes.
func requeueFailedEvents(ctx context.Context, ventrix *Application) {
	events, err := ventrix.DB.GetFailedEvents(ctx)
	if err != nil {
		slog.Error("Failed to query due failed events", "error", err)
		return
	}

	for _, event := range events {
		retries := event.Retry.RetryCount + 1
		retryTime := time.Now().UTC().Add(time.Duration(retries+1) * time.Minute)
		err := ventrix.DB.UpdateRetryTime(ctx, db.UpdateRetryTimeParams{
			EventID:   event.ID,
			RetryTime: pgtype.Timestamptz{Time: retryTime, Valid: true},
			Retries:   retries,
		})
		if err != nil {
			// Not bumped means still due; leave it for the next poll.
			slog.Error("Failed to advance retry state, skipping re-enqueue",
				"event_id", UuidToString(event.ID),
				"error", err,
			)
			continue
		}
		event.Retry = &db.RetryDetails{RetryCount: retries, RetryTime: retryTime}

		select {
		case ventrix.DeliveryChan <- event:
			slog.Info("Re-enqueued failed event for retry",
				"event_id", UuidToString(event.ID),
				"event_type", event.EventType,
				"retries", retries,
			)
		case <-ctx.Done():
			slog.Warn("Shutdown while re-enqueueing failed events",
				"remaining", len(events),
			)
			return
		}
	}
}
