package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sweater-ventures/ventrix/db"
)

// deliveryBody is the wire format POSTed to subscriber endpoints.
// retry_details is null on first attempts and carries the retry count and
// scheduled retry time on re-deliveries.
type deliveryBody struct {
	ID           string           `json:"id"`
	EventType    string           `json:"event_type"`
	Payload      string           `json:"payload"`
	RetryDetails *db.RetryDetails `json:"retry_details"`
}

// StartDispatcher launches the delivery worker: a single consumer draining
// the dispatch channel FIFO. Events are fanned out to all subscribers of
// their type sequentially; per-delivery outcomes are recorded through the
// storage interface. Delivery failures never propagate back to publishers.
func StartDispatcher(ventrix *Application) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		for event := range ventrix.DeliveryChan {
			deliverEvent(context.Background(), ventrix, event)
		}

		slog.Info("Delivery channel closed, dispatcher stopped")
	}()

	ventrix.SetStopDelivery(func() {
		close(ventrix.DeliveryChan)
		<-done
	})
}

// deliverEvent runs one delivery cycle: look up subscribers, POST the event
// to each in order, and record the outcome. An event with no resolvable
// subscribers terminates without delivery and without retry bookkeeping.
func deliverEvent(ctx context.Context, ventrix *Application, event db.Event) {
	logger := slog.Default().With(
		"event_id", UuidToString(event.ID),
		"event_type", event.EventType,
	)
	if event.Retry != nil {
		logger = logger.With("retry_count", event.Retry.RetryCount)
	}

	subscribers, err := ventrix.DB.GetSubscribersForEventType(ctx, event.EventType)
	if err != nil {
		logger.Error("Failed to look up subscribers, dropping event", "error", err)
		return
	}
	if len(subscribers) == 0 {
		logger.Info("No subscribers registered for event type")
		return
	}

	// At most one failed_events insert per delivery cycle, however many
	// subscribers fail.
	failureRecorded := false

	for _, subscriber := range subscribers {
		destination := subscriber.ServiceURL + subscriber.Endpoint

		statusCode, err := postEvent(ctx, ventrix.Client, destination, event)
		if err != nil {
			// Transport errors take no persistence action: the event is
			// neither fulfilled nor failed for this subscriber.
			logger.Error("Delivery request failed",
				"service", subscriber.ServiceName,
				"destination", destination,
				"error", err,
			)
			publishAttempt(ventrix, event, destination, 0)
			continue
		}

		publishAttempt(ventrix, event, destination, statusCode)

		if statusCode >= 200 && statusCode < 300 {
			logger.Info("Delivery succeeded",
				"service", subscriber.ServiceName,
				"destination", destination,
				"status_code", statusCode,
			)
			onDeliverySuccess(ctx, ventrix, event, logger)
		} else {
			logger.Warn("Delivery failed",
				"service", subscriber.ServiceName,
				"destination", destination,
				"status_code", statusCode,
			)
			if stop := onDeliveryFailure(ctx, ventrix, event, &failureRecorded, logger); stop {
				return
			}
		}
	}
}

// postEvent sends the event to a single destination and returns the HTTP
// status code. A non-nil error means no HTTP response was received.
func postEvent(ctx context.Context, client *http.Client, destination string, event db.Event) (int, error) {
	body := deliveryBody{
		ID:           UuidToString(event.ID),
		EventType:    event.EventType,
		Payload:      event.Payload,
		RetryDetails: event.Retry,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding delivery body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("creating delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// onDeliverySuccess marks the event fulfilled, first resolving its
// failed_events row when this cycle is a retry. Persistence failures here are
// logged only; the delivery itself succeeded.
func onDeliverySuccess(ctx context.Context, ventrix *Application, event db.Event, logger *slog.Logger) {
	if event.Retry != nil {
		if err := ventrix.DB.ResolveFailedEvent(ctx, event.ID); err != nil {
			logger.Warn("Failed to resolve failed event after successful retry", "error", err)
		}
	}
	if err := ventrix.DB.FulfilEvent(ctx, event.ID); err != nil {
		logger.Info("Failed to mark event fulfilled", "error", err)
	}
	ventrix.EventBus.Publish(BusMessage{
		Type:      BusMessageFulfilled,
		EventID:   UuidToString(event.ID),
		EventType: event.EventType,
	})
}

// onDeliveryFailure records the non-2xx outcome. On a first attempt it
// inserts the failed_events row (once per cycle) and reports stop=false so
// remaining subscribers still get their first delivery. On a retry it
// reports stop=true: a retry targets the whole event, one failure ends the
// cycle, and the scheduler already advanced the retry bookkeeping when it
// re-enqueued the event.
func onDeliveryFailure(ctx context.Context, ventrix *Application, event db.Event, failureRecorded *bool, logger *slog.Logger) (stop bool) {
	if event.Retry != nil {
		if event.Retry.RetryCount >= int16(ventrix.Config.RetryCap) {
			logger.Warn("Retry cap reached, event is terminally failed")
		} else {
			logger.Info("Retry failed, next attempt already scheduled",
				"retries", event.Retry.RetryCount,
				"retry_time", event.Retry.RetryTime,
			)
		}
		return true
	}

	if *failureRecorded {
		return false
	}
	*failureRecorded = true

	if err := ventrix.DB.AddFailedEvent(ctx, event); err != nil {
		logger.Error("Failed to record failed event", "error", err)
		return false
	}
	ventrix.EventBus.Publish(BusMessage{
		Type:      BusMessageFailed,
		EventID:   UuidToString(event.ID),
		EventType: event.EventType,
	})
	return false
}

func publishAttempt(ventrix *Application, event db.Event, destination string, statusCode int) {
	msg := BusMessage{
		Type:               BusMessageDeliveryAttempt,
		EventID:            UuidToString(event.ID),
		EventType:          event.EventType,
		Destination:        destination,
		ResponseStatusCode: statusCode,
	}
	if event.Retry != nil {
		msg.RetryCount = event.Retry.RetryCount
	}
	ventrix.EventBus.Publish(msg)
}
