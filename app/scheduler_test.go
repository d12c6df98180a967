package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweater-ventures/ventrix/db"
)

func makeDue(t *testing.T, store *db.MemoryStore, event db.Event, retries int16) {
	t.Helper()
	require.NoError(t, store.UpdateRetryTime(context.Background(), db.UpdateRetryTimeParams{
		EventID:   event.ID,
		RetryTime: pgtype.Timestamptz{Time: time.Now().UTC().Add(-time.Second), Valid: true},
		Retries:   retries,
	}))
}

func TestRequeueFailedEvents_ReinjectsDueEvents(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)
	registerTestEventType(t, store, "contact.added")

	event := savedEvent(t, store, "contact.added")
	require.NoError(t, store.AddFailedEvent(context.Background(), event))
	makeDue(t, store, event, 1)

	requeueFailedEvents(context.Background(), ventrix)

	select {
	case queued := <-ventrix.DeliveryChan:
		assert.Equal(t, event.ID, queued.ID)
		require.NotNil(t, queued.Retry)
		assert.Equal(t, int16(2), queued.Retry.RetryCount, "count advances at re-injection")
	default:
		t.Fatal("expected due event on delivery channel")
	}

	// The row was bumped before the enqueue with linear backoff, so the next
	// poll cannot select it again.
	failed, err := store.GetFailedEventRecord(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, int16(2), failed.Retries)
	assert.WithinDuration(t, time.Now().UTC().Add(3*time.Minute), failed.RetryTime.Time, 5*time.Second)

	requeueFailedEvents(context.Background(), ventrix)
	assert.Empty(t, ventrix.DeliveryChan)
}

func TestRequeueFailedEvents_SkipsCappedAndNotDue(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)
	registerTestEventType(t, store, "contact.added")

	capped := savedEvent(t, store, "contact.added")
	require.NoError(t, store.AddFailedEvent(context.Background(), capped))
	makeDue(t, store, capped, 3)

	notDue := savedEvent(t, store, "contact.added")
	require.NoError(t, store.AddFailedEvent(context.Background(), notDue))

	requeueFailedEvents(context.Background(), ventrix)

	assert.Empty(t, ventrix.DeliveryChan)
}

func TestRequeueFailedEvents_StopsWhenCancelled(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)
	ventrix.DeliveryChan = make(chan db.Event) // unbuffered, nothing consuming
	registerTestEventType(t, store, "contact.added")

	event := savedEvent(t, store, "contact.added")
	require.NoError(t, store.AddFailedEvent(context.Background(), event))
	makeDue(t, store, event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		requeueFailedEvents(ctx, ventrix)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("requeue must abandon the batch when the scheduler is stopped")
	}
}

func TestRetryScheduler_EndToEnd(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)
	registerTestEventType(t, store, "contact.added")

	// Fail the first delivery, succeed the retry.
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	subscribeService(t, store, "receiver", "contact.added", server.URL, "/hooks")
	event := savedEvent(t, store, "contact.added")

	deliverEvent(context.Background(), ventrix, event)
	require.Equal(t, int32(1), hits.Load())

	failed, err := store.GetFailedEventRecord(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, int16(0), failed.Retries)

	// Pull the retry forward instead of waiting out the backoff.
	makeDue(t, store, event, 0)

	StartDispatcher(ventrix)
	requeueFailedEvents(context.Background(), ventrix)
	ventrix.stopDelivery()

	assert.Equal(t, int32(2), hits.Load())

	failed, err = store.GetFailedEventRecord(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, failed.ResolvedAt.Valid)
	assert.Equal(t, int16(1), failed.Retries, "one retry was spent succeeding")

	stored, err := store.GetPublishedEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, stored.FulfilledAt.Valid)

	// Resolved events never come back.
	requeueFailedEvents(context.Background(), ventrix)
	assert.Empty(t, ventrix.DeliveryChan)
}

func TestRequeueFailedEvents_CapIsTerminal(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)
	registerTestEventType(t, store, "contact.added")

	event := savedEvent(t, store, "contact.added")
	require.NoError(t, store.AddFailedEvent(context.Background(), event))
	makeDue(t, store, event, 2)

	// Last eligible injection bumps the row to the cap.
	requeueFailedEvents(context.Background(), ventrix)
	queued := <-ventrix.DeliveryChan
	require.NotNil(t, queued.Retry)
	assert.Equal(t, int16(3), queued.Retry.RetryCount)

	// Even once due again, a capped row is never re-selected.
	makeDue(t, store, event, 3)
	requeueFailedEvents(context.Background(), ventrix)
	assert.Empty(t, ventrix.DeliveryChan)

	failed, err := store.GetFailedEventRecord(context.Background(), event.ID)
	require.NoError(t, err)
	assert.False(t, failed.ResolvedAt.Valid)
}

func TestStartRetryScheduler_StopWaitsForLoop(t *testing.T) {
	store := db.NewMemoryStore(3)
	ventrix := newTestApp(store)

	StartRetryScheduler(ventrix)

	done := make(chan struct{})
	go func() {
		ventrix.stopScheduler()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stopping the scheduler must not hang")
	}
}
