package db

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// MemoryStore implements Querier on in-process maps. It backs the broker when
// the persistence flag is off and is the storage used by tests.
type MemoryStore struct {
	mu           sync.RWMutex
	retryCap     int16
	services     map[string]Service   // keyed by name
	eventTypes   map[string]EventType // keyed by name
	subs         []Subscription
	events       map[[16]byte]Event
	failedEvents map[[16]byte]FailedEvent // keyed by event ID
}

var _ Querier = (*MemoryStore)(nil)

func NewMemoryStore(retryCap int) *MemoryStore {
	return &MemoryStore{
		retryCap:     int16(retryCap),
		services:     make(map[string]Service),
		eventTypes:   make(map[string]EventType),
		events:       make(map[[16]byte]Event),
		failedEvents: make(map[[16]byte]FailedEvent),
	}
}

func (s *MemoryStore) RegisterService(_ context.Context, arg RegisterServiceParams) (Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[arg.Name]; exists {
		return Service{}, ErrAlreadyExists
	}
	service := Service{ID: newUUID(), Name: arg.Name, URL: arg.URL}
	s.services[arg.Name] = service
	return service, nil
}

func (s *MemoryStore) RemoveService(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[name]; !exists {
		return ErrNotFound
	}
	delete(s.services, name)
	return nil
}

func (s *MemoryStore) GetServiceByName(_ context.Context, name string) (Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service, exists := s.services[name]
	if !exists {
		return Service{}, ErrNotFound
	}
	return service, nil
}

func (s *MemoryStore) RegisterEventType(_ context.Context, arg RegisterEventTypeParams) (EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.eventTypes[arg.Name]; exists {
		return EventType{}, ErrAlreadyExists
	}
	eventType := EventType{
		ID:                newUUID(),
		Name:              arg.Name,
		Description:       arg.Description,
		PayloadDefinition: arg.PayloadDefinition,
	}
	s.eventTypes[arg.Name] = eventType
	return eventType, nil
}

func (s *MemoryStore) GetSchemaForEventType(_ context.Context, eventType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, exists := s.eventTypes[eventType]
	if !exists {
		return "", ErrNotFound
	}
	return et.PayloadDefinition, nil
}

func (s *MemoryStore) RegisterServiceForEventType(_ context.Context, arg ListenParams) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventType, exists := s.eventTypes[arg.EventTypeName]
	if !exists {
		return Subscription{}, ErrNotFound
	}
	service, exists := s.services[arg.ServiceName]
	if !exists {
		return Subscription{}, ErrNotFound
	}

	sub := Subscription{
		ID:          newUUID(),
		EventTypeID: eventType.ID,
		ServiceID:   service.ID,
		Endpoint:    arg.Endpoint,
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *MemoryStore) GetSubscribersForEventType(_ context.Context, eventType string) ([]EventSubscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, exists := s.eventTypes[eventType]
	if !exists {
		return nil, nil
	}

	var subscribers []EventSubscriber
	for _, sub := range s.subs {
		if sub.EventTypeID.Bytes != et.ID.Bytes {
			continue
		}
		for _, service := range s.services {
			if service.ID.Bytes == sub.ServiceID.Bytes {
				subscribers = append(subscribers, EventSubscriber{
					ServiceName: service.Name,
					ServiceURL:  service.URL,
					Endpoint:    sub.Endpoint,
				})
			}
		}
	}
	return subscribers, nil
}

func (s *MemoryStore) SavePublishedEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID.Bytes]; exists {
		return ErrAlreadyExists
	}
	// The stored copy never carries retry details; those belong to the
	// failed_events record.
	event.Retry = nil
	s.events[event.ID.Bytes] = event
	return nil
}

func (s *MemoryStore) GetPublishedEvent(_ context.Context, id pgtype.UUID) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[id.Bytes]
	if !exists {
		return Event{}, ErrNotFound
	}
	return event, nil
}

func (s *MemoryStore) FulfilEvent(_ context.Context, id pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.events[id.Bytes]
	if !exists {
		return ErrNotFound
	}
	event.FulfilledAt = pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
	s.events[id.Bytes] = event
	return nil
}

func (s *MemoryStore) AddFailedEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.failedEvents[event.ID.Bytes] = FailedEvent{
		ID:        newUUID(),
		EventID:   event.ID,
		RetryTime: pgtype.Timestamptz{Time: now.Add(firstRetryDelayMinutes * time.Minute), Valid: true},
		Retries:   0,
		CreatedAt: pgtype.Timestamptz{Time: now, Valid: true},
	}
	return nil
}

func (s *MemoryStore) UpdateRetryTime(_ context.Context, arg UpdateRetryTimeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed, exists := s.failedEvents[arg.EventID.Bytes]
	if !exists {
		return ErrNotFound
	}
	failed.RetryTime = arg.RetryTime
	failed.Retries = arg.Retries
	s.failedEvents[arg.EventID.Bytes] = failed
	return nil
}

func (s *MemoryStore) ResolveFailedEvent(_ context.Context, eventID pgtype.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed, exists := s.failedEvents[eventID.Bytes]
	if !exists {
		return ErrNotFound
	}
	failed.ResolvedAt = pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
	s.failedEvents[eventID.Bytes] = failed
	return nil
}

func (s *MemoryStore) GetFailedEvents(_ context.Context) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	var due []Event
	for eventID, failed := range s.failedEvents {
		if failed.ResolvedAt.Valid || failed.Retries >= s.retryCap || failed.RetryTime.Time.After(now) {
			continue
		}
		event, exists := s.events[eventID]
		if !exists {
			continue
		}
		event.Retry = &RetryDetails{RetryCount: failed.Retries, RetryTime: failed.RetryTime.Time}
		due = append(due, event)
	}
	return due, nil
}

// GetFailedEventRecord exposes the raw failed_events row for an event. Only
// the in-memory store offers this; it exists for tests asserting retry
// bookkeeping.
func (s *MemoryStore) GetFailedEventRecord(_ context.Context, eventID pgtype.UUID) (FailedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	failed, exists := s.failedEvents[eventID.Bytes]
	if !exists {
		return FailedEvent{}, ErrNotFound
	}
	return failed, nil
}
