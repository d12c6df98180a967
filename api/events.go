package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sweater-ventures/ventrix/app"
	"github.com/sweater-ventures/ventrix/db"
	"github.com/sweater-ventures/ventrix/schema"
)

func init() {
	registerRoute(func(ventrix *app.Application, router *http.ServeMux) {
		router.Handle("POST /events/register", routeHandler(ventrix, registerEventTypeHandler))
		router.Handle("POST /events/publish", routeHandler(ventrix, publishEventHandler))
		router.Handle("POST /events/listen", routeHandler(ventrix, listenEventHandler))
		router.Handle("GET /events/{id}", routeHandler(ventrix, getEventHandler))
	})
}

type RegisterEventTypeRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	PayloadDefinition json.RawMessage `json:"payload_definition"`
}

type EventTypeResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	PayloadDefinition json.RawMessage `json:"payload_definition"`
}

type PublishEventRequest struct {
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
}

type PublishEventResponse struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
}

type ListenRequest struct {
	ServiceName string `json:"service_name"`
	EventType   string `json:"event_type"`
	Endpoint    string `json:"endpoint"`
}

type ListenResponse struct {
	ID          string `json:"id"`
	ServiceName string `json:"service_name"`
	EventType   string `json:"event_type"`
	Endpoint    string `json:"endpoint"`
}

type EventResponse struct {
	ID           string           `json:"id"`
	EventType    string           `json:"event_type"`
	Payload      string           `json:"payload"`
	FulfilledAt  *time.Time       `json:"fulfilled_at"`
	RetryDetails *db.RetryDetails `json:"retry_details"`
}

func registerEventTypeHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	var req RegisterEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Name == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if len(req.PayloadDefinition) == 0 {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "payload_definition is required"})
		return
	}

	if ventrix.Config.ValidateEventDef {
		if err := schema.ValidateEventDefinition(req.PayloadDefinition); err != nil {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Invalid payload definition: %s", err),
			})
			return
		}
	}

	eventType, err := ventrix.DB.RegisterEventType(r.Context(), db.RegisterEventTypeParams{
		Name:              req.Name,
		Description:       req.Description,
		PayloadDefinition: string(req.PayloadDefinition),
	})
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Event type %q already exists", req.Name),
			})
			return
		}
		log(r.Context()).Error("Failed to register event type", "error", err)
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	log(r.Context()).Info("Event type registered",
		"event_type_id", app.UuidToString(eventType.ID),
		"name", eventType.Name,
	)

	writeJsonResponse(w, http.StatusCreated, EventTypeResponse{
		ID:                app.UuidToString(eventType.ID),
		Name:              eventType.Name,
		Description:       eventType.Description,
		PayloadDefinition: json.RawMessage(eventType.PayloadDefinition),
	})
}

func publishEventHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.EventType == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "event_type is required"})
		return
	}

	event, err := ventrix.Publish(r.Context(), req.EventType, req.Payload)
	if err != nil {
		var mismatch *app.PayloadMismatchError
		switch {
		case errors.Is(err, app.ErrSchemaMissing):
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("No event type %q has been registered", req.EventType),
			})
		case errors.As(err, &mismatch):
			writeJsonResponse(w, http.StatusBadRequest, map[string]any{
				"error":           mismatch.Error(),
				"expected_schema": json.RawMessage(mismatch.Schema),
			})
		default:
			log(r.Context()).Error("Failed to publish event", "error", err, "event_type", req.EventType)
			writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJsonResponse(w, http.StatusCreated, PublishEventResponse{
		ID:        app.UuidToString(event.ID),
		EventType: event.EventType,
		Payload:   event.Payload,
	})
}

func listenEventHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	var req ListenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.ServiceName == "" || req.EventType == "" || req.Endpoint == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{
			"error": "service_name, event_type and endpoint are required",
		})
		return
	}

	// The subscription insert resolves both names itself, but checking the
	// event type first lets the caller tell a bad event type from a bad
	// service name.
	if _, err := ventrix.DB.GetSchemaForEventType(r.Context(), req.EventType); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("No event type %q has been registered", req.EventType),
			})
			return
		}
		log(r.Context()).Error("Failed to look up event type", "error", err)
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	subscription, err := ventrix.DB.RegisterServiceForEventType(r.Context(), db.ListenParams{
		ServiceName:   req.ServiceName,
		EventTypeName: req.EventType,
		Endpoint:      req.Endpoint,
	})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("No service %q has been registered", req.ServiceName),
			})
			return
		}
		log(r.Context()).Error("Failed to register subscription", "error", err)
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	log(r.Context()).Info("Subscription registered",
		"service_name", req.ServiceName,
		"event_type", req.EventType,
		"endpoint", req.Endpoint,
	)

	writeJsonResponse(w, http.StatusCreated, ListenResponse{
		ID:          app.UuidToString(subscription.ID),
		ServiceName: req.ServiceName,
		EventType:   req.EventType,
		Endpoint:    subscription.Endpoint,
	})
}

func getEventHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	parsed, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid event id"})
		return
	}

	event, err := ventrix.DB.GetPublishedEvent(r.Context(), pgtype.UUID{Bytes: parsed, Valid: true})
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJsonResponse(w, http.StatusNotFound, map[string]string{"error": "Event not found"})
			return
		}
		log(r.Context()).Error("Failed to look up event", "error", err)
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := EventResponse{
		ID:           app.UuidToString(event.ID),
		EventType:    event.EventType,
		Payload:      event.Payload,
		RetryDetails: event.Retry,
	}
	if event.FulfilledAt.Valid {
		resp.FulfilledAt = &event.FulfilledAt.Time
	}
	writeJsonResponse(w, http.StatusOK, resp)
}
