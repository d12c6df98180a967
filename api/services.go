package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sweater-ventures/ventrix/app"
	"github.com/sweater-ventures/ventrix/db"
)

func init() {
	registerRoute(func(ventrix *app.Application, router *http.ServeMux) {
		router.Handle("POST /service/register", routeHandler(ventrix, registerServiceHandler))
		router.Handle("POST /service/remove", routeHandler(ventrix, removeServiceHandler))
	})
}

type RegisterServiceRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type ServiceDetails struct {
	Endpoint string `json:"endpoint"`
}

type RegisterServiceResponse struct {
	Name           string         `json:"name"`
	ServiceDetails ServiceDetails `json:"service_details"`
}

type RemoveServiceRequest struct {
	Name string `json:"name"`
}

func registerServiceHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Name == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.URL == "" {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	service, err := ventrix.DB.RegisterService(r.Context(), db.RegisterServiceParams{
		Name: req.Name,
		URL:  req.URL,
	})
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Service %q already exists", req.Name),
			})
			return
		}
		log(r.Context()).Error("Failed to register service", "error", err)
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	log(r.Context()).Info("Service registered",
		"service_id", app.UuidToString(service.ID),
		"name", service.Name,
		"url", service.URL,
	)

	writeJsonResponse(w, http.StatusCreated, RegisterServiceResponse{
		Name:           service.Name,
		ServiceDetails: ServiceDetails{Endpoint: service.URL},
	})
}

func removeServiceHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	var req RemoveServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if err := ventrix.DB.RemoveService(r.Context(), req.Name); err != nil {
		log(r.Context()).Error("Failed to remove service", "error", err, "name", req.Name)
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	log(r.Context()).Info("Service removed", "name", req.Name)
	writeJsonResponse(w, http.StatusNoContent, map[string]string{
		"message": fmt.Sprintf("Record successfully deleted for service: %s", req.Name),
	})
}
