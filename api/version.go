package api

import (
	"net/http"

	"github.com/sweater-ventures/ventrix/app"
	"github.com/sweater-ventures/ventrix/config"
)

func init() {
	registerRoute(func(ventrix *app.Application, router *http.ServeMux) {
		router.Handle("GET /version", routeHandler(ventrix, versionHandler))
	})
}

type VersionResponse struct {
	App     string `json:"app"`
	Version string `json:"version"`
}

func versionHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, http.StatusOK, VersionResponse{
		App:     "ventrix",
		Version: config.Version,
	})
}
