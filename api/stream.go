package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sweater-ventures/ventrix/app"
)

func init() {
	registerRoute(func(ventrix *app.Application, router *http.ServeMux) {
		router.Handle("GET /events/stream", routeHandler(ventrix, streamEventsHandler))
	})
}

// streamEventsHandler streams broker activity (published events, delivery
// attempts, fulfilments, failures) to the client as Server-Sent Events.
func streamEventsHandler(ventrix *app.Application, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messages, unsubscribe := ventrix.EventBus.Subscribe()
	defer unsubscribe()

	log(r.Context()).Info("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log(r.Context()).Info("SSE client disconnected")
			return
		case msg := <-messages:
			data, err := json.Marshal(msg)
			if err != nil {
				log(r.Context()).Error("Failed to encode bus message", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", msg.ID, msg.Type, data)
			flusher.Flush()
		}
	}
}
