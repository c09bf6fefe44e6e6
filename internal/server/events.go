package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ciphermarket/internal/domain"
	"ciphermarket/internal/events"
)

// eventsHandler streams lifecycle events over SSE: full history replay
// first, then the live feed until the client disconnects.
func eventsHandler(bus *events.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		feed, cancel := bus.Subscribe()
		defer cancel()

		for _, evt := range bus.History() {
			writeEvent(w, evt)
		}
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, open := <-feed:
				if !open {
					return
				}
				writeEvent(w, evt)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, evt domain.FlowEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
}
