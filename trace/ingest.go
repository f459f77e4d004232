package trace

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// IngestHandler returns an HTTP handler that receives event batches from a
// device's RemoteStore and writes them to the local Store (hub side).
//
// Expected request: POST with application/json body containing []*Event.
// Returns 204 on success, 405 for wrong method, 400 for bad payload.
//
// Mount on the hub:
//
//	r.Post("/v1/traces", trace.IngestHandler(store))
func IngestHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		var events []*Event
		if err := json.Unmarshal(body, &events); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		for _, e := range events {
			if e != nil {
				store.RecordAsync(e)
			}
		}

		slog.Debug("trace ingest", "events", len(events))
		w.WriteHeader(http.StatusNoContent)
	}
}
