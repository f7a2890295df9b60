package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kapilratnani/pgfire/internal/notify"
)

// events is the SSE responder of spec §6: one "message" event per
// change record whose path matches the prefix, delivered by draining
// notify.Subscription.Stream() directly rather than polling (see
// internal/notify's package doc).
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ldb := chi.URLParam(r, "ldb")
	prefix := opPath(r)

	sub, err := notify.Subscribe(r.Context(), ldb, prefix, s.newListenDialer(), s.log)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer sub.Cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	stream := sub.Stream()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-stream:
			if !ok {
				return
			}
			if err := writeSSERecord(w, rec); err != nil {
				s.log.Warnw("writing sse frame", "ldb", ldb, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSERecord(w http.ResponseWriter, rec notify.Record) error {
	payload := struct {
		Event string          `json:"event"`
		Path  string          `json:"path"`
		Data  json.RawMessage `json:"data"`
	}{Event: rec.Event, Path: rec.Path, Data: rec.Data}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}
